// Package certs loads the merchant's PKCS#12 client certificate referenced
// by the POS fiscalization configuration.
package certs

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/janbehro/eDavkiRepairer/internal/fiscal"
	"github.com/janbehro/eDavkiRepairer/internal/model"
)

// hkdfInfo binds derived keys to this one purpose.
const hkdfInfo = "edavki-client-certificate-password"

// Certificate bundles the loaded client certificate in the forms the
// pipeline needs: the TLS pair for the endpoint connection and the parsed
// leaf plus key for signing.
type Certificate struct {
	TLS  tls.Certificate
	Leaf *x509.Certificate
	Key  crypto.PrivateKey
}

// OrganizationalUnit returns the first OU of the certificate subject, used
// by the staging override to recover the test tax number.
func (c *Certificate) OrganizationalUnit() (string, error) {
	if len(c.Leaf.Subject.OrganizationalUnit) == 0 {
		return "", fmt.Errorf("certificate subject carries no organizational unit")
	}
	return c.Leaf.Subject.OrganizationalUnit[0], nil
}

// Load opens the PKCS#12 store named by the POS fiscalization configuration.
// The store password sits encrypted in the configuration row; passwordKey is
// the shared secret it was encrypted under.
func Load(posDir string, info model.EDavkiInfo, passwordKey string) (*Certificate, error) {
	if info.ClientCertificateFileName == "" {
		return nil, fiscal.ErrConfiguration("fiscalization configuration names no client certificate", nil)
	}
	password, err := DecryptPassword(info.ClientCertificatePassword, passwordKey)
	if err != nil {
		return nil, fiscal.ErrConfiguration("could not decrypt client certificate password", err)
	}

	path := filepath.Join(posDir, info.ClientCertificateFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fiscal.ErrConfiguration(fmt.Sprintf("could not read client certificate %s", path), err)
	}

	key, leaf, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fiscal.ErrConfiguration("could not decode client certificate store", err)
	}
	if key == nil {
		return nil, fiscal.ErrSigningKeyUnavailable()
	}

	return &Certificate{
		TLS: tls.Certificate{
			Certificate: [][]byte{leaf.Raw},
			PrivateKey:  key,
			Leaf:        leaf,
		},
		Leaf: leaf,
		Key:  key,
	}, nil
}

// DecryptPassword recovers a certificate password encrypted with
// EncryptPassword: base64(nonce || AES-256-GCM ciphertext) under a key
// derived from the shared secret.
func DecryptPassword(encrypted, secret string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("encrypted password is not valid base64: %w", err)
	}
	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("encrypted password too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("password decryption failed: %w", err)
	}
	return string(plain), nil
}

// EncryptPassword is the inverse of DecryptPassword. The POS writes the
// configuration row with it; the repairer only needs it in tests.
func EncryptPassword(password, secret string) (string, error) {
	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(password), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func newGCM(secret string) (cipher.AEAD, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
