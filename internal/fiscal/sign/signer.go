// Package sign computes the ZOI protective mark and wraps request payloads
// into the signed token the fiscalization endpoint expects.
package sign

import (
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/janbehro/eDavkiRepairer/internal/fiscal"
	"github.com/janbehro/eDavkiRepairer/internal/model"
)

// markTimeLayout is the timestamp format inside the protective mark base
// string. It differs from the wire layout on purpose; the authority
// recomputes the mark with exactly this format.
const markTimeLayout = "02.01.2006 15:04:05"

// TokenEnvelope is the JSON body wrapping a signed token, both on requests
// and responses.
type TokenEnvelope struct {
	Token string `json:"token"`
}

type tokenHeader struct {
	Alg         string   `json:"alg"`
	SubjectName string   `json:"subject_name"`
	IssuerName  string   `json:"issuer_name"`
	Serial      *big.Int `json:"serial"`
}

// Signer signs protective marks and request tokens with the merchant's
// client certificate.
type Signer struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

// New creates a Signer. The private key must be RSA; the endpoint only
// accepts RS256.
func New(cert *x509.Certificate, key crypto.PrivateKey) (*Signer, error) {
	if cert == nil || key == nil {
		return nil, fiscal.ErrSigningKeyUnavailable()
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fiscal.ErrSigningKeyUnavailable()
	}
	return &Signer{cert: cert, key: rsaKey}, nil
}

// Certificate returns the signing certificate.
func (s *Signer) Certificate() *x509.Certificate {
	return s.cert
}

// ProtectiveMark computes the ZOI over the canonical field concatenation:
// tax number, issue time, invoice number, premise id, device id, amount.
// No separators, ASCII bytes, RSA-SHA256/PKCS1 signature, lowercase-hex MD5
// of the signature bytes. Field order and formatting are load-bearing.
func (s *Signer) ProtectiveMark(fi model.FiscalInformation, issuedAt time.Time, invoiceNumber string, amount decimal.Decimal) (string, error) {
	base := strconv.FormatInt(fi.TaxNumber, 10) +
		issuedAt.Format(markTimeLayout) +
		invoiceNumber +
		fi.BusinessPremiseID +
		fi.ElectronicDeviceID +
		amount.String()

	sig, err := s.signPKCS1([]byte(base))
	if err != nil {
		return "", err
	}
	sum := md5.Sum(sig)
	return hex.EncodeToString(sum[:]), nil
}

// SignObject wraps payload into a three-segment signed token and returns the
// request body. Segment encodings are deliberately mixed: the header is
// base64url without padding, the payload standard base64 with padding, the
// signature base64url without padding.
func (s *Signer) SignObject(payload any) (string, error) {
	headerJSON, err := json.Marshal(tokenHeader{
		Alg:         "RS256",
		SubjectName: s.cert.Subject.String(),
		IssuerName:  s.cert.Issuer.String(),
		Serial:      reversedSerial(s.cert.SerialNumber),
	})
	if err != nil {
		return "", fmt.Errorf("marshal token header: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}

	message := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." +
		base64.StdEncoding.EncodeToString(payloadJSON)

	sig, err := s.signPKCS1([]byte(message))
	if err != nil {
		return "", err
	}
	token := message + "." + base64.RawURLEncoding.EncodeToString(sig)

	body, err := json.Marshal(TokenEnvelope{Token: token})
	if err != nil {
		return "", fmt.Errorf("marshal token envelope: %w", err)
	}
	return string(body), nil
}

func (s *Signer) signPKCS1(data []byte) ([]byte, error) {
	hashed := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, hashed[:])
	if err != nil {
		return nil, fiscal.NewError(fiscal.ErrCodeSigningKeyUnavailable, "signing failed", err)
	}
	return sig, nil
}

// reversedSerial converts the certificate serial the way the authority's
// reference client does: hex serial bytes (DER sign pad included), byte
// order reversed, read as a little-endian two's-complement integer. The pad
// keeps the sign positive and the two reversals cancel, so the header value
// is the serial itself. The mechanics are kept explicit because the endpoint
// compares against exactly this construction.
func reversedSerial(serial *big.Int) *big.Int {
	be := serial.Bytes()
	if len(be) == 0 {
		return big.NewInt(0)
	}
	if be[0]&0x80 != 0 {
		be = append([]byte{0x00}, be...)
	}
	le := make([]byte, len(be))
	for i, b := range be {
		le[len(be)-1-i] = b
	}
	out := big.NewInt(0)
	for i := len(le) - 1; i >= 0; i-- {
		out.Lsh(out, 8)
		out.Or(out, big.NewInt(int64(le[i])))
	}
	return out
}
