package verify

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janbehro/eDavkiRepairer/internal/fiscal"
)

type responseSigner struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

func newResponseSigner(t *testing.T) *responseSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "blagajne-test.fu.gov.si"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &responseSigner{cert: cert, key: key}
}

// body builds a response the way the authority does: header with the x5c
// chain, base64url segments, detached RSA-SHA256 signature.
func (s *responseSigner) body(t *testing.T, payload string) []byte {
	t.Helper()
	header, err := json.Marshal(map[string]any{
		"alg": "RS256",
		"x5c": []string{base64.StdEncoding.EncodeToString(s.cert.Raw)},
	})
	require.NoError(t, err)

	message := base64.RawURLEncoding.EncodeToString(header) +
		"." +
		base64.RawURLEncoding.EncodeToString([]byte(payload))
	hashed := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, hashed[:])
	require.NoError(t, err)

	token := message + "." + base64.RawURLEncoding.EncodeToString(sig)
	body, err := json.Marshal(map[string]string{"token": token})
	require.NoError(t, err)
	return body
}

func TestAndExtract_Success(t *testing.T) {
	signer := newResponseSigner(t)
	body := signer.body(t, `{"InvoiceResponse":{"UniqueInvoiceID":"f8c4-4123"}}`)

	payload, err := AndExtract(body)
	require.NoError(t, err)
	assert.Equal(t, "f8c4-4123", UniqueInvoiceID(payload))
}

func TestAndExtract_TokenMissing(t *testing.T) {
	_, err := AndExtract([]byte(`{"something":"else"}`))
	assert.Equal(t, fiscal.ErrCodeTokenMissing, fiscal.CodeOf(err))

	_, err = AndExtract([]byte(`{"token":""}`))
	assert.Equal(t, fiscal.ErrCodeTokenMissing, fiscal.CodeOf(err))
}

func TestAndExtract_MalformedToken(t *testing.T) {
	_, err := AndExtract([]byte(`{"token":"only.two"}`))
	assert.Equal(t, fiscal.ErrCodeMalformedToken, fiscal.CodeOf(err))

	_, err = AndExtract([]byte(`{"token":"a.b.c.d"}`))
	assert.Equal(t, fiscal.ErrCodeMalformedToken, fiscal.CodeOf(err))
}

func TestAndExtract_CertificateNotFound(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{}`))
	token := header + "." + payload + "." + base64.RawURLEncoding.EncodeToString([]byte("sig"))
	body, err := json.Marshal(map[string]string{"token": token})
	require.NoError(t, err)

	_, err = AndExtract(body)
	assert.Equal(t, fiscal.ErrCodeCertificateNotFound, fiscal.CodeOf(err))
}

func TestAndExtract_TamperedPayloadFailsVerification(t *testing.T) {
	signer := newResponseSigner(t)
	body := signer.body(t, `{"InvoiceResponse":{"UniqueInvoiceID":"f8c4-4123"}}`)

	// Re-encode the payload segment with one byte flipped; the signature no
	// longer matches.
	var envelope struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	parts := [3]string{}
	copy(parts[:], splitToken(t, envelope.Token))
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	payload[10] ^= 0x01
	parts[1] = base64.RawURLEncoding.EncodeToString(payload)
	tampered, err := json.Marshal(map[string]string{"token": parts[0] + "." + parts[1] + "." + parts[2]})
	require.NoError(t, err)

	_, err = AndExtract(tampered)
	assert.Equal(t, fiscal.ErrCodeInvalidSignature, fiscal.CodeOf(err))
}

func TestAndExtract_AuthorityError(t *testing.T) {
	signer := newResponseSigner(t)
	body := signer.body(t, `{"SomeKey":{"Error":{"ErrorCode":"S005","ErrorMessage":"mismatch"}}}`)

	_, err := AndExtract(body)
	require.Error(t, err)

	var authErr *fiscal.AuthorityError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "S005", authErr.ErrorCode)
	assert.Equal(t, fiscal.ReasonTaxNumberMismatch, authErr.Reason)
	assert.Contains(t, authErr.Message, "mismatch")
}

func TestAndExtract_ErrorScanIgnoresShapesWithoutErrorCode(t *testing.T) {
	signer := newResponseSigner(t)
	body := signer.body(t, `{"InvoiceResponse":{"Error":{"Note":"not an error object"},"UniqueInvoiceID":"ok-1"}}`)

	payload, err := AndExtract(body)
	require.NoError(t, err)
	assert.Equal(t, "ok-1", UniqueInvoiceID(payload))
}

func splitToken(t *testing.T, token string) []string {
	t.Helper()
	parts := make([]string, 0, 3)
	start := 0
	for i := 0; i <= len(token); i++ {
		if i == len(token) || token[i] == '.' {
			parts = append(parts, token[start:i])
			start = i + 1
		}
	}
	require.Len(t, parts, 3)
	return parts
}
