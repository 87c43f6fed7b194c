// Package verify parses and verifies signed token responses from the
// fiscalization endpoint. No field of a response is trusted before the
// detached signature has been checked against the certificate embedded in
// the token header.
package verify

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/janbehro/eDavkiRepairer/internal/fiscal"
)

// AndExtract verifies a response body and returns the decoded payload JSON.
//
// Steps, in order: unwrap {"token":...}, split into three segments, decode
// the header, pull the leaf certificate from its x5c array, verify the
// RSA-SHA256/PKCS1 signature over the ASCII bytes of "header.payload",
// decode the payload, and scan every top-level property for an Error
// sub-object carrying an authority error code.
func AndExtract(body []byte) ([]byte, error) {
	token := gjson.GetBytes(body, "token")
	if !token.Exists() || token.String() == "" {
		return nil, fiscal.ErrTokenMissing()
	}

	parts := strings.Split(token.String(), ".")
	if len(parts) != 3 {
		return nil, fiscal.ErrMalformedToken(fmt.Sprintf("token has %d segments, want 3", len(parts)))
	}

	headerJSON, err := decodeSegment(parts[0])
	if err != nil {
		return nil, fiscal.ErrMalformedToken("token header is not valid base64url")
	}

	cert, err := leafCertificate(headerJSON)
	if err != nil {
		return nil, err
	}

	sig, err := decodeSegment(parts[2])
	if err != nil {
		return nil, fiscal.ErrMalformedToken("token signature is not valid base64url")
	}
	if err := verifyDetached(cert, []byte(parts[0]+"."+parts[1]), sig); err != nil {
		return nil, fiscal.ErrInvalidSignature(err)
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return nil, fiscal.ErrMalformedToken("token payload is not valid base64url")
	}
	if !gjson.ValidBytes(payload) {
		return nil, fiscal.ErrParse("token payload is not valid JSON", nil)
	}

	if err := scanForAuthorityError(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// UniqueInvoiceID extracts the authority-assigned registration id from a
// verified payload.
func UniqueInvoiceID(payload []byte) string {
	return gjson.GetBytes(payload, "InvoiceResponse.UniqueInvoiceID").String()
}

// leafCertificate decodes the first x5c entry of the token header.
func leafCertificate(headerJSON []byte) (*x509.Certificate, error) {
	x5c := gjson.GetBytes(headerJSON, "x5c.0")
	if !x5c.Exists() || x5c.String() == "" {
		return nil, fiscal.ErrCertificateNotFound("no x5c certificate in token header")
	}
	der, err := base64.StdEncoding.DecodeString(x5c.String())
	if err != nil {
		return nil, fiscal.ErrCertificateNotFound("x5c entry is not valid base64")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fiscal.ErrCertificateNotFound("x5c entry is not a valid certificate")
	}
	return cert, nil
}

func verifyDetached(cert *x509.Certificate, message, sig []byte) error {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is %T, want RSA", cert.PublicKey)
	}
	hashed := sha256.Sum256(message)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, hashed[:], sig)
}

// scanForAuthorityError walks the payload's top-level properties looking for
// the {"Error":{"ErrorCode":...,"ErrorMessage":...}} shape. The payload root
// key varies by message type, so the shape is scanned rather than decoded
// into a schema.
func scanForAuthorityError(payload []byte) error {
	var found error
	gjson.ParseBytes(payload).ForEach(func(_, value gjson.Result) bool {
		errObj := value.Get("Error")
		if !errObj.Exists() {
			return true
		}
		code := errObj.Get("ErrorCode")
		if !code.Exists() {
			return true
		}
		found = fiscal.NewAuthorityError(code.String(), errObj.Get("ErrorMessage").String())
		return false
	})
	return found
}

// decodeSegment decodes a base64url token segment, tolerating padding the
// way the endpoint's own decoder does.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
