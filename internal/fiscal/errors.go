// Package fiscal defines the error taxonomy shared by the signing, response
// verification, and submission packages.
package fiscal

import "fmt"

// Error codes for the repair pipeline
const (
	ErrCodeSigningKeyUnavailable = "SIGNING_KEY_UNAVAILABLE"
	ErrCodeTransport             = "TRANSPORT_ERROR"
	ErrCodeTokenMissing          = "TOKEN_MISSING"
	ErrCodeMalformedToken        = "MALFORMED_TOKEN"
	ErrCodeCertificateNotFound   = "CERTIFICATE_NOT_FOUND"
	ErrCodeInvalidSignature      = "INVALID_SIGNATURE"
	ErrCodeAuthority             = "AUTHORITY_ERROR"
	ErrCodeParse                 = "PARSE_ERROR"
	ErrCodeConfiguration         = "CONFIGURATION_ERROR"
	ErrCodePersistence           = "PERSISTENCE_ERROR"
)

// Reason codes for authority (S00x) rejections
const (
	ReasonSchemaError           = "MESSAGE_NOT_BY_SCHEMA"
	ReasonBadSignature          = "INCORRECT_DIGITAL_SIGNATURE"
	ReasonBadCertificateID      = "INCORRECT_CERTIFICATE_IDENTIFIER"
	ReasonTaxNumberMismatch     = "DIFFERENT_TAX_NUMBER_IN_CERTIFICATE"
	ReasonPremisesNotRegistered = "BUSINESS_PREMISES_NOT_SUBMITTED"
	ReasonCertWithdrawn         = "CERTIFICATE_WITHDRAWN"
	ReasonCertExpired           = "CERTIFICATE_EXPIRED"
	ReasonProcessingError       = "MESSAGE_PROCESSING_SYSTEM_ERROR"
	ReasonServiceError          = "EDAVKI_RESPONSE_ERROR"
)

// Error represents a classified failure in the repair pipeline.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a classified pipeline error.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the classification code of err, or the empty string for
// errors that did not originate in the pipeline.
func CodeOf(err error) string {
	if fe, ok := err.(*Error); ok {
		return fe.Code
	}
	if _, ok := err.(*AuthorityError); ok {
		return ErrCodeAuthority
	}
	return ""
}

// Common error constructors

// ErrSigningKeyUnavailable returns the error for a certificate without a
// usable private key.
func ErrSigningKeyUnavailable() *Error {
	return NewError(ErrCodeSigningKeyUnavailable, "client certificate does not contain a private key", nil)
}

// ErrTransport returns the error for a failed HTTP round trip.
func ErrTransport(message string, cause error) *Error {
	return NewError(ErrCodeTransport, message, cause)
}

// ErrTokenMissing returns the error for a response body without a token.
func ErrTokenMissing() *Error {
	return NewError(ErrCodeTokenMissing, "token not found in response body", nil)
}

// ErrMalformedToken returns the error for a token that is not three
// dot-separated segments.
func ErrMalformedToken(message string) *Error {
	return NewError(ErrCodeMalformedToken, message, nil)
}

// ErrCertificateNotFound returns the error for a token header without a
// usable x5c certificate.
func ErrCertificateNotFound(message string) *Error {
	return NewError(ErrCodeCertificateNotFound, message, nil)
}

// ErrInvalidSignature returns the error for a response whose signature does
// not verify against its embedded certificate.
func ErrInvalidSignature(cause error) *Error {
	return NewError(ErrCodeInvalidSignature, "response signature verification failed", cause)
}

// ErrParse returns the error for an unparseable response payload.
func ErrParse(message string, cause error) *Error {
	return NewError(ErrCodeParse, message, cause)
}

// ErrConfiguration returns a fatal setup error; these abort the run before
// any request is sent.
func ErrConfiguration(message string, cause error) *Error {
	return NewError(ErrCodeConfiguration, message, cause)
}

// ErrPersistence returns the error for a failed POS store write.
func ErrPersistence(message string, cause error) *Error {
	return NewError(ErrCodePersistence, message, cause)
}

// AuthorityError is a rejection returned by the fiscalization service itself,
// classified through the S00x code table.
type AuthorityError struct {
	// ErrorCode is the raw authority code (S001..S008, S100, ...).
	ErrorCode string
	// Reason is the classified reason code.
	Reason string
	// Message is the authority's error message, verbatim.
	Message string
}

func (e *AuthorityError) Error() string {
	return fmt.Sprintf("authority rejected request (%s/%s): %s", e.ErrorCode, e.Reason, e.Message)
}

// NewAuthorityError classifies an authority error code and wraps the
// accompanying message.
func NewAuthorityError(errorCode, message string) *AuthorityError {
	return &AuthorityError{
		ErrorCode: errorCode,
		Reason:    ClassifyAuthorityCode(errorCode),
		Message:   message,
	}
}

// ClassifyAuthorityCode maps an authority S00x error code onto a reason code.
// Unrecognized codes fall through to the generic service error.
func ClassifyAuthorityCode(errorCode string) string {
	switch errorCode {
	case "S001", "S002":
		return ReasonSchemaError
	case "S003":
		return ReasonBadSignature
	case "S004":
		return ReasonBadCertificateID
	case "S005":
		return ReasonTaxNumberMismatch
	case "S006":
		return ReasonPremisesNotRegistered
	case "S007":
		return ReasonCertWithdrawn
	case "S008":
		return ReasonCertExpired
	case "S100":
		return ReasonProcessingError
	default:
		return ReasonServiceError
	}
}
