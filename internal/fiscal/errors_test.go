package fiscal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyAuthorityCode_Table(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"S001", ReasonSchemaError},
		{"S002", ReasonSchemaError},
		{"S003", ReasonBadSignature},
		{"S004", ReasonBadCertificateID},
		{"S005", ReasonTaxNumberMismatch},
		{"S006", ReasonPremisesNotRegistered},
		{"S007", ReasonCertWithdrawn},
		{"S008", ReasonCertExpired},
		{"S100", ReasonProcessingError},
		{"S999", ReasonServiceError},
		{"", ReasonServiceError},
		{"garbage", ReasonServiceError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyAuthorityCode(tt.code))
		})
	}
}

func TestError_Formatting(t *testing.T) {
	plain := NewError(ErrCodeTransport, "connection refused", nil)
	assert.Equal(t, "[TRANSPORT_ERROR] connection refused", plain.Error())

	cause := errors.New("dial tcp: timeout")
	wrapped := NewError(ErrCodeTransport, "invoice request failed", cause)
	assert.Contains(t, wrapped.Error(), "invoice request failed")
	assert.Contains(t, wrapped.Error(), "dial tcp: timeout")
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeTokenMissing, CodeOf(ErrTokenMissing()))
	assert.Equal(t, ErrCodeAuthority, CodeOf(NewAuthorityError("S100", "boom")))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestAuthorityError_Message(t *testing.T) {
	err := NewAuthorityError("S005", "tax number in certificate differs")
	assert.Equal(t, ReasonTaxNumberMismatch, err.Reason)
	assert.Contains(t, err.Error(), "S005")
	assert.Contains(t, err.Error(), "tax number in certificate differs")
}
