package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_MarshalPreservesScale(t *testing.T) {
	data, err := json.Marshal(AmountFromString("12.30"))
	require.NoError(t, err)
	assert.Equal(t, "12.30", string(data))

	data, err = json.Marshal(AmountFromString("12.3"))
	require.NoError(t, err)
	assert.Equal(t, "12.3", string(data))
}

func TestAmount_RoundTrip(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte("45.90"), &a))

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, "45.90", string(data))
}

func TestAmount_UnmarshalQuotedAndNull(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"9.50"`), &a))
	assert.Equal(t, "9.50", a.String())

	require.NoError(t, json.Unmarshal([]byte(`null`), &a))
	assert.True(t, a.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"12,30"`), &a))
}

func TestAmount_Scan(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan(int64(5)))
	assert.Equal(t, "5", a.String())

	require.NoError(t, a.Scan("12.30"))
	assert.Equal(t, "12.30", a.String())

	require.NoError(t, a.Scan([]byte("0.80")))
	assert.Equal(t, "0.80", a.String())

	require.NoError(t, a.Scan(nil))
	assert.True(t, a.IsZero())

	assert.Error(t, a.Scan(struct{}{}))
}

func TestDateTime_Marshal(t *testing.T) {
	d := DateTime{Time: time.Date(2025, 1, 5, 14, 2, 11, 0, time.Local)}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-05T14:02:11"`, string(data))
}

func TestDateTime_UnmarshalVariants(t *testing.T) {
	var d DateTime
	require.NoError(t, json.Unmarshal([]byte(`"2025-01-05T14:02:11"`), &d))
	assert.Equal(t, 14, d.Hour())

	require.NoError(t, json.Unmarshal([]byte(`"2025-01-05T14:02:11.1234567"`), &d))
	assert.Equal(t, 2, d.Minute())

	require.NoError(t, json.Unmarshal([]byte(`"2025-01-05T14:02:11+01:00"`), &d))
	assert.Equal(t, 11, d.Second())

	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.True(t, d.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"05.01.2025"`), &d))
}

func TestInvoiceIdentifier_String(t *testing.T) {
	id := InvoiceIdentifier{BusinessPremiseID: "670", ElectronicDeviceID: "1", InvoiceNumber: "1214"}
	assert.Equal(t, "670-1-1214", id.String())
}

func TestParseTaxNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12345678", 12345678, false},
		{" 12345678 ", 12345678, false},
		{"SI12345678", 12345678, false},
		{"SI", 0, true},
		{"ATU1234", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTaxNumber(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCustomerNumber_Fallback(t *testing.T) {
	c := VatCustomer{VatNumber: "SI111", TaxNumber: "222"}
	assert.Equal(t, "SI111", c.CustomerNumber())
	c.VatNumber = ""
	assert.Equal(t, "222", c.CustomerNumber())

	r := ReceiptInfo{CustomerTaxIdentificationNumber: "333"}
	assert.Equal(t, "333", r.CustomerNumber())
	r.CustomerVatIdentificationNumber = "SI444"
	assert.Equal(t, "SI444", r.CustomerNumber())
}

func TestInvoice_OmitsEmptyOptionalFields(t *testing.T) {
	data, err := json.Marshal(Invoice{InvoiceAmount: AmountFromString("1"), PaymentAmount: AmountFromString("1")})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "CustomerVATNumber")
	assert.NotContains(t, string(data), "OperatorTaxNumber")
	assert.NotContains(t, string(data), "SpecialNotes")
	assert.NotContains(t, string(data), "ReferenceInvoice")
}
