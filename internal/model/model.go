// Package model holds the eDavki invoice request envelope and the POS
// database records the repairer reads alongside it.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InvoiceRequestDto is the full request body posted to the fiscalization
// endpoint (before signing). Field names follow the authority schema.
type InvoiceRequestDto struct {
	InvoiceRequest InvoiceRequestBody `json:"InvoiceRequest"`
}

// InvoiceRequestBody wraps the message header and the invoice itself.
type InvoiceRequestBody struct {
	Header  Header  `json:"Header"`
	Invoice Invoice `json:"Invoice"`
}

// Header carries the per-message id and timestamp.
type Header struct {
	MessageID string   `json:"MessageID"`
	DateTime  DateTime `json:"DateTime"`
}

// Invoice is the fiscal receipt payload.
type Invoice struct {
	TaxNumber          int64              `json:"TaxNumber"`
	IssueDateTime      DateTime           `json:"IssueDateTime"`
	NumberingStructure string             `json:"NumberingStructure"`
	InvoiceIdentifier  InvoiceIdentifier  `json:"InvoiceIdentifier"`
	CustomerVATNumber  string             `json:"CustomerVATNumber,omitempty"`
	InvoiceAmount      Amount             `json:"InvoiceAmount"`
	PaymentAmount      Amount             `json:"PaymentAmount"`
	TaxesPerSeller     []TaxPerSeller     `json:"TaxesPerSeller"`
	OperatorTaxNumber  *int64             `json:"OperatorTaxNumber,omitempty"`
	ProtectedID        string             `json:"ProtectedID"`
	SpecialNotes       string             `json:"SpecialNotes,omitempty"`
	ReferenceInvoice   []ReferenceInvoice `json:"ReferenceInvoice,omitempty"`
}

// InvoiceIdentifier uniquely identifies one receipt within a premise/device.
type InvoiceIdentifier struct {
	BusinessPremiseID  string `json:"BusinessPremiseID"`
	ElectronicDeviceID string `json:"ElectronicDeviceID"`
	InvoiceNumber      string `json:"InvoiceNumber"`
}

// String renders the identifier the way the authority and the archive key it:
// premise-device-number.
func (id InvoiceIdentifier) String() string {
	return fmt.Sprintf("%s-%s-%s", id.BusinessPremiseID, id.ElectronicDeviceID, id.InvoiceNumber)
}

// TaxPerSeller groups the VAT breakdown under one seller tax number.
// SellerTaxNumber is nil on requests the authority rejected for exactly that
// reason; repair fills it in.
type TaxPerSeller struct {
	SellerTaxNumber *int64     `json:"SellerTaxNumber,omitempty"`
	VAT             []VATEntry `json:"VAT,omitempty"`
}

// VATEntry is one rate/base/tax triple.
type VATEntry struct {
	TaxRate       Amount `json:"TaxRate"`
	TaxableAmount Amount `json:"TaxableAmount"`
	TaxAmount     Amount `json:"TaxAmount"`
}

// ReferenceInvoice points a corrected receipt back at the receipt it
// supersedes.
type ReferenceInvoice struct {
	ReferenceInvoiceIdentifier    InvoiceIdentifier `json:"ReferenceInvoiceIdentifier"`
	ReferenceInvoiceIssueDateTime DateTime          `json:"ReferenceInvoiceIssueDateTime"`
}

// FiscalInformation is the signer input. Constructed per signing call, never
// persisted.
type FiscalInformation struct {
	TaxNumber                 int64
	CashierTaxNumber          *int64
	InvoiceNumberingStructure string
	BusinessPremiseID         string
	ElectronicDeviceID        string
}

// FiscalizationResult is the fiscal metadata the POS stores per transaction
// (FRegAdditionalInfo column).
type FiscalizationResult struct {
	ReceiptNumber          int    `json:"ReceiptNumber"`
	LocationCode           string `json:"LocationCode,omitempty"`
	PosNumber              string `json:"PosNumber,omitempty"`
	FiscalRegistrationCode string `json:"FiscalRegistrationCode,omitempty"`
}

// VatCustomer is a historical transaction carrying a customer VAT or tax id,
// used to pair that id back onto the receipt being repaired.
type VatCustomer struct {
	VatNumber      string `db:"VatNumber"`
	TaxNumber      string `db:"TaxNumber"`
	AdditionalInfo string `db:"AdditionalInfo"`

	// Decoded from AdditionalInfo after the query.
	FiscalizationResult *FiscalizationResult `db:"-"`
}

// CustomerNumber returns the VAT id, falling back to the tax id.
func (c VatCustomer) CustomerNumber() string {
	if c.VatNumber != "" {
		return c.VatNumber
	}
	return c.TaxNumber
}

// VatAmount is one VAT bucket of a sales transaction.
type VatAmount struct {
	ID         int64  `db:"Id"`
	VatValue   Amount `db:"VatValue"`
	BaseAmount Amount `db:"BaseAmount"`
	TaxAmount  Amount `db:"TaxAmount"`
}

// ReceiptInfo is a fiscalized transaction that lacks a customer VAT number.
// It is the source record for synthesized VAT-correction requests.
type ReceiptInfo struct {
	GlobalSalesTransactionID        string    `db:"GlobalSalesTransactionId"`
	BusinessPremiseID               string    `db:"BusinessPremiseID"`
	DeviceID                        string    `db:"DeviceId"`
	ReceiptID                       string    `db:"ReceiptId"`
	Date                            time.Time `db:"Date"`
	CustomerVatIdentificationNumber string    `db:"CustomerVatIdentificationNumber"`
	CustomerTaxIdentificationNumber string    `db:"CustomerTaxIdentificationNumber"`
	TotalAmount                     Amount    `db:"TotalAmount"`
	OperatorTaxNumber               string    `db:"OperatorTaxNumber"`
	VatAmounts                      []VatAmount
}

// CustomerNumber returns the VAT id, falling back to the tax id.
func (r ReceiptInfo) CustomerNumber() string {
	if r.CustomerVatIdentificationNumber != "" {
		return r.CustomerVatIdentificationNumber
	}
	return r.CustomerTaxIdentificationNumber
}

// EDavkiInfo is the fiscalization configuration row from the POS storage
// table. The certificate password is stored encrypted.
type EDavkiInfo struct {
	ClientCertificateFileName string `json:"ClientCertificateFileName"`
	ClientCertificatePassword string `json:"ClientCertificatePassword"`
	TaxNumber                 string `json:"TaxNumber"`
}

// Merchant is the merchant configuration row from the POS storage table.
type Merchant struct {
	TaxIdentificationNumber string `json:"TaxIdentificationNumber"`
}

// ParseTaxNumber parses a Slovene tax identification number, accepting both
// the bare numeric form and the SI-prefixed VAT form.
func ParseTaxNumber(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if strings.HasPrefix(s, "SI") {
		if n, err := strconv.ParseInt(s[2:], 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("could not parse tax identification number %q", s)
}
