// Package repair rebuilds rejected invoice requests (new identifiers,
// timestamps, seller tax numbers, and protective marks) and drives the
// sequential submission loop.
package repair

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/janbehro/eDavkiRepairer/internal/model"
)

// Fixed correction notes the authority expects on after-the-fact repairs.
const (
	noteSellerTaxNumber = "Naknadna sprememba podatkov: poprava SellerTaxNumber."
	noteSellerAndVAT    = "Naknadna sprememba podatkov: poprava SellerTaxNumber in CustomerVATNumber."
)

// vatCorrectionNumbering is the numbering structure stamped on synthesized
// VAT-number corrections (business-premise numbering).
const vatCorrectionNumbering = "B"

// Request is one in-flight repair: the request body plus where it came
// from. FileName is set for requests loaded from disk, TransactionID for
// requests synthesized from the POS database.
type Request struct {
	FileName      string
	TransactionID string
	Dto           *model.InvoiceRequestDto
}

// ReferenceID returns the identifier of the receipt this request supersedes,
// falling back to the current identifier before repair has run.
func (r *Request) ReferenceID() string {
	inv := &r.Dto.InvoiceRequest.Invoice
	if len(inv.ReferenceInvoice) > 0 {
		return inv.ReferenceInvoice[0].ReferenceInvoiceIdentifier.String()
	}
	return inv.InvoiceIdentifier.String()
}

// Engine rebuilds requests. The signer is held by the engine because every
// repair ends with a mark recomputation.
type Engine struct {
	signer Signer
	now    func() time.Time
}

// Signer computes protective marks. Satisfied by *sign.Signer.
type Signer interface {
	ProtectiveMark(fi model.FiscalInformation, issuedAt time.Time, invoiceNumber string, amount decimal.Decimal) (string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine signing with signer.
func NewEngine(signer Signer, opts ...Option) *Engine {
	e := &Engine{signer: signer, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Repair rewrites req in place into a corrected, re-numbered request ready
// for transmission:
//
//  1. record the current identifier and issue time as the reference invoice,
//  2. replace the invoice number with newNumber,
//  3. restamp the issue time,
//  4. set the seller tax number on every tax bucket (nil leaves a bucket's
//     number cleared, meaning no correction applies),
//  5. regenerate the message id and header timestamp,
//  6. recompute the protective mark over the final field values,
//  7. select the correction note by whether a customer VAT number is
//     attached.
//
// The mark recomputation must stay after steps 2–4: a mark over stale
// identifier, timestamp, or amount values is exactly the corruption this
// tool exists to fix.
func (e *Engine) Repair(req *Request, newNumber int, sellerTaxNumber *int64) error {
	body := &req.Dto.InvoiceRequest
	inv := &body.Invoice

	inv.ReferenceInvoice = []model.ReferenceInvoice{{
		ReferenceInvoiceIdentifier:    inv.InvoiceIdentifier,
		ReferenceInvoiceIssueDateTime: inv.IssueDateTime,
	}}

	now := e.now()
	inv.InvoiceIdentifier.InvoiceNumber = strconv.Itoa(newNumber)
	inv.IssueDateTime = model.DateTime{Time: now}

	for i := range inv.TaxesPerSeller {
		inv.TaxesPerSeller[i].SellerTaxNumber = sellerTaxNumber
	}

	body.Header.MessageID = uuid.NewString()
	body.Header.DateTime = model.DateTime{Time: now}

	mark, err := e.signer.ProtectiveMark(model.FiscalInformation{
		TaxNumber:                 inv.TaxNumber,
		CashierTaxNumber:          inv.OperatorTaxNumber,
		InvoiceNumberingStructure: inv.NumberingStructure,
		BusinessPremiseID:         inv.InvoiceIdentifier.BusinessPremiseID,
		ElectronicDeviceID:        inv.InvoiceIdentifier.ElectronicDeviceID,
	}, body.Header.DateTime.Time, inv.InvoiceIdentifier.InvoiceNumber, inv.InvoiceAmount.Decimal)
	if err != nil {
		return err
	}
	inv.ProtectedID = mark

	if inv.CustomerVATNumber != "" {
		inv.SpecialNotes = noteSellerAndVAT
	} else {
		inv.SpecialNotes = noteSellerTaxNumber
	}
	return nil
}

// SynthesizeVatCorrection builds a brand-new request from a historical
// transaction record that lacks a customer VAT number. The result carries
// the transaction's identifier and issue date and is routed through Repair
// like any loaded request, which assigns the new number, mark, and note.
func SynthesizeVatCorrection(txn model.ReceiptInfo, merchantTaxNumber int64) (*Request, error) {
	operatorTaxNumber, err := model.ParseTaxNumber(txn.OperatorTaxNumber)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", txn.GlobalSalesTransactionID, err)
	}

	vat := make([]model.VATEntry, 0, len(txn.VatAmounts))
	for _, bucket := range txn.VatAmounts {
		vat = append(vat, model.VATEntry{
			TaxRate:       bucket.VatValue,
			TaxableAmount: bucket.BaseAmount,
			TaxAmount:     bucket.TaxAmount,
		})
	}

	dto := &model.InvoiceRequestDto{
		InvoiceRequest: model.InvoiceRequestBody{
			Invoice: model.Invoice{
				TaxNumber:          merchantTaxNumber,
				IssueDateTime:      model.DateTime{Time: txn.Date},
				NumberingStructure: vatCorrectionNumbering,
				InvoiceIdentifier: model.InvoiceIdentifier{
					BusinessPremiseID:  txn.BusinessPremiseID,
					ElectronicDeviceID: txn.DeviceID,
					InvoiceNumber:      txn.ReceiptID,
				},
				CustomerVATNumber: txn.CustomerNumber(),
				InvoiceAmount:     txn.TotalAmount,
				PaymentAmount:     txn.TotalAmount,
				TaxesPerSeller:    []model.TaxPerSeller{{VAT: vat}},
				OperatorTaxNumber: &operatorTaxNumber,
			},
		},
	}

	return &Request{TransactionID: txn.GlobalSalesTransactionID, Dto: dto}, nil
}

// PairWithVatCustomers attaches customer VAT numbers onto the requests whose
// current invoice number matches the customer's fiscalized receipt number
// (string-trimmed equality). Must run before repair renumbers the requests;
// afterwards the numbers no longer correspond to the POS records and every
// match silently fails.
func PairWithVatCustomers(requests []*Request, customers []model.VatCustomer) {
	for _, customer := range customers {
		if customer.FiscalizationResult == nil {
			continue
		}
		want := strconv.Itoa(customer.FiscalizationResult.ReceiptNumber)
		for _, req := range requests {
			inv := &req.Dto.InvoiceRequest.Invoice
			if strings.TrimSpace(inv.InvoiceIdentifier.InvoiceNumber) == want {
				inv.CustomerVATNumber = customer.CustomerNumber()
				break
			}
		}
	}
}
