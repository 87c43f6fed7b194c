// Package store reads merchant configuration and sales-transaction history
// from the POS SQLite database and patches the stored receipt number after a
// successful fiscalization.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/janbehro/eDavkiRepairer/internal/model"
)

// ErrNotFound is returned when a required configuration row or transaction
// record is missing.
var ErrNotFound = errors.New("not found")

// Store is the read/write contract the repair pipeline needs from the POS
// database.
type Store interface {
	// EDavkiInfo returns the fiscalization configuration row (certificate
	// file name, encrypted password, premise tax number).
	EDavkiInfo(ctx context.Context) (model.EDavkiInfo, error)
	// MerchantTaxNumber returns the merchant tax identification number,
	// possibly SI-prefixed.
	MerchantTaxNumber(ctx context.Context) (string, error)
	// BusinessPremiseTaxNumber returns the premise tax number from the
	// fiscalization configuration.
	BusinessPremiseTaxNumber(ctx context.Context) (int64, error)
	// LastReceiptNumber returns the most recently assigned receipt number.
	LastReceiptNumber(ctx context.Context) (int, error)
	// CustomerVatNumbers returns transactions in the registration date range
	// that carry a customer VAT or tax id, with their fiscalization metadata
	// decoded.
	CustomerVatNumbers(ctx context.Context, from, to time.Time) ([]model.VatCustomer, error)
	// TransactionsWithoutVatNumber returns fiscalized transactions that have
	// a customer tax id but no VAT id, each with its VAT buckets attached.
	// A non-empty includeOnly list replaces the date-range filter.
	TransactionsWithoutVatNumber(ctx context.Context, from, to time.Time, includeOnly []string) ([]model.ReceiptInfo, error)
	// UpdateLastReceiptNumber patches the receipt number inside the newest
	// fiscalization metadata row.
	UpdateLastReceiptNumber(ctx context.Context, receiptNumber int) error
	Close() error
}

type store struct {
	db *sqlx.DB
}

// Open connects to the POS SQLite database file.
func Open(path string) (Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open pos database %s: %w", path, err)
	}
	return &store{db: db}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

func (s *store) EDavkiInfo(ctx context.Context) (model.EDavkiInfo, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `select s.Value from Storage s where s.Key = 'EDavkiInfo'`)
	if errors.Is(err, sql.ErrNoRows) {
		return model.EDavkiInfo{}, fmt.Errorf("fiscalization configuration: %w", ErrNotFound)
	}
	if err != nil {
		return model.EDavkiInfo{}, err
	}
	var info model.EDavkiInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return model.EDavkiInfo{}, fmt.Errorf("decode fiscalization configuration: %w", err)
	}
	return info, nil
}

func (s *store) MerchantTaxNumber(ctx context.Context) (string, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `select s.Value from Storage s where s.Key = 'Merchant'`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("merchant configuration: %w", ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	var merchant model.Merchant
	if err := json.Unmarshal([]byte(raw), &merchant); err != nil {
		return "", fmt.Errorf("decode merchant configuration: %w", err)
	}
	if merchant.TaxIdentificationNumber == "" {
		return "", fmt.Errorf("merchant tax identification number: %w", ErrNotFound)
	}
	return merchant.TaxIdentificationNumber, nil
}

func (s *store) BusinessPremiseTaxNumber(ctx context.Context) (int64, error) {
	info, err := s.EDavkiInfo(ctx)
	if err != nil {
		return 0, err
	}
	return model.ParseTaxNumber(info.TaxNumber)
}

func (s *store) LastReceiptNumber(ctx context.Context) (int, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw,
		`select st.FRegAdditionalInfo from SalesTransactions st
		 join Pos p on p.Device_Id = st.DeviceId
		 where st.FRegAdditionalInfo not null
		 order by SalesTransactionId desc
		 limit 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("last receipt number: %w", ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	var result model.FiscalizationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return 0, fmt.Errorf("decode fiscalization metadata: %w", err)
	}
	if result.ReceiptNumber == 0 {
		return 0, fmt.Errorf("last receipt number: %w", ErrNotFound)
	}
	return result.ReceiptNumber, nil
}

func (s *store) CustomerVatNumbers(ctx context.Context, from, to time.Time) ([]model.VatCustomer, error) {
	var customers []model.VatCustomer
	err := s.db.SelectContext(ctx, &customers,
		`select coalesce(st.CustomerVatIdentificationNumber, '') as VatNumber,
		        coalesce(st.CustomerTaxIdentificationNumber, '') as TaxNumber,
		        coalesce(st.FRegAdditionalInfo, '') as AdditionalInfo
		 from SalesTransactions st
		 where (st.CustomerVatIdentificationNumber not null or st.CustomerTaxIdentificationNumber not null)
		 and st.FRegRegistrationDate between ? and ?`,
		from, to)
	if err != nil {
		return nil, err
	}
	for i := range customers {
		if customers[i].AdditionalInfo == "" {
			continue
		}
		var result model.FiscalizationResult
		if err := json.Unmarshal([]byte(customers[i].AdditionalInfo), &result); err == nil {
			customers[i].FiscalizationResult = &result
		}
	}
	return customers, nil
}

// receiptRow is one flattened row of the transaction/VAT-bucket join.
type receiptRow struct {
	model.ReceiptInfo
	model.VatAmount
}

func (s *store) TransactionsWithoutVatNumber(ctx context.Context, from, to time.Time, includeOnly []string) ([]model.ReceiptInfo, error) {
	query := `select
			st.GlobalSalesTransactionId,
			json_extract(st.FRegAdditionalInfo, '$.LocationCode') as BusinessPremiseID,
			json_extract(st.FRegAdditionalInfo, '$.PosNumber') as DeviceId,
			json_extract(st.FRegAdditionalInfo, '$.ReceiptNumber') as ReceiptId,
			st.Date,
			coalesce(st.CustomerVatIdentificationNumber, '') as CustomerVatIdentificationNumber,
			coalesce(st.CustomerTaxIdentificationNumber, '') as CustomerTaxIdentificationNumber,
			st.TotalAmount,
			u.TaxIdentificationNumber as OperatorTaxNumber,
			va.Id, va.Vat_Value as VatValue, va.BaseAmount, va.TaxAmount
		from SalesTransactions st
		join VatAmount va on va.SalesTransactionId = st.Id
		join Users u on u.ExternalId = st.CashierId
		join Pos p on p.Device_Id = st.DeviceId
		where st.CustomerVatIdentificationNumber is null
		and st.CustomerTaxIdentificationNumber is not null`

	var args []any
	if len(includeOnly) == 0 {
		query += ` and st.Date between ? and ?`
		args = append(args, from, to)
	} else {
		in, inArgs, err := sqlx.In(` and st.GlobalSalesTransactionId in (?)`, includeOnly)
		if err != nil {
			return nil, err
		}
		query += in
		args = append(args, inArgs...)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Group the VAT buckets under their transaction, preserving row order.
	byID := make(map[string]*model.ReceiptInfo)
	var order []string
	for rows.Next() {
		var row receiptRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		info, ok := byID[row.GlobalSalesTransactionID]
		if !ok {
			r := row.ReceiptInfo
			info = &r
			byID[row.GlobalSalesTransactionID] = info
			order = append(order, row.GlobalSalesTransactionID)
		}
		info.VatAmounts = append(info.VatAmounts, row.VatAmount)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	receipts := make([]model.ReceiptInfo, 0, len(order))
	for _, id := range order {
		receipts = append(receipts, *byID[id])
	}
	return receipts, nil
}

func (s *store) UpdateLastReceiptNumber(ctx context.Context, receiptNumber int) error {
	var record struct {
		ID    int64  `db:"Id"`
		Value string `db:"Value"`
	}
	err := s.db.GetContext(ctx, &record,
		`select st.Id, st.FRegAdditionalInfo as Value from SalesTransactions st
		 where st.FRegAdditionalInfo not null
		 order by SalesTransactionId desc
		 limit 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("fiscalization metadata row: %w", ErrNotFound)
	}
	if err != nil {
		return err
	}
	var result model.FiscalizationResult
	if err := json.Unmarshal([]byte(record.Value), &result); err != nil {
		return fmt.Errorf("decode fiscalization metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`update SalesTransactions
		 set FRegAdditionalInfo = json_set(FRegAdditionalInfo, '$.ReceiptNumber', ?)
		 where Id = ?`,
		receiptNumber, record.ID)
	return err
}
