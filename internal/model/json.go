package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WireTimeLayout is how the authority serializes timestamps: local time, no
// zone designator, no fractional seconds.
const WireTimeLayout = "2006-01-02T15:04:05"

// Amount is a decimal that marshals as an unquoted JSON number, preserving
// scale ("12.30" stays "12.30"). The authority schema uses plain numbers and
// the protective mark is computed over the decimal's string form, so the
// scale must survive a decode/encode round trip.
type Amount struct {
	decimal.Decimal
}

// AmountFromString parses an Amount, panicking on malformed input. Test and
// synthesis helper.
func AmountFromString(s string) Amount {
	return Amount{decimal.RequireFromString(s)}
}

// AmountFromDecimal wraps a decimal as a wire Amount.
func AmountFromDecimal(d decimal.Decimal) Amount {
	return Amount{d}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	a.Decimal = d
	return nil
}

// Scan implements sql.Scanner so Amount columns map directly via sqlx.
func (a *Amount) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		a.Decimal = decimal.Zero
		return nil
	case int64:
		a.Decimal = decimal.NewFromInt(v)
		return nil
	case float64:
		a.Decimal = decimal.NewFromFloat(v)
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		a.Decimal = d
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		a.Decimal = d
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", value)
	}
}

// DateTime is a timestamp in the authority's wire layout.
type DateTime struct {
	time.Time
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(WireTimeLayout) + `"`), nil
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		d.Time = time.Time{}
		return nil
	}
	// Accept fractional seconds and zoned variants found in older logs.
	for _, layout := range []string{
		WireTimeLayout,
		"2006-01-02T15:04:05.999999999",
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
