package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a display amount such as "1.234,56 € EUR" into a
// decimal. Every character other than digits and commas is dropped and the
// comma becomes the decimal point. Absent or malformed amounts yield zero.
func ParseAmount(display *string) decimal.Decimal {
	if display == nil {
		return decimal.Zero
	}

	var b strings.Builder
	for _, r := range *display {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		}
	}

	v, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero
	}
	return v
}

// SignedAmount returns the record's amount with the sign of its kind.
func SignedAmount(r *PaymentRecord) decimal.Decimal {
	return ParseAmount(r.Amount).Mul(decimal.NewFromInt(int64(r.Kind().Sign())))
}

// SumRecords adds the signed amounts of all records.
func SumRecords(records []*PaymentRecord) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(SignedAmount(r))
	}
	return sum
}

// FormatSum renders a sum with exactly two decimal places.
func FormatSum(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParseBalance reads a stored balance value. An empty value is zero.
func ParseBalance(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
