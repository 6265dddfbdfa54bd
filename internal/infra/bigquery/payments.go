package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/mendoc/paypal-listener/internal/domain"
)

// PaymentRow is one ledger line in paypal.payments.
type PaymentRow struct {
	PaymentID string `bigquery:"payment_id"` // REQUIRED
	MessageID string `bigquery:"message_id"` // REQUIRED, Gmail message id
	RunID     string `bigquery:"run_id"`     // NULLABLE

	Kind string `bigquery:"kind"` // REQUIRED

	// Amount is signed: money in is positive, money out negative.
	Amount        *big.Rat            `bigquery:"amount"`         // REQUIRED NUMERIC
	AmountDisplay bigquery.NullString `bigquery:"amount_display"` // NULLABLE
	Fees          bigquery.NullString `bigquery:"fees"`           // NULLABLE

	Counterparty      bigquery.NullString `bigquery:"counterparty"`       // NULLABLE
	TransactionDate   bigquery.NullString `bigquery:"transaction_date"`   // NULLABLE, French display date
	TransactionTime   bigquery.NullString `bigquery:"transaction_time"`   // NULLABLE, HH:MM
	Reference         bigquery.NullString `bigquery:"reference"`          // NULLABLE
	InternalReference bigquery.NullString `bigquery:"internal_reference"` // NULLABLE
	OrderNumber       bigquery.NullString `bigquery:"order_number"`       // NULLABLE

	RecordedTS time.Time `bigquery:"recorded_ts"` // REQUIRED
}

// NewPaymentRow converts a payment record into a ledger row.
func NewPaymentRow(rec *domain.PaymentRecord, paymentID, runID string, recorded time.Time) *PaymentRow {
	row := &PaymentRow{
		PaymentID:       paymentID,
		MessageID:       rec.MessageID,
		RunID:           runID,
		Kind:            string(rec.Kind()),
		Amount:          domain.SignedAmount(rec).Rat(),
		AmountDisplay:   nullString(rec.Amount),
		TransactionDate: nullString(rec.Date),
		TransactionTime: nullString(rec.Time),
		Reference:       nullString(rec.Reference),
		RecordedTS:      recorded.UTC(),
	}

	switch d := rec.Details.(type) {
	case domain.Received:
		row.Counterparty = nullString(d.Sender)
		row.Fees = nullString(d.Fees)
	case domain.Sent:
		row.Counterparty = nullString(d.Recipient)
		row.InternalReference = nullString(d.InternalReference)
	case domain.Subscription:
		row.Counterparty = nullString(d.Merchant)
		row.OrderNumber = nullString(d.OrderNumber)
	case domain.Refund:
		row.Counterparty = nullString(d.Sender)
	default:
		panic(fmt.Sprintf("bigquery: unknown details type %T", rec.Details))
	}

	return row
}

func nullString(p *string) bigquery.NullString {
	if p == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *p, Valid: true}
}
