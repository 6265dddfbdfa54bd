package domain

import (
	"encoding/json"
	"fmt"
)

// Kind is the closed classification of a PayPal payment event.
type Kind string

const (
	KindReceived     Kind = "received"
	KindSent         Kind = "sent"
	KindSubscription Kind = "subscription"
	KindRefund       Kind = "refund"
)

// Kinds lists every kind in classification order.
var Kinds = []Kind{KindReceived, KindSent, KindSubscription, KindRefund}

// Sign returns the contribution direction of a kind to the balance:
// +1 for money coming in, -1 for money going out.
func (k Kind) Sign() int {
	switch k {
	case KindReceived, KindRefund:
		return 1
	case KindSent, KindSubscription:
		return -1
	default:
		panic(fmt.Sprintf("domain: unknown payment kind %q", string(k)))
	}
}

// Details holds the kind-specific part of a PaymentRecord. It is implemented
// only by Received, Sent, Subscription and Refund.
type Details interface {
	Kind() Kind
	sealed()
}

// Received is a payment someone sent to the account.
type Received struct {
	Sender *string
	Fees   *string
}

// Sent is a payment the account sent to someone.
type Sent struct {
	Recipient *string
	// InternalReference is the GF code the caller embedded in the payment note,
	// used to match the payment against its own pending transactions.
	InternalReference *string
}

// Subscription is an automatic payment receipt to a merchant.
type Subscription struct {
	Merchant    *string
	OrderNumber *string
}

// Refund is money returned to the account.
type Refund struct {
	Sender *string
}

func (Received) Kind() Kind     { return KindReceived }
func (Sent) Kind() Kind         { return KindSent }
func (Subscription) Kind() Kind { return KindSubscription }
func (Refund) Kind() Kind       { return KindRefund }

func (Received) sealed()     {}
func (Sent) sealed()         {}
func (Subscription) sealed() {}
func (Refund) sealed()       {}

// PaymentRecord is one normalized PayPal email.
//
// Every optional field is nil when its pattern did not match. Callers must
// treat nil as "unknown", never as zero or empty.
type PaymentRecord struct {
	// MessageID identifies the source email. It is used as an idempotency key
	// and is not part of the JSON payload.
	MessageID string

	Amount    *string // display string, e.g. "12,34 € EUR"
	Date      *string // localized display date
	Time      *string // HH:MM at UTC+1
	Reference *string

	Details Details
}

// Kind returns the kind of the record.
func (r *PaymentRecord) Kind() Kind {
	return r.Details.Kind()
}

// MarshalJSON flattens the record into a single object tagged by "type".
func (r PaymentRecord) MarshalJSON() ([]byte, error) {
	out := map[string]string{"type": string(r.Details.Kind())}
	put := func(key string, v *string) {
		if v != nil {
			out[key] = *v
		}
	}

	put("amount", r.Amount)
	put("date", r.Date)
	put("time", r.Time)
	put("reference", r.Reference)

	switch d := r.Details.(type) {
	case Received:
		put("sender", d.Sender)
		put("fees", d.Fees)
	case Sent:
		put("recipient", d.Recipient)
		put("internalReference", d.InternalReference)
	case Subscription:
		put("merchant", d.Merchant)
		put("orderNumber", d.OrderNumber)
	case Refund:
		put("sender", d.Sender)
	default:
		return nil, fmt.Errorf("PaymentRecord.MarshalJSON: unknown details type %T", r.Details)
	}

	return json.Marshal(out)
}

// RawEmail is a fetched email with its body already decoded to text.
type RawEmail struct {
	ID      string
	Subject string
	Date    string // transport Date header, e.g. "Tue, 15 Oct 2024 14:30:00 +0200"
	Body    string
}

// Error codes reported in BatchResult.
const (
	ErrorCodeNone    = 0
	ErrorCodeReauth  = 1 // the mail source credential must be re-authorized
	ErrorCodeGeneric = 2
)

// BatchResult is the outcome of one pass over the unread mailbox.
type BatchResult struct {
	Records   []*PaymentRecord `json:"emails"`
	AmountSum string           `json:"amountSum"`
	Error     bool             `json:"error,omitempty"`
	ErrorCode int              `json:"errorCode,omitempty"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Value dereferences p, returning fallback when p is nil.
func Value(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
