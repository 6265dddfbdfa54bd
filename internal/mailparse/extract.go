package mailparse

import (
	"errors"
	"fmt"

	"github.com/mendoc/paypal-listener/internal/domain"
)

// ErrUnrecognized is returned for a kind with no extraction rules.
var ErrUnrecognized = errors.New("unrecognized payment kind")

// ExtractFields runs every rule of kind against the email. A rule whose
// pattern does not match leaves its field out of the result.
func ExtractFields(kind domain.Kind, email *domain.RawEmail) (Fields, error) {
	rules, ok := rulesByKind[kind]
	if !ok {
		return nil, fmt.Errorf("ExtractFields: %q: %w", kind, ErrUnrecognized)
	}

	found := make(Fields)
	for _, r := range rules {
		if r.when != nil && !r.when(found) {
			continue
		}
		if v, ok := r.match(email); ok {
			found[r.field] = v
		}
	}
	return found, nil
}

// Build assembles a PaymentRecord from extracted fields.
func Build(kind domain.Kind, messageID string, f Fields) *domain.PaymentRecord {
	rec := &domain.PaymentRecord{
		MessageID: messageID,
		Amount:    f.ptr(FieldAmount),
		Date:      f.ptr(FieldDate),
		Time:      f.ptr(FieldTime),
		Reference: f.ptr(FieldReference),
	}

	switch kind {
	case domain.KindReceived:
		rec.Details = domain.Received{Sender: f.ptr(FieldSender), Fees: f.ptr(FieldFees)}
	case domain.KindSent:
		rec.Details = domain.Sent{Recipient: f.ptr(FieldRecipient), InternalReference: f.ptr(FieldInternalReference)}
	case domain.KindSubscription:
		rec.Details = domain.Subscription{Merchant: f.ptr(FieldMerchant), OrderNumber: f.ptr(FieldOrderNumber)}
	case domain.KindRefund:
		rec.Details = domain.Refund{Sender: f.ptr(FieldSender)}
	default:
		panic(fmt.Sprintf("mailparse: unknown payment kind %q", string(kind)))
	}

	return rec
}

// Extract turns a classified email into a payment record.
func Extract(kind domain.Kind, email *domain.RawEmail) (*domain.PaymentRecord, error) {
	f, err := ExtractFields(kind, email)
	if err != nil {
		return nil, err
	}
	return Build(kind, email.ID, f), nil
}

// Parse classifies and extracts in one call. ok is false when the subject is
// not a known PayPal template.
func Parse(email *domain.RawEmail) (rec *domain.PaymentRecord, ok bool) {
	kind, ok := Classify(email.Subject)
	if !ok {
		return nil, false
	}
	rec, err := Extract(kind, email)
	if err != nil {
		return nil, false
	}
	return rec, true
}
