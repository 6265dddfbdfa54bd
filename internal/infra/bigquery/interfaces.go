package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// TableRef names the ledger table.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// Qualified returns the `project.dataset.table` identifier used in queries.
func (t TableRef) Qualified() string {
	return fmt.Sprintf("`%s.%s.%s`", t.Project, t.Dataset, t.Table)
}

// PaymentLedger records processed payments for reporting.
type PaymentLedger interface {
	// InsertPayments appends rows to the ledger.
	InsertPayments(ctx context.Context, rows []*PaymentRow) error

	// RecentPayments returns at most limit rows, newest first.
	RecentPayments(ctx context.Context, limit int) ([]*PaymentRow, error)
}

// BigQueryPaymentLedger is the BigQuery implementation of PaymentLedger.
// It holds a shared client for all operations.
type BigQueryPaymentLedger struct {
	client *bigquery.Client
	table  TableRef
}

// NewBigQueryPaymentLedger creates a client for the project of t.
func NewBigQueryPaymentLedger(ctx context.Context, t TableRef) (*BigQueryPaymentLedger, error) {
	client, err := bigquery.NewClient(ctx, t.Project)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryPaymentLedger: creating client: %w", err)
	}
	return &BigQueryPaymentLedger{client: client, table: t}, nil
}

// Close closes the BigQuery client connection.
func (l *BigQueryPaymentLedger) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

func (l *BigQueryPaymentLedger) InsertPayments(ctx context.Context, rows []*PaymentRow) error {
	return InsertPaymentsWithClient(ctx, l.client, l.table, rows)
}

func (l *BigQueryPaymentLedger) RecentPayments(ctx context.Context, limit int) ([]*PaymentRow, error) {
	return RecentPaymentsWithClient(ctx, l.client, l.table, limit)
}
