package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// InsertPaymentsWithClient streams rows into the ledger table. The Gmail
// message id is used as the insert id so BigQuery drops retried rows.
func InsertPaymentsWithClient(ctx context.Context, client *bigquery.Client, t TableRef, rows []*PaymentRow) error {
	if len(rows) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, 0, len(rows))
	for _, row := range rows {
		savers = append(savers, &bigquery.StructSaver{Struct: row, InsertID: row.MessageID})
	}

	inserter := client.DatasetInProject(t.Project, t.Dataset).Table(t.Table).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertPayments: inserting %d rows: %w", len(rows), err)
	}
	return nil
}

// RecentPaymentsWithClient returns the latest ledger rows, newest first.
func RecentPaymentsWithClient(ctx context.Context, client *bigquery.Client, t TableRef, limit int) ([]*PaymentRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			payment_id,
			message_id,
			run_id,
			kind,
			amount,
			amount_display,
			fees,
			counterparty,
			transaction_date,
			transaction_time,
			reference,
			internal_reference,
			order_number,
			recorded_ts
		FROM %s
		ORDER BY recorded_ts DESC
		LIMIT @limit
	`, t.Qualified()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("RecentPayments: running query: %w", err)
	}

	var out []*PaymentRow
	for {
		var row PaymentRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("RecentPayments: reading row: %w", err)
		}
		out = append(out, &row)
	}

	return out, nil
}
