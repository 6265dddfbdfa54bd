package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mendoc/paypal-listener/internal/gcs"
	"github.com/mendoc/paypal-listener/internal/infra/bigquery"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show the latest ledger rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if !e.cfg.LedgerEnabled() {
				return errors.New("ledger is not configured (set BQ_PROJECT)")
			}
			l, err := bigquery.NewBigQueryPaymentLedger(e.ctx, ledgerTable(e))
			if err != nil {
				return err
			}
			defer l.Close()

			rows, err := l.RecentPayments(e.ctx, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RECORDED\tKIND\tAMOUNT\tCOUNTERPARTY\tREFERENCE")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.RecordedTS.Format("2006-01-02 15:04"),
					r.Kind,
					r.Amount.FloatString(2),
					r.Counterparty.StringVal,
					r.Reference.StringVal,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum rows")
	return cmd
}

func receiptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt [gs-uri]",
		Short: "Download an archived receipt image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = gcs.Filename(args[0])
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			bucket, _, err := gcs.ParseURI(args[0])
			if err != nil {
				return err
			}
			a, err := gcs.NewArchive(e.ctx, bucket)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := a.Fetch(e.ctx, args[0])
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", out, len(data))
			return nil
		},
	}

	cmd.Flags().StringP("out", "o", "", "Output file (defaults to the object name)")
	return cmd
}
