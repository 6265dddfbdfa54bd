package main

import (
	"github.com/spf13/cobra"

	"github.com/mendoc/paypal-listener/internal/checker"
	"github.com/mendoc/paypal-listener/internal/gcs"
	"github.com/mendoc/paypal-listener/internal/infra/bigquery"
	"github.com/mendoc/paypal-listener/internal/notify"
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the mailbox once and print the result",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}
	cmd.Flags().Bool("no-ledger", false, "Skip the BigQuery ledger even when configured")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	sink, err := notify.SinkFromConfig(e.cfg.Notify)
	if err != nil {
		return err
	}

	var archive notify.ReceiptArchive
	if e.cfg.ArchiveBucket != "" {
		a, err := gcs.NewArchive(e.ctx, e.cfg.ArchiveBucket)
		if err != nil {
			return err
		}
		defer a.Close()
		archive = a
	}

	var ledger bigquery.PaymentLedger
	if skip, _ := cmd.Flags().GetBool("no-ledger"); e.cfg.LedgerEnabled() && !skip {
		l, err := bigquery.NewBigQueryPaymentLedger(e.ctx, ledgerTable(e))
		if err != nil {
			return err
		}
		defer l.Close()
		ledger = l
	}

	consent := e.consent()
	chk := checker.New(e.store, checker.GmailSources(consent.Authenticator, e.cfg.Gmail.Query), consent, notify.New(sink, archive), ledger)

	res, err := chk.Run(e.ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func ledgerTable(e *env) bigquery.TableRef {
	return bigquery.TableRef{
		Project: e.cfg.Ledger.Project,
		Dataset: e.cfg.Ledger.Dataset,
		Table:   e.cfg.Ledger.Table,
	}
}
