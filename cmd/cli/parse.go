package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mendoc/paypal-listener/internal/domain"
	"github.com/mendoc/paypal-listener/internal/mailparse"
)

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Extract a payment record from a decoded email body",
		Long: `Run classification and field extraction on one email without touching
the mailbox. The body is read from --body, or from stdin when --body is "-".`,
		Args: cobra.NoArgs,
		RunE: runParse,
	}

	cmd.Flags().StringP("subject", "s", "", "Email subject")
	cmd.Flags().StringP("date", "d", "", `Transport Date header, e.g. "Tue, 15 Oct 2024 14:30:00 +0200"`)
	cmd.Flags().StringP("body", "b", "-", "File holding the decoded body")
	cmd.MarkFlagRequired("subject")
	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	date, _ := cmd.Flags().GetString("date")
	bodyPath, _ := cmd.Flags().GetString("body")

	var (
		body []byte
		err  error
	)
	if bodyPath == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(bodyPath)
	}
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	email := &domain.RawEmail{ID: "cli", Subject: subject, Date: date, Body: string(body)}
	rec, ok := mailparse.Parse(email)
	if !ok {
		return fmt.Errorf("subject %q: %w", subject, mailparse.ErrUnrecognized)
	}

	return printJSON(cmd.OutOrStdout(), rec)
}
