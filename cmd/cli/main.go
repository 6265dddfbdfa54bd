package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mendoc/paypal-listener/internal/config"
	"github.com/mendoc/paypal-listener/internal/gmail"
	"github.com/mendoc/paypal-listener/internal/logger"
	"github.com/mendoc/paypal-listener/internal/storage"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "paypal",
		Short:         "PayPal mailbox listener",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(checkCmd())
	root.AddCommand(authURLCmd())
	root.AddCommand(exchangeCmd())
	root.AddCommand(parseCmd())
	root.AddCommand(ledgerCmd())
	root.AddCommand(receiptCmd())
	root.AddCommand(simulationCmd())

	return root
}

// env is what most commands need: configuration, a logger on stderr and
// the store.
type env struct {
	cfg   *config.Config
	log   zerolog.Logger
	ctx   context.Context
	store *storage.Store
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.Configure(logger.Options{
		Level:  cfg.LogLevel,
		Format: logger.Format(cfg.LogFormat),
		Out:    cmd.ErrOrStderr(),
	})

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:   cfg,
		log:   log,
		ctx:   logger.WithContext(cmd.Context(), log),
		store: store,
	}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn().Err(err).Msg("Failed to close store")
	}
}

func (e *env) authenticator() *gmail.Authenticator {
	return gmail.NewAuthenticator(e.cfg.Gmail.ClientID, e.cfg.Gmail.ClientSecret, e.cfg.Gmail.RedirectURI)
}

func (e *env) consent() *gmail.Consent {
	return gmail.NewConsent(e.authenticator(), gmail.NewStateStore(gmail.DefaultStateTTL))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
