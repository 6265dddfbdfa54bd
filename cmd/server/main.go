package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mendoc/paypal-listener/internal/api/handlers"
	"github.com/mendoc/paypal-listener/internal/api/middleware"
	"github.com/mendoc/paypal-listener/internal/checker"
	"github.com/mendoc/paypal-listener/internal/config"
	"github.com/mendoc/paypal-listener/internal/gcs"
	"github.com/mendoc/paypal-listener/internal/gmail"
	"github.com/mendoc/paypal-listener/internal/infra/bigquery"
	"github.com/mendoc/paypal-listener/internal/jobs"
	"github.com/mendoc/paypal-listener/internal/jobs/inmemory"
	"github.com/mendoc/paypal-listener/internal/logger"
	"github.com/mendoc/paypal-listener/internal/notify"
	"github.com/mendoc/paypal-listener/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Configure(logger.Options{Level: cfg.LogLevel, Format: logger.Format(cfg.LogFormat)})
	ctx := logger.WithContext(context.Background(), log)

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	sink, err := notify.SinkFromConfig(cfg.Notify)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create notification sink")
	}

	var archive notify.ReceiptArchive
	if cfg.ArchiveBucket != "" {
		a, err := gcs.NewArchive(ctx, cfg.ArchiveBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create receipt archive")
		}
		defer a.Close()
		archive = a
	} else {
		log.Warn().Msg("No GCS bucket configured - receipts will not be archived")
	}

	var ledger bigquery.PaymentLedger
	if cfg.LedgerEnabled() {
		l, err := bigquery.NewBigQueryPaymentLedger(ctx, bigquery.TableRef{
			Project: cfg.Ledger.Project,
			Dataset: cfg.Ledger.Dataset,
			Table:   cfg.Ledger.Table,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create payment ledger")
		}
		defer l.Close()
		ledger = l
	}

	auth := gmail.NewAuthenticator(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RedirectURI)
	consent := gmail.NewConsent(auth, gmail.NewStateStore(gmail.DefaultStateTTL))
	chk := checker.New(store, checker.GmailSources(auth, cfg.Gmail.Query), consent, notify.New(sink, archive), ledger)

	// Job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(16, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, chk.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	if cfg.PollInterval > 0 {
		go poll(workerCtx, jobQueue, cfg.PollInterval, log)
	}

	mux := http.NewServeMux()
	handlers.Routes(mux,
		handlers.NewCheckHandler(chk),
		handlers.NewAuthHandler(consent, store),
		handlers.NewRunsHandler(jobQueue, jobStore),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      middleware.Chain(mux, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // a synchronous check walks the whole mailbox
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Dur("poll_interval", cfg.PollInterval).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let the running check finish before cancelling its context.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

// poll enqueues a scheduled check every interval until ctx is done.
func poll(ctx context.Context, publisher jobs.Publisher, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job := &jobs.CheckRunJob{Trigger: jobs.TriggerSchedule}
			if err := publisher.PublishCheckRun(ctx, job); err != nil {
				log.Warn().Err(err).Msg("Failed to enqueue scheduled check")
				continue
			}
			log.Debug().Str("job_id", job.JobID).Msg("Scheduled check enqueued")
		}
	}
}
