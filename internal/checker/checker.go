// Package checker runs one mailbox check end to end: the batch itself, then
// balance bookkeeping, simulation matching, the ledger and notifications.
package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mendoc/paypal-listener/internal/domain"
	"github.com/mendoc/paypal-listener/internal/gmail"
	"github.com/mendoc/paypal-listener/internal/infra/bigquery"
	"github.com/mendoc/paypal-listener/internal/logger"
	"github.com/mendoc/paypal-listener/internal/metrics"
	"github.com/mendoc/paypal-listener/internal/pipeline"
	"github.com/mendoc/paypal-listener/internal/storage"
)

// Store is the persistence the checker needs.
type Store interface {
	Token(ctx context.Context) (string, error)
	ApplyRecords(ctx context.Context, records []*domain.PaymentRecord) ([]*domain.PaymentRecord, decimal.Decimal, error)
	MarkSimulationProcessed(ctx context.Context, reference string) (storage.SimulationResult, error)
}

// Notifier delivers payment and re-authorization notices.
type Notifier interface {
	Notify(ctx context.Context, rec *domain.PaymentRecord) error
	NotifyReauth(ctx context.Context, authURL string) error
}

// Authorizer builds consent URLs.
type Authorizer interface {
	ConsentURL() string
}

// SourceFunc opens the mailbox with a stored refresh token.
type SourceFunc func(ctx context.Context, refreshToken string) (pipeline.MailSource, error)

// GmailSources opens Gmail sources filtered by query.
func GmailSources(auth *gmail.Authenticator, query string) SourceFunc {
	return func(ctx context.Context, refreshToken string) (pipeline.MailSource, error) {
		svc, err := auth.NewService(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		return gmail.NewSource(svc, query), nil
	}
}

// Result is the batch result extended with what the run did with it.
type Result struct {
	*domain.BatchResult
	RunID      string `json:"runId"`
	Balance    string `json:"balance"`
	Notified   int    `json:"notified"`
	Duplicates int    `json:"duplicates"`
}

// Checker serializes mailbox checks within the process.
type Checker struct {
	mu sync.Mutex

	store    Store
	sources  SourceFunc
	auth     Authorizer
	notifier Notifier
	ledger   bigquery.PaymentLedger
	now      func() time.Time
}

// New returns a checker. ledger may be nil.
func New(store Store, sources SourceFunc, auth Authorizer, notifier Notifier, ledger bigquery.PaymentLedger) *Checker {
	return &Checker{
		store:    store,
		sources:  sources,
		auth:     auth,
		notifier: notifier,
		ledger:   ledger,
		now:      time.Now,
	}
}

// Run checks the mailbox once. A mailbox failure is reported in the result;
// only a failure to read the token or update the balance is returned as an
// error.
func (c *Checker) Run(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	runID := uuid.NewString()
	ctx, log := logger.WithFields(ctx, map[string]interface{}{"run_id": runID})
	start := c.now()

	res, err := c.run(ctx, runID)
	metrics.BatchDuration.Observe(c.now().Sub(start).Seconds())

	switch {
	case err != nil:
		metrics.BatchRuns.WithLabelValues(metrics.OutcomeFailure).Inc()
		log.Error().Err(err).Msg("check failed")
		return nil, err
	case res.ErrorCode == domain.ErrorCodeReauth:
		metrics.BatchRuns.WithLabelValues(metrics.OutcomeReauth).Inc()
	case res.Error:
		metrics.BatchRuns.WithLabelValues(metrics.OutcomeFailure).Inc()
	default:
		metrics.BatchRuns.WithLabelValues(metrics.OutcomeOK).Inc()
	}

	log.Info().
		Int("records", len(res.Records)).
		Int("duplicates", res.Duplicates).
		Int("notified", res.Notified).
		Str("amount_sum", res.AmountSum).
		Str("balance", res.Balance).
		Msg("check finished")
	return res, nil
}

func (c *Checker) run(ctx context.Context, runID string) (*Result, error) {
	log := logger.FromContext(ctx)

	token, err := c.store.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("Run: reading refresh token: %w", err)
	}

	var batch *domain.BatchResult
	src, err := c.sources(ctx, token)
	if err != nil {
		log.Error().Err(err).Msg("opening mailbox failed")
		batch = failedBatch(err)
	} else {
		batch = pipeline.ProcessBatch(ctx, src)
	}

	res := &Result{BatchResult: batch, RunID: runID}

	if batch.ErrorCode == domain.ErrorCodeReauth {
		if err := c.notifier.NotifyReauth(ctx, c.auth.ConsentURL()); err != nil {
			log.Warn().Err(err).Msg("failed to send re-authorization notice")
		}
	}

	fresh, balance, err := c.store.ApplyRecords(ctx, batch.Records)
	if err != nil {
		// The messages are already marked read and will not be listed again.
		for _, rec := range batch.Records {
			log.Error().
				Str("message_id", rec.MessageID).
				Str("kind", string(rec.Kind())).
				Str("amount", domain.Value(rec.Amount, "")).
				Str("reference", domain.Value(rec.Reference, "")).
				Msg("record dropped, balance not updated")
		}
		return nil, fmt.Errorf("Run: updating balance: %w", err)
	}
	res.Balance = balance.StringFixed(2)
	res.Duplicates = len(batch.Records) - len(fresh)
	metrics.DuplicateRecords.Add(float64(res.Duplicates))

	c.matchSimulations(ctx, fresh)
	c.record(ctx, runID, fresh)

	for _, rec := range fresh {
		if err := c.notifier.Notify(ctx, rec); err != nil {
			log.Warn().Err(err).Str("message_id", rec.MessageID).Msg("notification failed")
			continue
		}
		res.Notified++
	}

	return res, nil
}

// matchSimulations closes the pending simulation referenced by each sent
// payment.
func (c *Checker) matchSimulations(ctx context.Context, records []*domain.PaymentRecord) {
	log := logger.FromContext(ctx)
	for _, rec := range records {
		sent, ok := rec.Details.(domain.Sent)
		if !ok || sent.InternalReference == nil {
			continue
		}
		ref := *sent.InternalReference

		result, err := c.store.MarkSimulationProcessed(ctx, ref)
		if err != nil {
			log.Warn().Err(err).Str("simulation", ref).Msg("simulation update failed")
			continue
		}
		log.Info().Str("simulation", ref).Bool("success", result.Success).Msg(result.Message)
	}
}

func (c *Checker) record(ctx context.Context, runID string, records []*domain.PaymentRecord) {
	if c.ledger == nil || len(records) == 0 {
		return
	}

	now := c.now()
	rows := make([]*bigquery.PaymentRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, bigquery.NewPaymentRow(rec, uuid.NewString(), runID, now))
	}

	if err := c.ledger.InsertPayments(ctx, rows); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Int("rows", len(rows)).Msg("ledger insert failed")
	}
}

func failedBatch(err error) *domain.BatchResult {
	code := domain.ErrorCodeGeneric
	if errors.Is(err, gmail.ErrInvalidGrant) {
		code = domain.ErrorCodeReauth
	}
	return &domain.BatchResult{
		Records:   []*domain.PaymentRecord{},
		AmountSum: domain.FormatSum(decimal.Zero),
		Error:     true,
		ErrorCode: code,
	}
}
