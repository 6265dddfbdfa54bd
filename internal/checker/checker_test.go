package checker

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mendoc/paypal-listener/internal/domain"
	"github.com/mendoc/paypal-listener/internal/gmail"
	"github.com/mendoc/paypal-listener/internal/infra/bigquery"
	"github.com/mendoc/paypal-listener/internal/jobs"
	"github.com/mendoc/paypal-listener/internal/logger"
	"github.com/mendoc/paypal-listener/internal/mailparse"
	"github.com/mendoc/paypal-listener/internal/pipeline"
	"github.com/mendoc/paypal-listener/internal/storage"
)

// MockStore keeps claims and the balance in memory.
type MockStore struct {
	TokenFunc        func(ctx context.Context) (string, error)
	ApplyRecordsFunc func(ctx context.Context, records []*domain.PaymentRecord) ([]*domain.PaymentRecord, decimal.Decimal, error)

	claimed     map[string]bool
	balance     decimal.Decimal
	simulations []string
}

func (m *MockStore) Token(ctx context.Context) (string, error) {
	if m.TokenFunc != nil {
		return m.TokenFunc(ctx)
	}
	return "refresh", nil
}

func (m *MockStore) ApplyRecords(ctx context.Context, records []*domain.PaymentRecord) ([]*domain.PaymentRecord, decimal.Decimal, error) {
	if m.ApplyRecordsFunc != nil {
		return m.ApplyRecordsFunc(ctx, records)
	}
	if m.claimed == nil {
		m.claimed = make(map[string]bool)
	}
	var fresh []*domain.PaymentRecord
	for _, rec := range records {
		if m.claimed[rec.MessageID] {
			continue
		}
		m.claimed[rec.MessageID] = true
		fresh = append(fresh, rec)
	}
	m.balance = m.balance.Add(domain.SumRecords(fresh))
	return fresh, m.balance, nil
}

func (m *MockStore) MarkSimulationProcessed(ctx context.Context, reference string) (storage.SimulationResult, error) {
	m.simulations = append(m.simulations, reference)
	return storage.SimulationResult{Success: true, Message: "ok"}, nil
}

// MockNotifier records notifications.
type MockNotifier struct {
	NotifyFunc func(ctx context.Context, rec *domain.PaymentRecord) error

	notified []string
	reauth   []string
}

func (m *MockNotifier) Notify(ctx context.Context, rec *domain.PaymentRecord) error {
	if m.NotifyFunc != nil {
		if err := m.NotifyFunc(ctx, rec); err != nil {
			return err
		}
	}
	m.notified = append(m.notified, rec.MessageID)
	return nil
}

func (m *MockNotifier) NotifyReauth(ctx context.Context, authURL string) error {
	m.reauth = append(m.reauth, authURL)
	return nil
}

// MockLedger records inserted rows.
type MockLedger struct {
	InsertPaymentsFunc func(ctx context.Context, rows []*bigquery.PaymentRow) error

	rows []*bigquery.PaymentRow
}

func (m *MockLedger) InsertPayments(ctx context.Context, rows []*bigquery.PaymentRow) error {
	if m.InsertPaymentsFunc != nil {
		return m.InsertPaymentsFunc(ctx, rows)
	}
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *MockLedger) RecentPayments(ctx context.Context, limit int) ([]*bigquery.PaymentRow, error) {
	return m.rows, nil
}

type authorizer struct{}

func (authorizer) ConsentURL() string {
	return "https://accounts.google.com/o/oauth2/auth?state=s-1"
}

// mailbox serves the same unread messages on every call and ignores MarkRead.
type mailbox map[string]*mailparse.Message

func (m mailbox) ListUnread(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(m))
	for _, id := range []string{"a", "b", "c"} {
		if _, ok := m[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m mailbox) Fetch(ctx context.Context, id string) (*mailparse.Message, error) {
	if msg, ok := m[id]; ok {
		return msg, nil
	}
	return nil, fmt.Errorf("message %s: not found", id)
}

func (m mailbox) MarkRead(ctx context.Context, id string) error { return nil }

func message(id, subject, body string) *mailparse.Message {
	return &mailparse.Message{
		ID:      id,
		Subject: subject,
		Date:    "Tue, 15 Oct 2024 14:30:00 +0200",
		Payload: &mailparse.Part{MimeType: "text/html", Data: base64.URLEncoding.EncodeToString([]byte(body))},
	}
}

func sources(src pipeline.MailSource) SourceFunc {
	return func(ctx context.Context, refreshToken string) (pipeline.MailSource, error) {
		return src, nil
	}
}

func testMailbox() mailbox {
	return mailbox{
		"a": message("a", "Vous avez reçu de l'argent", "<p>Jean Dupont vous a envoyé 10,50 € EUR</p>"),
		"b": message("b", "Vous avez envoyé un paiement", "<p>Vous avez envoyé 3,20 € EUR à Marie Curie. Note : GF2024A0001</p>"),
	}
}

func TestChecker_Run(t *testing.T) {
	store := &MockStore{balance: decimal.RequireFromString("100")}
	notifier := &MockNotifier{}
	ledger := &MockLedger{}
	c := New(store, sources(testMailbox()), authorizer{}, notifier, ledger)

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Error || len(res.Records) != 2 || res.AmountSum != "7.30" {
		t.Fatalf("unexpected batch: %+v", res.BatchResult)
	}
	if res.Balance != "107.30" || res.Notified != 2 || res.Duplicates != 0 {
		t.Errorf("Balance=%s Notified=%d Duplicates=%d", res.Balance, res.Notified, res.Duplicates)
	}
	if res.RunID == "" {
		t.Error("expected a run id")
	}
	if len(store.simulations) != 1 || store.simulations[0] != "GF2024A0001" {
		t.Errorf("simulations = %v", store.simulations)
	}
	if len(ledger.rows) != 2 || ledger.rows[0].RunID != res.RunID {
		t.Errorf("expected 2 ledger rows for run %s, got %+v", res.RunID, ledger.rows)
	}
	if len(notifier.reauth) != 0 {
		t.Errorf("unexpected re-authorization notice")
	}
}

func TestChecker_RunTwiceSkipsDuplicates(t *testing.T) {
	store := &MockStore{}
	notifier := &MockNotifier{}
	c := New(store, sources(testMailbox()), authorizer{}, notifier, nil)

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if res.Duplicates != 2 || res.Notified != 0 {
		t.Errorf("Duplicates=%d Notified=%d, want 2 and 0", res.Duplicates, res.Notified)
	}
	if res.Balance != "7.30" {
		t.Errorf("balance changed on replay: %s", res.Balance)
	}
	if len(notifier.notified) != 2 {
		t.Errorf("expected exactly 2 notifications overall, got %v", notifier.notified)
	}
}

func TestChecker_SourceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantReauth bool
	}{
		{name: "invalid grant", err: fmt.Errorf("refreshing token: %w", gmail.ErrInvalidGrant), wantCode: domain.ErrorCodeReauth, wantReauth: true},
		{name: "other failure", err: errors.New("dial tcp: timeout"), wantCode: domain.ErrorCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &MockNotifier{}
			failing := func(ctx context.Context, refreshToken string) (pipeline.MailSource, error) {
				return nil, tt.err
			}
			c := New(&MockStore{}, failing, authorizer{}, notifier, nil)

			res, err := c.Run(context.Background())
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if !res.Error || res.ErrorCode != tt.wantCode {
				t.Errorf("Error=%v ErrorCode=%d, want true and %d", res.Error, res.ErrorCode, tt.wantCode)
			}
			if res.AmountSum != "0.00" || len(res.Records) != 0 {
				t.Errorf("expected empty batch, got %+v", res.BatchResult)
			}
			if got := len(notifier.reauth) == 1; got != tt.wantReauth {
				t.Errorf("reauth sent = %v, want %v", got, tt.wantReauth)
			}
			if tt.wantReauth && !strings.Contains(notifier.reauth[0], "state=s-1") {
				t.Errorf("unexpected auth URL %q", notifier.reauth[0])
			}
		})
	}
}

func TestChecker_StoreFailures(t *testing.T) {
	t.Run("token", func(t *testing.T) {
		store := &MockStore{TokenFunc: func(ctx context.Context) (string, error) {
			return "", errors.New("database is locked")
		}}
		c := New(store, sources(testMailbox()), authorizer{}, &MockNotifier{}, nil)

		if _, err := c.Run(context.Background()); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("balance", func(t *testing.T) {
		store := &MockStore{ApplyRecordsFunc: func(ctx context.Context, records []*domain.PaymentRecord) ([]*domain.PaymentRecord, decimal.Decimal, error) {
			return nil, decimal.Zero, errors.New("disk full")
		}}
		notifier := &MockNotifier{}
		c := New(store, sources(testMailbox()), authorizer{}, notifier, nil)

		buf := &bytes.Buffer{}
		ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))

		_, err := c.Run(ctx)
		if err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Errorf("expected balance error, got %v", err)
		}
		if len(notifier.notified) != 0 {
			t.Errorf("nothing may be notified when the balance was not updated")
		}
		var dropped []string
		for _, line := range strings.Split(buf.String(), "\n") {
			if strings.Contains(line, "record dropped") {
				dropped = append(dropped, line)
			}
		}
		if len(dropped) != 2 || !strings.Contains(dropped[0], `"message_id":"a"`) || !strings.Contains(dropped[1], `"message_id":"b"`) {
			t.Errorf("expected both dropped records to be logged, got %q", dropped)
		}
	})
}

func TestChecker_SideEffectFailuresDoNotFailRun(t *testing.T) {
	notifier := &MockNotifier{NotifyFunc: func(ctx context.Context, rec *domain.PaymentRecord) error {
		if rec.MessageID == "a" {
			return errors.New("chat not found")
		}
		return nil
	}}
	ledger := &MockLedger{InsertPaymentsFunc: func(ctx context.Context, rows []*bigquery.PaymentRow) error {
		return errors.New("table not found")
	}}
	c := New(&MockStore{}, sources(testMailbox()), authorizer{}, notifier, ledger)

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Notified != 1 {
		t.Errorf("Notified = %d, want 1", res.Notified)
	}
}

func TestChecker_RunIsSerialized(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		overlap bool
	)
	slow := func(ctx context.Context, refreshToken string) (pipeline.MailSource, error) {
		mu.Lock()
		active++
		if active > 1 {
			overlap = true
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return mailbox{}, nil
	}
	c := New(&MockStore{}, slow, authorizer{}, &MockNotifier{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(context.Background())
		}()
	}
	wg.Wait()

	if overlap {
		t.Error("runs overlapped")
	}
}

func TestChecker_HandleJob(t *testing.T) {
	tests := []struct {
		name          string
		sources       SourceFunc
		wantErr       bool
		wantPermanent bool
	}{
		{name: "success", sources: sources(testMailbox())},
		{
			name: "reauth is permanent",
			sources: func(ctx context.Context, refreshToken string) (pipeline.MailSource, error) {
				return nil, gmail.ErrInvalidGrant
			},
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name: "generic is retried",
			sources: func(ctx context.Context, refreshToken string) (pipeline.MailSource, error) {
				return nil, errors.New("connection reset")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&MockStore{}, tt.sources, authorizer{}, &MockNotifier{}, nil)
			job := &jobs.CheckRunJob{JobID: "j1"}

			err := c.HandleJob(context.Background(), job)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, jobs.ErrPermanent) != tt.wantPermanent {
				t.Errorf("permanent = %v, want %v", errors.Is(err, jobs.ErrPermanent), tt.wantPermanent)
			}
			if _, ok := job.Result.(*Result); !ok {
				t.Errorf("expected the run result on the job, got %T", job.Result)
			}
		})
	}
}
