package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/mendoc/paypal-listener/internal/checker"
	"github.com/mendoc/paypal-listener/internal/domain"
	"github.com/mendoc/paypal-listener/internal/gmail"
	"github.com/mendoc/paypal-listener/internal/jobs"
	"github.com/mendoc/paypal-listener/internal/jobs/inmemory"
)

// MockRunner is a mock implementation of Runner.
type MockRunner struct {
	RunFunc func(ctx context.Context) (*checker.Result, error)
}

func (m *MockRunner) Run(ctx context.Context) (*checker.Result, error) {
	return m.RunFunc(ctx)
}

// MockAuthenticator is a mock implementation of Authenticator backed by a
// real state store.
type MockAuthenticator struct {
	ExchangeFunc func(ctx context.Context, code string) (string, error)
	states       *gmail.StateStore
}

func (m *MockAuthenticator) ConsentURL() string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + m.states.Issue()
}

func (m *MockAuthenticator) VerifyState(state string) bool {
	return m.states.Consume(state)
}

func (m *MockAuthenticator) Exchange(ctx context.Context, code string) (string, error) {
	return m.ExchangeFunc(ctx, code)
}

// MockTokenStore is a mock implementation of TokenStore.
type MockTokenStore struct {
	SetTokenFunc func(ctx context.Context, token string) error
	token        string
}

func (m *MockTokenStore) SetToken(ctx context.Context, token string) error {
	if m.SetTokenFunc != nil {
		return m.SetTokenFunc(ctx, token)
	}
	m.token = token
	return nil
}

// MockPublisher saves jobs without running them.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.CheckRunJob) error
	store       jobs.JobStore
}

func (m *MockPublisher) PublishCheckRun(ctx context.Context, job *jobs.CheckRunJob) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, job)
	}
	job.JobID = fmt.Sprintf("job-%d", len(mustList(m.store))+1)
	job.Status = jobs.JobStatusPending
	return m.store.SaveJob(ctx, job)
}

func (m *MockPublisher) Close() error { return nil }

func mustList(store jobs.JobStore) []*jobs.CheckRunJob {
	list, _ := store.ListJobs(context.Background(), jobs.JobFilter{})
	return list
}

type fixture struct {
	runner    *MockRunner
	auth      *MockAuthenticator
	tokens    *MockTokenStore
	publisher *MockPublisher
	mux       *http.ServeMux
}

func newFixture() *fixture {
	store := inmemory.NewStore()
	f := &fixture{
		runner:    &MockRunner{},
		auth:      &MockAuthenticator{states: gmail.NewStateStore(time.Minute)},
		tokens:    &MockTokenStore{},
		publisher: &MockPublisher{store: store},
		mux:       http.NewServeMux(),
	}
	Routes(f.mux,
		NewCheckHandler(f.runner),
		NewAuthHandler(f.auth, f.tokens),
		NewRunsHandler(f.publisher, store),
	)
	return f
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestCheck_StatusFollowsErrorCode(t *testing.T) {
	tests := []struct {
		name       string
		batch      *domain.BatchResult
		wantStatus int
	}{
		{name: "ok", batch: &domain.BatchResult{Records: []*domain.PaymentRecord{}, AmountSum: "0.00"}, wantStatus: http.StatusOK},
		{name: "reauth", batch: &domain.BatchResult{Records: []*domain.PaymentRecord{}, AmountSum: "0.00", Error: true, ErrorCode: 1}, wantStatus: http.StatusUnauthorized},
		{name: "generic", batch: &domain.BatchResult{Records: []*domain.PaymentRecord{}, AmountSum: "0.00", Error: true, ErrorCode: 2}, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.runner.RunFunc = func(ctx context.Context) (*checker.Result, error) {
				return &checker.Result{BatchResult: tt.batch, Balance: "12.00"}, nil
			}

			rec := f.do(http.MethodGet, "/checkpaypalpayments")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body["balance"] != "12.00" || body["amountSum"] != "0.00" {
				t.Errorf("unexpected body: %v", body)
			}
			if _, ok := body["emails"]; !ok {
				t.Errorf("emails missing from body: %v", body)
			}
			if tt.batch.Error && body["errorCode"] != float64(tt.batch.ErrorCode) {
				t.Errorf("errorCode = %v", body["errorCode"])
			}
		})
	}
}

func TestCheck_RunError(t *testing.T) {
	f := newFixture()
	f.runner.RunFunc = func(ctx context.Context) (*checker.Result, error) {
		return nil, errors.New("database is locked")
	}

	if rec := f.do(http.MethodGet, "/checkpaypalpayments"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/checkpaypalpayments"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rec.Code)
	}
}

func TestAuthorize_Redirects(t *testing.T) {
	f := newFixture()

	first := authorizeState(t, f)
	second := authorizeState(t, f)
	if first == "" || first == second {
		t.Errorf("expected a fresh state per request, got %q and %q", first, second)
	}
}

func authorizeState(t *testing.T, f *fixture) string {
	t.Helper()
	rec := f.do(http.MethodGet, "/authorize")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parsing redirect: %v", err)
	}
	return loc.Query().Get("state")
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		state      string // an issued state is used when empty
		exchange   func(ctx context.Context, code string) (string, error)
		setToken   func(ctx context.Context, token string) error
		wantStatus int
		wantToken  string
	}{
		{
			name:  "stores token",
			query: "code=4/abc",
			exchange: func(ctx context.Context, code string) (string, error) {
				if code != "4/abc" {
					return "", fmt.Errorf("unexpected code %q", code)
				}
				return "1//refresh", nil
			},
			wantStatus: http.StatusOK,
			wantToken:  "1//refresh",
		},
		{name: "missing code", wantStatus: http.StatusBadRequest},
		{name: "forged state", query: "code=4/abc", state: "forged", wantStatus: http.StatusBadRequest},
		{name: "former constant state", query: "code=4/abc", state: "paypal-listener", wantStatus: http.StatusBadRequest},
		{name: "denied", query: "error=access_denied", wantStatus: http.StatusBadRequest},
		{
			name:  "no refresh token",
			query: "code=4/abc",
			exchange: func(ctx context.Context, code string) (string, error) {
				return "", fmt.Errorf("Exchange: %w", gmail.ErrNoRefreshToken)
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:  "store failure",
			query: "code=4/abc",
			exchange: func(ctx context.Context, code string) (string, error) {
				return "1//refresh", nil
			},
			setToken: func(ctx context.Context, token string) error {
				return errors.New("readonly database")
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.auth.ExchangeFunc = tt.exchange
			f.tokens.SetTokenFunc = tt.setToken

			state := tt.state
			if state == "" {
				state = authorizeState(t, f)
			}

			target := "/oauth2callback?state=" + url.QueryEscape(state)
			if tt.query != "" {
				target += "&" + tt.query
			}
			rec := f.do(http.MethodGet, target)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if f.tokens.token != tt.wantToken {
				t.Errorf("stored token = %q, want %q", f.tokens.token, tt.wantToken)
			}
		})
	}
}

func TestCallback_StateIsSingleUse(t *testing.T) {
	f := newFixture()
	f.auth.ExchangeFunc = func(ctx context.Context, code string) (string, error) {
		return "1//refresh", nil
	}

	target := "/oauth2callback?code=4/abc&state=" + url.QueryEscape(authorizeState(t, f))
	if rec := f.do(http.MethodGet, target); rec.Code != http.StatusOK {
		t.Fatalf("first callback status = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, target); rec.Code != http.StatusBadRequest {
		t.Errorf("replayed callback status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRuns(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/runs")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue status = %d", rec.Code)
	}
	var created map[string]string
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created["job_id"] != "job-1" || created["status"] != string(jobs.JobStatusPending) {
		t.Errorf("unexpected enqueue body: %v", created)
	}

	rec = f.do(http.MethodGet, "/api/runs/job-1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"trigger":"api"`) {
		t.Errorf("get: %d %s", rec.Code, rec.Body.String())
	}

	if rec := f.do(http.MethodGet, "/api/runs/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/runs?trigger=api&limit=10")
	var list struct {
		Count int `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &list)
	if rec.Code != http.StatusOK || list.Count != 1 {
		t.Errorf("list: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRuns_EnqueueFailure(t *testing.T) {
	f := newFixture()
	f.publisher.PublishFunc = func(ctx context.Context, job *jobs.CheckRunJob) error {
		return inmemory.ErrQueueClosed
	}

	if rec := f.do(http.MethodPost, "/api/runs"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture()

	if rec := f.do(http.MethodGet, "/health"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health: %d %s", rec.Code, rec.Body.String())
	}
	rec := f.do(http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "paypal_emails_listed_total") {
		t.Errorf("metrics: %d", rec.Code)
	}
}
