package pipeline_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mendoc/paypal-listener/internal/domain"
	"github.com/mendoc/paypal-listener/internal/gmail"
	"github.com/mendoc/paypal-listener/internal/mailparse"
	"github.com/mendoc/paypal-listener/internal/pipeline"
)

// MockMailSource is a mock implementation of pipeline.MailSource.
type MockMailSource struct {
	ListUnreadFunc func(ctx context.Context) ([]string, error)
	FetchFunc      func(ctx context.Context, id string) (*mailparse.Message, error)
	MarkReadFunc   func(ctx context.Context, id string) error

	marked []string
}

func (m *MockMailSource) ListUnread(ctx context.Context) ([]string, error) {
	if m.ListUnreadFunc != nil {
		return m.ListUnreadFunc(ctx)
	}
	return nil, nil
}

func (m *MockMailSource) Fetch(ctx context.Context, id string) (*mailparse.Message, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, id)
	}
	return nil, errors.New("not found")
}

func (m *MockMailSource) MarkRead(ctx context.Context, id string) error {
	m.marked = append(m.marked, id)
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, id)
	}
	return nil
}

func textMessage(id, subject, body string) *mailparse.Message {
	return &mailparse.Message{
		ID:      id,
		Subject: subject,
		Date:    "Tue, 15 Oct 2024 14:30:00 +0200",
		Payload: &mailparse.Part{
			MimeType: "text/html",
			Data:     base64.URLEncoding.EncodeToString([]byte(body)),
		},
	}
}

func mailbox(msgs ...*mailparse.Message) *MockMailSource {
	byID := make(map[string]*mailparse.Message)
	var ids []string
	for _, m := range msgs {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}
	return &MockMailSource{
		ListUnreadFunc: func(ctx context.Context) ([]string, error) {
			return ids, nil
		},
		FetchFunc: func(ctx context.Context, id string) (*mailparse.Message, error) {
			if m, ok := byID[id]; ok {
				return m, nil
			}
			return nil, fmt.Errorf("message %s: not found", id)
		},
	}
}

const labelBlock = `<span><strong>Date de la transaction</strong></span><br /><span>15 octobre 2024</span>
<span><strong>Numéro de transaction</strong></span><br /><a href="https://www.paypal.com/activity/payment/%s" target="_blank"><span>%s</span></a>`

func labels(reference string) string {
	return fmt.Sprintf(labelBlock, reference, reference)
}

func TestProcessBatch_ReceivedAndSent(t *testing.T) {
	src := mailbox(
		textMessage("a", "Vous avez reçu de l'argent",
			"<p>Jean Dupont vous a envoy=C3=A9 10,50 =E2=82=AC EUR</p>"+labels("1AA11111AA1111111")),
		textMessage("b", "Vous avez envoyé un paiement",
			"<p>Vous avez envoyé 3,20 € EUR à Marie Curie.</p><p>Note : commande GF2024A0001</p>"+labels("2BB22222BB2222222")),
	)

	result := pipeline.ProcessBatch(context.Background(), src)

	if result.Error {
		t.Fatalf("unexpected error result: %+v", result)
	}

	want := []*domain.PaymentRecord{
		{
			MessageID: "a",
			Amount:    domain.StringPtr("10,50 € EUR"),
			Date:      domain.StringPtr("15 octobre 2024"),
			Time:      domain.StringPtr("13:30"),
			Reference: domain.StringPtr("1AA11111AA1111111"),
			Details:   domain.Received{Sender: domain.StringPtr("Jean Dupont")},
		},
		{
			MessageID: "b",
			Amount:    domain.StringPtr("3,20 € EUR"),
			Date:      domain.StringPtr("15 octobre 2024"),
			Time:      domain.StringPtr("13:30"),
			Reference: domain.StringPtr("2BB22222BB2222222"),
			Details: domain.Sent{
				Recipient:         domain.StringPtr("Marie Curie"),
				InternalReference: domain.StringPtr("GF2024A0001"),
			},
		},
	}
	if diff := cmp.Diff(want, result.Records); diff != "" {
		t.Errorf("Records mismatch (-want +got):\n%s", diff)
	}
	if result.AmountSum != "7.30" {
		t.Errorf("AmountSum = %q, want %q", result.AmountSum, "7.30")
	}
	if len(src.marked) != 2 || src.marked[0] != "a" || src.marked[1] != "b" {
		t.Errorf("marked = %v, want [a b]", src.marked)
	}
}

func TestProcessBatch_SkipsUnrecognizedAndFailedFetch(t *testing.T) {
	src := mailbox(
		textMessage("news", "Découvrez nos offres", "<p>promo</p>"),
		textMessage("ok", "Reçu pour votre paiement", "<p>Vous avez payé 9,99 € EUR à Netflix.</p>"),
	)
	list := src.ListUnreadFunc
	src.ListUnreadFunc = func(ctx context.Context) ([]string, error) {
		ids, _ := list(ctx)
		return append([]string{"gone"}, ids...), nil
	}

	result := pipeline.ProcessBatch(context.Background(), src)

	if len(result.Records) != 1 || result.Records[0].MessageID != "ok" {
		t.Fatalf("expected only the subscription record, got %+v", result.Records)
	}
	if result.AmountSum != "-9.99" {
		t.Errorf("AmountSum = %q, want -9.99", result.AmountSum)
	}
	if len(src.marked) != 1 || src.marked[0] != "ok" {
		t.Errorf("only extracted messages may be marked read, got %v", src.marked)
	}
}

func TestProcessBatch_MarkReadFailureKeepsRecord(t *testing.T) {
	src := mailbox(textMessage("r", "Confirmation de remboursement", "<p>Un remboursement de 5,01 € EUR de la part de Boutique Exemple a été initié.</p>"))
	src.MarkReadFunc = func(ctx context.Context, id string) error {
		return errors.New("quota exceeded")
	}

	result := pipeline.ProcessBatch(context.Background(), src)

	if result.Error || len(result.Records) != 1 {
		t.Fatalf("expected one record and no error, got %+v", result)
	}
	if result.AmountSum != "5.01" {
		t.Errorf("AmountSum = %q, want 5.01", result.AmountSum)
	}
	if len(src.marked) != 1 {
		t.Errorf("expected exactly one MarkRead call, got %d", len(src.marked))
	}
}

func TestProcessBatch_ListFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "invalid grant", err: fmt.Errorf("ListUnread: %w", gmail.ErrInvalidGrant), wantCode: domain.ErrorCodeReauth},
		{name: "other", err: errors.New("503 backend error"), wantCode: domain.ErrorCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &MockMailSource{
				ListUnreadFunc: func(ctx context.Context) ([]string, error) {
					return nil, tt.err
				},
			}

			result := pipeline.ProcessBatch(context.Background(), src)

			if !result.Error || result.ErrorCode != tt.wantCode {
				t.Errorf("got error=%v code=%d, want error=true code=%d", result.Error, result.ErrorCode, tt.wantCode)
			}
			if len(result.Records) != 0 || result.AmountSum != "0.00" {
				t.Errorf("expected empty batch, got %+v", result)
			}
			if len(src.marked) != 0 {
				t.Errorf("expected no MarkRead calls, got %v", src.marked)
			}
		})
	}
}

func TestProcessBatch_Empty(t *testing.T) {
	result := pipeline.ProcessBatch(context.Background(), mailbox())

	if result.Error || result.AmountSum != "0.00" || result.Records == nil {
		t.Errorf("unexpected result for empty mailbox: %+v", result)
	}
}

func TestProcessBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := mailbox(
		textMessage("a", "Vous avez reçu de l'argent", "<p>Jean Dupont vous a envoyé 1,00 € EUR</p>"),
		textMessage("b", "Vous avez reçu de l'argent", "<p>Jean Dupont vous a envoyé 2,00 € EUR</p>"),
	)
	src.MarkReadFunc = func(ctx context.Context, id string) error {
		cancel()
		return nil
	}

	result := pipeline.ProcessBatch(ctx, src)

	if len(result.Records) != 1 || result.AmountSum != "1.00" {
		t.Errorf("expected the batch to stop after the first message, got %+v", result)
	}
}

func TestPipeline_StopsAtFirstError(t *testing.T) {
	var ran []string
	step := func(name string, err error) pipeline.PipelineStep {
		return stepFunc(func(ctx context.Context, s *pipeline.MessageState) error {
			ran = append(ran, name)
			return err
		})
	}

	p := pipeline.NewPipeline(step("one", nil), step("two", errors.New("boom")), step("three", nil))
	err := p.Execute(context.Background(), &pipeline.MessageState{})

	if err == nil || err.Error() != "pipeline step 2 failed: boom" {
		t.Errorf("unexpected error: %v", err)
	}
	if len(ran) != 2 {
		t.Errorf("expected two steps to run, got %v", ran)
	}
}

type stepFunc func(ctx context.Context, s *pipeline.MessageState) error

func (f stepFunc) Execute(ctx context.Context, s *pipeline.MessageState) error { return f(ctx, s) }
