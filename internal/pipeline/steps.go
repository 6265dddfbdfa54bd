package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/mendoc/paypal-listener/internal/domain"
	"github.com/mendoc/paypal-listener/internal/logger"
	"github.com/mendoc/paypal-listener/internal/mailparse"
	"github.com/mendoc/paypal-listener/internal/metrics"
)

// ErrUnrecognizedSubject stops a message whose subject matches no template.
var ErrUnrecognizedSubject = errors.New("unrecognized subject")

// MailSource lists, fetches and acknowledges mailbox messages.
type MailSource interface {
	ListUnread(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, id string) (*mailparse.Message, error)
	MarkRead(ctx context.Context, id string) error
}

// PipelineStep is one stage of per-message processing.
type PipelineStep interface {
	Execute(ctx context.Context, state *MessageState) error
}

// MessageState is carried through the steps for a single message.
type MessageState struct {
	ID      string
	Message *mailparse.Message
	Email   *domain.RawEmail
	Kind    domain.Kind
	Record  *domain.PaymentRecord
}

// FetchStep loads the message from the source.
type FetchStep struct {
	Source MailSource
}

func (s *FetchStep) Execute(ctx context.Context, state *MessageState) error {
	msg, err := s.Source.Fetch(ctx, state.ID)
	if err != nil {
		return err
	}
	state.Message = msg
	return nil
}

// DecodeStep flattens the MIME tree into text.
type DecodeStep struct{}

func (s *DecodeStep) Execute(ctx context.Context, state *MessageState) error {
	state.Email = state.Message.Decode()
	return nil
}

// ClassifyStep picks the kind from the subject.
type ClassifyStep struct{}

func (s *ClassifyStep) Execute(ctx context.Context, state *MessageState) error {
	kind, ok := mailparse.Classify(state.Email.Subject)
	if !ok {
		return fmt.Errorf("ClassifyStep: %q: %w", state.Email.Subject, ErrUnrecognizedSubject)
	}
	state.Kind = kind
	return nil
}

// ExtractStep runs the kind's rules and builds the record.
type ExtractStep struct{}

func (s *ExtractStep) Execute(ctx context.Context, state *MessageState) error {
	fields, err := mailparse.ExtractFields(state.Kind, state.Email)
	if err != nil {
		return err
	}

	for _, f := range mailparse.ExpectedFields(state.Kind) {
		if _, ok := fields[f]; !ok {
			metrics.FieldsMissing.WithLabelValues(string(state.Kind), string(f)).Inc()
		}
	}

	state.Record = mailparse.Build(state.Kind, state.ID, fields)
	return nil
}

// MarkReadStep acknowledges the message. Failures are logged and counted but
// never stop the record from being reported.
type MarkReadStep struct {
	Source MailSource
}

func (s *MarkReadStep) Execute(ctx context.Context, state *MessageState) error {
	if err := s.Source.MarkRead(ctx, state.ID); err != nil {
		metrics.MarkReadFailures.Inc()
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("message_id", state.ID).Msg("failed to mark message as read")
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first error.
func (p *Pipeline) Execute(ctx context.Context, state *MessageState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewMessagePipeline creates the standard fetch, decode, classify, extract,
// mark-read pipeline.
func NewMessagePipeline(src MailSource) *Pipeline {
	return NewPipeline(
		&FetchStep{Source: src},
		&DecodeStep{},
		&ClassifyStep{},
		&ExtractStep{},
		&MarkReadStep{Source: src},
	)
}
