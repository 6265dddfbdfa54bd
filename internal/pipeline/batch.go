package pipeline

import (
	"context"
	"errors"

	"github.com/mendoc/paypal-listener/internal/domain"
	"github.com/mendoc/paypal-listener/internal/gmail"
	"github.com/mendoc/paypal-listener/internal/logger"
	"github.com/mendoc/paypal-listener/internal/metrics"
)

// ProcessBatch runs every unread message through the message pipeline and
// returns the records with their signed sum.
//
// A failing message is skipped. A listing failure yields an error result
// with no records: errorCode 1 when the credential must be re-authorized,
// 2 otherwise. Cancelling ctx stops the batch early; records already
// extracted, and marked read, are still returned.
func ProcessBatch(ctx context.Context, src MailSource) *domain.BatchResult {
	log := logger.FromContext(ctx)

	ids, err := src.ListUnread(ctx)
	if err != nil {
		code := domain.ErrorCodeGeneric
		if errors.Is(err, gmail.ErrInvalidGrant) {
			code = domain.ErrorCodeReauth
		}
		log.Error().Err(err).Int("error_code", code).Msg("listing unread messages failed")
		return &domain.BatchResult{
			Records:   []*domain.PaymentRecord{},
			AmountSum: domain.FormatSum(domain.SumRecords(nil)),
			Error:     true,
			ErrorCode: code,
		}
	}

	metrics.EmailsListed.Add(float64(len(ids)))
	log.Info().Int("count", len(ids)).Msg("listed unread messages")

	p := NewMessagePipeline(src)
	records := make([]*domain.PaymentRecord, 0, len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Int("processed", len(records)).Msg("batch interrupted")
			break
		}

		msgCtx, msgLog := logger.WithFields(ctx, map[string]interface{}{"message_id": id})
		state := &MessageState{ID: id}

		if err := p.Execute(msgCtx, state); err != nil {
			reason := skipReason(state, err)
			metrics.EmailsSkipped.WithLabelValues(reason).Inc()
			if reason == metrics.ReasonUnrecognized {
				msgLog.Debug().Err(err).Msg("skipping message")
			} else {
				msgLog.Warn().Err(err).Str("reason", reason).Msg("skipping message")
			}
			continue
		}

		metrics.EmailsProcessed.WithLabelValues(string(state.Kind)).Inc()
		msgLog.Info().Str("kind", string(state.Kind)).Msg("payment extracted")
		records = append(records, state.Record)
	}

	return &domain.BatchResult{
		Records:   records,
		AmountSum: domain.FormatSum(domain.SumRecords(records)),
	}
}

func skipReason(state *MessageState, err error) string {
	switch {
	case state.Message == nil:
		return metrics.ReasonFetchFailed
	case errors.Is(err, ErrUnrecognizedSubject):
		return metrics.ReasonUnrecognized
	default:
		return metrics.ReasonExtractError
	}
}
