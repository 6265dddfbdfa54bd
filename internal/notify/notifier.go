package notify

import (
	"context"
	"fmt"

	"github.com/mendoc/paypal-listener/internal/domain"
	"github.com/mendoc/paypal-listener/internal/logger"
	"github.com/mendoc/paypal-listener/internal/metrics"
)

// ReceiptArchive keeps a copy of rendered receipt images.
type ReceiptArchive interface {
	SaveReceipt(ctx context.Context, name string, png []byte) (string, error)
}

// Notifier formats records and delivers them to a sink.
type Notifier struct {
	sink    Sink
	archive ReceiptArchive
}

// New returns a notifier. archive may be nil.
func New(sink Sink, archive ReceiptArchive) *Notifier {
	return &Notifier{sink: sink, archive: archive}
}

// Notify sends one payment notification. Archiving the receipt is
// best-effort; a delivery failure is returned.
func (n *Notifier) Notify(ctx context.Context, rec *domain.PaymentRecord) error {
	kind := string(rec.Kind())

	msg, err := Format(rec)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("Notify: %w", err)
	}

	if msg.IsPhoto() && n.archive != nil {
		log := logger.FromContext(ctx)
		uri, err := n.archive.SaveReceipt(ctx, msg.PhotoName, msg.Photo)
		if err != nil {
			log.Warn().Err(err).Str("file", msg.PhotoName).Msg("failed to archive receipt")
		} else {
			log.Debug().Str("uri", uri).Msg("receipt archived")
		}
	}

	if err := n.sink.Send(ctx, msg); err != nil {
		metrics.NotificationsSent.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("Notify: sending %s notification: %w", kind, err)
	}

	metrics.NotificationsSent.WithLabelValues(kind, "ok").Inc()
	return nil
}

// NotifyReauth sends the re-authorization notice.
func (n *Notifier) NotifyReauth(ctx context.Context, authURL string) error {
	if err := n.sink.Send(ctx, ReauthMessage(authURL)); err != nil {
		return fmt.Errorf("NotifyReauth: %w", err)
	}
	return nil
}
