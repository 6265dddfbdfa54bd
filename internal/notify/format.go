package notify

import (
	"fmt"
	"strings"

	"github.com/mendoc/paypal-listener/internal/domain"
	"github.com/mendoc/paypal-listener/internal/receipt"
)

// Placeholder is shown for fields the extractor could not find.
const Placeholder = "—"

// SentCaption accompanies the receipt image of an outgoing payment.
const SentCaption = "💸 Paiement PayPal envoyé !"

// Message is a rendered notification. A message carries either text or a
// photo with a caption.
type Message struct {
	Text     string
	Markdown bool

	Photo     []byte
	PhotoName string
	Caption   string
}

// IsPhoto reports whether the message is an image.
func (m Message) IsPhoto() bool {
	return len(m.Photo) > 0
}

// Format renders a payment record for the messaging channel.
func Format(rec *domain.PaymentRecord) (Message, error) {
	v := func(p *string) string { return domain.Value(p, Placeholder) }

	var b strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	switch d := rec.Details.(type) {
	case domain.Received:
		line("💰 Nouveau paiement PayPal reçu !")
		line("")
		line("👤 De : %s", v(d.Sender))
		line("💵 Montant : *%s*", v(rec.Amount))
		if d.Fees != nil {
			line("💸 Frais : %s", *d.Fees)
		}

	case domain.Sent:
		png, err := receipt.Render(receipt.FromRecord(rec, Placeholder))
		if err != nil {
			return Message{}, fmt.Errorf("Format: rendering receipt: %w", err)
		}
		return Message{
			Photo:     png,
			PhotoName: photoName(rec),
			Caption:   SentCaption,
			Markdown:  true,
		}, nil

	case domain.Subscription:
		line("🧾 Paiement PayPal à un marchand")
		line("")
		line("🏪 Marchand : %s", v(d.Merchant))
		line("💵 Montant : *%s*", v(rec.Amount))
		if d.OrderNumber != nil {
			line("📄 Commande : %s", *d.OrderNumber)
		}

	case domain.Refund:
		line("↩️ Remboursement PayPal reçu !")
		line("")
		line("👤 De : %s", v(d.Sender))
		line("💵 Montant : *%s*", v(rec.Amount))

	default:
		panic(fmt.Sprintf("notify: unknown details type %T", rec.Details))
	}

	line("📅 Date : %s", v(rec.Date))
	line("🕒 Heure : %s", v(rec.Time))
	line("🔢 Référence : %s", v(rec.Reference))

	return Message{Text: b.String(), Markdown: true}, nil
}

// ReauthMessage asks the owner to authorize mailbox access again. It is sent
// as plain text since the URL contains Markdown control characters.
func ReauthMessage(authURL string) Message {
	return Message{
		Text: "⚠️ L'accès à la boîte Gmail a expiré.\n\nAutorisez à nouveau l'application :\n" + authURL,
	}
}

func photoName(rec *domain.PaymentRecord) string {
	if rec.Reference != nil {
		return "recu-" + *rec.Reference + ".png"
	}
	if rec.MessageID != "" {
		return "recu-" + rec.MessageID + ".png"
	}
	return "recu.png"
}
