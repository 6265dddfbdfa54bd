package mailparse

import (
	"strings"

	"github.com/mendoc/paypal-listener/internal/domain"
)

// subjectPhrases is checked in order; the first phrase contained in the
// subject decides the kind.
var subjectPhrases = []struct {
	phrase string
	kind   domain.Kind
}{
	{"Vous avez reçu de l'argent", domain.KindReceived},
	{"Vous avez envoyé un paiement", domain.KindSent},
	{"Reçu pour votre paiement", domain.KindSubscription},
	{"remboursement", domain.KindRefund},
}

// Classify maps a decoded subject line to a payment kind. ok is false when
// no phrase matches; such emails are dropped.
func Classify(subject string) (kind domain.Kind, ok bool) {
	for _, sp := range subjectPhrases {
		if strings.Contains(subject, sp.phrase) {
			return sp.kind, true
		}
	}
	return "", false
}
