package mailparse

import (
	"regexp"
	"strings"

	"github.com/mendoc/paypal-listener/internal/domain"
)

// Field names a value pulled out of an email.
type Field string

const (
	FieldSender            Field = "sender"
	FieldRecipient         Field = "recipient"
	FieldMerchant          Field = "merchant"
	FieldAmount            Field = "amount"
	FieldFees              Field = "fees"
	FieldDate              Field = "date"
	FieldTime              Field = "time"
	FieldReference         Field = "reference"
	FieldInternalReference Field = "internalReference"
	FieldOrderNumber       Field = "orderNumber"
)

// Fields holds the values matched so far for one email.
type Fields map[Field]string

func (f Fields) has(field Field) bool {
	_, ok := f[field]
	return ok
}

// ptr returns the value as a pointer, nil when the field did not match.
func (f Fields) ptr(field Field) *string {
	v, ok := f[field]
	if !ok {
		return nil
	}
	return &v
}

// rule extracts one field. Rules of a kind run in table order and never stop
// each other; when is an optional guard over the fields found so far.
type rule struct {
	field Field
	match func(e *domain.RawEmail) (string, bool)
	when  func(found Fields) bool
}

const (
	space  = `[\s\x{00A0}\x{202F}]`
	amount = `\d(?:[\d.]|` + space + `)*,\d{2}(?:` + space + `*€)?(?:` + space + `*EUR)?`
	// amountEUR requires the currency code, as in "3,20 € EUR".
	amountEUR = `\d(?:[\d.]|` + space + `)*,\d{2}` + space + `*€?` + space + `*EUR`
	name      = `\p{Lu}[\p{L}'’\-]*`
	// gap joins the words of a name; a line break ends the name.
	gap = `[ \t\x{00A0}\x{202F}]`
)

var (
	senderBeforeSentYou = regexp.MustCompile(`((?:` + name + gap + `+)+` + name + `)` + space + `+vous a envoyé`)
	sentYouAmount       = regexp.MustCompile(`vous a envoyé` + space + `+(` + amount + `)`)

	sentRecipient     = regexp.MustCompile(`envoyé .*? à ([^.<]+)\.`)
	sentAmount        = regexp.MustCompile(`envoyé` + space + `+(` + amountEUR + `)`)
	equivalentAmount  = regexp.MustCompile(`=` + space + `*(` + amountEUR + `)`)
	internalReference = regexp.MustCompile(`GF\d{4}[A-Z]\d{4}`)

	paidToMerchant = regexp.MustCompile(`Vous avez payé` + space + `+(` + amount + `)` + space + `+à` + space + `+([^<\n]+?)` + space + `*(?:\.(?:\s|<|$)|<|\n|$)`)

	refundInitiated = regexp.MustCompile(`[Rr]emboursement de` + space + `+(` + amount + `)` + space + `+de la part de` + space + `+([^<\n]+?)` + space + `+a été initié`)
	refundTagClosed = regexp.MustCompile(`[Rr]emboursement de` + space + `+(` + amount + `)` + space + `+de la part de` + space + `+([^<\n]+?)` + space + `*</`)

	detailsURL = regexp.MustCompile(`/transactions?/details/([0-9A-Z]+)`)
)

// labeled matches the text that follows a label once the markup between
// them is skipped, e.g. `Frais</td><td>0,50 €</td>` or
// `Numéro de transaction</strong></span><br /><a href="…"><span>ID</span>`.
func labeled(label string) *regexp.Regexp {
	return regexp.MustCompile(label + `(?:\s*<[^>]*>)+\s*([^<]+?)\s*<`)
}

var (
	transactionDate   = labeled(`Date de la transaction`)
	transactionNumber = labeled(`Numéro de transaction`)
	feesCell          = labeled(`Frais`)
	totalCell         = labeled(`Total`)
	orderNumberCell   = labeled(`Numéro de (?:facture|commande)`)
)

func body(field Field, re *regexp.Regexp, group int) rule {
	return rule{
		field: field,
		match: func(e *domain.RawEmail) (string, bool) {
			m := re.FindStringSubmatch(e.Body)
			if m == nil {
				return "", false
			}
			v := strings.Join(strings.Fields(m[group]), " ")
			return v, v != ""
		},
	}
}

func header(field Field, derive func(string) (string, bool)) rule {
	return rule{
		field: field,
		match: func(e *domain.RawEmail) (string, bool) {
			return derive(e.Date)
		},
	}
}

func (r rule) onlyIf(guard func(Fields) bool) rule {
	r.when = guard
	return r
}

func present(field Field) func(Fields) bool {
	return func(f Fields) bool { return f.has(field) }
}

func missing(field Field) func(Fields) bool {
	return func(f Fields) bool { return !f.has(field) }
}

// rulesByKind is the extraction grammar. Adding a template means adding rows.
var rulesByKind = map[domain.Kind][]rule{
	domain.KindReceived: {
		body(FieldSender, senderBeforeSentYou, 1),
		// With fees, the Total cell is the amount actually credited.
		body(FieldFees, feesCell, 1),
		body(FieldAmount, totalCell, 1).onlyIf(present(FieldFees)),
		body(FieldAmount, sentYouAmount, 1).onlyIf(missing(FieldAmount)),
		body(FieldDate, transactionDate, 1),
		body(FieldReference, transactionNumber, 1),
		header(FieldTime, NormalizeTime),
	},
	domain.KindSent: {
		body(FieldRecipient, sentRecipient, 1),
		body(FieldAmount, sentAmount, 1),
		body(FieldAmount, equivalentAmount, 1).onlyIf(missing(FieldAmount)),
		body(FieldInternalReference, internalReference, 0),
		body(FieldDate, transactionDate, 1),
		body(FieldReference, transactionNumber, 1),
		header(FieldTime, NormalizeTime),
	},
	domain.KindSubscription: {
		body(FieldAmount, paidToMerchant, 1),
		body(FieldMerchant, paidToMerchant, 2),
		body(FieldOrderNumber, orderNumberCell, 1),
		body(FieldReference, detailsURL, 1),
		header(FieldDate, HeaderDate),
		header(FieldTime, NormalizeTime),
	},
	domain.KindRefund: {
		body(FieldAmount, refundInitiated, 1),
		body(FieldSender, refundInitiated, 2),
		body(FieldAmount, refundTagClosed, 1).onlyIf(missing(FieldAmount)),
		body(FieldSender, refundTagClosed, 2).onlyIf(missing(FieldSender)),
		body(FieldReference, detailsURL, 1),
		header(FieldDate, HeaderDate),
		header(FieldTime, NormalizeTime),
	},
}

// ExpectedFields lists the distinct fields a kind's rules can produce, in
// table order.
func ExpectedFields(kind domain.Kind) []Field {
	seen := make(map[Field]bool)
	var out []Field
	for _, r := range rulesByKind[kind] {
		if !seen[r.field] {
			seen[r.field] = true
			out = append(out, r.field)
		}
	}
	return out
}
