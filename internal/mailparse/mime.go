package mailparse

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"

	"github.com/mendoc/paypal-listener/internal/domain"
)

// Part is a node of a MIME body tree. A leaf carries a base64 payload in
// Data; a container carries child Parts. Gmail may populate both.
type Part struct {
	MimeType string
	Data     string
	Parts    []*Part
}

// Message is a fetched email before its body is decoded.
type Message struct {
	ID      string
	Subject string
	Date    string // transport Date header
	Payload *Part
}

// Decode flattens the message into a RawEmail.
func (m *Message) Decode() *domain.RawEmail {
	return &domain.RawEmail{
		ID:      m.ID,
		Subject: m.Subject,
		Date:    m.Date,
		Body:    DecodeBody(m.Payload),
	}
}

var (
	softLineBreak = regexp.MustCompile(`=\r?\n`)
	hexEscape     = regexp.MustCompile(`=[0-9A-F]{2}`)
)

// DecodeBody walks the tree depth-first and concatenates the decoded text of
// every text/plain and text/html node in document order. Other types and
// undecodable payloads are skipped.
func DecodeBody(root *Part) string {
	var b strings.Builder
	decodeInto(&b, root)
	return b.String()
}

func decodeInto(b *strings.Builder, p *Part) {
	if p == nil {
		return
	}

	if isTextType(p.MimeType) && p.Data != "" {
		if raw, err := decodeBase64(p.Data); err == nil {
			b.WriteString(DecodeQuotedPrintable(raw))
		}
	}

	for _, child := range p.Parts {
		decodeInto(b, child)
	}
}

func isTextType(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "text/plain" || mt == "text/html"
}

// decodeBase64 accepts both the standard and the URL-safe alphabet, with or
// without padding.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-':
			return '+'
		case '_':
			return '/'
		case '\r', '\n', ' ', '\t':
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")
	return base64.RawStdEncoding.DecodeString(s)
}

// DecodeQuotedPrintable removes soft line breaks and replaces =XX escapes
// with the byte they encode. Escapes are replaced at byte level, so UTF-8
// sequences split over several escapes come back whole. Text without any
// '=' sequence is returned unchanged.
func DecodeQuotedPrintable(raw []byte) string {
	out := softLineBreak.ReplaceAll(raw, nil)
	out = hexEscape.ReplaceAllFunc(out, func(m []byte) []byte {
		v, err := strconv.ParseUint(string(m[1:]), 16, 8)
		if err != nil {
			return m
		}
		return []byte{byte(v)}
	})
	return string(out)
}
