package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/mendoc/paypal-listener/internal/mailparse"
)

// ErrInvalidGrant means the stored refresh token was revoked or expired and
// the mailbox must be re-authorized.
var ErrInvalidGrant = errors.New("invalid_grant")

const (
	me          = "me"
	unreadLabel = "UNREAD"
)

// Source reads PayPal emails from a Gmail mailbox.
type Source struct {
	svc   *gmailapi.Service
	query string
}

// NewSource wraps a Gmail service. query filters the messages listed by
// ListUnread, e.g. "from:paypal.fr is:unread".
func NewSource(svc *gmailapi.Service, query string) *Source {
	return &Source{svc: svc, query: query}
}

// ListUnread returns the ids of every message matching the query, across all
// result pages.
func (s *Source) ListUnread(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.svc.Users.Messages.List(me).Q(s.query).Pages(ctx, func(page *gmailapi.ListMessagesResponse) error {
		for _, m := range page.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListUnread: listing messages: %w", classify(err))
	}
	return ids, nil
}

// Fetch loads one message with its full MIME tree.
func (s *Source) Fetch(ctx context.Context, id string) (*mailparse.Message, error) {
	msg, err := s.svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("Fetch: getting message %s: %w", id, classify(err))
	}
	return toMessage(msg), nil
}

// MarkRead removes the UNREAD label from a message.
func (s *Source) MarkRead(ctx context.Context, id string) error {
	req := &gmailapi.ModifyMessageRequest{RemoveLabelIds: []string{unreadLabel}}
	if _, err := s.svc.Users.Messages.Modify(me, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("MarkRead: modifying message %s: %w", id, classify(err))
	}
	return nil
}

func toMessage(msg *gmailapi.Message) *mailparse.Message {
	out := &mailparse.Message{ID: msg.Id}
	if msg.Payload == nil {
		return out
	}
	out.Subject = header(msg.Payload, "Subject")
	out.Date = header(msg.Payload, "Date")
	out.Payload = toPart(msg.Payload)
	return out
}

func toPart(p *gmailapi.MessagePart) *mailparse.Part {
	part := &mailparse.Part{MimeType: p.MimeType}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, toPart(child))
	}
	return part
}

func header(p *gmailapi.MessagePart, name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// classify tags token refresh failures, and access tokens the API rejects,
// with ErrInvalidGrant.
func classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
		return fmt.Errorf("%w: %w", ErrInvalidGrant, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrInvalidGrant, err)
	}
	if strings.Contains(err.Error(), "invalid_grant") {
		return fmt.Errorf("%w: %w", ErrInvalidGrant, err)
	}
	return err
}
