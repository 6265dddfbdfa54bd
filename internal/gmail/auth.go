package gmail

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrNoRefreshToken is returned when the consent exchange did not yield a
// refresh token, typically because consent was not forced.
var ErrNoRefreshToken = errors.New("no refresh token in exchange response")

// Authenticator runs the OAuth2 offline-access flow for the mailbox.
type Authenticator struct {
	config *oauth2.Config
}

// NewAuthenticator builds an authenticator for a Google OAuth client limited
// to the gmail.modify scope.
func NewAuthenticator(clientID, clientSecret, redirectURL string) *Authenticator {
	return &Authenticator{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{gmailapi.GmailModifyScope},
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthURL returns the consent page URL. Offline access with a forced consent
// prompt makes Google issue a new refresh token every time.
func (a *Authenticator) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a refresh token.
func (a *Authenticator) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("Exchange: exchanging authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", fmt.Errorf("Exchange: %w", ErrNoRefreshToken)
	}
	return tok.RefreshToken, nil
}

// NewService builds a Gmail client that refreshes access tokens from the
// stored refresh token. An empty token is reported as ErrInvalidGrant so the
// caller asks for re-authorization.
func (a *Authenticator) NewService(ctx context.Context, refreshToken string) (*gmailapi.Service, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("NewService: no stored refresh token: %w", ErrInvalidGrant)
	}

	ts := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("NewService: creating gmail service: %w", err)
	}
	return svc, nil
}
