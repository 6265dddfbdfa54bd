package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/mendoc/paypal-listener/internal/api/middleware"
	"github.com/mendoc/paypal-listener/internal/gmail"
	"github.com/mendoc/paypal-listener/internal/logger"
)

// Authenticator runs the OAuth consent flow.
type Authenticator interface {
	ConsentURL() string
	VerifyState(state string) bool
	Exchange(ctx context.Context, code string) (string, error)
}

// TokenStore persists the refresh token.
type TokenStore interface {
	SetToken(ctx context.Context, token string) error
}

// AuthHandler serves the mailbox authorization endpoints.
type AuthHandler struct {
	auth   Authenticator
	tokens TokenStore
}

// NewAuthHandler creates a new authorization handler.
func NewAuthHandler(auth Authenticator, tokens TokenStore) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens}
}

// Authorize handles GET /authorize by redirecting to the consent page.
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.auth.ConsentURL(), http.StatusFound)
}

// Callback handles GET /oauth2callback?code=...
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	query := r.URL.Query()

	if e := query.Get("error"); e != "" {
		middleware.WriteError(w, http.StatusBadRequest, "Authorization denied: "+e)
		return
	}
	if !h.auth.VerifyState(query.Get("state")) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid state")
		return
	}
	code := query.Get("code")
	if code == "" {
		middleware.WriteError(w, http.StatusBadRequest, "code is required")
		return
	}

	token, err := h.auth.Exchange(ctx, code)
	if err != nil {
		log.Error().Err(err).Msg("Failed to exchange authorization code")
		if errors.Is(err, gmail.ErrNoRefreshToken) {
			middleware.WriteError(w, http.StatusBadGateway, "No refresh token issued; authorize again from /authorize")
			return
		}
		middleware.WriteError(w, http.StatusBadGateway, "Failed to exchange authorization code")
		return
	}

	if err := h.tokens.SetToken(ctx, token); err != nil {
		log.Error().Err(err).Msg("Failed to store refresh token")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store refresh token")
		return
	}

	log.Info().Msg("Mailbox authorized")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "authorized",
		"message": "Autorisation enregistrée. Vous pouvez fermer cette page.",
	})
}
