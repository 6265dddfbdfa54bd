package handlers

import (
	"context"
	"net/http"

	"github.com/mendoc/paypal-listener/internal/api/middleware"
	"github.com/mendoc/paypal-listener/internal/checker"
	"github.com/mendoc/paypal-listener/internal/domain"
	"github.com/mendoc/paypal-listener/internal/logger"
)

// Runner runs one mailbox check.
type Runner interface {
	Run(ctx context.Context) (*checker.Result, error)
}

// CheckHandler serves the synchronous mailbox check.
type CheckHandler struct {
	runner Runner
}

// NewCheckHandler creates a new check handler.
func NewCheckHandler(runner Runner) *CheckHandler {
	return &CheckHandler{runner: runner}
}

// Check handles GET /checkpaypalpayments. The body is always the run
// result; the status reflects its error code.
func (h *CheckHandler) Check(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	res, err := h.runner.Run(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Check failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Check failed")
		return
	}

	middleware.WriteJSON(w, StatusForErrorCode(res.ErrorCode), res)
}

// StatusForErrorCode maps a batch error code to an HTTP status.
func StatusForErrorCode(code int) int {
	switch code {
	case domain.ErrorCodeNone:
		return http.StatusOK
	case domain.ErrorCodeReauth:
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}
