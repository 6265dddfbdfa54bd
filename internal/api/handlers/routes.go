package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mendoc/paypal-listener/internal/api/middleware"
)

// Routes registers every endpoint on mux.
func Routes(mux *http.ServeMux, check *CheckHandler, auth *AuthHandler, runs *RunsHandler) {
	mux.HandleFunc("GET /checkpaypalpayments", check.Check)

	mux.HandleFunc("GET /authorize", auth.Authorize)
	mux.HandleFunc("GET /oauth2callback", auth.Callback)

	mux.HandleFunc("POST /api/runs", runs.EnqueueRun)
	mux.HandleFunc("GET /api/runs", runs.ListRuns)
	mux.HandleFunc("GET /api/runs/{id}", runs.GetRun)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
}
