// Package api assembles the dashboard HTTP surface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvloznov/sabadell-dashboard/internal/api/handlers"
	"github.com/dvloznov/sabadell-dashboard/internal/api/middleware"
	"github.com/dvloznov/sabadell-dashboard/internal/pipeline"
)

// NewRouter wires the handlers behind the middleware chain.
func NewRouter(runner pipeline.Runner, log zerolog.Logger) http.Handler {
	sessionHandler := handlers.NewSessionHandler(runner, log)
	transactionsHandler := handlers.NewTransactionsHandler(runner, log)

	r := chi.NewRouter()
	r.Use(
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.Metrics,
		middleware.CORS,
	)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"session": runner.Session().ID,
			"time":    time.Now().Format(time.RFC3339),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", sessionHandler.GetSession)
		r.Post("/session/reload", sessionHandler.ReloadSession)
		r.Get("/transactions", transactionsHandler.ListTransactions)
		r.Get("/monthly", transactionsHandler.MonthlyNet)
		r.Get("/categories", transactionsHandler.ListCategories)
		r.Get("/pivot", transactionsHandler.Pivot)
		r.Get("/pivot.xlsx", transactionsHandler.PivotXLSX)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	return r
}
