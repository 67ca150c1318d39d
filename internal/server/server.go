// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/rentledger/internal/activity"
	"github.com/matthewbaird/rentledger/internal/handler"
	"github.com/matthewbaird/rentledger/internal/ledger"
)

// Config holds server configuration.
type Config struct {
	Port     int
	Ledger   *ledger.Service
	Activity activity.Store
	// Events serves the live event stream. Nil leaves the route off.
	Events http.Handler
}

// NewRouter registers every route on a chi router wrapped in the logging
// and recovery middleware.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	lh := handler.NewLeaseHandler(cfg.Ledger)
	ph := handler.NewPaymentHandler(cfg.Ledger)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/leases", lh.CreateLease)
		r.Route("/leases/{id}", func(r chi.Router) {
			r.Get("/", lh.GetLease)
			r.Patch("/", lh.UpdateLease)
			r.Post("/terminate", lh.TerminateLease)
			r.Post("/regenerate", lh.RegeneratePeriods)
			r.Get("/periods", lh.ListPeriods)
			r.Post("/assess", lh.AssessLease)
			r.Get("/summary", lh.Summary)
		})
		r.Patch("/periods/{id}/late-fee", lh.OverrideLateFee)

		r.Post("/payments", ph.CreatePayment)
		r.Get("/payments/{id}", ph.GetPayment)
		r.Patch("/payments/{id}", ph.UpdatePayment)
		r.Delete("/payments/{id}", ph.DeletePayment)

		if cfg.Activity != nil {
			ah := handler.NewActivityHandler(cfg.Activity)
			r.Get("/activity/entity/{entity_type}/{entity_id}", ah.HandleGetEntityActivity)
			r.Post("/activity/search", ah.HandleSearchActivity)
		}
		if cfg.Events != nil {
			r.Get("/events/ws", cfg.Events.ServeHTTP)
		}
	})

	return handler.Recovery(handler.Logging(r))
}

// Run starts the HTTP server and shuts it down when ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("starting server on %s", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
