// Package status serves a small read-only HTTP view of a running poller:
// health, metrics, the seen keys and the last cycle result. It also accepts
// a request to run a cycle immediately.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pfrederiksen/wca-events/internal/logger"
	"github.com/pfrederiksen/wca-events/internal/poller"
)

// Poller is the part of *poller.Poller the handler reads.
type Poller interface {
	Last() *poller.Result
	Cycle(ctx context.Context) (*poller.Result, error)
}

// Keys lists the seen keys.
type Keys interface {
	Keys() []string
	Len() int
}

type Handler struct {
	poller  Poller
	keys    Keys
	metrics *logger.Metrics
}

func NewHandler(p Poller, keys Keys, metrics *logger.Metrics) *Handler {
	if metrics == nil {
		metrics = logger.DefaultMetrics()
	}
	return &Handler{poller: p, keys: keys, metrics: metrics}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealth)
	r.Get("/metrics", h.handleMetrics)
	r.Get("/events", h.handleEvents)
	r.Get("/last", h.handleLast)
	r.Post("/check", h.handleCheck)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.GetSnapshot())
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  h.keys.Len(),
		"events": h.keys.Keys(),
	})
}

func (h *Handler) handleLast(w http.ResponseWriter, r *http.Request) {
	last := h.poller.Last()
	if last == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no cycle has run yet"})
		return
	}
	writeJSON(w, http.StatusOK, last)
}

// handleCheck runs a cycle that outlives the request: once new keys are
// marked seen the announcement must go out even if the caller hangs up.
func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.poller.Cycle(context.WithoutCancel(r.Context()))
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve listens on addr until ctx is done, then shuts the server down.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Status server listening", logger.Fields{"addr": addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
