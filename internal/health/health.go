// Package health reports whether a service can reach its document store.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
)

const pingTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	ready  *collection.Ready
	store  Pinger
	logger *slog.Logger
}

func NewHandler(ready *collection.Ready, store Pinger, logger *slog.Logger) *Handler {
	return &Handler{ready: ready, store: store, logger: logger}
}

type response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HandleHealth answers 503 until the readiness probe resolved, and after
// that whenever the store stops answering pings.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.ready.Status()
	switch {
	case !resolved:
		h.write(w, http.StatusServiceUnavailable, response{Status: "starting"})
		return
	case err != nil:
		h.write(w, http.StatusServiceUnavailable, response{Status: "unavailable", Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("store ping failed", "error", err)
		h.write(w, http.StatusServiceUnavailable, response{Status: "unavailable", Error: err.Error()})
		return
	}

	h.write(w, http.StatusOK, response{Status: "ok"})
}

func (h *Handler) write(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
