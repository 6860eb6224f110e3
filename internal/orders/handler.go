package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/primeuro-storefront/internal/analytics"
	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

var transitionCounter, _ = otel.Meter("orders").Int64Counter("orders.status_transitions",
	metric.WithDescription("Order status changes made from the admin API"))

// Publisher sends order events. A nil Publisher disables events.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// StatsCache stores dashboard responses between order changes.
type StatsCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Invalidate(ctx context.Context, keys ...string) error
}

type noStatsCache struct{}

func (noStatsCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (noStatsCache) Set(context.Context, string, any) error         { return nil }
func (noStatsCache) Invalidate(context.Context, ...string) error    { return nil }

type Handler struct {
	repo     *OrderRepository
	producer Publisher
	cache    StatsCache
	vocab    *domain.Vocabulary
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(repo *OrderRepository, producer Publisher, cache StatsCache, vocab *domain.Vocabulary, location *time.Location, logger *slog.Logger) *Handler {
	if location == nil {
		location = time.UTC
	}
	if cache == nil {
		cache = noStatsCache{}
	}
	h := &Handler{
		repo:     repo,
		producer: producer,
		cache:    cache,
		vocab:    vocab,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
	repo.OnChange(h.invalidateStats)
	return h
}

type listResponse struct {
	Orders []domain.Order `json:"orders"`
	Total  int            `json:"total"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	refresh, _ := strconv.ParseBool(q.Get("refresh"))

	all, err := h.repo.List(r.Context(), refresh)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeStoreError(w, err)
		return
	}

	filtered := Filter{Status: q.Get("status"), Query: q.Get("q")}.Apply(all, h.vocab)

	h.logger.Info("orders listed", "count", len(filtered), "total", len(all))
	h.writeJSON(w, http.StatusOK, listResponse{Orders: filtered, Total: len(all)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status       domain.Status `json:"status"`
	CancelReason string        `json:"cancelReason"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, previous, err := h.repo.UpdateStatus(r.Context(), id, req.Status, req.CancelReason)
	switch {
	case errors.Is(err, domain.ErrTransitionNotAllowed):
		h.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, domain.ErrUnknownStatus), errors.Is(err, domain.ErrCancelReasonRequired):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to update order status", "error", err, "id", id)
		h.writeStoreError(w, err)
		return
	}

	transitionCounter.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("from", string(previous)),
		attribute.String("to", string(order.Status)),
	))

	if h.producer != nil {
		event := domain.NewStatusChangedEvent(order, previous, h.now())
		if err := h.producer.Publish(r.Context(), order.ID, event); err != nil {
			h.logger.Error("failed to publish status changed event", "error", err, "order_id", order.ID)
		}
	}

	h.logger.Info("order status updated", "order_id", order.ID, "from", previous, "status", order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	key := h.statsKey()

	if !refresh {
		var cached analytics.Dashboard
		found, err := h.cache.Get(r.Context(), key, &cached)
		if err != nil {
			h.logger.Warn("stats cache read failed", "error", err)
		}
		if found {
			h.writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	all, err := h.repo.List(r.Context(), refresh)
	if err != nil {
		h.logger.Error("failed to load orders for stats", "error", err)
		h.writeStoreError(w, err)
		return
	}

	dashboard := analytics.Build(all, h.vocab, analytics.Options{Location: h.location})

	if err := h.cache.Set(r.Context(), key, dashboard); err != nil {
		h.logger.Warn("stats cache write failed", "error", err)
	}

	h.logger.Info("order stats computed", "orders", len(all))
	h.writeJSON(w, http.StatusOK, dashboard)
}

type vocabularyResponse struct {
	Version       string                            `json:"version"`
	Statuses      []domain.Status                   `json:"statuses"`
	Default       domain.Status                     `json:"default"`
	CancelReasons []string                          `json:"cancelReasons"`
	RequireReason bool                              `json:"requireCancelReason"`
	Transitions   map[domain.Status][]domain.Status `json:"transitions"`
}

// HandleVocabulary describes the active statuses so a client can render
// only the moves the API will accept.
func (h *Handler) HandleVocabulary(w http.ResponseWriter, r *http.Request) {
	transitions := make(map[domain.Status][]domain.Status, len(h.vocab.Statuses))
	for _, s := range h.vocab.Statuses {
		transitions[s] = h.vocab.Next(s)
	}

	h.writeJSON(w, http.StatusOK, vocabularyResponse{
		Version:       h.vocab.Version.String(),
		Statuses:      h.vocab.Statuses,
		Default:       h.vocab.Default,
		CancelReasons: h.vocab.CancelReasons,
		RequireReason: h.vocab.RequiresCancelReason,
		Transitions:   transitions,
	})
}

func (h *Handler) statsKey() string {
	return "orders:" + h.vocab.Version.String() + ":" + h.location.String()
}

func (h *Handler) invalidateStats(ctx context.Context) {
	if err := h.cache.Invalidate(ctx, h.statsKey()); err != nil {
		h.logger.Warn("stats cache invalidation failed", "error", err)
	}
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, collection.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, collection.ErrNotReady):
		h.writeError(w, http.StatusServiceUnavailable, "store not ready")
	case errors.Is(err, collection.ErrWriteFailed):
		h.writeError(w, http.StatusBadGateway, "store write failed")
	case errors.Is(err, collection.ErrReadFailed):
		h.writeError(w, http.StatusBadGateway, "store read failed")
	default:
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
