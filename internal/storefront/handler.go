// Package storefront serves the public checkout API: the catalog, price
// quotes, per-step form validation and order submission.
package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/primeuro-storefront/internal/catalog"
	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
	"github.com/joao-fontenele/primeuro-storefront/internal/orderform"
	"github.com/joao-fontenele/primeuro-storefront/internal/orders"
)

const maxCodeAttempts = 5

var ErrCodesExhausted = errors.New("no unique order code available")

var submittedCounter, _ = otel.Meter("storefront").Int64Counter("orders.submitted",
	metric.WithDescription("Orders accepted from the checkout form"))

type Handler struct {
	validator *orderform.Validator
	repo      *orders.OrderRepository
	producer  orders.Publisher
	vocab     *domain.Vocabulary
	logger    *slog.Logger
	now       func() time.Time
	newCode   func() (string, error)
}

func NewHandler(validator *orderform.Validator, repo *orders.OrderRepository, producer orders.Publisher, vocab *domain.Vocabulary, logger *slog.Logger) *Handler {
	return &Handler{
		validator: validator,
		repo:      repo,
		producer:  producer,
		vocab:     vocab,
		logger:    logger,
		now:       time.Now,
		newCode:   domain.NewOrderCode,
	}
}

func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.validator.Catalog())
}

func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	var req orderform.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	quote, err := h.validator.Quote(req)
	if err != nil {
		h.writeQuoteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

type stepResponse struct {
	Step int  `json:"step"`
	Next int  `json:"next"`
	Done bool `json:"done"`
}

// HandleValidateStep checks the fields of one wizard step so the client can
// decide whether to advance.
func (h *Handler) HandleValidateStep(w http.ResponseWriter, r *http.Request) {
	step, err := strconv.Atoi(r.PathValue("step"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid step")
		return
	}

	var form orderform.FormState
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.ValidateStep(form, step); err != nil {
		h.writeFormError(w, err)
		return
	}

	next := min(step+1, orderform.TotalSteps)
	h.writeJSON(w, http.StatusOK, stepResponse{Step: step, Next: next, Done: next == orderform.TotalSteps})
}

func (h *Handler) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var form orderform.FormState
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	order, err := h.validator.CollectOrderData(form, orderform.Options{
		Now:        h.now,
		NewCode:    func() (string, error) { return h.uniqueCode(ctx) },
		Vocabulary: h.vocab,
	})
	if err != nil {
		h.logger.Warn("order rejected", "error", err)
		h.writeFormError(w, err)
		return
	}

	created, err := h.repo.Create(ctx, order)
	if err != nil {
		h.logger.Error("failed to create order", "error", err, "order_code", order.OrderCode)
		h.writeStoreError(w, err)
		return
	}

	submittedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("package", created.Package.Name),
		attribute.String("shipping", string(created.Shipping.Method)),
	))

	if h.producer != nil {
		if err := h.producer.Publish(ctx, created.ID, domain.NewOrderCreatedEvent(created, h.now())); err != nil {
			h.logger.Error("failed to publish order created event", "error", err, "order_id", created.ID)
		}
	}

	h.logger.Info("order created", "order_id", created.ID, "order_code", created.OrderCode, "total", created.Payment.Total)
	h.writeJSON(w, http.StatusCreated, created)
}

// uniqueCode draws order codes until one is not yet stored.
func (h *Handler) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := h.newCode()
		if err != nil {
			return "", err
		}
		taken, err := h.repo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
		h.logger.Warn("order code collision", "order_code", code, "attempt", attempt)
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodesExhausted, maxCodeAttempts)
}

type validationResponse struct {
	Error  string                 `json:"error"`
	Step   int                    `json:"step,omitempty"`
	Fields []orderform.FieldError `json:"fields"`
}

func (h *Handler) writeFormError(w http.ResponseWriter, err error) {
	var verr *orderform.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Error:  "invalid order form",
			Step:   verr.Step,
			Fields: verr.Fields,
		})
	case errors.Is(err, orderform.ErrInvalidForm):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrUnknownPackage), errors.Is(err, catalog.ErrUnknownDelivery), errors.Is(err, orderform.ErrUnknownCoupon):
		h.writeQuoteError(w, err)
	default:
		h.writeStoreError(w, err)
	}
}

func (h *Handler) writeQuoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownPackage), errors.Is(err, catalog.ErrUnknownDelivery), errors.Is(err, orderform.ErrUnknownCoupon):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("failed to quote", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, collection.ErrNotReady):
		h.writeError(w, http.StatusServiceUnavailable, "store not ready")
	case errors.Is(err, ErrCodesExhausted):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, collection.ErrWriteFailed):
		h.writeError(w, http.StatusBadGateway, "store write failed")
	case errors.Is(err, collection.ErrReadFailed):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("unexpected storefront error", "error", err)
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
