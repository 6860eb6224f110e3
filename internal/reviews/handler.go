package reviews

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/orderform"
)

type Handler struct {
	repo      *ReviewRepository
	validator *orderform.Validator
	logger    *slog.Logger
}

func NewHandler(repo *ReviewRepository, validator *orderform.Validator, logger *slog.Logger) *Handler {
	return &Handler{
		repo:      repo,
		validator: validator,
		logger:    logger,
	}
}

func (h *Handler) HandleApproved(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.repo.Approved(r.Context())
	if err != nil {
		h.logger.Error("failed to list approved reviews", "error", err)
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reviews)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute review stats", "error", err)
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	review, err := h.repo.Submit(r.Context(), in)
	if err != nil {
		h.logger.Error("failed to submit review", "error", err)
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info("review submitted", "review_id", review.ID, "rating", review.Rating)
	h.writeJSON(w, http.StatusAccepted, review)
}

func (h *Handler) HandleHelpful(w http.ResponseWriter, r *http.Request) {
	review, err := h.repo.Helpful(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, review)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	reviews, err := h.repo.List(r.Context(), refresh)
	if err != nil {
		h.logger.Error("failed to list reviews", "error", err)
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reviews)
}

func (h *Handler) HandleCompose(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	review, err := h.repo.Compose(r.Context(), in)
	if err != nil {
		h.logger.Error("failed to compose review", "error", err)
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info("review composed", "review_id", review.ID)
	h.writeJSON(w, http.StatusCreated, review)
}

type approvalRequest struct {
	Approved *bool `json:"approved"`
}

func (h *Handler) HandleSetApproval(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Approved == nil {
		h.writeError(w, http.StatusBadRequest, "approved must be true or false")
		return
	}

	review, err := h.repo.SetApproval(r.Context(), id, *req.Approved)
	if err != nil {
		h.logger.Error("failed to set review approval", "error", err, "id", id)
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info("review moderated", "review_id", id, "approved", review.Approved)
	h.writeJSON(w, http.StatusOK, review)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.logger.Error("failed to delete review", "error", err, "id", id)
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info("review deleted", "review_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return Input{}, false
	}
	in = in.Trimmed()

	if err := h.validator.Struct(in); err != nil {
		var verr *orderform.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusUnprocessableEntity, verr)
			return Input{}, false
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return Input{}, false
	}
	return in, true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, collection.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "review not found")
	case errors.Is(err, collection.ErrNotReady):
		h.writeError(w, http.StatusServiceUnavailable, "store not ready")
	case errors.Is(err, collection.ErrWriteFailed):
		h.writeError(w, http.StatusBadGateway, "store write failed")
	case errors.Is(err, collection.ErrReadFailed):
		h.writeError(w, http.StatusBadGateway, err.Error())
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
