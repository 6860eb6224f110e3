package posts

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
	"github.com/joao-fontenele/primeuro-storefront/internal/orderform"
)

type Handler struct {
	repo      *PostRepository
	validator *orderform.Validator
	logger    *slog.Logger
}

func NewHandler(repo *PostRepository, validator *orderform.Validator, logger *slog.Logger) *Handler {
	return &Handler{
		repo:      repo,
		validator: validator,
		logger:    logger,
	}
}

// HandlePublished is the storefront listing.
func (h *Handler) HandlePublished(w http.ResponseWriter, r *http.Request) {
	posts, err := h.repo.Published(r.Context())
	if err != nil {
		h.logger.Error("failed to list published posts", "error", err)
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, posts)
}

func (h *Handler) HandleLike(w http.ResponseWriter, r *http.Request) {
	post, err := h.repo.Like(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, post)
}

func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	post, err := h.repo.View(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, post)
}

// HandleList is the admin listing, drafts included.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	posts, err := h.repo.List(r.Context(), refresh)
	if err != nil {
		h.logger.Error("failed to list posts", "error", err)
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info("posts listed", "count", len(posts))
	h.writeJSON(w, http.StatusOK, posts)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	post, err := h.repo.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("failed to create post", "error", err)
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info("post created", "post_id", post.ID, "published", post.Published)
	h.writeJSON(w, http.StatusCreated, post)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	post, err := h.repo.Update(r.Context(), id, in)
	if err != nil {
		h.logger.Error("failed to update post", "error", err, "id", id)
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info("post updated", "post_id", post.ID)
	h.writeJSON(w, http.StatusOK, post)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.logger.Error("failed to delete post", "error", err, "id", id)
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info("post deleted", "post_id", id)
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
	if err := domain.ValidateImageURL(in.ImageURL); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, domain.ErrImageTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.writeError(w, status, err.Error())
		return Input{}, false
	}

	return in, true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, collection.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "post not found")
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
