package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/telemetry"
)

type Adjuster interface {
	GetVariant(ctx context.Context, variantID string) (*domain.ProductVariant, error)
	Deduct(ctx context.Context, items []domain.StockAdjustment) error
	Restore(ctx context.Context, items []domain.StockAdjustment) (int, error)
}

type Handler struct {
	repo    Adjuster
	metrics *telemetry.Instruments
	logger  *slog.Logger
}

func NewHandler(repo Adjuster, metrics *telemetry.Instruments, logger *slog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
	}
}

type adjustRequest struct {
	Items []domain.StockAdjustment `json:"items"`
}

type deductResponse struct {
	Status string `json:"status"`
}

type restoreResponse struct {
	Restored int    `json:"restored"`
	Skipped  string `json:"skipped,omitempty"`
}

func (h *Handler) HandleGetVariant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid variant id")
		return
	}

	variant, err := h.repo.GetVariant(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get variant", "error", err, "variant_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if variant == nil {
		h.writeError(w, http.StatusNotFound, "variant not found")
		return
	}

	h.writeJSON(w, http.StatusOK, variant)
}

func (h *Handler) HandleDeduct(w http.ResponseWriter, r *http.Request) {
	items, ok := h.decodeItems(w, r)
	if !ok {
		return
	}

	if err := h.repo.Deduct(r.Context(), items); err != nil {
		switch {
		case errors.Is(err, ErrInsufficientStock):
			h.metrics.StockRejected(r.Context())
			h.writeError(w, http.StatusConflict, "insufficient stock")
		case errors.Is(err, ErrVariantNotFound):
			h.writeError(w, http.StatusNotFound, "variant not found")
		case errors.Is(err, ErrInvalidItem):
			h.writeError(w, http.StatusBadRequest, ErrInvalidItem.Error())
		case errors.Is(err, ErrInvalidQuantity):
			h.writeError(w, http.StatusBadRequest, ErrInvalidQuantity.Error())
		default:
			h.logger.Error("failed to deduct stock", "error", err, "items", len(items))
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("stock deducted", "items", len(items))
	h.writeJSON(w, http.StatusOK, deductResponse{Status: "deducted"})
}

func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	items, ok := h.decodeItems(w, r)
	if !ok {
		return
	}

	restored, err := h.repo.Restore(r.Context(), items)
	resp := restoreResponse{Restored: restored}
	if err != nil {
		switch {
		case errors.Is(err, ErrVariantNotFound):
			h.logger.Warn("restore skipped missing variants", "error", err, "restored", restored)
			resp.Skipped = err.Error()
		case errors.Is(err, ErrInvalidItem):
			h.writeError(w, http.StatusBadRequest, ErrInvalidItem.Error())
			return
		case errors.Is(err, ErrInvalidQuantity):
			h.writeError(w, http.StatusBadRequest, ErrInvalidQuantity.Error())
			return
		default:
			h.logger.Error("failed to restore stock", "error", err, "items", len(items))
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	h.logger.Info("stock restored", "restored", restored)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) decodeItems(w http.ResponseWriter, r *http.Request) ([]domain.StockAdjustment, bool) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	if len(req.Items) == 0 {
		h.writeError(w, http.StatusBadRequest, "items are required")
		return nil, false
	}

	for _, item := range req.Items {
		if _, err := uuid.Parse(item.VariantID); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid variant id")
			return nil, false
		}
	}

	return req.Items, true
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
