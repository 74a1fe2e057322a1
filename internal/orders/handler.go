package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

type Workflow interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, target domain.OrderStatus) (*domain.Order, error)
	Cancel(ctx context.Context, orderID string) (*domain.Order, error)
	ShippingHistory(ctx context.Context, orderID string) (*ShippingHistory, error)
}

type Handler struct {
	workflow Workflow
	logger   *slog.Logger
}

func NewHandler(workflow Workflow, logger *slog.Logger) *Handler {
	return &Handler{
		workflow: workflow,
		logger:   logger,
	}
}

type updateStatusRequest struct {
	OrderID   string             `json:"orderId"`
	NewStatus domain.OrderStatus `json:"newStatus"`
}

type cancelRequest struct {
	OrderID string `json:"orderId"`
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.workflow.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, err, id)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleShippingHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	history, err := h.workflow.ShippingHistory(r.Context(), id)
	if err != nil {
		h.handleError(w, err, id)
		return
	}

	h.writeJSON(w, http.StatusOK, history)
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := uuid.Parse(req.OrderID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.workflow.UpdateStatus(r.Context(), req.OrderID, req.NewStatus)
	if err != nil {
		h.handleError(w, err, req.OrderID)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := uuid.Parse(req.OrderID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.workflow.Cancel(r.Context(), req.OrderID)
	if err != nil {
		h.handleError(w, err, req.OrderID)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleError(w http.ResponseWriter, err error, orderID string) {
	switch {
	case errors.Is(err, domain.ErrInvalidStatus):
		h.writeError(w, http.StatusBadRequest, "invalid status")
	case errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotCancellable):
		h.writeError(w, http.StatusBadRequest, ErrNotCancellable.Error())
	case errors.Is(err, ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, ErrShippingNotFound):
		h.writeError(w, http.StatusNotFound, ErrShippingNotFound.Error())
	default:
		h.logger.Error("order operation failed", "error", err, "order_id", orderID)
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
