package email

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-orderflow/internal/auth"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, topic, key string, event any) error
}

type Handler struct {
	orders OrderFinder
	outbox Enqueuer
	logger *slog.Logger
}

func NewHandler(orders OrderFinder, outbox Enqueuer, logger *slog.Logger) *Handler {
	return &Handler{
		orders: orders,
		outbox: outbox,
		logger: logger,
	}
}

type orderEmailRequest struct {
	OrderID string           `json:"orderId"`
	Type    domain.EmailKind `json:"type"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

// HandleOrderEmail queues a customer-requested email about their own order.
func (h *Handler) HandleOrderEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req orderEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := uuid.Parse(req.OrderID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	if !req.Type.UserTriggerable() {
		h.writeError(w, http.StatusBadRequest, "type must be order_placed or order_success")
		return
	}

	order, err := h.orders.GetByID(r.Context(), req.OrderID)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", req.OrderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if order.UserID != userID {
		h.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	event := domain.EmailRequestedEvent{
		Kind:      req.Type,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Timestamp: time.Now().UTC(),
	}
	if err := h.outbox.Enqueue(r.Context(), domain.TopicEmails, order.ID, event); err != nil {
		h.logger.Error("failed to queue email", "error", err, "order_id", order.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("email queued", "order_id", order.ID, "kind", req.Type)
	h.writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "queued"})
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
