package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-orderflow/internal/auth"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

const listLimit = 50

type Store interface {
	Insert(ctx context.Context, userID, title, message string, severity domain.Severity) (*domain.Notification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

type OrderFinder interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type Handler struct {
	store  Store
	orders OrderFinder
	logger *slog.Logger
}

func NewHandler(store Store, orders OrderFinder, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		orders: orders,
		logger: logger,
	}
}

type createRequest struct {
	OrderID string          `json:"orderId"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Type    domain.Severity `json:"type"`
}

// HandleCreate lets a customer raise a notification about one of their own
// orders.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := uuid.Parse(req.OrderID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Message) == "" {
		h.writeError(w, http.StatusBadRequest, "title and message are required")
		return
	}
	if req.Type == "" {
		req.Type = domain.SeverityInfo
	}
	if !req.Type.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid notification type")
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

	n, err := h.store.Insert(r.Context(), userID, req.Title, req.Message, req.Type)
	if err != nil {
		h.logger.Error("failed to create notification", "error", err, "order_id", req.OrderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("notification created", "notification_id", n.ID, "order_id", req.OrderID)
	h.writeJSON(w, http.StatusCreated, n)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	list, err := h.store.ListForUser(r.Context(), userID, listLimit)
	if err != nil {
		h.logger.Error("failed to list notifications", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, list)
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
