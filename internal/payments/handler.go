package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

const maxCallbackBody = 64 << 10

type CallbackProcessor interface {
	HandleCallback(ctx context.Context, cb Callback) (*Result, error)
}

type Handler struct {
	processor CallbackProcessor
	secret    []byte
	logger    *slog.Logger
}

func NewHandler(processor CallbackProcessor, secret []byte, logger *slog.Logger) *Handler {
	return &Handler{
		processor: processor,
		secret:    secret,
		logger:    logger,
	}
}

func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := Verify(h.secret, body, r.Header.Get(SignatureHeader)); err != nil {
		h.logger.Warn("rejected payment callback", "error", err, "remote_addr", r.RemoteAddr)
		h.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := uuid.Parse(cb.OrderID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	if !cb.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "status must be success or failed")
		return
	}

	res, err := h.processor.HandleCallback(r.Context(), cb)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, ErrOrderClosed):
			h.writeError(w, http.StatusConflict, "order is cancelled or returned")
		case errors.Is(err, ErrInvalidOutcome):
			h.writeError(w, http.StatusBadRequest, "status must be success or failed")
		default:
			h.logger.Error("failed to process payment callback", "error", err, "order_id", cb.OrderID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, res)
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
