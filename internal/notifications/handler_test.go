package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/storefront-orderflow/internal/auth"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

const (
	ownerID = "11111111-1111-1111-1111-111111111111"
	orderID = "22222222-2222-2222-2222-222222222222"
)

type fakeStore struct {
	inserted []domain.Notification
	err      error
}

func (f *fakeStore) Insert(_ context.Context, userID, title, message string, severity domain.Severity) (*domain.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := domain.Notification{ID: "n-1", UserID: userID, Title: title, Message: message, Type: severity}
	f.inserted = append(f.inserted, n)
	return &n, nil
}

func (f *fakeStore) ListForUser(_ context.Context, userID string, _ int) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, n := range f.inserted {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, f.err
}

type fakeOrders map[string]*domain.Order

func (f fakeOrders) GetByID(_ context.Context, id string) (*domain.Order, error) {
	return f[id], nil
}

func newTestHandler(store *fakeStore) *Handler {
	orders := fakeOrders{orderID: {ID: orderID, UserID: ownerID}}
	return NewHandler(store, orders, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func postAs(userID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	return req
}

func TestHandler_HandleCreate(t *testing.T) {
	t.Run("owner creates a notification", func(t *testing.T) {
		store := &fakeStore{}
		handler := newTestHandler(store)
		rec := httptest.NewRecorder()

		handler.HandleCreate(rec, postAs(ownerID, `{"orderId":"`+orderID+`","title":"Hi","message":"Placed","type":"success"}`))

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(store.inserted) != 1 {
			t.Fatalf("expected 1 notification, got %d", len(store.inserted))
		}
		if store.inserted[0].UserID != ownerID || store.inserted[0].Type != domain.SeveritySuccess {
			t.Errorf("unexpected notification: %+v", store.inserted[0])
		}
	})

	t.Run("defaults type to info", func(t *testing.T) {
		store := &fakeStore{}
		handler := newTestHandler(store)
		rec := httptest.NewRecorder()

		handler.HandleCreate(rec, postAs(ownerID, `{"orderId":"`+orderID+`","title":"Hi","message":"Placed"}`))

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", rec.Code)
		}
		if store.inserted[0].Type != domain.SeverityInfo {
			t.Errorf("expected info, got %s", store.inserted[0].Type)
		}
	})

	tests := []struct {
		name       string
		userID     string
		body       string
		wantStatus int
	}{
		{"unauthenticated", "", `{}`, http.StatusUnauthorized},
		{"malformed body", ownerID, `{`, http.StatusBadRequest},
		{"invalid order id", ownerID, `{"orderId":"nope","title":"a","message":"b"}`, http.StatusBadRequest},
		{"missing title", ownerID, `{"orderId":"` + orderID + `","message":"b"}`, http.StatusBadRequest},
		{"unknown type", ownerID, `{"orderId":"` + orderID + `","title":"a","message":"b","type":"urgent"}`, http.StatusBadRequest},
		{"missing order", ownerID, `{"orderId":"33333333-3333-3333-3333-333333333333","title":"a","message":"b"}`, http.StatusNotFound},
		{"not the owner", "44444444-4444-4444-4444-444444444444", `{"orderId":"` + orderID + `","title":"a","message":"b"}`, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			handler := newTestHandler(store)
			rec := httptest.NewRecorder()

			handler.HandleCreate(rec, postAs(tt.userID, tt.body))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if len(store.inserted) != 0 {
				t.Errorf("expected no writes, got %d", len(store.inserted))
			}
		})
	}

	t.Run("store failure is a 500", func(t *testing.T) {
		handler := newTestHandler(&fakeStore{err: errors.New("boom")})
		rec := httptest.NewRecorder()

		handler.HandleCreate(rec, postAs(ownerID, `{"orderId":"`+orderID+`","title":"a","message":"b"}`))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleList(t *testing.T) {
	store := &fakeStore{inserted: []domain.Notification{
		{ID: "n-1", UserID: ownerID, Title: "a"},
		{ID: "n-2", UserID: "someone-else", Title: "b"},
	}}
	handler := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), ownerID))
	rec := httptest.NewRecorder()

	handler.HandleList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var list []domain.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list) != 1 || list[0].ID != "n-1" {
		t.Errorf("expected only the caller's notification, got %+v", list)
	}
}
