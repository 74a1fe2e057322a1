package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/storefront-orderflow/internal/auth"
	"github.com/joao-fontenele/storefront-orderflow/internal/email"
	"github.com/joao-fontenele/storefront-orderflow/internal/inventory"
	"github.com/joao-fontenele/storefront-orderflow/internal/notifications"
	"github.com/joao-fontenele/storefront-orderflow/internal/orders"
	"github.com/joao-fontenele/storefront-orderflow/internal/outbox"
	"github.com/joao-fontenele/storefront-orderflow/internal/payments"
	"github.com/joao-fontenele/storefront-orderflow/internal/telemetry"
)

type Options struct {
	DB             *sql.DB
	Roles          auth.RoleLookup
	JWTSecret      string
	JWTAudience    string
	PaymentSecret  string
	Locale         string
	Metrics        *telemetry.Instruments
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// NewRouter wires every HTTP route of the storefront API.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger

	orderRepo := orders.NewOrderRepository(opts.DB)
	outboxRepo := outbox.NewRepository(opts.DB)

	orderHandler := orders.NewHandler(orders.NewService(opts.DB, opts.Locale, opts.Metrics, logger), logger)
	inventoryHandler := inventory.NewHandler(inventory.NewInventoryRepository(opts.DB), opts.Metrics, logger)
	paymentHandler := payments.NewHandler(payments.NewService(opts.DB, opts.Metrics, logger), []byte(opts.PaymentSecret), logger)
	notificationHandler := notifications.NewHandler(notifications.NewRepository(opts.DB), orderRepo, logger)
	emailHandler := email.NewHandler(orderRepo, outboxRepo, logger)

	authn := auth.NewAuthenticator(opts.JWTSecret, opts.JWTAudience, logger)
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(authn.Require(auth.RequireAdmin(opts.Roles, logger)(h)))
	}
	user := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(authn.Require(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/orders/update-status", admin(orderHandler.HandleUpdateStatus))
	mux.HandleFunc("POST /admin/orders/cancel", admin(orderHandler.HandleCancel))
	mux.HandleFunc("GET /admin/orders/{id}", admin(orderHandler.HandleGet))
	mux.HandleFunc("GET /admin/orders/{id}/shipping", admin(orderHandler.HandleShippingHistory))
	mux.HandleFunc("GET /admin/variants/{id}", admin(inventoryHandler.HandleGetVariant))
	mux.HandleFunc("POST /admin/inventory/deduct", admin(inventoryHandler.HandleDeduct))
	mux.HandleFunc("POST /admin/inventory/restore", admin(inventoryHandler.HandleRestore))
	mux.HandleFunc("POST /payment/callback", telemetry.WithHTTPRoute(paymentHandler.HandleCallback))
	mux.HandleFunc("POST /notifications", user(notificationHandler.HandleCreate))
	mux.HandleFunc("GET /notifications", user(notificationHandler.HandleList))
	mux.HandleFunc("POST /email/order", user(emailHandler.HandleOrderEmail))
	mux.HandleFunc("GET /healthz", healthz(opts.DB, logger))
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	return otelhttp.NewHandler(mux, "storefront-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if r.Pattern != "" {
				return r.Pattern
			}
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
		}),
	)
}

func healthz(db *sql.DB, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			status, code = "unavailable", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
