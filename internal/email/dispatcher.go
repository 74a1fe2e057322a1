package email

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/telemetry"
)

type OrderFinder interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type RecipientLookup interface {
	Email(ctx context.Context, userID string) (string, error)
}

// ProfileRecipients resolves a user's address from their profile.
type ProfileRecipients struct {
	db *sql.DB
}

func NewProfileRecipients(db *sql.DB) *ProfileRecipients {
	return &ProfileRecipients{db: db}
}

func (p *ProfileRecipients) Email(ctx context.Context, userID string) (string, error) {
	var email sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT email FROM profiles WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return email.String, nil
}

type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Dispatcher turns email requests from the broker into sent mail.
type Dispatcher struct {
	orders     OrderFinder
	recipients RecipientLookup
	mailer     Mailer
	retry      RetryPolicy
	metrics    *telemetry.Instruments
	logger     *slog.Logger
}

func NewDispatcher(orders OrderFinder, recipients RecipientLookup, mailer Mailer, retry RetryPolicy, metrics *telemetry.Instruments, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		orders:     orders,
		recipients: recipients,
		mailer:     mailer,
		retry:      retry,
		metrics:    metrics,
		logger:     logger,
	}
}

// Handle sends one email. Requests that cannot succeed, and sends that keep
// failing after the retry budget, are logged and acknowledged so they do not
// block the partition. Only context cancellation is returned.
func (d *Dispatcher) Handle(ctx context.Context, _, payload []byte) error {
	var event domain.EmailRequestedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		d.logger.Error("dropping malformed email request", "error", err)
		return nil
	}
	if !event.Kind.Valid() {
		d.logger.Error("dropping email request with unknown kind", "kind", event.Kind, "order_id", event.OrderID)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retry.InitialInterval
	b.MaxInterval = d.retry.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.send(ctx, event)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.retry.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.logger.Warn("email send failed, retrying", "error", err, "order_id", event.OrderID, "kind", event.Kind, "retry_in", next)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Error("email not sent", "error", err, "order_id", event.OrderID, "kind", event.Kind)
		return nil
	}

	d.metrics.EmailSent(ctx, string(event.Kind))
	d.logger.Info("email sent", "order_id", event.OrderID, "kind", event.Kind)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, event domain.EmailRequestedEvent) error {
	order, err := d.orders.GetByID(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return backoff.Permanent(fmt.Errorf("order %s not found", event.OrderID))
	}

	to, err := d.recipients.Email(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if to == "" {
		return backoff.Permanent(fmt.Errorf("user %s has no email address", order.UserID))
	}

	subject, body, err := Render(event.Kind, order)
	if err != nil {
		return backoff.Permanent(err)
	}

	return d.mailer.Send(ctx, to, subject, body)
}
