package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/joao-fontenele/storefront-orderflow/internal/telemetry"
)

type Store interface {
	Claim(ctx context.Context, limit int, lease time.Duration, maxAttempts int) ([]Message, error)
	MarkPublished(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, nextAttempt time.Time, reason string) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

type RelayConfig struct {
	Interval       time.Duration
	Lease          time.Duration
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Interval:       time.Second,
		Lease:          30 * time.Second,
		BatchSize:      100,
		MaxAttempts:    10,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

// Relay moves committed outbox rows onto the broker. Delivery is at least
// once: a crash between publish and mark republishes after the lease.
type Relay struct {
	store   Store
	pub     Publisher
	cfg     RelayConfig
	metrics *telemetry.Instruments
	logger  *slog.Logger
	now     func() time.Time
}

func NewRelay(store Store, pub Publisher, cfg RelayConfig, metrics *telemetry.Instruments, logger *slog.Logger) *Relay {
	return &Relay{
		store:   store,
		pub:     pub,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Run polls until ctx is cancelled. Poll errors are logged and retried on the
// next tick.
func (r *Relay) Run(ctx context.Context) error {
	if r.cfg.Interval <= 0 {
		return fmt.Errorf("outbox relay: poll interval must be positive, got %s", r.cfg.Interval)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "interval", r.cfg.Interval, "batch_size", r.cfg.BatchSize)

	for {
		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("outbox poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick publishes one batch and returns how many messages went out.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	msgs, err := r.store.Claim(ctx, r.cfg.BatchSize, r.cfg.Lease, r.cfg.MaxAttempts)
	if err != nil {
		return 0, err
	}

	published := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if err := r.pub.Publish(ctx, m.Topic, m.Key, m.Payload); err != nil {
			r.fail(ctx, m, err)
			continue
		}
		published = append(published, m.ID)
		r.metrics.OutboxPublished(ctx, m.Topic)
	}

	if err := r.store.MarkPublished(ctx, published); err != nil {
		return 0, err
	}

	return len(published), nil
}

func (r *Relay) fail(ctx context.Context, m Message, cause error) {
	r.metrics.OutboxFailed(ctx, m.Topic)

	attempt := m.Attempts + 1
	next := r.now().Add(r.RetryDelay(attempt))
	if attempt >= r.cfg.MaxAttempts {
		r.logger.Error("outbox message gave up", "error", cause, "outbox_id", m.ID, "topic", m.Topic, "attempts", attempt)
	} else {
		r.logger.Warn("outbox publish failed", "error", cause, "outbox_id", m.ID, "topic", m.Topic, "attempts", attempt, "next_attempt_at", next)
	}

	if err := r.store.MarkFailed(ctx, m.ID, next, cause.Error()); err != nil {
		r.logger.Error("failed to record outbox failure", "error", err, "outbox_id", m.ID)
	}
}

// RetryDelay is the wait after the given failed attempt (1-based).
func (r *Relay) RetryDelay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.cfg.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         r.cfg.MaxBackoff,
	}
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
