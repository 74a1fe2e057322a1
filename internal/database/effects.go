package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/joao-fontenele/storefront-orderflow/internal/telemetry"
)

// SideEffects runs secondary writes inside the caller's transaction. Each one
// gets its own savepoint, so a failure undoes only that write.
type SideEffects struct {
	tx      *sql.Tx
	logger  *slog.Logger
	metrics *telemetry.Instruments
}

func NewSideEffects(tx *sql.Tx, logger *slog.Logger, metrics *telemetry.Instruments) *SideEffects {
	return &SideEffects{tx: tx, logger: logger, metrics: metrics}
}

// Run executes fn under a savepoint named after effect. Failures are logged
// and counted; the returned error is non-nil only when the transaction broke.
func (s *SideEffects) Run(ctx context.Context, effect string, fn func() error, attrs ...any) error {
	err := Savepoint(ctx, s.tx, effect, fn)
	if err == nil {
		return nil
	}

	s.metrics.SideEffectFailed(ctx, effect)
	if errors.Is(err, ErrTxBroken) {
		return err
	}

	s.logger.Warn("side effect failed", append([]any{"effect", effect, "error", err}, attrs...)...)
	return nil
}
