package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
)

// ErrTxBroken is returned when a savepoint could not be rolled back and the
// surrounding transaction can no longer be used.
var ErrTxBroken = errors.New("transaction unusable after failed savepoint")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction and commits when fn returns nil.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

var savepointName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Savepoint runs fn between SAVEPOINT and RELEASE. When fn fails, the work
// done since the savepoint is rolled back and fn's error is returned; the
// transaction stays usable. ErrTxBroken means it does not.
func Savepoint(ctx context.Context, tx *sql.Tx, name string, fn func() error) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: savepoint %s: %v", ErrTxBroken, name, err)
	}

	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("%w: rollback to %s: %v (cause: %v)", ErrTxBroken, name, rbErr, err)
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: release %s: %v", ErrTxBroken, name, err)
	}

	return nil
}
