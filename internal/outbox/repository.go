package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront-orderflow/internal/database"
)

// Message is one pending outbox row.
type Message struct {
	ID       int64
	Topic    string
	Key      string
	Payload  []byte
	Attempts int
}

type Repository struct {
	db database.DBTX
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds enqueues to tx so the message commits with the state change
// that produced it.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Enqueue(ctx context.Context, topic, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO outbox (topic, message_key, payload)
		VALUES ($1, $2, $3)
	`, topic, key, string(payload))
	return err
}

// Claim leases up to limit due messages by pushing their next attempt past
// the lease. Rows locked by another relay are skipped.
func (r *Repository) Claim(ctx context.Context, limit int, lease time.Duration, maxAttempts int) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE outbox
		SET next_attempt_at = NOW() + $2::double precision * INTERVAL '1 millisecond'
		WHERE id IN (
			SELECT id FROM outbox
			WHERE published_at IS NULL
			  AND attempts < $3
			  AND next_attempt_at <= NOW()
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, topic, message_key, payload, attempts
	`, limit, lease.Milliseconds(), maxAttempts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Key, &m.Payload, &m.Attempts); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

func (r *Repository) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET published_at = NOW(), last_error = NULL
		WHERE id = ANY($1)
	`, pq.Array(ids))
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id int64, nextAttempt time.Time, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1, next_attempt_at = $2, last_error = $3
		WHERE id = $1
	`, id, nextAttempt, reason)
	return err
}

// Pending counts messages not yet published, including dead ones.
func (r *Repository) Pending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&n)
	return n, err
}
