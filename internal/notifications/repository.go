package notifications

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/storefront-orderflow/internal/database"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

// Repository writes with the service's own credentials; callers decide
// whose notifications they may create.
type Repository struct {
	db database.DBTX
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Insert(ctx context.Context, userID, title, message string, severity domain.Severity) (*domain.Notification, error) {
	n := &domain.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    severity,
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, title, message, type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_read, created_at
	`, userID, title, message, severity).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return nil, err
	}

	return n, nil
}

func (r *Repository) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, message, type, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	list := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
