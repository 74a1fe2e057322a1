package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const RoleAdmin = "admin"

type RoleLookup interface {
	Role(ctx context.Context, userID string) (string, error)
}

// ProfileRoles reads roles from the profiles table. A user without a profile
// has the empty role.
type ProfileRoles struct {
	db *sql.DB
}

func NewProfileRoles(db *sql.DB) *ProfileRoles {
	return &ProfileRoles{db: db}
}

func (p *ProfileRoles) Role(ctx context.Context, userID string) (string, error) {
	var role sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT role FROM profiles WHERE id = $1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role.String, nil
}

// CachedRoles keeps looked-up roles in Redis for a short TTL. Cache errors
// fall through to the underlying lookup.
type CachedRoles struct {
	next   RoleLookup
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedRoles(next RoleLookup, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRoles {
	return &CachedRoles{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedRoles) Role(ctx context.Context, userID string) (string, error) {
	key := fmt.Sprintf("role:%s", userID)

	role, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("role cache read failed", "error", err, "user_id", userID)
	}

	role, err = c.next.Role(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, key, role, c.ttl).Err(); err != nil {
		c.logger.Warn("role cache write failed", "error", err, "user_id", userID)
	}

	return role, nil
}

// RequireAdmin must wrap a handler already behind Authenticator.Require. It
// fails closed: lookup errors are treated as a missing role.
func RequireAdmin(roles RoleLookup, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeError(w, logger, http.StatusUnauthorized, "unauthenticated")
				return
			}

			role, err := roles.Role(r.Context(), userID)
			if err != nil {
				logger.Error("role lookup failed", "error", err, "user_id", userID)
				writeError(w, logger, http.StatusForbidden, "forbidden")
				return
			}

			if role != RoleAdmin {
				logger.Info("non-admin rejected", "user_id", userID, "path", r.URL.Path)
				writeError(w, logger, http.StatusForbidden, "forbidden")
				return
			}

			next(w, r)
		}
	}
}
