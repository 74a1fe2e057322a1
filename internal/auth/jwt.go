package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingToken = errors.New("missing bearer token")

// Authenticator validates HS256 access tokens issued by the auth service.
// The subject claim is the user id.
type Authenticator struct {
	secret   []byte
	audience string
	logger   *slog.Logger
}

func NewAuthenticator(secret, audience string, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		secret:   []byte(secret),
		audience: audience,
		logger:   logger,
	}
}

func (a *Authenticator) ParseToken(raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}

	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}

	return claims.Subject, nil
}

// Require rejects requests without a valid bearer token and stores the
// caller's user id in the request context.
func (a *Authenticator) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			writeError(w, a.logger, http.StatusUnauthorized, "unauthenticated")
			return
		}

		userID, err := a.ParseToken(raw)
		if err != nil {
			a.logger.Info("rejected access token", "error", err, "path", r.URL.Path)
			writeError(w, a.logger, http.StatusUnauthorized, "unauthenticated")
			return
		}

		next(w, r.WithContext(WithUserID(r.Context(), userID)))
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}
