package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quickgig/quickgig/internal/errors"
	"github.com/quickgig/quickgig/pkg/logger"
)

// Claims are the JWT claims carried by every authenticated request.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type ctxKey int

const userIDKey ctxKey = iota

// GetUserID extracts the authenticated user id from the request context.
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// AuthMiddleware validates HMAC-signed bearer tokens and stashes the caller
// identity in the request context.
type AuthMiddleware struct {
	secret    []byte
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates the middleware. Requests to skipPaths bypass
// authentication entirely.
func NewAuthMiddleware(secret []byte, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &AuthMiddleware{secret: secret, log: log, skipPaths: skip}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, errors.Unauthorized("missing Authorization header"))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, errors.Unauthorized("invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.log.WithError(err).WithField("path", r.URL.Path).Warn("token validation failed")
			writeError(w, errors.Unauthorized("invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Unauthorized("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.UserID) == "" {
		return nil, errors.Unauthorized("invalid claims")
	}
	return claims, nil
}
