package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const tenantIDKey contextKey = "tenantID"

// brokerClaims are the JWT claims issued to API callers. The subject is
// the tenant id; admin tokens may act on any tenant.
type brokerClaims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthMiddleware validates Bearer tokens (HS256) and injects the tenant
// id into the request context.
func JWTAuthMiddleware(secret []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid token format")
				return
			}

			claims := &brokerClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			subject := claims.Subject
			if claims.Admin {
				subject = adminSubject
			}
			ctx := context.WithValue(r.Context(), tenantIDKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// adminSubject marks a token that may act on any tenant.
const adminSubject = "*"

// TenantIDFromContext extracts the authenticated tenant id from context.
// Empty when auth is disabled.
func TenantIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}

// authorizedForTenant reports whether the authenticated subject may act on
// the path tenant. With auth disabled (no subject in context) everything
// is allowed.
func authorizedForTenant(ctx context.Context, tenantID string) bool {
	subject := TenantIDFromContext(ctx)
	return subject == "" || subject == adminSubject || subject == tenantID
}
