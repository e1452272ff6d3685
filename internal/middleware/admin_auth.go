package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/KlinikCare/attendance-service/internal/config"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

// ContextAdminID carries the authenticated admin's subject claim.
const ContextAdminID contextKey = "admin_id"

// AdminAuth verifies the bearer token on administrative routes (config
// reload, force-single-device, unblock, purge). Token issuance belongs to
// the auth service; this side only validates.
func AdminAuth(cfg config.AdminConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(cfg.JWTSigningKey), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			if cfg.TokenIssuer != "" && claims.Issuer != cfg.TokenIssuer {
				http.Error(w, `{"error":"invalid token issuer"}`, http.StatusUnauthorized)
				return
			}
			if cfg.TokenMaxAge > 0 && claims.IssuedAt != nil &&
				time.Since(claims.IssuedAt.Time) > cfg.TokenMaxAge {
				http.Error(w, `{"error":"token too old"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextAdminID, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
