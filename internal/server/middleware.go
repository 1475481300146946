package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/driftworks/workbench/internal/config"
	"github.com/driftworks/workbench/internal/logging"
	"github.com/driftworks/workbench/internal/vfs"
)

type userKey struct{}

// authMiddleware validates the bearer token and stores the authenticated
// user id in the context. With no secret configured, auth is disabled and
// the user id is taken from the X-User-ID header (development only).
func authMiddleware(auth config.AuthConfig) func(http.Handler) http.Handler {
	if auth.JWTSecret == "" {
		logging.Warn("[server] auth disabled: no jwt_secret configured")
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := context.WithValue(r.Context(), userKey{}, r.Header.Get("X-User-ID"))
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		}
	}

	secret := []byte(auth.JWTSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}
			userID, _ := claims["sub"].(string)
			if userID == "" {
				writeError(w, http.StatusUnauthorized, "token has no subject")
				return
			}

			ctx := context.WithValue(r.Context(), userKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// scopeMiddleware builds the workspace scope from the authenticated user
// and the thread query parameter (or X-Thread-ID header).
func scopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value(userKey{}).(string)

		threadID := r.URL.Query().Get("thread")
		if threadID == "" {
			threadID = r.Header.Get("X-Thread-ID")
		}

		scope := vfs.Scope{ThreadID: threadID, UserID: userID}
		next.ServeHTTP(w, r.WithContext(vfs.WithScope(r.Context(), scope)))
	})
}
