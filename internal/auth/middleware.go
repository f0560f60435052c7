package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// Middleware accepts a Bearer token, or an access_token query parameter
// for clients that cannot set headers (websocket upgrades).
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := ""
			if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
				tokenStr = strings.TrimPrefix(header, "Bearer ")
			} else if q := r.URL.Query().Get("access_token"); q != "" {
				tokenStr = q
			}
			if tokenStr == "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			claims, err := ValidateToken(secret, tokenStr)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
		})
	}
}

func WithUser(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, c)
}

func GetUser(ctx context.Context) *Claims {
	claims, _ := ctx.Value(UserContextKey).(*Claims)
	return claims
}

// RequireRole allows only the listed roles through.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUser(r.Context())
			if claims == nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeAuthError(w, http.StatusForbidden, "forbidden")
		})
	}
}

// PermissionChecker answers whether a role holds a permission.
type PermissionChecker interface {
	HasPermission(ctx context.Context, role models.Role, perm string) (bool, error)
}

// RequirePermission lets admins through and checks every other role
// against the access table.
func RequirePermission(checker PermissionChecker, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUser(r.Context())
			if claims == nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if claims.Role == models.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			ok, err := checker.HasPermission(r.Context(), claims.Role, perm)
			if err != nil {
				logrus.WithError(err).WithField("permission", perm).Error("permission lookup failed")
				writeAuthError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if !ok {
				writeAuthError(w, http.StatusForbidden, "missing permission "+perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
