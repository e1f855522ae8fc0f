package middleware

import (
	"net/http"
	"strings"

	"github.com/clinkar-mx/clinkar-backend/api/responses"
	pkgAuth "github.com/clinkar-mx/clinkar-backend/pkg/auth"
	"github.com/clinkar-mx/clinkar-backend/pkg/config"
	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the claims.
// Requests whose context already carries an identity (the demo fallback) pass
// through untouched.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserIDFromContext(r.Context()) != "" {
				next.ServeHTTP(w, r)
				return
			}

			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID.String())
			ctx = WithRole(ctx, string(claims.Role))

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    claims.UserID.String(),
					"actor_role": string(claims.Role),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DemoIdentity seeds a fixed buyer identity when no credentials are
// presented. Mounted only in dev environments so demo flows can run without
// an upstream identity service.
func DemoIdentity(buyerID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if buyerID != "" && strings.TrimSpace(r.Header.Get("Authorization")) == "" {
				ctx := WithUserID(r.Context(), buyerID)
				ctx = WithRole(ctx, string(enums.ActorRoleBuyer))
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}
