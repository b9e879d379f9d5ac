package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"student_achievements/backend/internal/gateway/util"
	"student_achievements/backend/internal/shared"
)

// TokenParser resolves a bearer token to the caller identity
type TokenParser interface {
	Parse(token string) (shared.Identity, error)
}

// AuthMiddleware rejects requests without a valid access token and injects
// the caller identity into the request context.
func AuthMiddleware(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Extract Token
			tokenStr, err := util.ExtractToken(r)
			if err != nil {
				util.WriteJSONError(w, r, http.StatusUnauthorized, "No token provided")
				return
			}

			// 2. Verify signature, expiry and purpose
			id, err := tokens.Parse(tokenStr)
			if err != nil {
				util.WriteJSONError(w, r, http.StatusUnauthorized, "Invalid token")
				return
			}

			// 3. Inject caller into context
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("userId", id.ID).Str("role", id.Role)
			})
			next.ServeHTTP(w, r.WithContext(util.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole admits only callers holding one of roles. It must run after
// AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := util.IdentityFrom(r.Context())
			if !ok {
				util.WriteJSONError(w, r, http.StatusUnauthorized, "No token provided")
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			util.WriteJSONError(w, r, http.StatusForbidden, "Forbidden")
		})
	}
}

// AccessLog writes one structured line per request
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			event := hlog.FromRequest(r).Info()
			if status >= http.StatusInternalServerError {
				event = hlog.FromRequest(r).Error()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("requestId", middleware.GetReqID(r.Context())).
				Str("remote", r.RemoteAddr).
				Msg("request")
		}()

		next.ServeHTTP(ww, r)
	})
}
