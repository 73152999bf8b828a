package middleware

import (
	"net/http"
	"strings"

	"stash-api/internal/service"
	"stash-api/pkg/errors"
	"stash-api/pkg/logger"
)

const (
	// SessionCookie holds the Supabase access token set by the web client
	SessionCookie = "sb-access-token"
	// AuthenticatedHeader is set on the request once a session is verified
	AuthenticatedHeader = "x-user-authenticated"
)

// ExtractToken returns the access token from the Authorization header or,
// failing that, the session cookie.
func ExtractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// Auth creates an authentication middleware
func Auth(authService service.AuthService, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				writeErrorResponse(w, r, errors.NewAuthenticationError("Authorization header is required"), logger)
				return
			}

			userProfile, err := authService.ValidateToken(r.Context(), token)
			if err != nil {
				writeErrorResponse(w, r, errors.NewAuthenticationError("Invalid or expired token"), logger)
				return
			}

			r.Header.Set(AuthenticatedHeader, "true")
			logger.WithField("user_id", userProfile.Sub).Debug("User authenticated successfully")

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userProfile)))
		})
	}
}

// OptionalAuth attaches the user when a valid session is presented and
// otherwise continues anonymously. Unauthenticated responses are marked
// uncacheable so a gated view never leaks into a shared cache.
func OptionalAuth(authService service.AuthService, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(AuthenticatedHeader)

			if token := ExtractToken(r); token != "" {
				userProfile, err := authService.ValidateToken(r.Context(), token)
				if err == nil {
					r.Header.Set(AuthenticatedHeader, "true")
					next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userProfile)))
					return
				}
				logger.WithError(err).Debug("Ignoring invalid session")
			}

			if r.URL.Path != "/" {
				noCache(w)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsAuthenticated reports whether an earlier middleware verified a session
func IsAuthenticated(r *http.Request) bool {
	_, ok := UserFromContext(r.Context())
	return ok
}
