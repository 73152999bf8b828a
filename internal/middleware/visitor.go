package middleware

import (
	"net/http"
	"strings"
	"time"

	"stash-api/internal/gate"
	"stash-api/pkg/logger"

	"github.com/google/uuid"
)

const (
	// VisitorCookie identifies an anonymous visitor across requests
	VisitorCookie = "stash_vid"
	// OverrideCookie set to "off" disables gating for operator previews
	OverrideCookie = "gate"
	// OverrideHeader is set on the request when the preview override is active
	OverrideHeader = "x-gate-override"
	// AutomationHeader is sent by clients driven by a webdriver
	AutomationHeader = "x-webdriver"

	visitorCookieMaxAge = 365 * 24 * time.Hour
)

// VisitorConfig controls the visitor cookie
type VisitorConfig struct {
	Secure bool
}

// Visitor resolves the anonymous visitor for a request, issuing a new
// visitor cookie when none is present.
func Visitor(cfg VisitorConfig, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitorID := ""
			if cookie, err := r.Cookie(VisitorCookie); err == nil {
				if _, err := uuid.Parse(cookie.Value); err == nil {
					visitorID = cookie.Value
				}
			}

			if visitorID == "" {
				visitorID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     VisitorCookie,
					Value:    visitorID,
					Path:     "/",
					MaxAge:   int(visitorCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				})
				logger.WithField("request_id", RequestIDFromContext(r.Context())).Debug("Issued visitor cookie")
			}

			override := false
			if cookie, err := r.Cookie(OverrideCookie); err == nil && cookie.Value == "off" {
				override = true
				r.Header.Set(OverrideHeader, "1")
			}

			v := gate.Visitor{
				ID:        visitorID,
				UserAgent: r.UserAgent(),
				Override:  override,
				Automated: isTruthy(r.Header.Get(AutomationHeader)),
			}

			next.ServeHTTP(w, r.WithContext(WithVisitor(r.Context(), v)))
		})
	}
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
