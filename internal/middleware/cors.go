package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"stash-api/pkg/logger"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig allows the methods and headers the web client sends.
// No origin is allowed until AllowedOrigins is set.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
			"X-Webdriver",
			"X-Gate-Override",
		},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

// corsPolicy is a CORSConfig with its header values joined once
type corsPolicy struct {
	origins     map[string]bool
	wildcard    bool
	credentials bool
	headers     map[string]string
}

func newCORSPolicy(config *CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:     make(map[string]bool, len(config.AllowedOrigins)),
		credentials: config.AllowCredentials,
		headers:     make(map[string]string),
	}
	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			p.wildcard = true
			continue
		}
		p.origins[strings.TrimRight(origin, "/")] = true
	}

	if len(config.AllowedMethods) > 0 {
		p.headers["Access-Control-Allow-Methods"] = strings.Join(config.AllowedMethods, ", ")
	}
	if len(config.AllowedHeaders) > 0 {
		p.headers["Access-Control-Allow-Headers"] = strings.Join(config.AllowedHeaders, ", ")
	}
	if len(config.ExposedHeaders) > 0 {
		p.headers["Access-Control-Expose-Headers"] = strings.Join(config.ExposedHeaders, ", ")
	}
	if config.MaxAge > 0 {
		p.headers["Access-Control-Max-Age"] = strconv.Itoa(config.MaxAge)
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin and
// whether it echoes the caller
func (p *corsPolicy) allowOrigin(origin string) (string, bool) {
	switch {
	case origin != "" && p.origins[origin]:
		return origin, true
	case p.wildcard:
		return "*", false
	default:
		return "", false
	}
}

// CORS answers preflights and decorates responses for allowed origins.
// Credentials only accompany an echoed origin, never "*".
func CORS(config *CORSConfig, logger *logger.Logger) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultCORSConfig()
	}
	policy := newCORSPolicy(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")

			allowed, echoed := policy.allowOrigin(origin)
			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				if policy.credentials && echoed {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				for name, value := range policy.headers {
					h.Set(name, value)
				}
			} else if origin != "" {
				logger.WithFields(map[string]interface{}{
					"origin": origin,
					"path":   r.URL.Path,
				}).Debug("Origin not allowed")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
