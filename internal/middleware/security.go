package middleware

import (
	"net/http"
	"strings"
)

const (
	apiCSP      = "default-src 'none'; frame-ancestors 'none'"
	frontendCSP = "default-src 'self'; img-src 'self' data:; frame-ancestors 'none'"
)

// isAPIPath reports whether r targets the JSON/CSV API rather than the
// bundled respondent frontend.
func isAPIPath(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/health" || r.URL.Path == "/version"
}

// SecureHeaders sets the security headers. API responses refuse every source;
// frontend pages may load their own assets.
func SecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		if isAPIPath(r) {
			h.Set("Content-Security-Policy", apiCSP)
		} else {
			h.Set("Content-Security-Policy", frontendCSP)
		}
		next.ServeHTTP(w, r)
	})
}
