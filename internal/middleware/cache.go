package middleware

import "net/http"

// NoStore keeps API responses out of caches: definitions, drafts and exports
// change while a respondent or author is working. Frontend assets keep the
// file server's validators.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIPath(r) {
			w.Header().Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}
