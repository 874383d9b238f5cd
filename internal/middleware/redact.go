package middleware

import (
	"net/http"
	"net/url"
)

var redactedParams = []string{"hub.verify_token", "token", "access_token"}

// RedactQuery masks secret query parameters in RequestURI so the access log
// never records them. r.URL is left intact for handlers.
func RedactQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery == "" {
			next.ServeHTTP(w, r)
			return
		}
		query := r.URL.Query()
		redacted := false
		for _, key := range redactedParams {
			if query.Has(key) {
				query.Set(key, "REDACTED")
				redacted = true
			}
		}
		if !redacted {
			next.ServeHTTP(w, r)
			return
		}
		masked := r.Clone(r.Context())
		masked.RequestURI = (&url.URL{Path: r.URL.Path, RawPath: r.URL.RawPath, RawQuery: query.Encode()}).RequestURI()
		next.ServeHTTP(w, masked)
	})
}
