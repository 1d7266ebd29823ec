package middleware

import (
	"net/http"
	"strings"
)

// StripPrefix removes prefix from request paths so the API can sit behind a
// reverse proxy that forwards /scanner/... unchanged. Requests without the
// prefix pass through as they are.
func StripPrefix(prefix string) func(http.Handler) http.Handler {
	prefix = "/" + strings.Trim(prefix, "/")
	return func(next http.Handler) http.Handler {
		if prefix == "/" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := r.URL.Path
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				r2 := r.Clone(r.Context())
				r2.URL.Path = strings.TrimPrefix(p, prefix)
				if r2.URL.Path == "" {
					r2.URL.Path = "/"
				}
				r2.URL.RawPath = ""
				next.ServeHTTP(w, r2)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
