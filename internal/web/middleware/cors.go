package middleware

import (
	"net/http"
	"strings"
)

// parseAllowedOrigins turns the comma-separated configured origins into a
// lookup set. A single "*" allows everything.
func parseAllowedOrigins(configured string) (map[string]struct{}, bool) {
	origins := make(map[string]struct{})
	for _, o := range strings.Split(configured, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			return nil, true
		}
		if o != "" {
			origins[o] = struct{}{}
		}
	}
	return origins, false
}

// isLocalhostOrigin returns true if the origin is http(s)://localhost:<port>.
func isLocalhostOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost:", "http://localhost", "https://localhost:", "https://localhost"} {
		if origin == prefix || strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// CORS returns middleware that handles CORS headers with an origin whitelist.
// Localhost origins are always permitted for development convenience.
func CORS(configured string) func(http.Handler) http.Handler {
	allowed, allowAll := parseAllowedOrigins(configured)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			permitted := allowAll || isLocalhostOrigin(origin)
			if !permitted && origin != "" {
				_, permitted = allowed[origin]
			}
			if origin != "" && permitted {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
