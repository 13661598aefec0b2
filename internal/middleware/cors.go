package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// CORS allows the configured frontend origin. Preflight requests are
// answered here so they never reach method-restricted routes.
func CORS(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Access-Control-Allow-Headers, Authorization, X-Requested-With")
			if origin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				log.Debug().Str("module", "api").Str("path", r.URL.Path).Msg("preflight handled")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
