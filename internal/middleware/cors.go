package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// CORS returns the cross-origin policy for the flashing client. A "*" entry
// allows every origin; the request origin is echoed back rather than "*" so
// that credentialed requests are accepted by browsers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")

	return cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return allowAll || slices.Contains(allowedOrigins, origin)
		},
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
