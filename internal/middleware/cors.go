package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the listed origins to read the operator endpoints. The endpoints are
// read-only, so only GET is allowed cross-origin. With no origins the handler is returned unchanged.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	})
	return c.Handler
}
