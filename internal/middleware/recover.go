package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/benvon/smart-tasks/internal/logger"
	"go.uber.org/zap"
)

// ErrorResponse is the body written when a handler panics
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Recover turns handler panics into a 500 JSON response. Panic details are logged, never returned.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	log = logger.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("panic_recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", routePath(r)),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				if err := json.NewEncoder(w).Encode(ErrorResponse{
					Error:     "Internal Server Error",
					Message:   "An unexpected error occurred",
					Timestamp: time.Now().UTC().Format(time.RFC3339),
				}); err != nil {
					log.Error("failed_to_encode_error_response", zap.Error(err))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
