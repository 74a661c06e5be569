package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/Rrens/med-analyzer/internal/api/response"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Recoverer turns a panic into a 500 carrying a correlation id that also
// appears in the log entry.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			errorID := uuid.NewString()
			log.Error().
				Str("error_id", errorID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Msg("Unhandled panic")

			response.InternalError(w, map[string]string{
				"message":  "Internal server error",
				"error_id": errorID,
			})
		}()

		next.ServeHTTP(w, r)
	})
}
