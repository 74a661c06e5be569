// Package response writes the {success, data, error} envelope shared by
// every JSON endpoint.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

func write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Debug().Err(err).Int("status", status).Msg("Client went away before response was written")
	}
}

// JSON wraps data in the envelope; success follows the status class
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Response{Success: status >= 200 && status < 300, Data: data})
}

// Error writes a failed envelope. message may be a string or a
// field-to-problem map from request validation.
func Error(w http.ResponseWriter, status int, message any) {
	write(w, status, Response{Error: message})
}

func OK(w http.ResponseWriter, data any)      { JSON(w, http.StatusOK, data) }
func Created(w http.ResponseWriter, data any) { JSON(w, http.StatusCreated, data) }

// Accepted acknowledges work that continues in the background, such as a
// report whose progress is streamed over its event channel.
func Accepted(w http.ResponseWriter, data any) { JSON(w, http.StatusAccepted, data) }

func NoContent(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) }

func BadRequest(w http.ResponseWriter, message any) { Error(w, http.StatusBadRequest, message) }
func NotFound(w http.ResponseWriter, message any)   { Error(w, http.StatusNotFound, message) }

// TooLarge rejects uploads over the configured byte limit
func TooLarge(w http.ResponseWriter, message any) {
	Error(w, http.StatusRequestEntityTooLarge, message)
}

// Unavailable reports a dependency that is down or a saturated worker pool
func Unavailable(w http.ResponseWriter, message any) {
	Error(w, http.StatusServiceUnavailable, message)
}

func TooManyRequests(w http.ResponseWriter, message any) {
	Error(w, http.StatusTooManyRequests, message)
}

func InternalError(w http.ResponseWriter, message any) {
	Error(w, http.StatusInternalServerError, message)
}
