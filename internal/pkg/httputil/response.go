package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// MaxBodyBytes bounds trigger payloads. Campaign HTML can be large.
const MaxBodyBytes = 8 << 20

// Message is the body of a non-200 result.
type Message struct {
	Message string `json:"message"`
}

// Result is the envelope returned to the trigger invoker.
type Result struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body,omitempty"`
}

// JSON writes a JSON response with the given status code. The data is
// serialized and Content-Type is set automatically.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("json encode failed", "error", err)
	}
}

// OK writes {statusCode:200} plus an optional body.
func OK(w http.ResponseWriter, body any) {
	JSON(w, http.StatusOK, Result{StatusCode: http.StatusOK, Body: body})
}

// Error writes {statusCode, body:{message}} with the same HTTP status.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Result{StatusCode: status, Body: Message{Message: message}})
}

// BadRequest writes a 400 result.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// InternalError writes a 500 result. Logs the real error but returns a
// generic message to the client.
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal server error")
}

// Decode reads JSON from the request body into dst. An empty body leaves
// dst untouched. Returns false and writes a 400 result if parsing fails.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
	return false
}
