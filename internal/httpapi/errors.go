package httpapi

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/go-chi/chi/v5/middleware"

	"foundationsd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
// Its Error() text is sent to the client as-is.
type HTTPError interface {
	error
	StatusCode() int
}

// msgInternal is the only text a client sees for errors without a status.
const msgInternal = "Internal server error"

// requestError is a client-facing failure raised by the HTTP layer itself.
type requestError struct {
	status int
	msg    string
}

func (e requestError) Error() string   { return e.msg }
func (e requestError) StatusCode() int { return e.status }

var (
	errBodyTooLarge     = requestError{http.StatusRequestEntityTooLarge, "request body too large"}
	errInvalidJSON      = requestError{http.StatusBadRequest, "invalid JSON body"}
	errPromptRequired   = requestError{http.StatusBadRequest, "prompt is required"}
	errUnsupportedMedia = requestError{http.StatusUnsupportedMediaType, "Content-Type must be application/json"}
	errShuttingDown     = requestError{http.StatusServiceUnavailable, "Server is shutting down"}
)

// handlerFunc is an http handler that reports failure by returning an error.
// ServeHTTP renders the error envelope, so every route shares one translation.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h handlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h(w, r); err != nil {
		writeError(w, r, err)
	}
}

// translate maps err to the status and message sent to the client. Errors
// without a status become a generic 500; their text never leaves the server.
func translate(err error) (int, string) {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode(), he.Error()
	}
	return http.StatusInternalServerError, msgInternal
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := translate(err)
	ev := zlog.Debug()
	if status >= http.StatusInternalServerError {
		ev = zlog.Error()
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	ev.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue")
	}
	writeJSONError(w, status, msg)
}

// writeJSON encodes v before touching w, so a failed encode never leaves a
// partial body behind.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
	return nil
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if err := writeJSON(w, status, types.ErrorResponse{Error: msg}); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error"}` + "\n"))
	}
}
