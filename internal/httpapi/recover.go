package httpapi

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
)

// Recoverer turns a handler panic into a 500 envelope.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rv := recover()
			if rv == nil {
				return
			}
			if rv == http.ErrAbortHandler {
				panic(rv)
			}
			zlog.Error().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("path", r.URL.Path).
				Interface("panic", rv).
				Bytes("stack", debug.Stack()).
				Msg("handler panic")
			writeJSONError(w, http.StatusInternalServerError, msgInternal)
		}()
		next.ServeHTTP(w, r)
	})
}
