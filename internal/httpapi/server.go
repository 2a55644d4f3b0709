// Package httpapi exposes the inference coordinator over HTTP.
//
// Every response body, including failures, unrouted paths and recovered
// panics, is a JSON document: either the route's success shape or
// {"error": "..."}.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"foundationsd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	// Generate returns the model's reply to prompt. Errors implementing
	// HTTPError are sent to the client; anything else becomes a generic 500.
	Generate(ctx context.Context, prompt string) (string, error)
	// Status reports availability and a diagnostic message.
	Status(ctx context.Context) (bool, string)
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Method(http.MethodPost, "/inference", inferenceHandler(svc))
	r.Method(http.MethodGet, "/health", handlerFunc(healthHandler))
	r.Method(http.MethodGet, "/status", statusHandler(svc))
	r.Method(http.MethodGet, "/readyz", readyzHandler(svc))

	if metricsEnabled {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}
	MountSwagger(r)
	return r
}

// inferenceHandler godoc
// @Summary      Generate text
// @Description  Runs the prompt through the on-device model. One generation runs at a time; others queue.
// @Tags         inference
// @Accept       json
// @Produce      json
// @Param        request  body      types.InferenceRequest  true  "Prompt"
// @Success      200      {object}  types.InferenceResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      413      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      500      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Failure      504      {object}  types.ErrorResponse
// @Router       /inference [post]
func inferenceHandler(svc Service) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			mt, _, err := mime.ParseMediaType(ct)
			if err != nil || mt != "application/json" {
				return errUnsupportedMedia
			}
		}
		prompt, err := decodePrompt(w, r)
		if err != nil {
			return err
		}

		// Join server base context with request context so shutdown cancels queued work too.
		ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
		defer cancel()
		text, err := svc.Generate(ctx, prompt)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if serverBaseCtx.Err() != nil {
					return errShuttingDown
				}
				if r.Context().Err() != nil {
					// Client is gone; nobody reads the body.
					zlog.Debug().Str("request_id", middleware.GetReqID(r.Context())).Msg("client left while queued")
					return nil
				}
			}
			return err
		}
		return writeJSON(w, http.StatusOK, types.InferenceResponse{Response: text})
	}
}

// decodePrompt reads at most maxBodyBytes and extracts the prompt. Any string,
// including "", is a valid prompt; only a missing or null field is rejected.
// Size is checked before any JSON decoding takes place.
func decodePrompt(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.ContentLength > maxBodyBytes {
		return "", errBodyTooLarge
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return "", errBodyTooLarge
		}
		return "", errInvalidJSON
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", errInvalidJSON
	}
	var req struct {
		Prompt *string `json:"prompt"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return "", errInvalidJSON
	}
	if req.Prompt == nil {
		return "", errPromptRequired
	}
	return *req.Prompt, nil
}

// healthHandler godoc
// @Summary      Liveness
// @Description  Always 200 while the process serves HTTP, independent of the model.
// @Tags         system
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Router       /health [get]
func healthHandler(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok"})
}

// statusHandler godoc
// @Summary      Model availability
// @Description  Reports whether the model can serve and why not. Always 200.
// @Tags         system
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func statusHandler(svc Service) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		ok, msg := svc.Status(r.Context())
		return writeJSON(w, http.StatusOK, types.StatusResponse{
			Available: strconv.FormatBool(ok),
			Message:   msg,
		})
	}
}

// readyzHandler godoc
// @Summary      Readiness
// @Description  200 when the model can serve, 503 with the reason otherwise.
// @Tags         system
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Failure      503  {object}  types.ErrorResponse
// @Router       /readyz [get]
func readyzHandler(svc Service) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		ok, msg := svc.Status(r.Context())
		if !ok {
			return requestError{status: http.StatusServiceUnavailable, msg: msg}
		}
		return writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ready"})
	}
}
