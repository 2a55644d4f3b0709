package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestInference_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"unavailable", mockHTTPError{"Model is downloading or not ready yet", 503}, 503, "Model is downloading or not ready yet"},
		{"wrapped status", fmt.Errorf("ctx: %w", mockHTTPError{"Generation timed out", 504}), 504, "Generation timed out"},
		{"busy", mockHTTPError{"Server is busy, try again later", 429}, 429, "Server is busy, try again later"},
		{"plain", errors.New("metal: command buffer failed at 0xdeadbeef"), 500, "Internal server error"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := postInference(t, NewMux(&mockService{genErr: c.err}), `{"prompt":"x"}`)
			if w.Code != c.wantCode {
				t.Fatalf("status=%d want %d", w.Code, c.wantCode)
			}
			if got := errorBody(t, w); got != c.wantMsg {
				t.Fatalf("error=%q want %q", got, c.wantMsg)
			}
			if strings.Contains(w.Body.String(), "deadbeef") {
				t.Fatalf("backend detail leaked: %s", w.Body.String())
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	if code, msg := translate(errBodyTooLarge); code != http.StatusRequestEntityTooLarge || msg != "request body too large" {
		t.Fatalf("got %d %q", code, msg)
	}
	if code, msg := translate(errors.New("secret")); code != 500 || msg != "Internal server error" {
		t.Fatalf("got %d %q", code, msg)
	}
}

func TestInference_TooBusyCountsBackpressure(t *testing.T) {
	w := postInference(t, NewMux(&mockService{genErr: mockHTTPError{"busy", 429}}), `{"prompt":"x"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(mrr.Body.String(), `foundationsd_http_backpressure_total{reason="queue"}`) {
		t.Fatalf("backpressure counter missing")
	}
}

func TestWriteJSON_UnencodableValueLeavesWriterUntouched(t *testing.T) {
	w := httptest.NewRecorder()
	if err := writeJSON(w, http.StatusOK, map[string]any{"f": func() {}}); err == nil {
		t.Fatalf("expected encode error")
	}
	if w.Body.Len() != 0 || w.Header().Get("Content-Type") != "" {
		t.Fatalf("writer touched on failure: %q", w.Body.String())
	}
}
