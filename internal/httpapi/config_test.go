package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSetMaxBodyBytes_Defaults(t *testing.T) {
	SetMaxBodyBytes(-5)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("non-positive should restore default, got %d", maxBodyBytes)
	}
	SetMaxBodyBytes(10)
	if maxBodyBytes != 10 {
		t.Fatalf("got %d", maxBodyBytes)
	}
	SetMaxBodyBytes(0)
}

func TestCORS_Preflight(t *testing.T) {
	SetCORSOptions(true, []string{"http://localhost:3000"}, nil, nil)
	defer SetCORSOptions(false, nil, nil, nil)

	r := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodOptions, "/inference", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow-origin=%q status=%d", got, w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}

func TestCORS_DisabledByDefault(t *testing.T) {
	r := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("cors headers without opt-in: %q", got)
	}
}
