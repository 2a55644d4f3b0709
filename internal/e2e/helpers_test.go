package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"foundationsd/internal/backend/backendtest"
	"foundationsd/internal/httpapi"
	"foundationsd/internal/inference"
)

// newServer wires stub -> coordinator -> mux the same way serve does.
func newServer(t *testing.T, stub *backendtest.Stub, cfg inference.Config) (*httptest.Server, *inference.Coordinator) {
	t.Helper()
	coord := inference.New(stub, cfg)
	srv := httptest.NewServer(httpapi.NewMux(coord))
	t.Cleanup(func() {
		stub.Release()
		coord.Wait()
		srv.Close()
	})
	return srv, coord
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// postAsync issues a POST /inference without blocking the test.
func postAsync(url, prompt string) <-chan int {
	ch := make(chan int, 1)
	go func() {
		b, _ := json.Marshal(map[string]string{"prompt": prompt})
		resp, err := http.Post(url+"/inference", "application/json", bytes.NewReader(b))
		if err != nil {
			ch <- 0
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		ch <- resp.StatusCode
	}()
	return ch
}

// mustJSONObject fails unless body is a JSON object with exactly the given keys.
func mustJSONObject(t *testing.T, body []byte, keys ...string) map[string]string {
	t.Helper()
	var m map[string]string
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("body is not a JSON object of strings: %v (%q)", err, body)
	}
	if len(m) != len(keys) {
		t.Fatalf("keys=%v want %v", m, keys)
	}
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			t.Fatalf("missing key %q in %v", k, m)
		}
	}
	return m
}
