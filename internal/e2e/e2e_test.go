package e2e

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"foundationsd/internal/backend"
	"foundationsd/internal/backend/backendtest"
	"foundationsd/internal/httpapi"
	"foundationsd/internal/inference"
)

func TestE2E_HelloReturnsResponse(t *testing.T) {
	stub := backendtest.New("Hi there!")
	srv, _ := newServer(t, stub, inference.Config{})

	resp, body := httpPostJSON(t, srv.URL+"/inference", []byte(`{"prompt":"Hello"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if m := mustJSONObject(t, body, "response"); m["response"] != "Hi there!" {
		t.Fatalf("body=%s", body)
	}
	calls := stub.Calls()
	if len(calls) != 1 || calls[0].Prompt != "Hello" {
		t.Fatalf("calls=%+v", calls)
	}
}

func TestE2E_ModelNotReady(t *testing.T) {
	stub := backendtest.New("never")
	stub.SetAvailability(backend.Unavailable(backend.ReasonModelNotReady))
	srv, _ := newServer(t, stub, inference.Config{})

	resp, body := httpPostJSON(t, srv.URL+"/inference", []byte(`{"prompt":"Hello"}`))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != `{"error":"Model is downloading or not ready yet"}` {
		t.Fatalf("body=%s", body)
	}
	if stub.SessionsCreated() != 0 || len(stub.Calls()) != 0 {
		t.Fatalf("backend touched while unavailable")
	}

	resp, body = httpGet(t, srv.URL+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != `{"available":"false","message":"Model is downloading or not ready yet"}` {
		t.Fatalf("body=%s", body)
	}
}

func TestE2E_EveryUnavailableReason(t *testing.T) {
	cases := map[backend.Reason]string{
		backend.ReasonDeviceNotEligible: "Device is not eligible for on-device inference",
		backend.ReasonFeatureNotEnabled: "On-device inference is not enabled in settings",
		backend.ReasonUnknown:           "Model is unavailable for unknown reason",
		backend.Reason(77):              "Model availability unknown",
	}
	for reason, want := range cases {
		stub := backendtest.New("")
		stub.SetAvailability(backend.Unavailable(reason))
		srv, _ := newServer(t, stub, inference.Config{})
		resp, body := httpPostJSON(t, srv.URL+"/inference", []byte(`{"prompt":"x"}`))
		if resp.StatusCode != http.StatusServiceUnavailable || mustJSONObject(t, body, "error")["error"] != want {
			t.Fatalf("%s: status=%d body=%s", reason, resp.StatusCode, body)
		}
	}
}

func TestE2E_BackendErrorIsGeneric500(t *testing.T) {
	stub := backendtest.New("")
	stub.SetError(errors.New("exceeded context window size at token 4097"))
	srv, _ := newServer(t, stub, inference.Config{})

	resp, body := httpPostJSON(t, srv.URL+"/inference", []byte(`{"prompt":"Hello"}`))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != `{"error":"Internal server error"}` {
		t.Fatalf("body=%s", body)
	}
}

func TestE2E_OversizedBodyNeverReachesCoordinator(t *testing.T) {
	stub := backendtest.New("x")
	srv, _ := newServer(t, stub, inference.Config{})

	big := []byte(`{"prompt":"` + strings.Repeat("a", (1<<20)+1) + `"}`)
	resp, body := httpPostJSON(t, srv.URL+"/inference", big)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	mustJSONObject(t, body, "error")
	if stub.AvailabilityReads() != 0 || stub.SessionsCreated() != 0 {
		t.Fatalf("coordinator invoked for oversized body")
	}
}

func TestE2E_HealthDuringGeneration(t *testing.T) {
	stub := backendtest.New("done")
	stub.Hold()
	stub.SetAvailability(backend.Unavailable(backend.ReasonModelNotReady))
	srv, _ := newServer(t, stub, inference.Config{})

	// Health does not depend on the model.
	resp, body := httpGet(t, srv.URL+"/health")
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"status":"ok"}` {
		t.Fatalf("health while unavailable: %d %s", resp.StatusCode, body)
	}

	stub.SetAvailability(backend.Available)
	done := postAsync(srv.URL, "slow")
	if err := stub.WaitStarted(1, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	resp, body = httpGet(t, srv.URL+"/health")
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"status":"ok"}` {
		t.Fatalf("health mid-generation: %d %s", resp.StatusCode, body)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("health blocked by generation")
	}
	stub.Release()
	if code := <-done; code != http.StatusOK {
		t.Fatalf("generation status=%d", code)
	}
}

func TestE2E_ConcurrentRequestsNeverOverlap(t *testing.T) {
	stub := backendtest.New("ok")
	stub.SetDelay(10 * time.Millisecond)
	srv, _ := newServer(t, stub, inference.Config{})

	var wg sync.WaitGroup
	codes := make(chan int, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- <-postAsync(srv.URL, "p")
		}()
	}
	wg.Wait()
	close(codes)
	for c := range codes {
		if c != http.StatusOK {
			t.Fatalf("status=%d", c)
		}
	}
	if stub.Overlapped() {
		t.Fatalf("backend invocations overlapped")
	}
	if n := len(stub.Calls()); n != 6 {
		t.Fatalf("calls=%d", n)
	}
}

func TestE2E_QueueFullIs429(t *testing.T) {
	stub := backendtest.New("ok")
	stub.Hold()
	srv, coord := newServer(t, stub, inference.Config{MaxQueueDepth: 1})

	first := postAsync(srv.URL, "a")
	if err := stub.WaitStarted(1, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	second := postAsync(srv.URL, "b")
	deadline := time.Now().Add(2 * time.Second)
	for coord.Pending() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	resp, body := httpPostJSON(t, srv.URL+"/inference", []byte(`{"prompt":"c"}`))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if mustJSONObject(t, body, "error")["error"] != "Server is busy, try again later" {
		t.Fatalf("body=%s", body)
	}
	stub.Release()
	if <-first != http.StatusOK || <-second != http.StatusOK {
		t.Fatalf("queued requests should complete")
	}
}

func TestE2E_GenerateTimeoutIs504(t *testing.T) {
	stub := backendtest.New("late")
	stub.Hold()
	srv, _ := newServer(t, stub, inference.Config{GenerateTimeout: 50 * time.Millisecond})

	resp, body := httpPostJSON(t, srv.URL+"/inference", []byte(`{"prompt":"x"}`))
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if mustJSONObject(t, body, "error")["error"] != "Generation timed out" {
		t.Fatalf("body=%s", body)
	}
}

func TestE2E_EveryResponseIsJSON(t *testing.T) {
	stub := backendtest.New("ok")
	srv, _ := newServer(t, stub, inference.Config{})

	type call struct {
		method, path, ctype, body string
		keys                      []string
	}
	calls := []call{
		{http.MethodGet, "/health", "", "", []string{"status"}},
		{http.MethodGet, "/status", "", "", []string{"available", "message"}},
		{http.MethodGet, "/readyz", "", "", []string{"status"}},
		{http.MethodPost, "/inference", "application/json", `{"prompt":"x"}`, []string{"response"}},
		{http.MethodPost, "/inference", "application/json", `{`, []string{"error"}},
		{http.MethodPost, "/inference", "application/json", `{}`, []string{"error"}},
		{http.MethodPost, "/inference", "text/plain", `hi`, []string{"error"}},
		{http.MethodGet, "/inference", "", "", []string{"error"}},
		{http.MethodGet, "/does-not-exist", "", "", []string{"error"}},
	}
	for _, c := range calls {
		req, err := http.NewRequest(c.method, srv.URL+c.path, strings.NewReader(c.body))
		if err != nil {
			t.Fatal(err)
		}
		if c.ctype != "" {
			req.Header.Set("Content-Type", c.ctype)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", c.method, c.path, err)
		}
		var buf strings.Builder
		_, _ = io.Copy(&buf, resp.Body)
		_ = resp.Body.Close()
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Fatalf("%s %s: content-type=%q", c.method, c.path, ct)
		}
		mustJSONObject(t, []byte(buf.String()), c.keys...)
	}
}

func TestE2E_BlankPromptGetsAvailabilityReason(t *testing.T) {
	stub := backendtest.New("")
	stub.SetAvailability(backend.Unavailable(backend.ReasonModelNotReady))
	srv, _ := newServer(t, stub, inference.Config{})

	for _, payload := range []string{`{"prompt":""}`, `{"prompt":"   "}`} {
		resp, body := httpPostJSON(t, srv.URL+"/inference", []byte(payload))
		if resp.StatusCode != http.StatusServiceUnavailable ||
			strings.TrimSpace(string(body)) != `{"error":"Model is downloading or not ready yet"}` {
			t.Fatalf("%s: status=%d body=%s", payload, resp.StatusCode, body)
		}
	}

	stub.SetAvailability(backend.Available)
	stub.SetReply("blank ok")
	resp, body := httpPostJSON(t, srv.URL+"/inference", []byte(`{"prompt":""}`))
	if resp.StatusCode != http.StatusOK || mustJSONObject(t, body, "response")["response"] != "blank ok" {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if calls := stub.Calls(); len(calls) != 1 || calls[0].Prompt != "" {
		t.Fatalf("calls=%+v", calls)
	}
}

func TestE2E_ShuttingDownBeforeAvailabilityRead(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	cancel()
	httpapi.SetBaseContext(base)
	t.Cleanup(func() { httpapi.SetBaseContext(nil) })

	stub := backendtest.New("x")
	// What a failed health probe would report.
	stub.SetAvailability(backend.Unavailable(backend.ReasonUnknown))
	srv, _ := newServer(t, stub, inference.Config{})

	resp, body := httpPostJSON(t, srv.URL+"/inference", []byte(`{"prompt":"Hello"}`))
	if resp.StatusCode != http.StatusServiceUnavailable ||
		strings.TrimSpace(string(body)) != `{"error":"Server is shutting down"}` {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if stub.AvailabilityReads() != 0 {
		t.Fatalf("availability read after shutdown began")
	}
}
