package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// LlamaServerOptions configures a LlamaServer.
type LlamaServerOptions struct {
	// BaseURL of the llama.cpp server, e.g. http://127.0.0.1:8081.
	BaseURL string
	// APIKey is sent as a bearer token when set.
	APIKey         string
	ConnectTimeout time.Duration
	// ProbeTimeout bounds a single /health probe. Zero means 2s.
	ProbeTimeout time.Duration
	Params       Params
}

// Params are sampling parameters forwarded to the engine. Zero values leave the
// engine defaults in place.
type Params struct {
	MaxTokens     int
	Temperature   float32
	TopP          float32
	TopK          int
	RepeatPenalty float32
	Seed          int
	Stop          []string
}

// LlamaServer talks to a running llama.cpp server over HTTP.
type LlamaServer struct {
	baseURL      string
	apiKey       string
	probeTimeout time.Duration
	params       Params
	httpClient   *http.Client
}

// NewLlamaServer constructs a server-backed capability.
func NewLlamaServer(opts LlamaServerOptions) *LlamaServer {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = 5 * time.Second
	}
	probe := opts.ProbeTimeout
	if probe <= 0 {
		probe = 2 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout stays 0: deadlines come from the request context.
	return &LlamaServer{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		probeTimeout: probe,
		params:       opts.Params,
		httpClient:   &http.Client{Transport: tr, Timeout: 0},
	}
}

// Availability probes GET /health. llama.cpp answers 503 while the model loads.
func (s *LlamaServer) Availability(ctx context.Context) Availability {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return Unavailable(ReasonUnknown)
	}
	s.authorize(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Unavailable(ReasonUnknown)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusOK:
		return Available
	case http.StatusServiceUnavailable:
		return Unavailable(ReasonModelNotReady)
	default:
		return Unavailable(ReasonUnknown)
	}
}

func (s *LlamaServer) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llamaServerSession{server: s, params: s.params}, nil
}

func (s *LlamaServer) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

// completionRequest is the payload for the native /completion endpoint.
type completionRequest struct {
	Prompt        string   `json:"prompt"`
	NPredict      int      `json:"n_predict,omitempty"`
	Temperature   float32  `json:"temperature,omitempty"`
	TopP          float32  `json:"top_p,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	RepeatPenalty float32  `json:"repeat_penalty,omitempty"`
	Seed          int      `json:"seed,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	Stream        bool     `json:"stream"`
}

type completionResponse struct {
	Content *string `json:"content"`
}

type llamaServerSession struct {
	server *LlamaServer
	params Params
	closed atomic.Bool
}

func (s *llamaServerSession) Generate(ctx context.Context, prompt string) (string, error) {
	if s.closed.Load() {
		return "", ErrSessionClosed
	}
	payload := completionRequest{
		Prompt:        prompt,
		NPredict:      s.params.MaxTokens,
		Temperature:   s.params.Temperature,
		TopP:          s.params.TopP,
		TopK:          s.params.TopK,
		RepeatPenalty: s.params.RepeatPenalty,
		Seed:          s.params.Seed,
		Stop:          s.params.Stop,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.server.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	s.server.authorize(req)
	resp, err := s.server.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llama server http error: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if out.Content == nil {
		return "", errors.New("malformed completion: missing content")
	}
	return *out.Content, nil
}

func (s *llamaServerSession) Close() error {
	s.closed.Store(true)
	return nil
}
