//go:build llama

package backend

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	llama "github.com/go-skynet/go-llama.cpp"

	"foundationsd/internal/common/fsutil"
)

// LlamaBuilt reports whether this binary carries the in-process llama runtime.
const LlamaBuilt = true

// Llama runs go-llama.cpp in-process. The model is loaded once in the
// background; sessions share it and rely on the caller to serialize generation.
type Llama struct {
	opts LlamaOptions

	mu       sync.RWMutex
	model    *llama.LLama
	path     string
	loadErr  error
	once     sync.Once
	stopOnce sync.Once
	started  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

func NewLlama(opts LlamaOptions) *Llama {
	return &Llama{opts: opts, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start launches the loader loop. It returns immediately.
func (l *Llama) Start(ctx context.Context) {
	l.once.Do(func() {
		l.started.Store(true)
		go l.loadLoop(ctx)
	})
}

func (l *Llama) loadLoop(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.opts.pollInterval())
	defer ticker.Stop()
	for {
		if l.tryLoad() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-ticker.C:
		}
	}
}

// tryLoad returns true when no further attempts should be made.
func (l *Llama) tryLoad() bool {
	if l.opts.ResolvePath == nil {
		l.setLoadErr(errors.New("no model path resolver configured"))
		return true
	}
	path, err := l.opts.ResolvePath()
	if err != nil || strings.TrimSpace(path) == "" || !fsutil.PathExists(path) {
		l.opts.Logger.Debug().Str("path", path).AnErr("resolve_err", err).Msg("model not present yet")
		return false
	}
	l.opts.Logger.Info().Str("path", path).Msg("loading model")
	start := time.Now()
	m, err := llama.New(path, llama.SetContext(zn(l.opts.ContextSize, 2048)))
	if err != nil {
		l.opts.Logger.Error().Err(err).Str("path", path).Msg("model load failed")
		l.setLoadErr(err)
		return true
	}
	l.mu.Lock()
	l.model = m
	l.path = path
	l.mu.Unlock()
	l.opts.Logger.Info().Str("path", path).Dur("dur", time.Since(start)).Msg("model loaded")
	return true
}

func (l *Llama) setLoadErr(err error) {
	l.mu.Lock()
	l.loadErr = err
	l.mu.Unlock()
}

func (l *Llama) Availability(ctx context.Context) Availability {
	l.mu.RLock()
	defer l.mu.RUnlock()
	switch {
	case l.model != nil:
		return Available
	case l.loadErr != nil:
		return Unavailable(ReasonUnknown)
	default:
		return Unavailable(ReasonModelNotReady)
	}
}

func (l *Llama) NewSession(ctx context.Context) (Session, error) {
	l.mu.RLock()
	m := l.model
	l.mu.RUnlock()
	if m == nil {
		return nil, errors.New("llama model not loaded")
	}
	return &llamaSession{model: m, threads: l.opts.Threads, params: l.opts.Params}, nil
}

// Close stops the loader and frees the model.
func (l *Llama) Close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	if l.started.Load() {
		<-l.done
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		l.model.Free()
		l.model = nil
	}
	return nil
}

type llamaSession struct {
	model   *llama.LLama
	threads int
	params  Params
	closed  bool
}

func (s *llamaSession) Generate(ctx context.Context, prompt string) (string, error) {
	if s.closed || s.model == nil {
		return "", ErrSessionClosed
	}
	// Stop generation when ctx is done.
	s.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	text, err := s.model.Predict(prompt, predictOptions(s.params, s.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return text, nil
}

// Close detaches the session; the shared model stays loaded.
func (s *llamaSession) Close() error {
	s.closed = true
	s.model = nil
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

func predictOptions(p Params, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, zn(p.MaxTokens, 512))),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(zf(p.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(p.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(p.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(p.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(p.Seed))
	}
	if len(p.Stop) > 0 {
		po = append(po, llama.SetStopWords(p.Stop...))
	}
	return po
}
