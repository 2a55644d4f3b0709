//go:build !llama

package backend

// This file is compiled when the 'llama' build tag is NOT set, keeping default
// builds CGO-free. The real runtime lives in llama.go.

import (
	"context"
	"errors"
)

// LlamaBuilt reports whether this binary carries the in-process llama runtime.
const LlamaBuilt = false

var errLlamaNotBuilt = errors.New("llama support not built (missing 'llama' build tag)")

// Llama reports ReasonFeatureNotEnabled in builds without the 'llama' tag.
type Llama struct {
	opts LlamaOptions
}

func NewLlama(opts LlamaOptions) *Llama { return &Llama{opts: opts} }

// Start is a no-op without the runtime.
func (l *Llama) Start(ctx context.Context) {
	l.opts.Logger.Warn().Err(errLlamaNotBuilt).Msg("llama backend unavailable")
}

func (l *Llama) Availability(ctx context.Context) Availability {
	return Unavailable(ReasonFeatureNotEnabled)
}

func (l *Llama) NewSession(ctx context.Context) (Session, error) {
	return nil, errLlamaNotBuilt
}

func (l *Llama) Close() error { return nil }
