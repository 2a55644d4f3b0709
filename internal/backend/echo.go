package backend

import (
	"context"
	"sync/atomic"
)

// DefaultEchoPrefix is prepended to the prompt by Echo.
const DefaultEchoPrefix = "echo: "

// Echo is always available and answers with Prefix followed by the prompt.
type Echo struct {
	Prefix string
}

// NewEcho returns an Echo using DefaultEchoPrefix.
func NewEcho() *Echo { return &Echo{Prefix: DefaultEchoPrefix} }

func (e *Echo) Availability(ctx context.Context) Availability { return Available }

func (e *Echo) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &echoSession{prefix: e.Prefix}, nil
}

type echoSession struct {
	prefix string
	closed atomic.Bool
}

func (s *echoSession) Generate(ctx context.Context, prompt string) (string, error) {
	if s.closed.Load() {
		return "", ErrSessionClosed
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return s.prefix + prompt, nil
}

func (s *echoSession) Close() error {
	s.closed.Store(true)
	return nil
}
