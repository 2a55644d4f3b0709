package backend

import (
	"time"

	"github.com/rs/zerolog"
)

// LlamaOptions configures the in-process llama runtime.
type LlamaOptions struct {
	// ResolvePath returns the model file to load. It is polled until the file
	// exists, so a model that is still downloading reports ReasonModelNotReady.
	ResolvePath func() (string, error)
	// PollInterval between ResolvePath attempts. Zero means 5s.
	PollInterval time.Duration
	ContextSize  int
	Threads      int
	Params       Params
	Logger       zerolog.Logger
}

func (o LlamaOptions) pollInterval() time.Duration {
	if o.PollInterval <= 0 {
		return 5 * time.Second
	}
	return o.PollInterval
}
