// Package backend defines the generation capability the server wraps and the
// runtimes that implement it.
//
// A Capability reports whether the model can serve right now and hands out
// one Session per generation. Sessions are never shared: the caller that
// created a session owns it and must Close it.
//
// Runtimes:
//
//   - Echo: dependency-free, always available. Used for local development.
//   - LlamaServer: a llama.cpp server reachable over HTTP.
//   - Llama: in-process go-llama.cpp, built with `-tags=llama`. Without the tag
//     a stub reports ReasonFeatureNotEnabled.
package backend

import (
	"context"
	"errors"
)

// Reason explains why a capability is unavailable.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonDeviceNotEligible
	ReasonFeatureNotEnabled
	ReasonModelNotReady
)

func (r Reason) String() string {
	switch r {
	case ReasonUnknown:
		return "unknown"
	case ReasonDeviceNotEligible:
		return "device_not_eligible"
	case ReasonFeatureNotEnabled:
		return "feature_not_enabled"
	case ReasonModelNotReady:
		return "model_not_ready"
	default:
		return "unrecognized"
	}
}

// Availability is either available (Ready) or unavailable for Reason.
// Reason is meaningless when Ready is true.
type Availability struct {
	Ready  bool
	Reason Reason
}

// Available is the ready state.
var Available = Availability{Ready: true}

// Unavailable returns the not-ready state for r.
func Unavailable(r Reason) Availability { return Availability{Reason: r} }

func (a Availability) String() string {
	if a.Ready {
		return "available"
	}
	return "unavailable(" + a.Reason.String() + ")"
}

// Capability is the generation engine.
type Capability interface {
	// Availability reads the current readiness state. It must be safe for
	// concurrent use and must not cache: the engine may change state at any time.
	Availability(ctx context.Context) Availability
	// NewSession creates a fresh session for exactly one caller.
	NewSession(ctx context.Context) (Session, error)
}

// Session submits a prompt to the engine. Implementations need not be safe for
// concurrent use.
type Session interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Close releases the session. Calling Close more than once is allowed.
	Close() error
}

// ErrSessionClosed is returned by Generate after Close.
var ErrSessionClosed = errors.New("session closed")
