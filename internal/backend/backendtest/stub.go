// Package backendtest provides a scripted backend.Capability for tests.
package backendtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"foundationsd/internal/backend"
)

// Call records one Generate invocation.
type Call struct {
	Prompt string
	Start  time.Time
	End    time.Time
}

// Stub is a backend.Capability whose behavior is set by the test.
// Generate ignores context cancellation, like a backend that cannot be aborted.
type Stub struct {
	mu           sync.Mutex
	availability backend.Availability
	reply        string
	replyFn      func(prompt string) string
	genErr       error
	sessionErr   error
	panicValue   any
	delay        time.Duration
	gate         chan struct{}

	availabilityReads int
	sessionsCreated   int
	sessionsClosed    int
	active            int
	overlapped        bool
	calls             []Call

	// Started receives one value per Generate call, before the call blocks.
	Started chan struct{}
}

// New returns an available Stub answering reply.
func New(reply string) *Stub {
	return &Stub{
		availability: backend.Available,
		reply:        reply,
		Started:      make(chan struct{}, 256),
	}
}

func (s *Stub) SetAvailability(a backend.Availability) {
	s.mu.Lock()
	s.availability = a
	s.mu.Unlock()
}

func (s *Stub) SetReply(reply string) {
	s.mu.Lock()
	s.reply = reply
	s.replyFn = nil
	s.mu.Unlock()
}

// SetReplyFunc computes the reply from the prompt.
func (s *Stub) SetReplyFunc(fn func(prompt string) string) {
	s.mu.Lock()
	s.replyFn = fn
	s.mu.Unlock()
}

// SetError makes Generate fail with err.
func (s *Stub) SetError(err error) {
	s.mu.Lock()
	s.genErr = err
	s.mu.Unlock()
}

// SetSessionError makes NewSession fail with err.
func (s *Stub) SetSessionError(err error) {
	s.mu.Lock()
	s.sessionErr = err
	s.mu.Unlock()
}

// SetPanic makes Generate panic with v.
func (s *Stub) SetPanic(v any) {
	s.mu.Lock()
	s.panicValue = v
	s.mu.Unlock()
}

// SetDelay makes every Generate take at least d.
func (s *Stub) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Hold blocks every subsequent Generate until Release is called.
func (s *Stub) Hold() {
	s.mu.Lock()
	s.gate = make(chan struct{})
	s.mu.Unlock()
}

// Release unblocks calls parked by Hold.
func (s *Stub) Release() {
	s.mu.Lock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
	s.mu.Unlock()
}

func (s *Stub) Availability(ctx context.Context) backend.Availability {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availabilityReads++
	return s.availability
}

func (s *Stub) NewSession(ctx context.Context) (backend.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionErr != nil {
		return nil, s.sessionErr
	}
	s.sessionsCreated++
	return &stubSession{stub: s}, nil
}

// AvailabilityReads reports how often Availability was called.
func (s *Stub) AvailabilityReads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availabilityReads
}

func (s *Stub) SessionsCreated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionsCreated
}

func (s *Stub) SessionsClosed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionsClosed
}

// Calls returns a copy of the recorded Generate intervals.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Overlapped reports whether two Generate calls were ever active at once.
func (s *Stub) Overlapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlapped
}

// WaitStarted waits for n Generate calls to start.
func (s *Stub) WaitStarted(n int, timeout time.Duration) error {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-s.Started:
		case <-deadline:
			return errors.New("backendtest: timed out waiting for generate to start")
		}
	}
	return nil
}

type stubSession struct {
	stub   *Stub
	closed bool
}

func (ss *stubSession) Generate(ctx context.Context, prompt string) (string, error) {
	if ss.closed {
		return "", backend.ErrSessionClosed
	}
	s := ss.stub
	s.mu.Lock()
	s.active++
	if s.active > 1 {
		s.overlapped = true
	}
	start := time.Now()
	gate, delay := s.gate, s.delay
	reply, replyFn, genErr, panicValue := s.reply, s.replyFn, s.genErr, s.panicValue
	s.mu.Unlock()

	select {
	case s.Started <- struct{}{}:
	default:
	}

	defer func() {
		s.mu.Lock()
		s.active--
		s.calls = append(s.calls, Call{Prompt: prompt, Start: start, End: time.Now()})
		s.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}
	if gate != nil {
		<-gate
	}
	if panicValue != nil {
		panic(panicValue)
	}
	if genErr != nil {
		return "", genErr
	}
	if replyFn != nil {
		return replyFn(prompt), nil
	}
	return reply, nil
}

func (ss *stubSession) Close() error {
	if ss.closed {
		return nil
	}
	ss.closed = true
	ss.stub.mu.Lock()
	ss.stub.sessionsClosed++
	ss.stub.mu.Unlock()
	return nil
}
