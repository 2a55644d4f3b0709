package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"foundationsd/internal/backend"
)

// Coordinator owns generation against one backend capability. At most one
// backend call is in flight at any time; other callers queue in arrival order.
type Coordinator struct {
	cap     backend.Capability
	oracle  *Oracle
	adm     *admission
	timeout time.Duration

	log zerolog.Logger
	pub EventPublisher

	// detached counts backend calls still running after their caller gave up.
	// Calls may be dispatched while Wait is blocked.
	mu       sync.Mutex
	drained  *sync.Cond
	detached int
}

// New constructs a Coordinator for cap. The capability handle is owned by the
// caller and must outlive the Coordinator.
func New(cap backend.Capability, cfg Config) *Coordinator {
	cfg = cfg.normalized()
	c := &Coordinator{
		cap:     cap,
		oracle:  NewOracle(cap),
		adm:     newAdmission(cfg.MaxQueueDepth, cfg.QueueWait),
		timeout: cfg.GenerateTimeout,
		log:     zerolog.Nop(),
		pub:     noopPublisher{},
	}
	c.drained = sync.NewCond(&c.mu)
	return c
}

// SetLogger installs the logger used for backend failure detail.
func (c *Coordinator) SetLogger(l zerolog.Logger) { c.log = l }

// SetEventPublisher installs an event sink. nil restores the no-op publisher.
func (c *Coordinator) SetEventPublisher(p EventPublisher) {
	if p == nil {
		c.pub = noopPublisher{}
		return
	}
	c.pub = p
}

func (c *Coordinator) Oracle() *Oracle { return c.oracle }

// Status reports availability and its message from one backend read.
func (c *Coordinator) Status(ctx context.Context) (bool, string) {
	return c.oracle.Check(ctx)
}

// Pending reports requests waiting for or holding the generation slot.
func (c *Coordinator) Pending() int { return c.adm.depth() }

// Generate runs prompt through a fresh backend session.
//
// Errors: ErrUnavailable (with the diagnostic message) when the backend cannot
// serve, in which case no session is created; ErrTooBusy when the queue is
// full or the queue wait expires; ErrTimeout when the generate timeout expires;
// ctx.Err() when ctx is already done or ends while queued; a backend failure otherwise.
func (c *Coordinator) Generate(ctx context.Context, prompt string) (string, error) {
	id := uuid.NewString()
	c.publish(EventReceived, id, nil)

	// Availability probes fail on a done context; report the cancellation instead.
	if err := ctx.Err(); err != nil {
		generationsTotal.WithLabelValues(outcomeCanceled).Inc()
		c.publish(EventFailed, id, map[string]any{"error": err.Error()})
		return "", err
	}

	// Reject early without queueing.
	if ok, msg := c.oracle.Check(ctx); !ok {
		return "", c.unavailable(id, msg)
	}

	release, err := c.adm.acquire(ctx)
	if err != nil {
		if IsTooBusy(err) {
			generationsTotal.WithLabelValues(outcomeTooBusy).Inc()
			c.log.Warn().Str("session_id", id).Int("pending", c.adm.depth()).Msg("generation rejected: queue full")
		} else {
			generationsTotal.WithLabelValues(outcomeCanceled).Inc()
		}
		c.publish(EventFailed, id, map[string]any{"error": err.Error()})
		return "", err
	}

	// From here on the request's cancellation no longer applies.
	bctx := context.WithoutCancel(ctx)

	// The backend may have changed state while this request was queued.
	ok, msg := c.oracle.Check(bctx)
	if !ok {
		release()
		return "", c.unavailable(id, msg)
	}
	c.publish(EventAvailabilityChecked, id, nil)

	if c.timeout <= 0 {
		defer release()
		text, err := c.run(bctx, id, prompt)
		c.countOutcome(err)
		return text, err
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	c.trackDetached(1)
	go func() {
		defer c.trackDetached(-1)
		defer release()
		text, err := c.run(bctx, id, prompt)
		done <- result{text: text, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		c.countOutcome(r.err)
		return r.text, r.err
	case <-timer.C:
		generationsTotal.WithLabelValues(outcomeTimeout).Inc()
		c.log.Warn().Str("session_id", id).Dur("timeout", c.timeout).Msg("generation timed out; backend call still running")
		c.publish(EventFailed, id, map[string]any{"error": ErrTimeout.Error()})
		return "", ErrTimeout
	}
}

// Wait blocks until every backend call abandoned by a timed-out caller has
// returned and released the slot, including calls dispatched while waiting.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.detached > 0 {
		c.drained.Wait()
	}
}

func (c *Coordinator) trackDetached(delta int) {
	c.mu.Lock()
	c.detached += delta
	if c.detached == 0 {
		c.drained.Broadcast()
	}
	c.mu.Unlock()
}

// run creates the session, invokes the backend and releases the session.
func (c *Coordinator) run(ctx context.Context, id, prompt string) (string, error) {
	sess, err := c.newSession(ctx)
	if err != nil {
		return "", c.fail(id, "create session", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			c.log.Debug().Err(cerr).Str("session_id", id).Msg("session close")
		}
	}()
	c.publish(EventSessionCreated, id, nil)

	inflight.Inc()
	defer inflight.Dec()
	c.publish(EventBackendInvoked, id, nil)
	start := time.Now()
	text, err := generate(ctx, sess, prompt)
	dur := time.Since(start)
	generationDuration.Observe(dur.Seconds())
	if err != nil {
		return "", c.fail(id, "generate", err)
	}
	c.log.Debug().Str("session_id", id).Dur("dur", dur).Int("chars", len(text)).Msg("generation done")
	c.publish(EventSucceeded, id, map[string]any{"duration": dur})
	return text, nil
}

func (c *Coordinator) newSession(ctx context.Context) (sess backend.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			sess, err = nil, fmt.Errorf("backend panic: %v", r)
		}
	}()
	sess, err = c.cap.NewSession(ctx)
	if err == nil && sess == nil {
		err = errors.New("backend returned no session")
	}
	return sess, err
}

func generate(ctx context.Context, sess backend.Session, prompt string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("backend panic: %v", r)
		}
	}()
	return sess.Generate(ctx, prompt)
}

func (c *Coordinator) unavailable(id, msg string) error {
	generationsTotal.WithLabelValues(outcomeUnavailable).Inc()
	c.log.Info().Str("session_id", id).Str("reason", msg).Msg("generation rejected: model unavailable")
	c.publish(EventUnavailable, id, map[string]any{"message": msg})
	return ErrUnavailable(msg)
}

// fail logs the backend detail server-side and wraps it.
func (c *Coordinator) fail(id, op string, err error) error {
	c.log.Error().Err(err).Str("session_id", id).Str("op", op).Msg("backend failure")
	c.publish(EventFailed, id, map[string]any{"error": err.Error()})
	return backendFailureError{sessionID: id, err: err}
}

func (c *Coordinator) countOutcome(err error) {
	if err == nil {
		generationsTotal.WithLabelValues(outcomeSuccess).Inc()
		return
	}
	generationsTotal.WithLabelValues(outcomeBackendFailure).Inc()
}

func (c *Coordinator) publish(name, id string, fields map[string]any) {
	c.pub.Publish(Event{Name: name, SessionID: id, Fields: fields})
}
