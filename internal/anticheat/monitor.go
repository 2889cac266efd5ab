package anticheat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Violation is one signal reported by the client.
type Violation struct {
	Signal Signal
	Detail string
	At     time.Time
}

// Action is what the monitor did with a violation.
type Action string

const (
	ActionLogged     Action = "logged"
	ActionTerminated Action = "terminated"
	ActionIgnored    Action = "ignored"
)

// Decision is the outcome of observing one violation.
type Decision struct {
	Action Action `json:"action"`
	Count  int    `json:"count"`
	Reason string `json:"reason,omitempty"`
}

// Counter tracks how many violations an attempt has accumulated.
type Counter interface {
	Incr(ctx context.Context) (int, error)
}

// Terminator ends the attempt. It must be idempotent.
type Terminator interface {
	Terminate(ctx context.Context, reason string) error
}

// TerminatorFunc adapts a function to Terminator.
type TerminatorFunc func(ctx context.Context, reason string) error

func (f TerminatorFunc) Terminate(ctx context.Context, reason string) error {
	return f(ctx, reason)
}

// Monitor observes the violations of a single attempt. Once it has terminated
// the attempt it is stopped and ignores everything else.
type Monitor struct {
	policy     Policy
	counter    Counter
	terminator Terminator
	log        zerolog.Logger

	mu      sync.Mutex
	stopped bool
}

// NewMonitor returns an active monitor.
func NewMonitor(policy Policy, counter Counter, terminator Terminator, log zerolog.Logger) *Monitor {
	return &Monitor{
		policy:     policy,
		counter:    counter,
		terminator: terminator,
		log:        log.With().Str("component", "anticheat_monitor").Logger(),
	}
}

// Stopped reports whether the monitor has stopped.
func (m *Monitor) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Observe records v and, when the policy says so, terminates the attempt.
// Unknown signals are rejected with an error.
func (m *Monitor) Observe(ctx context.Context, v Violation) (Decision, error) {
	if !v.Signal.Valid() {
		return Decision{Action: ActionIgnored}, fmt.Errorf("unknown signal %q", v.Signal)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return Decision{Action: ActionIgnored}, nil
	}

	count, err := m.counter.Incr(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("count violation: %w", err)
	}

	m.log.Warn().
		Str("signal", string(v.Signal)).
		Str("detail", v.Detail).
		Int("count", count).
		Str("mode", string(m.policy.Mode)).
		Msg("Violation reported")

	if !m.policy.Terminates(count) {
		return Decision{Action: ActionLogged, Count: count}, nil
	}

	reason := Reason(v.Signal, count, m.policy)
	if err := m.terminator.Terminate(ctx, reason); err != nil {
		return Decision{Action: ActionLogged, Count: count}, fmt.Errorf("terminate attempt: %w", err)
	}
	m.stopped = true

	return Decision{Action: ActionTerminated, Count: count, Reason: reason}, nil
}

// Reason builds the termination reason naming the signal that fired.
func Reason(s Signal, count int, p Policy) string {
	if p.Mode == ModeTerminateAfterN {
		return fmt.Sprintf("Anti-cheat: %s (violation %d of %d)", s.Label(), count, p.MaxViolations)
	}
	return fmt.Sprintf("Anti-cheat: %s", s.Label())
}

// MemoryCounter is a process-local Counter.
type MemoryCounter struct {
	mu sync.Mutex
	n  int
}

func (c *MemoryCounter) Incr(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n, nil
}
