// Package probe implements the readiness probe for one managed service.
//
// A probe waits out its configured grace period, then issues one readiness
// check per interval tick against the target. The first success settles the
// probe at Healthy permanently: a dependency that has become ready is
// trusted going forward and is not re-probed by this instance. Exhausting
// the attempt budget settles it at Failed, also permanently. The retry
// policy is the whole retry mechanism; there is no separate deadline.
package probe

import (
	"context"
	"sync"
	"time"

	"pipectl/internal/config"
	"pipectl/pkg/logging"
)

// Verdict is the tri-state result of a probe.
type Verdict string

const (
	VerdictPending Verdict = "Pending"
	VerdictHealthy Verdict = "Healthy"
	VerdictFailed  Verdict = "Failed"
)

// Terminal reports whether the verdict can no longer change.
func (v Verdict) Terminal() bool {
	return v == VerdictHealthy || v == VerdictFailed
}

// Checker performs a single readiness check against a target. It is the
// only I/O boundary between the orchestrator and a managed service.
type Checker interface {
	Check(ctx context.Context) error
}

// Probe polls one service's readiness endpoint under a RetryPolicy.
type Probe struct {
	name    string
	checker Checker
	policy  config.RetryPolicy

	mu       sync.RWMutex
	verdict  Verdict
	attempts int
	lastErr  error

	runOnce sync.Once
	done    chan struct{} // closed when the verdict becomes terminal
}

// New creates a probe for the named service. The probe does nothing until
// Run is called.
func New(name string, checker Checker, policy config.RetryPolicy) *Probe {
	return &Probe{
		name:    name,
		checker: checker,
		policy:  policy,
		verdict: VerdictPending,
		done:    make(chan struct{}),
	}
}

// Name returns the name of the service this probe watches.
func (p *Probe) Name() string {
	return p.name
}

// Verdict returns the current verdict. Once Healthy or Failed it never
// changes for this probe instance.
func (p *Probe) Verdict() Verdict {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.verdict
}

// Attempts returns how many checks have been issued so far.
func (p *Probe) Attempts() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.attempts
}

// LastError returns the error from the most recent failed check, if any.
func (p *Probe) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Done returns a channel that is closed when the probe reaches a terminal
// verdict. It is never closed on context cancellation, so waiters must
// also select on their own context.
func (p *Probe) Done() <-chan struct{} {
	return p.done
}

// Run drives the probe to a terminal verdict and returns it. It waits the
// grace period before the first check, then checks once per interval tick
// until the check succeeds or the attempt budget is exhausted. Run is
// idempotent: concurrent or repeated calls beyond the first return the
// settled verdict without probing again. Context cancellation returns the
// verdict as it stands, leaving a non-terminal probe Pending.
func (p *Probe) Run(ctx context.Context) Verdict {
	p.runOnce.Do(func() { p.run(ctx) })
	return p.Verdict()
}

func (p *Probe) run(ctx context.Context) {
	if p.policy.GracePeriod > 0 {
		select {
		case <-time.After(p.policy.GracePeriod):
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(p.policy.Interval)
	defer ticker.Stop()

	// First attempt right after the grace period, then one per tick.
	if p.attempt(ctx) {
		return
	}

	for {
		select {
		case <-ticker.C:
			if p.attempt(ctx) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// attempt issues one readiness check and returns true once the verdict is
// terminal.
func (p *Probe) attempt(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, p.policy.Interval)
	err := p.checker.Check(checkCtx)
	cancel()

	if ctx.Err() != nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++

	if err == nil {
		p.verdict = VerdictHealthy
		p.lastErr = nil
		close(p.done)
		logging.Debug("Probe", "Service %s healthy after %d attempt(s)", p.name, p.attempts)
		return true
	}

	p.lastErr = err
	logging.Debug("Probe", "Service %s readiness check %d/%d failed: %v", p.name, p.attempts, p.policy.MaxAttempts, err)

	if p.attempts >= p.policy.MaxAttempts {
		p.verdict = VerdictFailed
		close(p.done)
		logging.Warn("Probe", "Service %s failed: attempt budget (%d) exhausted", p.name, p.policy.MaxAttempts)
		return true
	}

	return false
}
