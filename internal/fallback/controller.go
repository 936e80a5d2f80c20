// Package fallback watches the designated primary aggregation worker and
// activates its paired standby worker when the primary is declared failed.
package fallback

import (
	"context"
	"sync"

	"pipectl/internal/probe"
	"pipectl/internal/reporting"
	"pipectl/pkg/logging"
)

// State tracks whether the fallback worker is serving in place of the
// primary. It resets to Inactive only on orchestrator restart or an
// explicit administrative reset.
type State string

const (
	StateInactive   State = "Inactive"
	StateActivating State = "Activating"
	StateActive     State = "Active"
)

// Router is the routing surface the controller flips when the fallback
// becomes Active: new inbound work goes to the active target. In-flight
// work already handed to the primary is not migrated.
type Router interface {
	SetActiveTarget(node string)
}

// GateFunc runs the fallback worker's own readiness gate: its
// DependencyGate over the dependencies it requires to serve. It returns
// nil once the gate reports Ready.
type GateFunc func(ctx context.Context) error

// Controller is the fallback state machine. It is the single writer of the
// FallbackState; every other component only reads it.
type Controller struct {
	primary  string
	fallback string
	gate     GateFunc
	router   Router
	bus      reporting.EventBus

	mu         sync.Mutex
	state      State
	activating bool // an activation goroutine is in flight
}

// New creates a controller for the given primary/fallback pair. The
// controller starts Inactive and does nothing until Observe sees a Failed
// primary verdict or ForceActivate is called.
func New(primary, fallbackNode string, gate GateFunc, router Router, bus reporting.EventBus) *Controller {
	return &Controller{
		primary:  primary,
		fallback: fallbackNode,
		gate:     gate,
		router:   router,
		bus:      bus,
		state:    StateInactive,
	}
}

// State returns the current fallback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Primary returns the name of the watched primary worker.
func (c *Controller) Primary() string {
	return c.primary
}

// Fallback returns the name of the standby worker.
func (c *Controller) Fallback() string {
	return c.fallback
}

// Observe feeds the controller one primary health verdict and returns the
// resulting state. A Failed verdict moves Inactive to Activating and kicks
// off activation; the probe's own attempt budget already encodes the
// "sustained failure" requirement, so a single Failed verdict is enough.
// Verdicts observed while Activating or Active are ignored: the controller
// never automatically fails back to the primary.
func (c *Controller) Observe(ctx context.Context, verdict probe.Verdict) State {
	if verdict != probe.VerdictFailed {
		return c.State()
	}
	return c.activate(ctx, "primary_failed")
}

// ForceActivate triggers activation by explicit signal regardless of the
// primary's current verdict.
func (c *Controller) ForceActivate(ctx context.Context) State {
	return c.activate(ctx, "manual_override")
}

func (c *Controller) activate(ctx context.Context, cause string) State {
	c.mu.Lock()
	if c.state != StateInactive || c.activating {
		state := c.state
		c.mu.Unlock()
		return state
	}
	c.state = StateActivating
	c.activating = true
	c.mu.Unlock()

	logging.Warn("FallbackController", "Activating fallback %s for primary %s (%s)", c.fallback, c.primary, cause)
	c.bus.Publish(reporting.NewFallbackEvent(reporting.EventTypeFallbackActivating,
		string(StateInactive), string(StateActivating), c.primary, c.fallback))

	go c.awaitGate(ctx)

	return StateActivating
}

// awaitGate waits for the fallback worker's own readiness gate, then flips
// routing and completes the Activating -> Active transition.
func (c *Controller) awaitGate(ctx context.Context) {
	err := c.gate(ctx)

	c.mu.Lock()
	c.activating = false
	if c.state != StateActivating {
		// Reset won the race; stay where the reset put us.
		c.mu.Unlock()
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown cancelled the gate wait; not an activation failure.
			c.mu.Unlock()
			return
		}
		// Activation failed: no serving path remains for the primary's
		// responsibility. Stay Activating and surface the condition as the
		// most severe observable failure.
		c.mu.Unlock()
		logging.Error("FallbackController", err, "Fallback %s failed to activate; no serving path for %s", c.fallback, c.primary)
		c.bus.Publish(reporting.NewFallbackEvent(reporting.EventTypeFallbackFailed,
			string(StateActivating), string(StateActivating), c.primary, c.fallback).WithError(err))
		return
	}
	c.state = StateActive
	c.mu.Unlock()

	c.router.SetActiveTarget(c.fallback)

	logging.Warn("FallbackController", "Fallback %s active; new work routed away from %s", c.fallback, c.primary)
	c.bus.Publish(reporting.NewFallbackEvent(reporting.EventTypeFallbackActive,
		string(StateActivating), string(StateActive), c.primary, c.fallback))
}

// Reset returns the state to Inactive regardless of the current state and
// restores routing to the primary. This is the only path out of Active:
// recovery of the primary requires operator action, never automatic
// fail-back, to avoid flapping.
func (c *Controller) Reset() {
	c.mu.Lock()
	oldState := c.state
	c.state = StateInactive
	c.mu.Unlock()

	c.router.SetActiveTarget(c.primary)

	if oldState != StateInactive {
		logging.Info("FallbackController", "Fallback reset: %s -> Inactive, routing restored to %s", oldState, c.primary)
		c.bus.Publish(reporting.NewFallbackEvent(reporting.EventTypeFallbackReset,
			string(oldState), string(StateInactive), c.primary, c.fallback))
	}
}
