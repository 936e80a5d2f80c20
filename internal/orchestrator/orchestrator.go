package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"pipectl/internal/config"
	"pipectl/internal/dependency"
	"pipectl/internal/fallback"
	"pipectl/internal/gate"
	"pipectl/internal/probe"
	"pipectl/internal/reporting"
	"pipectl/pkg/logging"
)

// CheckerFactory builds the readiness checker for a node's target. Tests
// inject fakes here; production uses the HTTP checker.
type CheckerFactory func(target string) probe.Checker

// Config holds the orchestrator's configuration: the validated pipeline
// definition and an optional checker factory override.
type Config struct {
	Pipeline       config.PipelineConfig
	CheckerFactory CheckerFactory
}

// NodeStatus is a read-only snapshot of one node's lifecycle state, served
// to the admin API.
type NodeStatus struct {
	Name      string              `json:"name"`
	State     reporting.NodeState `json:"state"`
	BlockedBy string              `json:"blockedBy,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Orchestrator supervises the pipeline: it owns the dependency graph,
// starts nodes in dependency order behind their gates, tracks lifecycle
// state as the single writer, and delegates primary failure to the
// fallback controller.
type Orchestrator struct {
	graph          *dependency.Graph
	bus            reporting.EventBus
	checkerFactory CheckerFactory

	primary      string
	fallbackNode string
	router       *Router
	fallbackCtl  *fallback.Controller

	probes map[dependency.NodeID]*probe.Probe

	// Per-node cancel functions. Read-only after Start; markBlocked uses
	// them to halt the supervision of a node that can never start.
	nodeCancels map[dependency.NodeID]context.CancelFunc

	// Lifecycle state. Written only by the run loop; read through the
	// mutex by the admin API and tests.
	mu        sync.RWMutex
	states    map[dependency.NodeID]reporting.NodeState
	blockedBy map[dependency.NodeID]dependency.NodeID
	lastErrs  map[dependency.NodeID]error

	observations chan observation
	ctx          context.Context
	cancelFunc   context.CancelFunc
	wg           sync.WaitGroup
	loopDone     chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates an orchestrator from a validated pipeline configuration. It
// builds the dependency graph, which fails with a ConfigError on unknown
// dependency references or cycles; in that case no node enters any
// lifecycle state and the orchestrator does not run.
func New(cfg Config, bus reporting.EventBus) (*Orchestrator, error) {
	graph, err := dependency.FromConfig(cfg.Pipeline)
	if err != nil {
		return nil, err
	}

	checkerFactory := cfg.CheckerFactory
	if checkerFactory == nil {
		checkerFactory = func(target string) probe.Checker {
			return probe.NewHTTPChecker(target)
		}
	}

	o := &Orchestrator{
		graph:          graph,
		bus:            bus,
		checkerFactory: checkerFactory,
		primary:        cfg.Pipeline.Primary,
		fallbackNode:   cfg.Pipeline.Fallback,
		states:         make(map[dependency.NodeID]reporting.NodeState, graph.Len()),
		blockedBy:      make(map[dependency.NodeID]dependency.NodeID),
		lastErrs:       make(map[dependency.NodeID]error),
		observations:   make(chan observation, 64),
		loopDone:       make(chan struct{}),
	}

	for _, node := range graph.Nodes() {
		o.states[node.ID] = reporting.StateUnstarted
	}

	if o.primary != "" {
		o.router = NewRouter(o.primary)
		o.fallbackCtl = fallback.New(o.primary, o.fallbackNode, o.fallbackGate, o.router, bus)
	}

	return o, nil
}

// Start begins supervision: one readiness probe and one supervisor per
// node, all gated on the node's declared dependencies. It returns
// immediately; supervision runs until Stop or context cancellation. Start
// is idempotent.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.startOnce.Do(func() {
		o.ctx, o.cancelFunc = context.WithCancel(ctx)

		o.bus.Publish(reporting.NewSystemEvent("orchestrator", "startup",
			fmt.Sprintf("supervising %d nodes", o.graph.Len())))

		o.probes = make(map[dependency.NodeID]*probe.Probe, o.graph.Len())
		for _, node := range o.graph.Nodes() {
			o.probes[node.ID] = probe.New(string(node.ID), o.checkerFactory(node.Target), node.Readiness)
		}

		go o.runLoop()

		// Topological order is advisory: supervisors are launched in it for
		// reproducible logs, but actual starts are gated on dependency
		// health, not on launch order.
		o.nodeCancels = make(map[dependency.NodeID]context.CancelFunc, o.graph.Len())
		for _, id := range o.graph.TopologicalOrder() {
			node := o.graph.Get(id)
			nodeCtx, cancel := context.WithCancel(o.ctx)
			o.nodeCancels[id] = cancel
			o.wg.Add(1)
			go o.superviseNode(*node, nodeCtx)
		}

		logging.Info("Orchestrator", "Started supervision of %d nodes", o.graph.Len())
	})

	return nil
}

// Stop cancels all in-flight probes and gate waits, waits for supervisors
// to exit, and returns every non-terminal node to Unstarted: an
// operator-initiated stop is not a health failure. Stop is idempotent and
// blocks until the final transitions have been published.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		if o.cancelFunc == nil {
			return
		}
		o.cancelFunc()
		o.wg.Wait()
		close(o.observations)
		<-o.loopDone

		logging.Info("Orchestrator", "Supervision stopped")
	})
}

// Graph returns the pipeline graph (read-only after construction).
func (o *Orchestrator) Graph() *dependency.Graph {
	return o.graph
}

// Router returns the work routing surface, or nil when no primary worker
// is configured.
func (o *Orchestrator) Router() *Router {
	return o.router
}

// FallbackState returns the current fallback state, or Inactive when no
// primary worker is configured.
func (o *Orchestrator) FallbackState() fallback.State {
	if o.fallbackCtl == nil {
		return fallback.StateInactive
	}
	return o.fallbackCtl.State()
}

// ResetFallback handles the administrative reset signal: FallbackState
// returns to Inactive and routing is restored to the primary.
func (o *Orchestrator) ResetFallback() {
	if o.fallbackCtl != nil {
		o.fallbackCtl.Reset()
	}
}

// NodeState returns the lifecycle state of one node.
func (o *Orchestrator) NodeState(id dependency.NodeID) reporting.NodeState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.states[id]
}

// Status returns a snapshot of every node's lifecycle state in topological
// order.
func (o *Orchestrator) Status() []NodeStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	statuses := make([]NodeStatus, 0, o.graph.Len())
	for _, id := range o.graph.TopologicalOrder() {
		status := NodeStatus{
			Name:  string(id),
			State: o.states[id],
		}
		if dep, blocked := o.blockedBy[id]; blocked {
			status.BlockedBy = string(dep)
		}
		if err := o.lastErrs[id]; err != nil {
			status.Error = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// fallbackGate is the fallback worker's own readiness gate: its declared
// dependencies plus the worker itself must be confirmed healthy before the
// controller may route work to it.
func (o *Orchestrator) fallbackGate(ctx context.Context) error {
	fb := dependency.NodeID(o.fallbackNode)

	var probes []*probe.Probe
	for _, dep := range o.graph.Dependencies(fb) {
		probes = append(probes, o.probes[dep])
	}
	probes = append(probes, o.probes[fb])

	_, err := gate.AwaitReady(ctx, probes)
	return err
}

// runLoop is the single writer of lifecycle state. It applies observations
// from supervisors until the observation channel is closed by Stop, then
// performs the clean-shutdown transitions.
func (o *Orchestrator) runLoop() {
	defer close(o.loopDone)

	for obs := range o.observations {
		o.apply(obs)
	}

	o.shutdownTransitions()
}

// apply performs one lifecycle transition and publishes it.
func (o *Orchestrator) apply(obs observation) {
	o.mu.Lock()
	current := o.states[obs.node]

	// A blocked node's dependency is terminally failed: the node may never
	// progress, whatever its in-flight probe reported. Supervision of the
	// node is cancelled in markBlocked; this guard closes the window for
	// observations already in the channel.
	if _, blocked := o.blockedBy[obs.node]; blocked && (obs.kind == obsStarting || obs.kind == obsHealthy) {
		o.mu.Unlock()
		return
	}

	switch obs.kind {
	case obsStarting:
		if current != reporting.StateUnstarted {
			o.mu.Unlock()
			return
		}
		o.states[obs.node] = reporting.StateStarting
		o.mu.Unlock()
		o.publishTransition(obs.node, current, reporting.StateStarting, obs.cause, nil)

	case obsHealthy:
		if current != reporting.StateStarting && current != reporting.StateDegraded {
			o.mu.Unlock()
			return
		}
		o.states[obs.node] = reporting.StateHealthy
		delete(o.lastErrs, obs.node)
		o.mu.Unlock()
		o.publishTransition(obs.node, current, reporting.StateHealthy, obs.cause, nil)

	case obsDegraded:
		if current != reporting.StateHealthy {
			o.mu.Unlock()
			return
		}
		o.states[obs.node] = reporting.StateDegraded
		o.lastErrs[obs.node] = obs.err
		o.mu.Unlock()
		o.publishTransition(obs.node, current, reporting.StateDegraded, obs.cause, obs.err)

	case obsFailed:
		if current.Terminal() {
			o.mu.Unlock()
			return
		}
		o.states[obs.node] = reporting.StateFailed
		o.lastErrs[obs.node] = obs.err
		o.mu.Unlock()
		o.publishTransition(obs.node, current, reporting.StateFailed, obs.cause, obs.err)
		o.handleFailure(obs.node)

	case obsBlocked:
		o.mu.Unlock()
		o.markBlocked(obs.node, obs.blockingDep)
	}
}

// handleFailure reacts to a node reaching its terminal Failed state: it
// reports every dependent as blocked and, for the designated primary
// aggregation worker, hands off to the fallback controller.
func (o *Orchestrator) handleFailure(failed dependency.NodeID) {
	logging.Error("Orchestrator", o.lastError(failed), "Node %s failed", failed)

	// Dependents of a failed node can never start: their gates wait on a
	// probe that will not settle, or have already resolved Failed. Report
	// them blocked so the condition is visible, not silently stuck.
	for _, dependent := range o.graph.TransitiveDependents(failed) {
		o.mu.RLock()
		state := o.states[dependent]
		o.mu.RUnlock()
		if state == reporting.StateUnstarted || state == reporting.StateStarting {
			o.markBlocked(dependent, failed)
		}
	}

	if o.fallbackCtl != nil && string(failed) == o.primary {
		o.fallbackCtl.Observe(o.ctx, probe.VerdictFailed)
	}
}

// markBlocked records and reports a blocked dependent once. The node keeps
// its current lifecycle state; blocked is a reported condition, not a
// state.
func (o *Orchestrator) markBlocked(node, blockingDep dependency.NodeID) {
	o.mu.Lock()
	if _, already := o.blockedBy[node]; already {
		o.mu.Unlock()
		return
	}
	o.blockedBy[node] = blockingDep
	o.mu.Unlock()

	// Halt the node's supervision: its gate wait or in-flight readiness
	// probe can never legitimately complete once a dependency is Failed.
	if cancel, ok := o.nodeCancels[node]; ok {
		cancel()
	}

	logging.Warn("Orchestrator", "Node %s blocked: dependency %s failed", node, blockingDep)
	o.bus.Publish(reporting.NewGateBlockedEvent(string(node), string(blockingDep)))
}

// shutdownTransitions returns every non-terminal node to Unstarted after
// all supervisors have exited. Failed stays Failed: the distinction
// between operator stop and health failure survives into the final report.
func (o *Orchestrator) shutdownTransitions() {
	for _, id := range o.graph.TopologicalOrder() {
		o.mu.Lock()
		current := o.states[id]
		if current.Terminal() || current == reporting.StateUnstarted {
			o.mu.Unlock()
			continue
		}
		o.states[id] = reporting.StateUnstarted
		o.mu.Unlock()
		o.publishTransition(id, current, reporting.StateUnstarted, "shutdown", nil)
	}

	o.bus.Publish(reporting.NewSystemEvent("orchestrator", "shutdown", ""))
}

func (o *Orchestrator) publishTransition(node dependency.NodeID, oldState, newState reporting.NodeState, cause string, err error) {
	event := reporting.NewNodeStateEvent(string(node), oldState, newState, cause)
	if err != nil {
		event.WithError(err)
	}
	o.bus.Publish(event)
}

func (o *Orchestrator) lastError(node dependency.NodeID) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastErrs[node]
}
