package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pipectl/internal/dependency"
	"pipectl/internal/gate"
	"pipectl/internal/probe"
	"pipectl/pkg/logging"
)

// obsKind identifies what a supervisor observed about its node.
type obsKind int

const (
	obsStarting obsKind = iota
	obsHealthy
	obsDegraded
	obsFailed
	obsBlocked
)

// observation is a supervisor's report to the run loop. Supervisors never
// mutate lifecycle state themselves.
type observation struct {
	node        dependency.NodeID
	kind        obsKind
	blockingDep dependency.NodeID
	cause       string
	err         error
}

// observe hands one observation to the run loop. The channel stays open
// until every supervisor has exited, so the send cannot block forever.
func (o *Orchestrator) observe(obs observation) {
	o.observations <- obs
}

// superviseNode drives one node through its lifecycle: wait on the
// dependency gate, run the readiness probe, then poll liveness until
// shutdown, a blocked dependency, or the failure budget is spent. ctx is
// the node's own supervision context; it is cancelled on orchestrator stop
// and when the node becomes blocked.
func (o *Orchestrator) superviseNode(node dependency.Node, ctx context.Context) {
	defer o.wg.Done()

	deps := o.graph.Dependencies(node.ID)
	depProbes := make([]*probe.Probe, 0, len(deps))
	for _, dep := range deps {
		depProbes = append(depProbes, o.probes[dep])
	}

	if _, err := gate.AwaitReady(ctx, depProbes); err != nil {
		var blocked *gate.BlockedError
		if errors.As(err, &blocked) {
			o.observe(observation{
				node:        node.ID,
				kind:        obsBlocked,
				blockingDep: dependency.NodeID(blocked.Dependency),
			})
		}
		return
	}

	o.observe(observation{node: node.ID, kind: obsStarting, cause: "gate_ready"})
	logging.Debug("Supervisor", "Node %s gate ready, probing %s", node.ID, node.Target)

	switch o.probes[node.ID].Run(ctx) {
	case probe.VerdictHealthy:
		o.observe(observation{node: node.ID, kind: obsHealthy, cause: "readiness_confirmed"})
	case probe.VerdictFailed:
		o.observe(observation{
			node:  node.ID,
			kind:  obsFailed,
			cause: "readiness_exhausted",
			err:   o.probes[node.ID].Exhausted(),
		})
		return
	default:
		// Cancelled mid-probe; shutdown or blocking handles the state.
		return
	}

	o.superviseLiveness(node, ctx)
}

// superviseLiveness polls a confirmed-healthy node. One missed check
// degrades the node, a successful check recovers it, and misses reaching
// the failure budget fail it for good. Misses count consecutively: any
// success resets the budget.
func (o *Orchestrator) superviseLiveness(node dependency.Node, ctx context.Context) {
	checker := o.checkerFactory(node.Target)
	ticker := time.NewTicker(node.Liveness.Interval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, node.Liveness.Interval)
			err := checker.Check(checkCtx)
			cancel()

			if ctx.Err() != nil {
				return
			}

			if err == nil {
				if misses > 0 {
					misses = 0
					o.observe(observation{node: node.ID, kind: obsHealthy, cause: "liveness_recovered"})
				}
				continue
			}

			misses++
			logging.Debug("Supervisor", "Node %s liveness miss %d/%d: %v", node.ID, misses, node.Liveness.FailureBudget, err)
			if misses >= node.Liveness.FailureBudget {
				o.observe(observation{
					node:  node.ID,
					kind:  obsFailed,
					cause: "liveness_budget_exhausted",
					err:   fmt.Errorf("liveness failure budget (%d) exhausted: %w", node.Liveness.FailureBudget, err),
				})
				return
			}
			if misses == 1 {
				o.observe(observation{node: node.ID, kind: obsDegraded, cause: "liveness_miss", err: err})
			}
		}
	}
}
