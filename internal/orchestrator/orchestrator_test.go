package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipectl/internal/config"
	"pipectl/internal/dependency"
	"pipectl/internal/fallback"
	"pipectl/internal/probe"
	"pipectl/internal/reporting"
)

// fakeChecker is a switchable checker shared between the readiness probe
// and the liveness poller of one target.
type fakeChecker struct {
	mu      sync.Mutex
	healthy bool
}

func (c *fakeChecker) Check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.healthy {
		return nil
	}
	return errors.New("target not healthy")
}

func (c *fakeChecker) setHealthy(healthy bool) {
	c.mu.Lock()
	c.healthy = healthy
	c.mu.Unlock()
}

// checkerFleet hands out one fakeChecker per target, by URL.
type checkerFleet struct {
	mu       sync.Mutex
	checkers map[string]*fakeChecker
}

func newCheckerFleet() *checkerFleet {
	return &checkerFleet{checkers: make(map[string]*fakeChecker)}
}

func (f *checkerFleet) factory(target string) probe.Checker {
	return f.get(target)
}

func (f *checkerFleet) get(target string) *fakeChecker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.checkers[target]; ok {
		return c
	}
	c := &fakeChecker{healthy: true}
	f.checkers[target] = c
	return c
}

func target(name string) string {
	return "http://" + name + ".local/health"
}

func fastNode(name string, deps ...string) config.NodeDefinition {
	return config.NodeDefinition{
		Name:      name,
		Target:    target(name),
		DependsOn: deps,
		Readiness: config.RetryPolicy{
			Interval:    5 * time.Millisecond,
			MaxAttempts: 3,
			GracePeriod: 0,
		},
		Liveness: config.LivenessPolicy{
			Interval:      10 * time.Millisecond,
			FailureBudget: 2,
		},
	}
}

type testHarness struct {
	orch   *Orchestrator
	fleet  *checkerFleet
	bus    reporting.EventBus
	events *reporting.EventSubscription
}

func newHarness(t *testing.T, pipeline config.PipelineConfig) *testHarness {
	t.Helper()

	fleet := newCheckerFleet()
	bus := reporting.NewEventBus()
	t.Cleanup(func() { bus.Close() })

	orch, err := New(Config{Pipeline: pipeline, CheckerFactory: fleet.factory}, bus)
	require.NoError(t, err)

	// Channel subscription preserves publish order.
	events := bus.SubscribeChannel(nil, 256)

	return &testHarness{orch: orch, fleet: fleet, bus: bus, events: events}
}

func (h *testHarness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.orch.Start(context.Background()))
	t.Cleanup(h.orch.Stop)
}

// drainEvents returns all events published so far.
func (h *testHarness) drainEvents() []reporting.Event {
	var out []reporting.Event
	for {
		select {
		case e := <-h.events.Channel:
			out = append(out, e)
		default:
			return out
		}
	}
}

func (h *testHarness) waitForState(t *testing.T, node string, want reporting.NodeState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.orch.NodeState(dependency.NodeID(node)) == want
	}, 5*time.Second, 2*time.Millisecond, "node %s never reached %s", node, want)
}

func TestStartupFollowsDependencyOrder(t *testing.T) {
	h := newHarness(t, config.PipelineConfig{
		Nodes: []config.NodeDefinition{
			fastNode("order-agg"),
			fastNode("role-text", "order-agg"),
			fastNode("qa", "role-text"),
		},
	})
	h.start(t)

	h.waitForState(t, "qa", reporting.StateHealthy)
	h.waitForState(t, "role-text", reporting.StateHealthy)
	h.waitForState(t, "order-agg", reporting.StateHealthy)

	// A node may only enter Starting after every dependency is Healthy.
	healthyAt := map[string]int{}
	startingAt := map[string]int{}
	for i, e := range h.drainEvents() {
		switch e.Type() {
		case reporting.EventTypeNodeStarting:
			startingAt[e.Source()] = i
		case reporting.EventTypeNodeHealthy:
			if _, seen := healthyAt[e.Source()]; !seen {
				healthyAt[e.Source()] = i
			}
		}
	}

	assert.Less(t, healthyAt["order-agg"], startingAt["role-text"],
		"role-text started before order-agg was healthy")
	assert.Less(t, healthyAt["role-text"], startingAt["qa"],
		"qa started before role-text was healthy")
}

func TestFailedDependencyBlocksDependents(t *testing.T) {
	h := newHarness(t, config.PipelineConfig{
		Nodes: []config.NodeDefinition{
			fastNode("order-agg"),
			fastNode("role-text", "order-agg"),
			fastNode("qa", "role-text"),
		},
	})
	h.fleet.get(target("role-text")).setHealthy(false)
	h.start(t)

	h.waitForState(t, "order-agg", reporting.StateHealthy)
	h.waitForState(t, "role-text", reporting.StateFailed)

	// qa can never start; it must be reported blocked, naming role-text,
	// and stay Unstarted rather than silently hang.
	require.Eventually(t, func() bool {
		for _, s := range h.orch.Status() {
			if s.Name == "qa" {
				return s.BlockedBy == "role-text"
			}
		}
		return false
	}, 5*time.Second, 2*time.Millisecond)

	assert.Equal(t, reporting.StateUnstarted, h.orch.NodeState("qa"))

	var blocked []*reporting.GateBlockedEvent
	collect := func() {
		for _, e := range h.drainEvents() {
			if ge, ok := e.(*reporting.GateBlockedEvent); ok {
				blocked = append(blocked, ge)
			}
		}
	}
	require.Eventually(t, func() bool {
		collect()
		return len(blocked) >= 1
	}, 5*time.Second, 2*time.Millisecond)

	// Quiesce, then confirm no duplicate reports arrived.
	time.Sleep(50 * time.Millisecond)
	collect()
	require.Len(t, blocked, 1, "blocked condition is reported exactly once")
	assert.Equal(t, "qa", blocked[0].Source())
	assert.Equal(t, "role-text", blocked[0].BlockingDependency)
}

func TestDependencyFailureHaltsInFlightStart(t *testing.T) {
	pipeline := config.PipelineConfig{
		Nodes: []config.NodeDefinition{
			fastNode("order-agg"),
			fastNode("role-text", "order-agg"),
		},
	}
	// order-agg fails on its first liveness miss; role-text's readiness
	// budget is effectively unbounded so it is still Starting when that
	// happens.
	pipeline.Nodes[0].Liveness.FailureBudget = 1
	pipeline.Nodes[1].Readiness.MaxAttempts = 100000

	h := newHarness(t, pipeline)
	h.fleet.get(target("role-text")).setHealthy(false)
	h.start(t)

	h.waitForState(t, "order-agg", reporting.StateHealthy)
	h.waitForState(t, "role-text", reporting.StateStarting)

	h.fleet.get(target("order-agg")).setHealthy(false)
	h.waitForState(t, "order-agg", reporting.StateFailed)

	require.Eventually(t, func() bool {
		for _, s := range h.orch.Status() {
			if s.Name == "role-text" {
				return s.BlockedBy == "order-agg"
			}
		}
		return false
	}, 5*time.Second, 2*time.Millisecond)

	// The dependent's own readiness succeeding now must not let it leave
	// Starting: its dependency is terminally Failed.
	h.fleet.get(target("role-text")).setHealthy(true)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, reporting.StateStarting, h.orch.NodeState("role-text"),
		"a node with a Failed dependency must never progress past Starting")
}

func TestReadinessExhaustionCarriesAttemptCount(t *testing.T) {
	h := newHarness(t, config.PipelineConfig{
		Nodes: []config.NodeDefinition{fastNode("qa")},
	})
	h.fleet.get(target("qa")).setHealthy(false)
	h.start(t)

	h.waitForState(t, "qa", reporting.StateFailed)

	var failure *reporting.NodeStateEvent
	require.Eventually(t, func() bool {
		for _, e := range h.drainEvents() {
			if ne, ok := e.(*reporting.NodeStateEvent); ok && ne.NewState == reporting.StateFailed {
				failure = ne
			}
		}
		return failure != nil
	}, 5*time.Second, 2*time.Millisecond)
	require.Error(t, failure.Error)

	var exhausted *probe.ExhaustedError
	require.ErrorAs(t, failure.Error, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestLivenessDegradeAndRecover(t *testing.T) {
	pipeline := config.PipelineConfig{
		Nodes: []config.NodeDefinition{fastNode("order-agg")},
	}
	// A generous budget so a single miss degrades without failing.
	pipeline.Nodes[0].Liveness.FailureBudget = 1000

	h := newHarness(t, pipeline)
	h.start(t)
	h.waitForState(t, "order-agg", reporting.StateHealthy)

	h.fleet.get(target("order-agg")).setHealthy(false)
	h.waitForState(t, "order-agg", reporting.StateDegraded)

	h.fleet.get(target("order-agg")).setHealthy(true)
	h.waitForState(t, "order-agg", reporting.StateHealthy)
}

func TestPrimaryLivenessFailureActivatesFallback(t *testing.T) {
	h := newHarness(t, config.PipelineConfig{
		Nodes: []config.NodeDefinition{
			fastNode("store"),
			fastNode("order-agg", "store"),
			fastNode("order-agg-standby", "store"),
		},
		Primary:  "order-agg",
		Fallback: "order-agg-standby",
	})
	h.start(t)

	h.waitForState(t, "order-agg", reporting.StateHealthy)
	h.waitForState(t, "order-agg-standby", reporting.StateHealthy)

	require.NotNil(t, h.orch.Router())
	assert.Equal(t, "order-agg", h.orch.Router().ActiveTarget())

	// The primary's liveness collapses and spends its failure budget.
	h.fleet.get(target("order-agg")).setHealthy(false)
	h.waitForState(t, "order-agg", reporting.StateFailed)

	require.Eventually(t, func() bool {
		return h.orch.FallbackState() == fallback.StateActive
	}, 5*time.Second, 2*time.Millisecond)

	assert.Equal(t, "order-agg-standby", h.orch.Router().ActiveTarget(),
		"new work routes to the standby once it is confirmed ready")

	// Only an explicit administrative reset restores the primary.
	h.orch.ResetFallback()
	assert.Equal(t, fallback.StateInactive, h.orch.FallbackState())
	assert.Equal(t, "order-agg", h.orch.Router().ActiveTarget())
}

func TestShutdownReturnsNonTerminalNodesToUnstarted(t *testing.T) {
	pipeline := config.PipelineConfig{
		Nodes: []config.NodeDefinition{
			fastNode("order-agg"),
			fastNode("role-text", "order-agg"),
			fastNode("slow", "order-agg"),
		},
	}
	// slow never leaves its grace period during the test.
	pipeline.Nodes[2].Readiness.GracePeriod = time.Minute

	h := newHarness(t, pipeline)
	h.start(t)

	h.waitForState(t, "role-text", reporting.StateHealthy)
	h.waitForState(t, "slow", reporting.StateStarting)

	h.orch.Stop()

	// A clean shutdown is not a health failure: nothing may end up Failed.
	for _, s := range h.orch.Status() {
		assert.Equal(t, reporting.StateUnstarted, s.State, "node %s", s.Name)
	}
}

func TestShutdownPreservesFailedState(t *testing.T) {
	h := newHarness(t, config.PipelineConfig{
		Nodes: []config.NodeDefinition{
			fastNode("order-agg"),
			fastNode("qa"),
		},
	})
	h.fleet.get(target("qa")).setHealthy(false)
	h.start(t)

	h.waitForState(t, "order-agg", reporting.StateHealthy)
	h.waitForState(t, "qa", reporting.StateFailed)

	h.orch.Stop()

	assert.Equal(t, reporting.StateUnstarted, h.orch.NodeState("order-agg"))
	assert.Equal(t, reporting.StateFailed, h.orch.NodeState("qa"),
		"terminal failure survives shutdown in the final report")
}

func TestNewRejectsBadGraph(t *testing.T) {
	bus := reporting.NewEventBus()
	defer bus.Close()

	_, err := New(Config{Pipeline: config.PipelineConfig{
		Nodes: []config.NodeDefinition{fastNode("qa", "ghost")},
	}}, bus)

	require.Error(t, err)
	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestStartIsIdempotent(t *testing.T) {
	h := newHarness(t, config.PipelineConfig{
		Nodes: []config.NodeDefinition{fastNode("order-agg")},
	})
	h.start(t)

	require.NoError(t, h.orch.Start(context.Background()))
	h.waitForState(t, "order-agg", reporting.StateHealthy)

	startups := 0
	for _, e := range h.drainEvents() {
		if e.Type() == reporting.EventTypeSystemStartup {
			startups++
		}
	}
	assert.Equal(t, 1, startups)
}

func TestRouterTargetSwitch(t *testing.T) {
	r := NewRouter("order-agg")
	assert.Equal(t, "order-agg", r.ActiveTarget())

	r.SetActiveTarget("order-agg-standby")
	assert.Equal(t, "order-agg-standby", r.ActiveTarget())
}
