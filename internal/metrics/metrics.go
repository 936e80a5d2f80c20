// Package metrics exposes Prometheus instrumentation for the lifecycle
// controller. The collector subscribes to the reporting bus so the
// orchestrator itself stays free of metrics plumbing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pipectl/internal/reporting"
)

// Metrics holds the Prometheus collectors for the orchestrator.
type Metrics struct {
	NodeTransitions     *prometheus.CounterVec
	NodeState           *prometheus.GaugeVec
	GateBlocks          *prometheus.CounterVec
	FallbackTransitions *prometheus.CounterVec

	bus reporting.EventBus
	sub *reporting.EventSubscription
}

// nodeStateValue maps lifecycle states to a stable gauge encoding.
func nodeStateValue(state reporting.NodeState) float64 {
	switch state {
	case reporting.StateUnstarted:
		return 0
	case reporting.StateStarting:
		return 1
	case reporting.StateHealthy:
		return 2
	case reporting.StateDegraded:
		return 3
	case reporting.StateFailed:
		return 4
	default:
		return -1
	}
}

// New registers the collectors with the given registerer and attaches a
// subscriber to the event bus that keeps them current.
func New(reg prometheus.Registerer, bus reporting.EventBus) *Metrics {
	m := &Metrics{
		NodeTransitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipectl",
			Name:      "node_transitions_total",
			Help:      "Lifecycle state transitions per node and target state.",
		}, []string{"node", "state"}),
		NodeState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pipectl",
			Name:      "node_state",
			Help:      "Current lifecycle state per node (0=Unstarted 1=Starting 2=Healthy 3=Degraded 4=Failed).",
		}, []string{"node"}),
		GateBlocks: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipectl",
			Name:      "gate_blocks_total",
			Help:      "Nodes blocked from starting, per blocking dependency.",
		}, []string{"node", "dependency"}),
		FallbackTransitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipectl",
			Name:      "fallback_transitions_total",
			Help:      "FallbackState transitions by target state.",
		}, []string{"state"}),
		bus: bus,
	}

	// A channel subscription keeps publish order, so the state gauge
	// always settles on the latest transition; per-handler goroutine
	// delivery would let Set calls race each other.
	m.sub = bus.SubscribeChannel(nil, 256)
	if m.sub != nil {
		go func() {
			for event := range m.sub.Channel {
				m.handle(event)
			}
		}()
	}
	return m
}

// Close detaches the collector from the bus.
func (m *Metrics) Close() {
	if m.sub != nil {
		m.bus.Unsubscribe(m.sub)
	}
}

func (m *Metrics) handle(event reporting.Event) {
	switch e := event.(type) {
	case *reporting.NodeStateEvent:
		m.NodeTransitions.WithLabelValues(e.Source(), string(e.NewState)).Inc()
		m.NodeState.WithLabelValues(e.Source()).Set(nodeStateValue(e.NewState))
	case *reporting.GateBlockedEvent:
		m.GateBlocks.WithLabelValues(e.Source(), e.BlockingDependency).Inc()
	case *reporting.FallbackEvent:
		m.FallbackTransitions.WithLabelValues(e.NewState).Inc()
	}
}
