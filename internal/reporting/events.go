package reporting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NodeState is the lifecycle state of a managed pipeline node. It is owned
// and mutated exclusively by the orchestrator.
type NodeState string

const (
	StateUnstarted NodeState = "Unstarted"
	StateStarting  NodeState = "Starting"
	StateHealthy   NodeState = "Healthy"
	StateDegraded  NodeState = "Degraded"
	StateFailed    NodeState = "Failed"
)

// Terminal reports whether a node can leave this state. Failed is terminal
// for the process lifetime.
func (s NodeState) Terminal() bool {
	return s == StateFailed
}

// EventType defines the type of event
type EventType string

const (
	// Node lifecycle events
	EventTypeNodeStarting  EventType = "node.starting"
	EventTypeNodeHealthy   EventType = "node.healthy"
	EventTypeNodeDegraded  EventType = "node.degraded"
	EventTypeNodeFailed    EventType = "node.failed"
	EventTypeNodeUnstarted EventType = "node.unstarted"

	// Gate events
	EventTypeGateBlocked EventType = "gate.blocked"

	// Fallback events
	EventTypeFallbackActivating EventType = "fallback.activating"
	EventTypeFallbackActive     EventType = "fallback.active"
	EventTypeFallbackReset      EventType = "fallback.reset"
	EventTypeFallbackFailed     EventType = "fallback.activation_failed"

	// System events
	EventTypeSystemStartup  EventType = "system.startup"
	EventTypeSystemShutdown EventType = "system.shutdown"
)

// EventSeverity indicates the importance/severity of an event
type EventSeverity string

const (
	SeverityDebug EventSeverity = "debug"
	SeverityInfo  EventSeverity = "info"
	SeverityWarn  EventSeverity = "warn"
	SeverityError EventSeverity = "error"
	SeverityFatal EventSeverity = "fatal"
)

// Event is the base interface for all events in the system
type Event interface {
	// Type returns the event type
	Type() EventType

	// Source returns the node or component that generated this event
	Source() string

	// Timestamp returns when the event occurred
	Timestamp() time.Time

	// Severity returns the event severity
	Severity() EventSeverity

	// CorrelationID returns the correlation ID for tracing related events
	CorrelationID() string

	// CausedBy returns what triggered this event
	CausedBy() string

	// String returns a human-readable description of the event
	String() string
}

// GenerateCorrelationID returns a fresh correlation ID for event tracing.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	EventType     EventType     `json:"type"`
	SourceLabel   string        `json:"source"`
	EventTime     time.Time     `json:"timestamp"`
	EventSeverity EventSeverity `json:"severity"`
	CorrelationId string        `json:"correlation_id"`
	Cause         string        `json:"caused_by"`
}

// Type implements Event interface
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Source implements Event interface
func (e BaseEvent) Source() string {
	return e.SourceLabel
}

// Timestamp implements Event interface
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// Severity implements Event interface
func (e BaseEvent) Severity() EventSeverity {
	return e.EventSeverity
}

// CorrelationID implements Event interface
func (e BaseEvent) CorrelationID() string {
	return e.CorrelationId
}

// CausedBy implements Event interface
func (e BaseEvent) CausedBy() string {
	return e.Cause
}

// String implements Event interface
func (e BaseEvent) String() string {
	return string(e.EventType) + " from " + e.SourceLabel
}

// NodeStateEvent represents a node lifecycle state transition.
type NodeStateEvent struct {
	BaseEvent
	OldState NodeState `json:"old_state"`
	NewState NodeState `json:"new_state"`
	Error    error     `json:"error,omitempty"`
}

// String returns a human-readable description
func (e NodeStateEvent) String() string {
	if e.Error != nil {
		return fmt.Sprintf("%s %s -> %s (error: %v)", e.SourceLabel, e.OldState, e.NewState, e.Error)
	}
	return fmt.Sprintf("%s %s -> %s", e.SourceLabel, e.OldState, e.NewState)
}

// GateBlockedEvent reports that a node cannot start because a named
// dependency is Failed. The condition is permanent until operator
// intervention or restart, so it is reported once per blocked node.
type GateBlockedEvent struct {
	BaseEvent
	BlockingDependency string `json:"blocking_dependency"`
}

// String returns a human-readable description
func (e GateBlockedEvent) String() string {
	return fmt.Sprintf("%s blocked: dependency %s failed", e.SourceLabel, e.BlockingDependency)
}

// FallbackEvent represents a FallbackState transition. States are carried
// as strings so the reporting layer stays decoupled from the controller.
type FallbackEvent struct {
	BaseEvent
	OldState string `json:"old_state"`
	NewState string `json:"new_state"`
	Primary  string `json:"primary"`
	Fallback string `json:"fallback"`
	Error    error  `json:"error,omitempty"`
}

// String returns a human-readable description
func (e FallbackEvent) String() string {
	if e.Error != nil {
		return fmt.Sprintf("fallback %s -> %s (primary=%s, fallback=%s, error: %v)", e.OldState, e.NewState, e.Primary, e.Fallback, e.Error)
	}
	return fmt.Sprintf("fallback %s -> %s (primary=%s, fallback=%s)", e.OldState, e.NewState, e.Primary, e.Fallback)
}

// SystemEvent represents orchestrator-level events
type SystemEvent struct {
	BaseEvent
	Component string `json:"component"`
	Action    string `json:"action"`
	Details   string `json:"details,omitempty"`
}

// String returns a human-readable description
func (e SystemEvent) String() string {
	if e.Details != "" {
		return e.Component + " " + e.Action + ": " + e.Details
	}
	return e.Component + " " + e.Action
}

// NewNodeStateEvent creates a new node state transition event
func NewNodeStateEvent(node string, oldState, newState NodeState, causedBy string) *NodeStateEvent {
	return &NodeStateEvent{
		BaseEvent: BaseEvent{
			EventType:     mapStateToEventType(newState),
			SourceLabel:   node,
			EventTime:     time.Now(),
			EventSeverity: mapStateToSeverity(newState),
			CorrelationId: GenerateCorrelationID(),
			Cause:         causedBy,
		},
		OldState: oldState,
		NewState: newState,
	}
}

// NewGateBlockedEvent creates a new gate blocked event
func NewGateBlockedEvent(node, blockingDependency string) *GateBlockedEvent {
	return &GateBlockedEvent{
		BaseEvent: BaseEvent{
			EventType:     EventTypeGateBlocked,
			SourceLabel:   node,
			EventTime:     time.Now(),
			EventSeverity: SeverityError,
			CorrelationId: GenerateCorrelationID(),
			Cause:         "dependency_failed",
		},
		BlockingDependency: blockingDependency,
	}
}

// NewFallbackEvent creates a new fallback transition event
func NewFallbackEvent(eventType EventType, oldState, newState, primary, fallback string) *FallbackEvent {
	severity := SeverityWarn
	if eventType == EventTypeFallbackFailed {
		// No serving path remains for the primary's responsibility.
		severity = SeverityFatal
	}
	if eventType == EventTypeFallbackReset {
		severity = SeverityInfo
	}

	return &FallbackEvent{
		BaseEvent: BaseEvent{
			EventType:     eventType,
			SourceLabel:   "fallback-controller",
			EventTime:     time.Now(),
			EventSeverity: severity,
			CorrelationId: GenerateCorrelationID(),
			Cause:         "primary_health",
		},
		OldState: oldState,
		NewState: newState,
		Primary:  primary,
		Fallback: fallback,
	}
}

// NewSystemEvent creates a new system event
func NewSystemEvent(component, action, details string) *SystemEvent {
	severity := SeverityInfo
	if action == "shutdown" {
		severity = SeverityWarn
	}

	eventType := EventTypeSystemStartup
	if action == "shutdown" {
		eventType = EventTypeSystemShutdown
	}

	return &SystemEvent{
		BaseEvent: BaseEvent{
			EventType:     eventType,
			SourceLabel:   component,
			EventTime:     time.Now(),
			EventSeverity: severity,
			CorrelationId: GenerateCorrelationID(),
			Cause:         "system_operation",
		},
		Component: component,
		Action:    action,
		Details:   details,
	}
}

// Helper functions to map states to event types and severities
func mapStateToEventType(state NodeState) EventType {
	switch state {
	case StateStarting:
		return EventTypeNodeStarting
	case StateHealthy:
		return EventTypeNodeHealthy
	case StateDegraded:
		return EventTypeNodeDegraded
	case StateFailed:
		return EventTypeNodeFailed
	case StateUnstarted:
		return EventTypeNodeUnstarted
	default:
		return EventTypeNodeStarting
	}
}

func mapStateToSeverity(state NodeState) EventSeverity {
	switch state {
	case StateFailed:
		return SeverityError
	case StateDegraded:
		return SeverityWarn
	case StateHealthy, StateUnstarted:
		return SeverityInfo
	case StateStarting:
		return SeverityDebug
	default:
		return SeverityInfo
	}
}

// WithError attaches error detail to a node state event and raises its
// severity.
func (e *NodeStateEvent) WithError(err error) *NodeStateEvent {
	e.Error = err
	if err != nil {
		e.EventSeverity = SeverityError
	}
	return e
}

// WithError attaches error detail to a fallback event.
func (e *FallbackEvent) WithError(err error) *FallbackEvent {
	e.Error = err
	return e
}
