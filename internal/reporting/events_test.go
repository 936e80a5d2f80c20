package reporting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNodeStateEvent(t *testing.T) {
	event := NewNodeStateEvent("order-agg", StateStarting, StateHealthy, "readiness_confirmed")

	assert.Equal(t, EventTypeNodeHealthy, event.Type())
	assert.Equal(t, "order-agg", event.Source())
	assert.Equal(t, StateStarting, event.OldState)
	assert.Equal(t, StateHealthy, event.NewState)
	assert.Equal(t, SeverityInfo, event.Severity())
	assert.Equal(t, "readiness_confirmed", event.CausedBy())
	assert.NotEmpty(t, event.CorrelationID())
	assert.False(t, event.Timestamp().IsZero())
}

func TestNodeStateEvent_WithError(t *testing.T) {
	event := NewNodeStateEvent("qa", StateHealthy, StateFailed, "liveness_budget_exhausted")
	testErr := errors.New("connection refused")

	event.WithError(testErr)

	assert.Equal(t, testErr, event.Error)
	assert.Equal(t, SeverityError, event.Severity())
	assert.Contains(t, event.String(), "connection refused")
}

func TestNodeStateEventSeverities(t *testing.T) {
	assert.Equal(t, SeverityDebug, NewNodeStateEvent("n", StateUnstarted, StateStarting, "x").Severity())
	assert.Equal(t, SeverityWarn, NewNodeStateEvent("n", StateHealthy, StateDegraded, "x").Severity())
	assert.Equal(t, SeverityError, NewNodeStateEvent("n", StateStarting, StateFailed, "x").Severity())
}

func TestNewGateBlockedEvent(t *testing.T) {
	event := NewGateBlockedEvent("qa", "role-text")

	assert.Equal(t, EventTypeGateBlocked, event.Type())
	assert.Equal(t, "qa", event.Source())
	assert.Equal(t, "role-text", event.BlockingDependency)
	assert.Equal(t, SeverityError, event.Severity())
	assert.Contains(t, event.String(), "role-text")
}

func TestFallbackEventSeverities(t *testing.T) {
	activating := NewFallbackEvent(EventTypeFallbackActivating, "Inactive", "Activating", "order-agg", "order-agg-standby")
	assert.Equal(t, SeverityWarn, activating.Severity())

	reset := NewFallbackEvent(EventTypeFallbackReset, "Active", "Inactive", "order-agg", "order-agg-standby")
	assert.Equal(t, SeverityInfo, reset.Severity())

	// Activation failure leaves no serving path; nothing published on the
	// bus outranks it.
	failed := NewFallbackEvent(EventTypeFallbackFailed, "Activating", "Activating", "order-agg", "order-agg-standby")
	assert.Equal(t, SeverityFatal, failed.Severity())
}

func TestNodeStateTerminal(t *testing.T) {
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateUnstarted.Terminal())
	assert.False(t, StateStarting.Terminal())
	assert.False(t, StateHealthy.Terminal())
	assert.False(t, StateDegraded.Terminal())
}

func TestGenerateCorrelationIDUnique(t *testing.T) {
	assert.NotEqual(t, GenerateCorrelationID(), GenerateCorrelationID())
}
