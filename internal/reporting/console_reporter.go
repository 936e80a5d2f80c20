package reporting

import (
	"github.com/charmbracelet/lipgloss"

	"pipectl/pkg/logging"
)

var (
	styleHealthy  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	styleDegraded = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	styleFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	styleNeutral  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
)

// ConsoleReporter subscribes to the event bus and logs every event through
// pkg/logging, with the state name color-styled for terminal output.
type ConsoleReporter struct {
	bus EventBus
	sub *EventSubscription
}

// NewConsoleReporter creates a reporter and attaches it to the bus. All
// events are logged; callers who want less noise can pass a filter.
func NewConsoleReporter(bus EventBus, filter EventFilter) *ConsoleReporter {
	c := &ConsoleReporter{bus: bus}
	c.sub = bus.Subscribe(filter, c.handle)
	return c
}

// Close detaches the reporter from the bus.
func (c *ConsoleReporter) Close() {
	if c.sub != nil {
		c.bus.Unsubscribe(c.sub)
	}
}

func (c *ConsoleReporter) handle(event Event) {
	subsystem := event.Source()
	message := c.render(event)

	switch event.Severity() {
	case SeverityError, SeverityFatal:
		var err error
		if nse, ok := event.(*NodeStateEvent); ok {
			err = nse.Error
		}
		if fe, ok := event.(*FallbackEvent); ok {
			err = fe.Error
		}
		logging.Error(subsystem, err, "%s", message)
	case SeverityWarn:
		logging.Warn(subsystem, "%s", message)
	case SeverityDebug:
		logging.Debug(subsystem, "%s", message)
	default:
		logging.Info(subsystem, "%s", message)
	}
}

// render styles the state portion of node transitions; other events use
// their plain String form.
func (c *ConsoleReporter) render(event Event) string {
	nse, ok := event.(*NodeStateEvent)
	if !ok {
		return event.String()
	}

	style := styleNeutral
	switch nse.NewState {
	case StateHealthy:
		style = styleHealthy
	case StateDegraded:
		style = styleDegraded
	case StateFailed:
		style = styleFailed
	}

	return nse.SourceLabel + " " + string(nse.OldState) + " -> " + style.Render(string(nse.NewState))
}
