package probe

import "fmt"

// ExhaustedError reports that a probe spent its whole attempt budget
// without a successful check. It carries the last check error for
// diagnosis.
type ExhaustedError struct {
	Name     string
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("probe %s exhausted %d attempts: %v", e.Name, e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("probe %s exhausted %d attempts", e.Name, e.Attempts)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Exhausted returns an ExhaustedError for a Failed probe, or nil while the
// probe has not failed.
func (p *Probe) Exhausted() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.verdict != VerdictFailed {
		return nil
	}
	return &ExhaustedError{Name: p.name, Attempts: p.attempts, LastErr: p.lastErr}
}
