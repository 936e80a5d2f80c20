package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker checks readiness by issuing a GET against the service's
// readiness endpoint. Any 2xx status counts as healthy; the payload is
// ignored since the contract is status-code based.
type HTTPChecker struct {
	target string
	client *http.Client
}

// NewHTTPChecker creates a checker for the given readiness URL.
func NewHTTPChecker(target string) *HTTPChecker {
	return &HTTPChecker{
		target: target,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Check implements the Checker interface.
func (h *HTTPChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", h.target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("readiness endpoint %s returned status %d", h.target, resp.StatusCode)
	}

	return nil
}
