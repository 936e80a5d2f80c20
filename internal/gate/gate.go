// Package gate provides the synchronization point that blocks a node's
// start until every declared dependency has been confirmed healthy.
package gate

import (
	"context"
	"fmt"

	"pipectl/internal/probe"
)

// Result is the outcome of a gate wait. Either Ready is true, or
// FailedDependency names the dependency whose probe exhausted its budget.
type Result struct {
	Ready            bool
	FailedDependency string
}

// BlockedError reports that a gate cannot open because a named dependency
// failed. The failure is effectively permanent for the process lifetime:
// a Failed probe never recovers.
type BlockedError struct {
	Dependency string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("dependency %s failed", e.Dependency)
}

// AwaitReady waits until every dependency probe reports Healthy, then
// returns Ready. It is fail-fast: the first probe to report Failed resolves
// the gate immediately with a BlockedError naming that dependency, without
// waiting for the rest. Partial progress (some Healthy, some Pending) keeps
// the gate waiting. An empty dependency set is immediately Ready.
//
// Context cancellation aborts the wait with the context's error.
func AwaitReady(ctx context.Context, probes []*probe.Probe) (Result, error) {
	if len(probes) == 0 {
		return Result{Ready: true}, nil
	}

	settled := make(chan *probe.Probe, len(probes))
	for _, p := range probes {
		go func(p *probe.Probe) {
			select {
			case <-p.Done():
				settled <- p
			case <-ctx.Done():
			}
		}(p)
	}

	healthy := 0
	for healthy < len(probes) {
		select {
		case p := <-settled:
			switch p.Verdict() {
			case probe.VerdictHealthy:
				healthy++
			case probe.VerdictFailed:
				return Result{FailedDependency: p.Name()}, &BlockedError{Dependency: p.Name()}
			}
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	return Result{Ready: true}, nil
}
