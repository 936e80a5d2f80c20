// Package orchestrator provides the core lifecycle control for the content
// pipeline's managed services.
//
// The orchestrator builds the pipeline dependency graph from static
// configuration, runs one supervisor per node, and drives each node through
// the lifecycle Unstarted -> Starting -> Healthy -> (Degraded <-> Healthy)
// -> Failed. A node enters Starting only after its dependency gate reports
// every declared dependency healthy, and Healthy once its own readiness
// probe first succeeds. After that the orchestrator keeps polling liveness:
// a miss degrades the node, recovery restores it, and exceeding the failure
// budget fails it permanently for the process lifetime.
//
// Supervisors never touch node state directly. They send observations over
// a channel and the orchestrator's run loop is the single writer of
// lifecycle state, publishing a structured event for every transition.
// Failure of the designated primary aggregation worker is delegated to the
// fallback controller, which activates the paired standby worker and
// switches routing of new work to it.
package orchestrator
