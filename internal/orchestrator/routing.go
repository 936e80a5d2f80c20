package orchestrator

import "sync/atomic"

// Router holds the node new inbound aggregation work is handed to. The
// fallback controller is the only writer after startup; the routing layer
// and the admin API read it. In-flight work already assigned to the
// previous target is not migrated.
type Router struct {
	active atomic.Value // string
}

// NewRouter creates a router pointed at the given node.
func NewRouter(initialTarget string) *Router {
	r := &Router{}
	r.active.Store(initialTarget)
	return r
}

// SetActiveTarget switches routing of new work to the given node.
func (r *Router) SetActiveTarget(node string) {
	r.active.Store(node)
}

// ActiveTarget returns the node currently receiving new work.
func (r *Router) ActiveTarget() string {
	v, _ := r.active.Load().(string)
	return v
}
