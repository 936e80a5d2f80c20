// Package dependency provides the fixed directed acyclic graph of managed
// pipeline nodes. The graph is built once from static configuration and is
// read-only afterwards; it is safe for concurrent use without locking.
package dependency

import (
	"pipectl/internal/config"
)

// NodeID identifies a node in the pipeline graph. It equals the node's
// configured name.
type NodeID string

// Node is one managed service in the pipeline: its identity, readiness
// target, probe policies, and declared dependency edges. Lifecycle state is
// not stored here; the orchestrator is the single writer of lifecycle state
// and keeps it in its own table.
type Node struct {
	ID        NodeID
	Target    string
	Readiness config.RetryPolicy
	Liveness  config.LivenessPolicy
	DependsOn []NodeID
}

// Graph is the pipeline dependency graph. Nodes are held in an array in
// declaration order and addressed by index; edges are index pairs. This
// keeps the structure free of pointer cycles and makes topological
// tie-breaking reproducible.
type Graph struct {
	nodes []Node
	index map[NodeID]int

	// edges[i] lists the indices node i depends on; dependents[i] the
	// indices that depend on node i. Both are in declaration order.
	edges      [][]int
	dependents [][]int

	topoOrder []NodeID
}

// Build constructs the graph from the given nodes. It fails with a
// ConfigError if an edge references an unknown node or the edge relation
// contains a cycle. Declaration order of the input is preserved and used to
// break ties in the topological order.
func Build(nodes []Node) (*Graph, error) {
	g := &Graph{
		nodes:      make([]Node, len(nodes)),
		index:      make(map[NodeID]int, len(nodes)),
		edges:      make([][]int, len(nodes)),
		dependents: make([][]int, len(nodes)),
	}
	copy(g.nodes, nodes)

	for i, node := range g.nodes {
		if _, exists := g.index[node.ID]; exists {
			return nil, config.NewConfigError("duplicate node %q in graph", node.ID)
		}
		g.index[node.ID] = i
	}

	for i, node := range g.nodes {
		for _, dep := range node.DependsOn {
			j, exists := g.index[dep]
			if !exists {
				return nil, config.NewConfigError("node %q depends on unknown node %q", node.ID, dep)
			}
			g.edges[i] = append(g.edges[i], j)
			g.dependents[j] = append(g.dependents[j], i)
		}
	}

	order, err := g.sortTopologically()
	if err != nil {
		return nil, err
	}
	g.topoOrder = order

	return g, nil
}

// FromConfig builds the graph from a validated pipeline configuration.
func FromConfig(pipeline config.PipelineConfig) (*Graph, error) {
	nodes := make([]Node, 0, len(pipeline.Nodes))
	for _, def := range pipeline.Nodes {
		deps := make([]NodeID, 0, len(def.DependsOn))
		for _, dep := range def.DependsOn {
			deps = append(deps, NodeID(dep))
		}
		nodes = append(nodes, Node{
			ID:        NodeID(def.Name),
			Target:    def.Target,
			Readiness: def.Readiness,
			Liveness:  def.Liveness,
			DependsOn: deps,
		})
	}
	return Build(nodes)
}

// sortTopologically runs Kahn's algorithm. Among nodes whose dependencies
// are all scheduled, the one declared first is picked next, so the order is
// deterministic for a given configuration. Absence of a valid total order
// signals a cycle.
func (g *Graph) sortTopologically() ([]NodeID, error) {
	n := len(g.nodes)
	inDegree := make([]int, n)
	for i := range g.nodes {
		inDegree[i] = len(g.edges[i])
	}

	order := make([]NodeID, 0, n)
	scheduled := make([]bool, n)

	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !scheduled[i] && inDegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			return nil, config.NewConfigError("dependency cycle detected among: %v", g.unscheduledIDs(scheduled))
		}

		scheduled[next] = true
		order = append(order, g.nodes[next].ID)
		for _, dep := range g.dependents[next] {
			inDegree[dep]--
		}
	}

	return order, nil
}

func (g *Graph) unscheduledIDs(scheduled []bool) []NodeID {
	var ids []NodeID
	for i, done := range scheduled {
		if !done {
			ids = append(ids, g.nodes[i].ID)
		}
	}
	return ids
}

// Get returns the node with the given ID, or nil if it is not in the graph.
func (g *Graph) Get(id NodeID) *Node {
	i, exists := g.index[id]
	if !exists {
		return nil
	}
	node := g.nodes[i]
	return &node
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns all nodes in declaration order.
func (g *Graph) Nodes() []Node {
	nodes := make([]Node, len(g.nodes))
	copy(nodes, g.nodes)
	return nodes
}

// TopologicalOrder returns the node IDs in an order where every node
// appears after all of its dependencies. The order is computed once at
// construction and is identical across calls. It is advisory for start
// sequencing: a node's position guarantees its dependencies are scheduled
// earlier, not that they are yet healthy.
func (g *Graph) TopologicalOrder() []NodeID {
	order := make([]NodeID, len(g.topoOrder))
	copy(order, g.topoOrder)
	return order
}

// Dependencies returns the IDs the given node directly depends on, in
// declaration order. Unknown IDs yield nil.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	i, exists := g.index[id]
	if !exists {
		return nil
	}
	deps := make([]NodeID, 0, len(g.edges[i]))
	for _, j := range g.edges[i] {
		deps = append(deps, g.nodes[j].ID)
	}
	return deps
}

// Dependents returns the IDs of nodes that directly depend on the given
// node, in declaration order.
func (g *Graph) Dependents(id NodeID) []NodeID {
	i, exists := g.index[id]
	if !exists {
		return nil
	}
	deps := make([]NodeID, 0, len(g.dependents[i]))
	for _, j := range g.dependents[i] {
		deps = append(deps, g.nodes[j].ID)
	}
	return deps
}

// TransitiveDependents returns every node reachable from the given node by
// following dependent edges, in declaration order. Used to report which
// nodes are blocked when a dependency fails.
func (g *Graph) TransitiveDependents(id NodeID) []NodeID {
	start, exists := g.index[id]
	if !exists {
		return nil
	}

	seen := make([]bool, len(g.nodes))
	stack := []int{start}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, j := range g.dependents[i] {
			if !seen[j] {
				seen[j] = true
				stack = append(stack, j)
			}
		}
	}

	var reachable []NodeID
	for i, hit := range seen {
		if hit {
			reachable = append(reachable, g.nodes[i].ID)
		}
	}
	return reachable
}
