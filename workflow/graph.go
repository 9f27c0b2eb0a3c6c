package workflow

import (
	"context"
	"errors"
	"fmt"
)

// Node is one name-addressed unit of a graph.
type Node interface {
	Name() string
	Invoke(ctx context.Context, state State) (Command, error)
}

// NodeFunc adapts a function into a Node.
type NodeFunc struct {
	name string
	fn   func(ctx context.Context, state State) (Command, error)
}

// NewNodeFunc creates a Node from a function.
func NewNodeFunc(name string, fn func(ctx context.Context, state State) (Command, error)) *NodeFunc {
	return &NodeFunc{name: name, fn: fn}
}

// Name returns the node name.
func (n *NodeFunc) Name() string { return n.name }

// Invoke runs the wrapped function.
func (n *NodeFunc) Invoke(ctx context.Context, state State) (Command, error) {
	return n.fn(ctx, state)
}

// Graph collects nodes before compilation. Builder errors are deferred to Compile.
type Graph struct {
	name  string
	start string
	nodes map[string]Node
	order []string
	errs  []error
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{
		name:  name,
		nodes: make(map[string]Node),
	}
}

// AddNode registers a node under its own name.
func (g *Graph) AddNode(n Node) *Graph {
	switch {
	case n == nil:
		g.errs = append(g.errs, errors.New("node cannot be nil"))
	case n.Name() == "":
		g.errs = append(g.errs, errors.New("node name cannot be empty"))
	case n.Name() == End:
		g.errs = append(g.errs, fmt.Errorf("node name %q is reserved", End))
	default:
		if _, exists := g.nodes[n.Name()]; exists {
			g.errs = append(g.errs, fmt.Errorf("duplicate node: %s", n.Name()))
			return g
		}
		g.nodes[n.Name()] = n
		g.order = append(g.order, n.Name())
	}
	return g
}

// SetStart sets the entry node.
func (g *Graph) SetStart(name string) *Graph {
	g.start = name
	return g
}

// Compile validates the graph and freezes it.
func (g *Graph) Compile() (*CompiledGraph, error) {
	if len(g.errs) > 0 {
		return nil, fmt.Errorf("graph %s: %w", g.name, errors.Join(g.errs...))
	}
	if g.start == "" {
		return nil, fmt.Errorf("graph %s has no start node", g.name)
	}
	if _, ok := g.nodes[g.start]; !ok {
		return nil, fmt.Errorf("graph %s: start node not found: %s", g.name, g.start)
	}

	nodes := make(map[string]Node, len(g.nodes))
	for k, v := range g.nodes {
		nodes[k] = v
	}
	return &CompiledGraph{
		name:  g.name,
		start: g.start,
		nodes: nodes,
		order: append([]string(nil), g.order...),
	}, nil
}

// CompiledGraph is an immutable, runnable graph.
type CompiledGraph struct {
	name  string
	start string
	nodes map[string]Node
	order []string
}

// Name returns the graph name.
func (g *CompiledGraph) Name() string { return g.name }

// Start returns the entry node name.
func (g *CompiledGraph) Start() string { return g.start }

// Node looks up a node by name.
func (g *CompiledGraph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// NodeNames returns node names in insertion order.
func (g *CompiledGraph) NodeNames() []string {
	return append([]string(nil), g.order...)
}
