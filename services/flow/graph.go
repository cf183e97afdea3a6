// Package flow holds the workflow graph model, its validator and the executor
// that walks a graph from its start node.
package flow

// NodeID identifies a node within one graph.
type NodeID string

// EdgeID identifies an edge within one graph.
type EdgeID string

// NodeType is the kind of step a node performs.
type NodeType string

const (
	NodeTypeStart       NodeType = "start"
	NodeTypeAction      NodeType = "action"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeIntegration NodeType = "integration"
	NodeTypeEnd         NodeType = "end"
)

// Known reports whether t is one of the node types the executor can run.
func (t NodeType) Known() bool {
	switch t {
	case NodeTypeStart, NodeTypeAction, NodeTypeCondition, NodeTypeIntegration, NodeTypeEnd:
		return true
	}
	return false
}

// Node represents a single step in a workflow graph.
type Node struct {
	ID          NodeID         `json:"id"                    yaml:"id"                    validate:"required"`
	Type        NodeType       `json:"type"                  yaml:"type"                  validate:"required"`
	Label       string         `json:"label"                 yaml:"label"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Integration string         `json:"integration,omitempty" yaml:"integration,omitempty"`
	Config      map[string]any `json:"config,omitempty"      yaml:"config,omitempty"`
	Position    *Position      `json:"position,omitempty"    yaml:"position,omitempty"`
}

// Position holds x/y coordinates for rendering the node on the canvas.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Edge represents a directed connection between two nodes.
type Edge struct {
	ID        EdgeID `json:"id"                  yaml:"id"                  validate:"required"`
	Source    NodeID `json:"source"              yaml:"source"              validate:"required"`
	Target    NodeID `json:"target"              yaml:"target"              validate:"required"`
	Label     string `json:"label,omitempty"     yaml:"label,omitempty"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Graph is a read-only snapshot of nodes and edges with lookup indexes.
// The first node wins when ids collide; Validate reports the duplicate.
type Graph struct {
	nodes []Node
	edges []Edge
	index map[NodeID]int
	out   map[NodeID][]int
	in    map[NodeID][]int
}

// NewGraph copies nodes and edges into a new Graph.
func NewGraph(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		nodes: make([]Node, len(nodes)),
		edges: make([]Edge, len(edges)),
		index: make(map[NodeID]int, len(nodes)),
		out:   make(map[NodeID][]int),
		in:    make(map[NodeID][]int),
	}
	copy(g.nodes, nodes)
	copy(g.edges, edges)

	for i, n := range g.nodes {
		if _, dup := g.index[n.ID]; !dup {
			g.index[n.ID] = i
		}
	}
	for i, e := range g.edges {
		g.out[e.Source] = append(g.out[e.Source], i)
		g.in[e.Target] = append(g.in[e.Target], i)
	}
	return g
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// HasNode reports whether a node with the given id exists.
func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.index[id]
	return ok
}

// NodesByID returns a map of node id to node.
func (g *Graph) NodesByID() map[NodeID]Node {
	m := make(map[NodeID]Node, len(g.index))
	for id, i := range g.index {
		m[id] = g.nodes[i]
	}
	return m
}

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the edges in declaration order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// NodesOfType returns the nodes of type t in declaration order.
func (g *Graph) NodesOfType(t NodeType) []Node {
	var out []Node
	for _, n := range g.nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// OutgoingEdges returns the edges leaving id in declaration order.
func (g *Graph) OutgoingEdges(id NodeID) []Edge {
	return g.pick(g.out[id])
}

// IncomingEdges returns the edges entering id in declaration order.
func (g *Graph) IncomingEdges(id NodeID) []Edge {
	return g.pick(g.in[id])
}

func (g *Graph) pick(idx []int) []Edge {
	if len(idx) == 0 {
		return nil
	}
	out := make([]Edge, len(idx))
	for i, j := range idx {
		out[i] = g.edges[j]
	}
	return out
}
