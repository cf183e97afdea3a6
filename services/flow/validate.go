package flow

import "fmt"

// ViolationKind classifies a structural problem found by Validate.
type ViolationKind string

const (
	MissingStartNode   ViolationKind = "MissingStartNode"
	MissingEndNode     ViolationKind = "MissingEndNode"
	DanglingEdge       ViolationKind = "DanglingEdge"
	UnreachableNode    ViolationKind = "UnreachableNode"
	DeadEndNode        ViolationKind = "DeadEndNode"
	DuplicateNodeID    ViolationKind = "DuplicateNodeID"
	UnknownNodeType    ViolationKind = "UnknownNodeType"
	MissingIntegration ViolationKind = "MissingIntegration"
)

// Violation is one structural problem in a graph.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	NodeID  NodeID        `json:"nodeId,omitempty"`
	EdgeID  EdgeID        `json:"edgeId,omitempty"`
	Message string        `json:"message"`
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Has reports whether the result contains a violation of the given kind.
func (r ValidationResult) Has(kind ViolationKind) bool {
	for _, v := range r.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// Validate checks the structural well-formedness of g. It never fails; callers
// decide whether violations block execution.
func Validate(g *Graph) ValidationResult {
	var vs []Violation

	starts := g.NodesOfType(NodeTypeStart)
	switch len(starts) {
	case 0:
		vs = append(vs, Violation{Kind: MissingStartNode, Message: "workflow has no start node"})
	case 1:
	default:
		vs = append(vs, Violation{
			Kind:    MissingStartNode,
			Message: fmt.Sprintf("workflow has %d start nodes, expected exactly one", len(starts)),
		})
	}
	if len(g.NodesOfType(NodeTypeEnd)) == 0 {
		vs = append(vs, Violation{Kind: MissingEndNode, Message: "workflow has no end node"})
	}

	var reachable map[NodeID]bool
	if len(starts) == 1 {
		reachable = reachableFrom(g, starts[0].ID)
	}

	seen := make(map[NodeID]bool, len(g.nodes))
	for _, n := range g.nodes {
		if seen[n.ID] {
			vs = append(vs, Violation{
				Kind: DuplicateNodeID, NodeID: n.ID,
				Message: fmt.Sprintf("node id %q is used more than once", n.ID),
			})
			continue
		}
		seen[n.ID] = true

		if !n.Type.Known() {
			vs = append(vs, Violation{
				Kind: UnknownNodeType, NodeID: n.ID,
				Message: fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type),
			})
		}
		if n.Type == NodeTypeIntegration && n.Integration == "" {
			vs = append(vs, Violation{
				Kind: MissingIntegration, NodeID: n.ID,
				Message: fmt.Sprintf("integration node %q does not name an integration", n.ID),
			})
		}
		if reachable != nil && n.Type != NodeTypeStart && !reachable[n.ID] {
			vs = append(vs, Violation{
				Kind: UnreachableNode, NodeID: n.ID,
				Message: fmt.Sprintf("node %q cannot be reached from the start node", n.ID),
			})
		}
		if n.Type != NodeTypeEnd && len(g.out[n.ID]) == 0 {
			vs = append(vs, Violation{
				Kind: DeadEndNode, NodeID: n.ID,
				Message: fmt.Sprintf("node %q has no outgoing edge", n.ID),
			})
		}
	}

	for _, e := range g.edges {
		for _, end := range []NodeID{e.Source, e.Target} {
			if !g.HasNode(end) {
				vs = append(vs, Violation{
					Kind: DanglingEdge, EdgeID: e.ID,
					Message: fmt.Sprintf("edge %q references missing node %q", e.ID, end),
				})
			}
		}
	}

	return ValidationResult{Valid: len(vs) == 0, Violations: vs}
}

// reachableFrom walks edges breadth-first from start, ignoring edges that
// point at missing nodes.
func reachableFrom(g *Graph, start NodeID) map[NodeID]bool {
	seen := map[NodeID]bool{start: true}
	queue := []NodeID{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.OutgoingEdges(id) {
			if seen[e.Target] || !g.HasNode(e.Target) {
				continue
			}
			seen[e.Target] = true
			queue = append(queue, e.Target)
		}
	}
	return seen
}
