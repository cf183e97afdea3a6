package flow

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	layoutOriginX = 100
	layoutOriginY = 100
	layoutColumn  = 200
	layoutRow     = 120

	maxWorkflowName = 50
)

// AutoLayout returns copies of nodes with positions assigned left to right by
// breadth-first depth from the start node. Nodes sharing a depth are stacked
// vertically. Nodes that cannot be reached are placed in one trailing column.
func AutoLayout(nodes []Node, edges []Edge) []Node {
	if len(nodes) == 0 {
		return []Node{}
	}
	g := NewGraph(nodes, edges)

	depth := make(map[NodeID]int, len(nodes))
	var queue []NodeID
	for _, root := range layoutRoots(g) {
		if _, seen := depth[root]; !seen {
			depth[root] = 0
			queue = append(queue, root)
		}
	}
	maxDepth := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.OutgoingEdges(id) {
			if _, seen := depth[e.Target]; seen || !g.HasNode(e.Target) {
				continue
			}
			depth[e.Target] = depth[id] + 1
			if depth[e.Target] > maxDepth {
				maxDepth = depth[e.Target]
			}
			queue = append(queue, e.Target)
		}
	}

	rows := make(map[int]int)
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		col, ok := depth[n.ID]
		if !ok {
			col = maxDepth + 1
		}
		row := rows[col]
		rows[col]++
		n.Position = &Position{
			X: float64(layoutOriginX + col*layoutColumn),
			Y: float64(layoutOriginY + row*layoutRow),
		}
		out[i] = n
	}
	return out
}

// layoutRoots prefers start nodes, then nodes with no incoming edge, then the
// first node.
func layoutRoots(g *Graph) []NodeID {
	var roots []NodeID
	for _, n := range g.NodesOfType(NodeTypeStart) {
		roots = append(roots, n.ID)
	}
	if len(roots) > 0 {
		return roots
	}
	for _, n := range g.nodes {
		if len(g.in[n.ID]) == 0 {
			roots = append(roots, n.ID)
		}
	}
	if len(roots) == 0 {
		roots = append(roots, g.nodes[0].ID)
	}
	return roots
}

// WorkflowName derives a display name from a free-text description.
func WorkflowName(description string) string {
	name := strings.TrimSpace(description)
	if name == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(name)
	name = string(unicode.ToUpper(r)) + name[size:]

	if utf8.RuneCountInString(name) > maxWorkflowName {
		name = strings.TrimSpace(string([]rune(name)[:maxWorkflowName]))
	}
	return name
}
