package workflow

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Graph is an editing session over a workflow's nodes and edges. Every edit keeps
// the edge set acyclic and free of edges pointing at missing nodes.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Connect validates and inserts an edge. A rejected edge leaves the graph untouched.
func (g *Graph) Connect(e Edge) (Edge, error) {
	e.SourceHandle = e.SourceHandleOrDefault()
	e.TargetHandle = e.TargetHandleOrDefault()

	for _, existing := range g.Edges {
		if existing.Source == e.Source && existing.Target == e.Target &&
			existing.SourceHandleOrDefault() == e.SourceHandle &&
			existing.TargetHandleOrDefault() == e.TargetHandle {
			return Edge{}, ErrDuplicateEdge
		}
	}

	if !ValidateConnection(e, g.Nodes) {
		return Edge{}, ErrConnectionRejected
	}
	if HasCycle(g.Nodes, g.Edges, e) {
		return Edge{}, ErrCycleDetected
	}

	if e.ID == "" {
		e.ID = "e-" + uuid.NewString()
	}
	g.Edges = append(g.Edges, e)
	g.refreshConnectedHandles()
	return e, nil
}

// RemoveEdge deletes an edge by id and reports whether it existed.
func (g *Graph) RemoveEdge(id string) bool {
	for i, e := range g.Edges {
		if e.ID == id {
			g.Edges = append(g.Edges[:i:i], g.Edges[i+1:]...)
			g.refreshConnectedHandles()
			return true
		}
	}
	return false
}

// RemoveNode deletes a node together with every edge touching it.
func (g *Graph) RemoveNode(id string) error {
	nodes := make([]Node, 0, len(g.Nodes))
	found := false
	for _, n := range g.Nodes {
		if n.ID == id {
			found = true
			continue
		}
		nodes = append(nodes, n)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	edges := make([]Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if e.Source == id || e.Target == id {
			continue
		}
		edges = append(edges, e)
	}

	g.Nodes = nodes
	g.Edges = edges
	g.refreshConnectedHandles()
	return nil
}

// refreshConnectedHandles recomputes which input handles of each node are wired.
func (g *Graph) refreshConnectedHandles() {
	wired := make(map[string]map[string]bool)
	for _, e := range g.Edges {
		if wired[e.Target] == nil {
			wired[e.Target] = map[string]bool{}
		}
		wired[e.Target][e.TargetHandleOrDefault()] = true
	}

	for i := range g.Nodes {
		handles := wired[g.Nodes[i].ID]
		if len(handles) == 0 {
			g.Nodes[i].Data.ConnectedHandles = nil
			continue
		}
		list := make([]string, 0, len(handles))
		for h := range handles {
			list = append(list, h)
		}
		sort.Strings(list)
		g.Nodes[i].Data.ConnectedHandles = list
	}
}

// SubGraph keeps the selected nodes and only the edges with both endpoints
// selected. Edges crossing the selection are dropped.
func SubGraph(selected []string, nodes []Node, edges []Edge) ([]Node, []Edge) {
	keep := make(map[string]bool, len(selected))
	for _, id := range selected {
		keep[id] = true
	}

	var subNodes []Node
	for _, n := range nodes {
		if keep[n.ID] {
			subNodes = append(subNodes, n)
		}
	}
	var subEdges []Edge
	for _, e := range edges {
		if keep[e.Source] && keep[e.Target] {
			subEdges = append(subEdges, e)
		}
	}
	return subNodes, subEdges
}

// ExpandDownstream returns the seeds plus every node reachable from them, in
// breadth first order.
func ExpandDownstream(seeds []string, edges []Edge) []string {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	visited := make(map[string]bool, len(seeds))
	var out, queue []string
	for _, id := range seeds {
		if !visited[id] {
			visited[id] = true
			out = append(out, id)
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if visited[next] {
				continue
			}
			visited[next] = true
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}
