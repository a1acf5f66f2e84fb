package workflow

import "log/slog"

// ValidateConnection reports whether the candidate edge joins two existing,
// distinct nodes through type compatible handles. Handles missing from the
// catalog are treated as compatible so unknown node types can still be wired.
func ValidateConnection(candidate Edge, nodes []Node) bool {
	index := nodeIndex(nodes)

	source, ok := index[candidate.Source]
	if !ok {
		return false
	}
	target, ok := index[candidate.Target]
	if !ok {
		return false
	}
	if source.ID == target.ID {
		return false
	}

	from, ok := sourceKind(source.Type, candidate.SourceHandleOrDefault())
	if !ok {
		return true
	}
	to, ok := targetKind(target.Type, candidate.TargetHandleOrDefault())
	if !ok {
		return true
	}

	compatible := from == to || from == KindAny || to == KindAny
	if !compatible {
		slog.Debug("Connection kinds do not match", "source", source.ID, "target", target.ID, "from", from, "to", to)
	}
	return compatible
}

// dfs colors
const (
	unvisited = iota
	onStack
	done
)

// HasCycle reports whether adding candidate to edges would create a directed cycle.
// Every node is used as a DFS root so disconnected components are covered; only
// an edge back into the current DFS path counts, so diamonds are not cycles.
func HasCycle(nodes []Node, edges []Edge, candidate Edge) bool {
	adj := make(map[string][]string, len(nodes))
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	adj[candidate.Source] = append(adj[candidate.Source], candidate.Target)

	roots := make([]string, 0, len(nodes)+2)
	for _, n := range nodes {
		roots = append(roots, n.ID)
	}
	// the candidate endpoints may not be in nodes yet
	roots = append(roots, candidate.Source, candidate.Target)

	type frame struct {
		id   string
		next int
	}

	color := make(map[string]int, len(roots))
	for _, root := range roots {
		if color[root] != unvisited {
			continue
		}

		stack := []frame{{id: root}}
		color[root] = onStack
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			successors := adj[top.id]
			if top.next >= len(successors) {
				color[top.id] = done
				stack = stack[:len(stack)-1]
				continue
			}

			succ := successors[top.next]
			top.next++
			switch color[succ] {
			case onStack:
				return true
			case unvisited:
				color[succ] = onStack
				stack = append(stack, frame{id: succ})
			}
		}
	}
	return false
}
