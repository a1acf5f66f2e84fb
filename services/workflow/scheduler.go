package workflow

import (
	"fmt"
	"sort"
)

// ScheduleLevels partitions the nodes into levels with Kahn's algorithm. Every
// node's dependencies sit in a strictly earlier level; nodes inside a level have
// no order between them. Ids inside a level are sorted only to keep logs stable.
//
// Edges whose endpoints are not in nodes are ignored. A partition that leaves
// nodes behind means the edges were not acyclic and is reported as
// ErrIncompletePartition.
func ScheduleLevels(nodes []Node, edges []Edge) ([][]string, error) {
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		inDegree[n.ID] = 0
	}

	successors := make(map[string][]string)
	for _, e := range edges {
		if _, ok := inDegree[e.Source]; !ok {
			continue
		}
		if _, ok := inDegree[e.Target]; !ok {
			continue
		}
		successors[e.Source] = append(successors[e.Source], e.Target)
		inDegree[e.Target]++
	}

	var frontier []string
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		if inDegree[n.ID] == 0 {
			frontier = append(frontier, n.ID)
		}
	}

	var levels [][]string
	placed := 0
	for len(frontier) > 0 {
		sort.Strings(frontier)
		levels = append(levels, frontier)
		placed += len(frontier)

		var next []string
		for _, id := range frontier {
			for _, succ := range successors[id] {
				inDegree[succ]--
				if inDegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		frontier = next
	}

	if placed != len(inDegree) {
		var left []string
		for id, d := range inDegree {
			if d > 0 {
				left = append(left, id)
			}
		}
		sort.Strings(left)
		return levels, fmt.Errorf("%w: %v", ErrIncompletePartition, left)
	}
	return levels, nil
}
