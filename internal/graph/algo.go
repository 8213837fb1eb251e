package graph

import (
	"context"
	"sort"
)

// ShortestPath runs a breadth-first search over outgoing edges and returns
// the node ids from `from` to `to`, endpoints included. maxDepth bounds the
// expansion rounds (<= 0 means unbounded). The context is checked every
// round so a cancelled search stops between expansions.
func ShortestPath(ctx context.Context, s Querier, from, to string, maxDepth int) ([]string, error) {
	if from == to {
		return []string{from}, nil
	}
	parent := map[string]string{from: ""}
	frontier := []string{from}
	depth := 0
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if maxDepth > 0 && depth >= maxDepth {
			break
		}
		var next []string
		for _, id := range frontier {
			neighbors, err := s.Adjacency(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, nb := range neighbors {
				if _, seen := parent[nb]; seen {
					continue
				}
				parent[nb] = id
				if nb == to {
					return buildPath(parent, to), nil
				}
				next = append(next, nb)
			}
		}
		frontier = next
		depth++
	}
	return nil, ErrNoPath
}

func buildPath(parent map[string]string, to string) []string {
	var rev []string
	for id := to; id != ""; id = parent[id] {
		rev = append(rev, id)
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

type RankEntry struct {
	ID     string `json:"id"`
	Degree int    `json:"degree"`
}

// DegreeRank walks the graph reachable from the seeds and ranks every
// visited node by out-degree, descending (id ascending on ties). limit <= 0
// returns all. Cancellation is checked every expansion round.
func DegreeRank(ctx context.Context, s Querier, seeds []string, limit int) ([]RankEntry, error) {
	visited := map[string]int{}
	frontier := make([]string, 0, len(seeds))
	seen := map[string]struct{}{}
	for _, id := range seeds {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		frontier = append(frontier, id)
	}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []string
		for _, id := range frontier {
			if _, done := visited[id]; done {
				continue
			}
			neighbors, err := s.Adjacency(ctx, id)
			if err != nil {
				return nil, err
			}
			visited[id] = len(neighbors)
			for _, nb := range neighbors {
				if _, done := visited[nb]; !done {
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}
	entries := make([]RankEntry, 0, len(visited))
	for id, deg := range visited {
		entries = append(entries, RankEntry{ID: id, Degree: deg})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Degree != entries[j].Degree {
			return entries[i].Degree > entries[j].Degree
		}
		return entries[i].ID < entries[j].ID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
