package consolidate

import (
	"sort"

	"github.com/contextwave/cwme/internal/types"
)

// clusterByOverlap groups candidates into connected components under the
// "shares >= minOverlap node names" relation (§4.5 step 2). Components
// larger than maxCluster are split by re-clustering with a higher overlap
// requirement; components smaller than minCluster are discarded.
//
// Output order is deterministic: clusters are sorted by their lexically
// smallest member id, and members within a cluster are sorted by id.
func clusterByOverlap(candidates []*types.Context, minOverlap, minCluster, maxCluster int) [][]*types.Context {
	clusters := connectedComponents(candidates, minOverlap)

	var out [][]*types.Context
	for _, cluster := range clusters {
		out = append(out, splitOversized(cluster, minOverlap, minCluster, maxCluster)...)
	}

	for _, cluster := range out {
		sort.Slice(cluster, func(i, j int) bool { return cluster[i].ID < cluster[j].ID })
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) == 0 || len(out[j]) == 0 {
			return len(out[i]) > len(out[j])
		}
		return out[i][0].ID < out[j][0].ID
	})
	return out
}

func splitOversized(cluster []*types.Context, minOverlap, minCluster, maxCluster int) [][]*types.Context {
	if len(cluster) < minCluster {
		return nil
	}
	if len(cluster) <= maxCluster {
		return [][]*types.Context{cluster}
	}

	// Escalate min_overlap to split the component further (§4.5 step 2). A
	// component that stays whole at this threshold is re-split at the next
	// one; once the threshold exceeds every member's node count no pair is
	// connected, so the recursion always ends.
	escalated := connectedComponents(cluster, minOverlap+1)

	var out [][]*types.Context
	for _, sub := range escalated {
		out = append(out, splitOversized(sub, minOverlap+1, minCluster, maxCluster)...)
	}
	return out
}

// connectedComponents computes connected components of candidates under
// the relation "node-set overlap >= minOverlap", via union-find.
func connectedComponents(candidates []*types.Context, minOverlap int) [][]*types.Context {
	n := len(candidates)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	nodeSets := make([]map[string]struct{}, n)
	for i, c := range candidates {
		nodeSets[i] = c.NodeSet()
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if overlapCount(nodeSets[i], nodeSets[j]) >= minOverlap {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]*types.Context)
	for i, c := range candidates {
		root := find(i)
		groups[root] = append(groups[root], c)
	}

	out := make([][]*types.Context, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	return out
}

func overlapCount(a, b map[string]struct{}) int {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	count := 0
	for k := range small {
		if _, ok := big[k]; ok {
			count++
		}
	}
	return count
}
