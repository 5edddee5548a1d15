package membership

import (
	mapset "github.com/deckarep/golang-set"

	"github.com/mtmcore/arbiter/internal/nodemask"
)

// adjacency is a symmetric reachability matrix built by merging every
// node's self-reported connectivity_mask (§4.2 "Clique computation").
// views[i] is node i's own connectivity_mask; a pair (i, j) is an edge
// only if both i sees j and j sees i, since a one-sided heartbeat is
// not proof of a usable bidirectional link.
type adjacency map[int]nodemask.NodeMask

func buildAdjacency(views map[int]nodemask.NodeMask) adjacency {
	adj := adjacency{}
	for i, vi := range views {
		edges := nodemask.NodeMask(0)
		for _, j := range vi.Nodes() {
			if vj, ok := views[j]; ok && vj.Has(i) {
				edges = edges.Set(j)
			}
		}
		adj[i] = edges.Set(i)
	}
	return adj
}

func isClique(adj adjacency, members []int) bool {
	for _, m := range members {
		for _, other := range members {
			if other != m && !adj[m].Has(other) {
				return false
			}
		}
	}
	return true
}

// LargestClique computes the largest clique containing self over the
// merged connectivity views, per §4.2: "The algorithm is exact (N <=
// MAX_NODES is small); ties between equal-sized cliques are broken by
// lexicographically smallest membership." views must include an entry
// for self. golang-set (the pack's deckarep/golang-set dependency)
// holds the set of remaining candidate nodes during the search, which
// is cloned and shrunk as nodes are tried; membership tests themselves
// use nodemask's own primitives.
func LargestClique(self int, views map[int]nodemask.NodeMask) nodemask.NodeMask {
	adj := buildAdjacency(views)
	all := make([]int, 0, len(views))
	for n := range views {
		if n != self {
			all = append(all, n)
		}
	}

	var best []int
	var search func(candidates mapset.Set, chosen []int)
	search = func(candidates mapset.Set, chosen []int) {
		if candidates.Cardinality() == 0 {
			full := append([]int{self}, chosen...)
			if isClique(adj, full) && better(full, best) {
				best = append([]int(nil), full...)
			}
			return
		}
		it := candidates.Iter()
		n := (<-it).(int)
		rest := candidates.Clone()
		rest.Remove(n)

		// branch: include n
		search(rest, append(append([]int(nil), chosen...), n))
		// branch: exclude n
		search(rest, chosen)
	}

	cset := mapset.NewSet()
	for _, n := range all {
		cset.Add(n)
	}
	search(cset, nil)

	if best == nil {
		best = []int{self}
	}
	return nodemask.Of(best...)
}

// better reports whether candidate beats incumbent: larger size wins,
// equal size breaks ties by lexicographically smallest sorted
// membership (§4.2).
func better(candidate, incumbent []int) bool {
	if incumbent == nil {
		return isCliqueSized(candidate)
	}
	if len(candidate) != len(incumbent) {
		return len(candidate) > len(incumbent)
	}
	ca, ci := sortedCopy(candidate), sortedCopy(incumbent)
	for i := range ca {
		if ca[i] != ci[i] {
			return ca[i] < ci[i]
		}
	}
	return false
}

func isCliqueSized(c []int) bool { return len(c) > 0 }

func sortedCopy(xs []int) []int {
	out := append([]int(nil), xs...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
