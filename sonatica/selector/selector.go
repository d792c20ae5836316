// Package selector ranks nodes for player placement and failover.
package selector

import (
	"cmp"
	"slices"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

// Candidate is the view of a node a policy needs.
type Candidate interface {
	Identifier() string
	Connected() bool
	Enabled() bool
	Stats() *protocol.Stats
}

// Sorter returns the eligible subset of nodes in priority order. It must not
// modify its input.
type Sorter[N Candidate] func(nodes []N) []N

// Eligible keeps nodes that are connected and enabled, in input order.
func Eligible[N Candidate](nodes []N) []N {
	out := make([]N, 0, len(nodes))
	for _, n := range nodes {
		if n.Connected() && n.Enabled() {
			out = append(out, n)
		}
	}
	return out
}

// Load returns lavalinkLoad per core as a percentage. Missing stats count as
// an idle node.
func Load(stats *protocol.Stats) float64 {
	if stats == nil || stats.CPU.Cores <= 0 {
		return 0
	}
	return stats.CPU.LavalinkLoad / float64(stats.CPU.Cores) * 100
}

// Playing returns the playing player count, zero without stats.
func Playing(stats *protocol.Stats) int {
	if stats == nil {
		return 0
	}
	return stats.PlayingPlayers
}

// LeastLoad orders eligible nodes by ascending CPU load.
func LeastLoad[N Candidate](nodes []N) []N {
	return sortBy(nodes, func(n N) float64 { return Load(n.Stats()) })
}

// LeastUsed orders eligible nodes by ascending playing player count.
func LeastUsed[N Candidate](nodes []N) []N {
	return sortBy(nodes, func(n N) float64 { return float64(Playing(n.Stats())) })
}

// First applies sorter and returns the best node that also passes filter.
func First[N Candidate](nodes []N, sorter Sorter[N], filter func(N) bool) (N, bool) {
	for _, n := range sorter(nodes) {
		if filter == nil || filter(n) {
			return n, true
		}
	}
	var zero N
	return zero, false
}

func sortBy[N Candidate](nodes []N, key func(N) float64) []N {
	out := Eligible(nodes)
	keys := make(map[string]float64, len(out))
	for _, n := range out {
		keys[n.Identifier()] = key(n)
	}
	slices.SortStableFunc(out, func(a, b N) int {
		if c := cmp.Compare(keys[a.Identifier()], keys[b.Identifier()]); c != 0 {
			return c
		}
		return cmp.Compare(a.Identifier(), b.Identifier())
	})
	return out
}
