// Package nodemask implements NodeMask, the bitset of cluster node ids
// described in spec §3/GLOSSARY: bit i-1 stands for node i, bounded by
// configs.MaxNodes so membership sets fit a machine word.
package nodemask

import "math/bits"

// NodeMask is a bitset of node ids in [1..MaxNodes]. Bit i-1 represents
// node i. A uint16 covers MAX_NODES = 16 exactly.
type NodeMask uint16

// Of builds a mask from a list of node ids.
func Of(ids ...int) NodeMask {
	var m NodeMask
	for _, id := range ids {
		m = m.Set(id)
	}
	return m
}

// Set returns the mask with node id inserted.
func (m NodeMask) Set(id int) NodeMask {
	return m | (1 << uint(id-1))
}

// Clear returns the mask with node id removed.
func (m NodeMask) Clear(id int) NodeMask {
	return m &^ (1 << uint(id-1))
}

// Has reports whether node id is a member of the mask.
func (m NodeMask) Has(id int) bool {
	return m&(1<<uint(id-1)) != 0
}

// Union returns m | other.
func (m NodeMask) Union(other NodeMask) NodeMask { return m | other }

// Intersect returns m & other.
func (m NodeMask) Intersect(other NodeMask) NodeMask { return m & other }

// Diff returns the nodes in m that are not in other.
func (m NodeMask) Diff(other NodeMask) NodeMask { return m &^ other }

// Count returns the number of set bits.
func (m NodeMask) Count() int { return bits.OnesCount16(uint16(m)) }

// Empty reports whether the mask has no members.
func (m NodeMask) Empty() bool { return m == 0 }

// LowestSetBit returns the lowest node id present in the mask, or 0 if
// the mask is empty.
func (m NodeMask) LowestSetBit() int {
	if m == 0 {
		return 0
	}
	return bits.TrailingZeros16(uint16(m)) + 1
}

// Nodes returns the member node ids in ascending order.
func (m NodeMask) Nodes() []int {
	res := make([]int, 0, m.Count())
	for id := 1; id <= 16; id++ {
		if m.Has(id) {
			res = append(res, id)
		}
	}
	return res
}

// IsSubsetOf reports whether every member of m is also a member of other.
func (m NodeMask) IsSubsetOf(other NodeMask) bool {
	return m&^other == 0
}
