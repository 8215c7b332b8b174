// ABOUTME: Derived tree metrics used by the layout engine: depth along the parent chain and sibling sort keys.
// ABOUTME: Parent chains are walked with a visited set so corrupted cyclic input cannot loop forever.
package layout

import (
	"errors"

	"github.com/2389-research/clusterdesigner/topology"
)

// ErrCycle marks a parent chain that revisits a node.
var ErrCycle = errors.New("parent chain contains a cycle")

// internalKeyBias pulls nodes with children ahead of leaves within a level.
const internalKeyBias = 1000

// parents maps each node id to the first node in insertion order that lists
// it as a child.
func parents(g *topology.Graph) map[int]int {
	out := make(map[int]int, g.Len())
	for _, p := range g.Nodes() {
		for _, cid := range p.Children {
			if cid == p.ID {
				continue
			}
			if _, seen := out[cid]; !seen {
				out[cid] = p.ID
			}
		}
	}
	return out
}

// Depths returns the number of ancestors of every node. Nodes whose ancestry
// loops get depth 0 and are returned in cyclic, in insertion order.
func Depths(g *topology.Graph) (depths map[int]int, cyclic []int) {
	parentOf := parents(g)
	depths = make(map[int]int, g.Len())
	for _, n := range g.Nodes() {
		d, err := depthOf(n.ID, parentOf)
		if err != nil {
			cyclic = append(cyclic, n.ID)
			d = 0
		}
		depths[n.ID] = d
	}
	return depths, cyclic
}

// Depth returns the depth of a single node.
func Depth(g *topology.Graph, id int) (int, error) {
	return depthOf(id, parents(g))
}

func depthOf(id int, parentOf map[int]int) (int, error) {
	seen := map[int]bool{id: true}
	depth := 0
	for {
		p, ok := parentOf[id]
		if !ok {
			return depth, nil
		}
		if seen[p] {
			return 0, ErrCycle
		}
		seen[p] = true
		depth++
		id = p
	}
}

// SortKeys orders siblings: the insertion index of the node's parent (0 when
// parentless), minus 1000 when the node has children of its own.
func SortKeys(g *topology.Graph) map[int]int {
	parentOf := parents(g)
	keys := make(map[int]int, g.Len())
	for _, n := range g.Nodes() {
		key := 0
		if p, ok := parentOf[n.ID]; ok {
			key = g.IndexOf(p)
		}
		if n.HasChildren() {
			key -= internalKeyBias
		}
		keys[n.ID] = key
	}
	return keys
}
