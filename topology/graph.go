// ABOUTME: In-memory node store for a cluster topology, keyed by id and kept in insertion order.
// ABOUTME: Every operation is total: unknown ids return ErrNodeNotFound without touching state.
package topology

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNodeNotFound is returned when an operation names an id that is not in the graph.
	ErrNodeNotFound = errors.New("node not found")
	// ErrInvalidKind is returned when a node is created with an unknown kind.
	ErrInvalidKind = errors.New("invalid agent kind")
	// ErrInvalidID is returned when loaded records carry a negative id.
	ErrInvalidID = errors.New("agent ids must be non-negative")
)

// Graph holds the agents of one topology. It is not safe for concurrent use;
// callers serialize access (see editor.Session).
type Graph struct {
	nodes  map[int]*Node
	order  []int
	nextID int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[int]*Node)}
}

// Create adds a new agent of the given kind at pos with an empty name and
// class variant 0. Ids are allocated monotonically and never reused.
func (g *Graph) Create(kind Kind, pos Point) (*Node, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("create agent: %w: %d", ErrInvalidKind, int(kind))
	}
	n := &Node{ID: g.nextID, Kind: kind, Pos: pos}
	g.nextID++
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return n, nil
}

// Get returns the node with the given id.
func (g *Graph) Get(id int) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// NextID returns the id the next Create call will assign.
func (g *Graph) NextID() int {
	return g.nextID
}

// IndexOf returns the insertion index of id, or -1.
func (g *Graph) IndexOf(id int) int {
	return slices.Index(g.order, id)
}

// Auctioneer returns the first Auctioneer in insertion order.
func (g *Graph) Auctioneer() (*Node, bool) {
	for _, id := range g.order {
		if n := g.nodes[id]; n.Kind == KindAuctioneer {
			return n, true
		}
	}
	return nil, false
}

// Remove deletes a node and strips its id from every other node's children.
// Its own children stay in the graph, parentless.
func (g *Graph) Remove(id int) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("remove agent %d: %w", id, ErrNodeNotFound)
	}
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(v int) bool { return v == id })
	for _, n := range g.nodes {
		n.Children = slices.DeleteFunc(n.Children, func(v int) bool { return v == id })
	}
	return nil
}

// Rename sets the display name of a node.
func (g *Graph) Rename(id int, name string) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("rename agent %d: %w", id, ErrNodeNotFound)
	}
	n.Name = name
	return nil
}

// CycleVariant advances the node's class variant, wrapping to 0 after
// count-1. It returns the new variant.
func (g *Graph) CycleVariant(id, count int) (int, error) {
	n, ok := g.nodes[id]
	if !ok {
		return 0, fmt.Errorf("cycle variant of agent %d: %w", id, ErrNodeNotFound)
	}
	n.Variant++
	if n.Variant >= count {
		n.Variant = 0
	}
	return n.Variant, nil
}

// Move places a node at pos.
func (g *Graph) Move(id int, pos Point) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("move agent %d: %w", id, ErrNodeNotFound)
	}
	n.Pos = pos
	return nil
}

// Translate shifts every node by (dx, dy).
func (g *Graph) Translate(dx, dy float64) {
	for _, n := range g.nodes {
		n.Pos.X += dx
		n.Pos.Y += dy
	}
}

// Scale multiplies every position by f.
func (g *Graph) Scale(f float64) {
	for _, n := range g.nodes {
		n.Pos.X *= f
		n.Pos.Y *= f
	}
}

// AttachChild appends childID to the parent's children without checking any
// structural rule. Use validator.Connect for operator-initiated edges.
func (g *Graph) AttachChild(parentID, childID int) error {
	parent, ok := g.nodes[parentID]
	if !ok {
		return fmt.Errorf("attach to agent %d: %w", parentID, ErrNodeNotFound)
	}
	if _, ok := g.nodes[childID]; !ok {
		return fmt.Errorf("attach agent %d: %w", childID, ErrNodeNotFound)
	}
	parent.Children = append(parent.Children, childID)
	return nil
}

// Detach removes a node from its parent's children and clears its own
// children, leaving it unconnected.
func (g *Graph) Detach(id int) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("disconnect agent %d: %w", id, ErrNodeNotFound)
	}
	for _, other := range g.nodes {
		if other.ID == id {
			continue
		}
		other.Children = slices.DeleteFunc(other.Children, func(v int) bool { return v == id })
	}
	n.Children = nil
	return nil
}

// Parent returns the first node in insertion order that lists id as a child.
func (g *Graph) Parent(id int) (*Node, bool) {
	for _, pid := range g.order {
		if pid == id {
			continue
		}
		if p := g.nodes[pid]; p.HasChild(id) {
			return p, true
		}
	}
	return nil, false
}

// ParentEdges returns every place id appears in another node's children.
func (g *Graph) ParentEdges(id int) []EdgeRef {
	var edges []EdgeRef
	for _, pid := range g.order {
		if pid == id {
			continue
		}
		for i, cid := range g.nodes[pid].Children {
			if cid == id {
				edges = append(edges, EdgeRef{ParentID: pid, Index: i})
			}
		}
	}
	return edges
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:  make(map[int]*Node, len(g.nodes)),
		order:  slices.Clone(g.order),
		nextID: g.nextID,
	}
	for id, n := range g.nodes {
		c.nodes[id] = n.clone()
	}
	return c
}
