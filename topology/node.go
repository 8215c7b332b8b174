// ABOUTME: Agent node type and the small value types that describe its placement and edges.
// ABOUTME: Nodes reference children by id so the graph can be serialized without pointers.
package topology

import "slices"

// Point is a canvas position in pixels.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is one agent in the cluster.
type Node struct {
	ID       int
	Kind     Kind
	Variant  int
	Name     string
	Children []int
	Pos      Point

	// Depth and SortKey are derived by the layout engine.
	Depth   int
	SortKey int
}

// HasChildren reports whether any agent is bound under n.
func (n *Node) HasChildren() bool {
	return len(n.Children) > 0
}

// HasChild reports whether id is listed among n's children.
func (n *Node) HasChild(id int) bool {
	return slices.Contains(n.Children, id)
}

func (n *Node) clone() *Node {
	c := *n
	c.Children = slices.Clone(n.Children)
	return &c
}

// EdgeRef locates one occurrence of a node in a parent's child list.
type EdgeRef struct {
	ParentID int
	Index    int
}
