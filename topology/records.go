// ABOUTME: Wire records for loading, saving, and exporting a topology plus cluster-level settings.
// ABOUTME: ReplaceAll rebuilds the graph from records while keeping id allocation monotonic.
package topology

import (
	"fmt"
	"slices"
)

// NodeRecord is the persisted form of a node.
type NodeRecord struct {
	ID           int     `json:"id" yaml:"id"`
	Kind         Kind    `json:"kind" yaml:"kind"`
	Name         string  `json:"name" yaml:"name"`
	ClassVariant int     `json:"classVariant" yaml:"classVariant"`
	ChildIDs     []int   `json:"childIds" yaml:"childIds"`
	X            float64 `json:"x" yaml:"x"`
	Y            float64 `json:"y" yaml:"y"`
}

// ExportRecord is a NodeRecord without canvas coordinates.
type ExportRecord struct {
	ID           int    `json:"id" yaml:"id"`
	Kind         Kind   `json:"kind" yaml:"kind"`
	Name         string `json:"name" yaml:"name"`
	ClassVariant int    `json:"classVariant" yaml:"classVariant"`
	ChildIDs     []int  `json:"childIds" yaml:"childIds"`
}

// Settings are the cluster-level parameters written into the market basis
// block of an exported configuration. Nil numeric fields are missing values.
type Settings struct {
	FileName     string   `json:"fileName" yaml:"fileName" mapstructure:"fileName"`
	ExportPath   string   `json:"exportPath" yaml:"exportPath" mapstructure:"exportPath"`
	Reference    *int64   `json:"reference" yaml:"reference" mapstructure:"reference"`
	Min          *float64 `json:"min" yaml:"min" mapstructure:"min"`
	Max          *float64 `json:"max" yaml:"max" mapstructure:"max"`
	Step         *int64   `json:"step" yaml:"step" mapstructure:"step"`
	Significance *int64   `json:"significance" yaml:"significance" mapstructure:"significance"`
	Zoom         float64  `json:"zoom" yaml:"zoom" mapstructure:"zoom"`
}

// DefaultSettings returns the settings a fresh design starts with.
func DefaultSettings() Settings {
	return Settings{
		Reference:    ptr[int64](0),
		Min:          ptr(0.0),
		Max:          ptr(0.99),
		Step:         ptr[int64](100),
		Significance: ptr[int64](2),
		Zoom:         1,
	}
}

func ptr[T any](v T) *T { return &v }

// Records returns the persisted form of every node in insertion order.
func (g *Graph) Records() []NodeRecord {
	out := make([]NodeRecord, 0, len(g.order))
	for _, n := range g.Nodes() {
		out = append(out, NodeRecord{
			ID:           n.ID,
			Kind:         n.Kind,
			Name:         n.Name,
			ClassVariant: n.Variant,
			ChildIDs:     nonNil(n.Children),
			X:            n.Pos.X,
			Y:            n.Pos.Y,
		})
	}
	return out
}

// ExportRecords returns the coordinate-free form of every node.
func (g *Graph) ExportRecords() []ExportRecord {
	out := make([]ExportRecord, 0, len(g.order))
	for _, n := range g.Nodes() {
		out = append(out, ExportRecord{
			ID:           n.ID,
			Kind:         n.Kind,
			Name:         n.Name,
			ClassVariant: n.Variant,
			ChildIDs:     nonNil(n.Children),
		})
	}
	return out
}

// ReplaceAll swaps the whole node set for the given records. Ids must be
// non-negative. The next id becomes max(current next id, max record id + 1).
// On error the graph is left untouched.
func (g *Graph) ReplaceAll(records []NodeRecord) error {
	nodes := make(map[int]*Node, len(records))
	order := make([]int, 0, len(records))
	next := g.nextID
	for _, r := range records {
		if r.ID < 0 {
			return fmt.Errorf("load agent %d: %w", r.ID, ErrInvalidID)
		}
		if !r.Kind.Valid() {
			return fmt.Errorf("load agent %d: %w: %d", r.ID, ErrInvalidKind, int(r.Kind))
		}
		if _, dup := nodes[r.ID]; dup {
			return fmt.Errorf("load agent %d: duplicate id", r.ID)
		}
		nodes[r.ID] = &Node{
			ID:       r.ID,
			Kind:     r.Kind,
			Variant:  r.ClassVariant,
			Name:     r.Name,
			Children: slices.Clone(r.ChildIDs),
			Pos:      Point{X: r.X, Y: r.Y},
		}
		order = append(order, r.ID)
		if r.ID+1 > next {
			next = r.ID + 1
		}
	}
	g.nodes = nodes
	g.order = order
	g.nextID = next
	return nil
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return slices.Clone(ids)
}

// Clone returns a copy of s that shares no pointers with it.
func (s Settings) Clone() Settings {
	c := s
	c.Reference = clonePtr(s.Reference)
	c.Min = clonePtr(s.Min)
	c.Max = clonePtr(s.Max)
	c.Step = clonePtr(s.Step)
	c.Significance = clonePtr(s.Significance)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	return ptr(*p)
}
