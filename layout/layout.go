// ABOUTME: Tree auto-layout for cluster topologies: depth levels, sibling grouping, and overlap avoidance.
// ABOUTME: Runs a centered pass first and falls back once to a left-aligned pass before warning.
package layout

import (
	"math"
	"sort"

	"github.com/2389-research/clusterdesigner/topology"
)

const (
	// BaseBlockSize is the grid unit in pixels at zoom 1.
	BaseBlockSize = 140.0
	// DefaultCanvasWidth is the canvas width assumed when none is given.
	DefaultCanvasWidth = 1400.0
	// ZoomStep is the factor applied per zoom in or out step.
	ZoomStep = 1.2

	// WarnNotOrganized is reported when both passes leave overlaps.
	WarnNotOrganized = "failed to organize the tree"

	overlapFactor = 0.95
	maxNudges     = 10
	parkSpacing   = 10.0
)

// Options controls the layout geometry.
type Options struct {
	BlockSize   float64
	CanvasWidth float64
}

// DefaultOptions returns the options for zoom 1 on the default canvas.
func DefaultOptions() Options {
	return Options{BlockSize: BaseBlockSize, CanvasWidth: DefaultCanvasWidth}
}

// BlockSizeForZoom returns the grid unit for a zoom level.
func BlockSizeForZoom(zoom float64) float64 {
	if zoom <= 0 {
		zoom = 1
	}
	return BaseBlockSize * zoom
}

func (o Options) withDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = BaseBlockSize
	}
	if o.CanvasWidth <= 0 {
		o.CanvasWidth = DefaultCanvasWidth
	}
	return o
}

// Result describes how a layout run ended.
type Result struct {
	Passes    int    `json:"passes"`
	Messy     bool   `json:"messy"`
	Converged bool   `json:"converged"`
	Warning   string `json:"warning,omitempty"`
	// Cyclic lists agents whose ancestry loops; they were placed at depth 0.
	Cyclic []int `json:"cyclic,omitempty"`
}

// Organize assigns a position, depth, and sort key to every node. It never
// fails; when no pass removes every overlap the result carries a warning and
// the positions of the last pass.
func Organize(g *topology.Graph, opts Options) Result {
	opts = opts.withDefaults()
	bs := opts.BlockSize
	nodes := g.Nodes()

	depths, cyclic := Depths(g)
	keys := SortKeys(g)
	for _, n := range nodes {
		n.Depth = depths[n.ID]
		n.SortKey = keys[n.ID]
	}
	levels := levelsOf(nodes)

	res := Result{Cyclic: cyclic}
	for _, messy := range []bool{false, true} {
		res.Passes++
		res.Messy = messy
		place(g, nodes, levels, messy, opts)
		Snap(nodes, bs)
		if !Overlaps(nodes, bs) {
			res.Converged = true
			break
		}
	}
	if !res.Converged {
		res.Warning = WarnNotOrganized
	}
	return res
}

// place runs one layout pass over the levels, deepest first so parents can
// be centered over already-placed children.
func place(g *topology.Graph, nodes []*topology.Node, levels [][]*topology.Node, messy bool, opts Options) {
	bs := opts.BlockSize
	center := jsRound(0.5 * opts.CanvasWidth / bs)

	for i, n := range nodes {
		n.Pos = topology.Point{X: float64(i) * parkSpacing * bs, Y: -parkSpacing * bs}
	}

	for d := len(levels) - 1; d >= 0; d-- {
		level := levels[d]
		offset := 0.5 * float64(len(level))
		if messy {
			offset = 0
		}
		for e, n := range level {
			n.Pos.X = (float64(e) - offset + center) * bs
			n.Pos.Y = float64(d) * bs
			if messy {
				continue
			}
			if n.HasChildren() {
				if x, ok := childrenMeanX(g, n); ok {
					n.Pos.X = x
				}
				continue
			}
			for f := 0; f < maxNudges; f++ {
				if !Overlaps(nodes, bs) {
					break
				}
				step := float64(f) * 0.5 * bs
				if f%2 == 0 {
					step = -step
				}
				n.Pos.X += step
			}
		}
	}
}

func childrenMeanX(g *topology.Graph, n *topology.Node) (float64, bool) {
	var sum float64
	var count int
	for _, cid := range n.Children {
		if c, ok := g.Get(cid); ok {
			sum += c.Pos.X
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// levelsOf buckets nodes by depth and orders each level by sort key.
func levelsOf(nodes []*topology.Node) [][]*topology.Node {
	maxDepth := -1
	for _, n := range nodes {
		maxDepth = max(maxDepth, n.Depth)
	}
	levels := make([][]*topology.Node, maxDepth+1)
	for _, n := range nodes {
		levels[n.Depth] = append(levels[n.Depth], n)
	}
	for _, level := range levels {
		sort.SliceStable(level, func(i, j int) bool { return level[i].SortKey < level[j].SortKey })
	}
	return levels
}

// Overlaps reports whether any two nodes sit closer than the block size
// allows.
func Overlaps(nodes []*topology.Node, blockSize float64) bool {
	limit := blockSize * blockSize * overlapFactor
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			dx := nodes[i].Pos.X - nodes[j].Pos.X
			dy := nodes[i].Pos.Y - nodes[j].Pos.Y
			if dx*dx+dy*dy < limit {
				return true
			}
		}
	}
	return false
}

// Snap moves every node onto the half-block grid.
func Snap(nodes []*topology.Node, blockSize float64) {
	for _, n := range nodes {
		n.Pos = SnapPoint(n.Pos, blockSize)
	}
}

// SnapPoint returns p aligned to the half-block grid, offset by blockSize/28.
func SnapPoint(p topology.Point, blockSize float64) topology.Point {
	return topology.Point{X: SnapValue(p.X, blockSize), Y: SnapValue(p.Y, blockSize)}
}

// SnapValue aligns one coordinate.
func SnapValue(v, blockSize float64) float64 {
	half := 0.5 * blockSize
	return blockSize/28 + half*jsRound(v/half)
}

// jsRound rounds half toward positive infinity.
func jsRound(v float64) float64 {
	return math.Floor(v + 0.5)
}
