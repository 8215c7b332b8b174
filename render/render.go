// ABOUTME: Converts a cluster topology to DOT text with pinned canvas positions and renders it via go-graphviz.
// ABOUTME: Provides ToDOT, RenderDOTSource, and Render for svg, png, and raw dot output.
package render

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/2389-research/clusterdesigner/catalog"
	"github.com/2389-research/clusterdesigner/topology"
)

// Kind fill colors.
const (
	ColorAuctioneer   = "#FFC107"
	ColorConcentrator = "#90CAF9"
	ColorObjective    = "#CE93D8"
	ColorDevice       = "#A5D6A7"
)

const pointsPerInch = 72.0

// ToDOT serializes a topology into a DOT digraph. Every agent is pinned at
// its canvas position so the preview matches the editor, and edges run from
// parent to child. Node order follows creation order.
func ToDOT(g *topology.Graph, cat *catalog.Catalog, blockSize float64) string {
	if g == nil {
		return ""
	}
	if blockSize <= 0 {
		blockSize = 140
	}

	var buf strings.Builder
	buf.WriteString("digraph cluster {\n")
	writeAttrsBlock(&buf, map[string]string{
		"outputorder": "edgesfirst",
		"splines":     "line",
	})
	buf.WriteString(fmt.Sprintf("  node [%s]\n", formatAttrs(map[string]string{
		"style":     "filled",
		"fontname":  "Helvetica",
		"fontsize":  "10",
		"width":     fmt.Sprintf("%.3f", 0.8*blockSize/pointsPerInch),
		"height":    fmt.Sprintf("%.3f", 0.5*blockSize/pointsPerInch),
		"fixedsize": "true",
	})))

	nodes := g.Nodes()
	for _, n := range nodes {
		writeNode(&buf, n, cat)
	}
	for _, n := range nodes {
		for _, child := range n.Children {
			if _, ok := g.Get(child); !ok {
				continue
			}
			fmt.Fprintf(&buf, "  %s -> %s\n", nodeID(n.ID), nodeID(child))
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// Render produces a preview of the topology in the given format.
// Supported formats: "dot" (returns DOT text), "svg", "png".
func Render(ctx context.Context, g *topology.Graph, cat *catalog.Catalog, blockSize float64, format string) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("cannot render nil topology")
	}
	return RenderDOTSource(ctx, ToDOT(g, cat, blockSize), format)
}

// RenderDOTSource renders raw DOT text with the neato engine, which honors
// pinned positions. For "dot" format the input is returned as-is.
func RenderDOTSource(ctx context.Context, dotText string, format string) ([]byte, error) {
	if dotText == "" {
		return nil, fmt.Errorf("cannot render empty DOT text")
	}

	var out graphviz.Format
	switch format {
	case "dot":
		return []byte(dotText), nil
	case "svg":
		out = graphviz.SVG
	case "png":
		out = graphviz.PNG
	default:
		return nil, fmt.Errorf("unsupported format %q: supported formats are dot, svg, png", format)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	parsed, err := graphviz.ParseBytes([]byte(dotText))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer parsed.Close()

	var buf bytes.Buffer
	if err := gv.SetLayout(graphviz.NEATO).Render(ctx, parsed, out, &buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func writeNode(buf *strings.Builder, n *topology.Node, cat *catalog.Catalog) {
	label := n.Kind.String()
	if v, ok := cat.Lookup(n.Kind, n.Variant); ok && v.ClassName != "" && v.ClassName != label {
		label += " (" + v.ClassName + ")"
	}
	if n.Name != "" {
		label += "\n" + n.Name
	}
	// Canvas y grows downward, graphviz y grows upward.
	attrs := map[string]string{
		"label":     label,
		"shape":     shapeFor(n.Kind),
		"fillcolor": colorFor(n.Kind),
		"pos":       fmt.Sprintf("%.2f,%.2f!", n.Pos.X/pointsPerInch, -n.Pos.Y/pointsPerInch),
	}
	fmt.Fprintf(buf, "  %s [%s]\n", nodeID(n.ID), formatAttrs(attrs))
}

func shapeFor(k topology.Kind) string {
	switch k {
	case topology.KindAuctioneer:
		return "doubleoctagon"
	case topology.KindConcentrator:
		return "box"
	case topology.KindObjective:
		return "diamond"
	default:
		return "ellipse"
	}
}

func colorFor(k topology.Kind) string {
	switch k {
	case topology.KindAuctioneer:
		return ColorAuctioneer
	case topology.KindConcentrator:
		return ColorConcentrator
	case topology.KindObjective:
		return ColorObjective
	default:
		return ColorDevice
	}
}

func nodeID(id int) string {
	return fmt.Sprintf("n%d", id)
}

// writeAttrsBlock writes graph-level attributes as individual lines.
func writeAttrsBlock(buf *strings.Builder, attrs map[string]string) {
	for _, k := range sortedKeys(attrs) {
		fmt.Fprintf(buf, "  %s=%q\n", k, attrs[k])
	}
}

// formatAttrs formats a map of attributes as a DOT attribute list (key="value", key="value").
func formatAttrs(attrs map[string]string) string {
	keys := sortedKeys(attrs)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, attrs[k]))
	}
	return strings.Join(parts, ", ")
}

// sortedKeys returns the keys of a map in sorted order for deterministic output.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
