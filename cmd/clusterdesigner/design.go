// ABOUTME: Reads and writes saved design files ({"agents","settings"} JSON) for the file-based subcommands.
// ABOUTME: Also resolves the icon catalog shared by tree, preview, and export.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/2389-research/clusterdesigner/catalog"
	"github.com/2389-research/clusterdesigner/internal/atomicfile"
	"github.com/2389-research/clusterdesigner/layout"
	"github.com/2389-research/clusterdesigner/persist"
	"github.com/2389-research/clusterdesigner/topology"
)

// design is a saved snapshot rebuilt into a graph.
type design struct {
	graph    *topology.Graph
	settings topology.Settings
}

// readDesign loads a design file. "-" reads from stdin.
func readDesign(path string, stdin io.Reader) (*design, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read design %s: %w", path, err)
	}

	snap, err := persist.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("read design %s: %w", path, err)
	}
	g := topology.New()
	if err := g.ReplaceAll(snap.Agents); err != nil {
		return nil, fmt.Errorf("read design %s: %w", path, err)
	}
	return &design{graph: g, settings: snap.Settings}, nil
}

func (d *design) encode() ([]byte, error) {
	data, err := persist.Marshal(&persist.Snapshot{Settings: d.settings, Agents: d.graph.Records()})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// writeDesign stores the design at path, or on stdout when path is "-".
func (d *design) writeDesign(path string, stdout io.Writer) error {
	data, err := d.encode()
	if err != nil {
		return fmt.Errorf("encode design: %w", err)
	}
	if path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	if err := atomicfile.Write(path, data); err != nil {
		return fmt.Errorf("write design %s: %w", path, err)
	}
	return nil
}

func (d *design) blockSize() float64 {
	return layout.BlockSizeForZoom(d.settings.Zoom)
}

// loadCatalog reads the catalog at path, or returns the built-in one.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}
