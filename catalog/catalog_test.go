// ABOUTME: Tests for variant catalog parsing from icons.xml and YAML plus class name fallbacks.
// ABOUTME: Files are written to t.TempDir() to exercise Load's extension dispatch.
package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/clusterdesigner/topology"
)

const iconsXML = `<?xml version="1.0"?>
<icons>
	<auctioneer url="img/a.png" class="Auctioneer"/>
	<concentrator url="img/c.png" class="Concentrator"/>
	<objective url="img/o.png" class="ObjectiveAgent"/>
	<device url="img/freezer.png" class="Freezer"/>
	<device url="img/pv.png" class="PV"/>
</icons>`

func TestParseXML(t *testing.T) {
	c, err := ParseXML(strings.NewReader(iconsXML))
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len(topology.KindDevice))
	assert.Equal(t, "PV", c.ClassName(topology.KindDevice, 1))
	assert.Equal(t, "img/freezer.png", c.Asset(topology.KindDevice, 0))
	assert.Equal(t, "ObjectiveAgent", c.ClassName(topology.KindObjective, 0))
}

func TestParseXMLFillsMissingKinds(t *testing.T) {
	c, err := ParseXML(strings.NewReader(`<icons><device url="d.png" class="D"/></icons>`))
	require.NoError(t, err)

	assert.Equal(t, 1, c.Len(topology.KindAuctioneer))
	assert.Equal(t, "Auctioneer", c.ClassName(topology.KindAuctioneer, 0))
}

func TestParseXMLRejectsGarbage(t *testing.T) {
	_, err := ParseXML(strings.NewReader("<icons><device"))
	assert.Error(t, err)
}

func TestClassNameFallsBackToIndex(t *testing.T) {
	c := Default()
	assert.Equal(t, "7", c.ClassName(topology.KindAuctioneer, 7))
	assert.Equal(t, "", c.Asset(topology.KindAuctioneer, 7))

	var none *Catalog
	assert.Equal(t, "0", none.ClassName(topology.KindDevice, 0))
	assert.Equal(t, 0, none.Len(topology.KindDevice))
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "icons.xml")
	require.NoError(t, os.WriteFile(xmlPath, []byte(iconsXML), 0o644))
	yamlPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("device:\n  - class: Battery\n    asset: img/battery.png\n  - class: Boiler\n"), 0o644))

	fromXML, err := Load(xmlPath)
	require.NoError(t, err)
	assert.Equal(t, "Freezer", fromXML.ClassName(topology.KindDevice, 0))

	fromYAML, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, []Variant{{Asset: "img/battery.png", ClassName: "Battery"}, {ClassName: "Boiler"}}, fromYAML.Variants(topology.KindDevice))
	assert.Equal(t, "Concentrator", fromYAML.ClassName(topology.KindConcentrator, 0))

	_, err = Load(filepath.Join(dir, "missing.xml"))
	assert.Error(t, err)
}

func TestParseYAMLRejectsUnknownKind(t *testing.T) {
	_, err := ParseYAML(strings.NewReader("matcher:\n  - class: X\n"))
	assert.Error(t, err)
}

func TestEntriesInKindOrder(t *testing.T) {
	entries := Default().Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, topology.KindAuctioneer, entries[0].Kind)
	assert.Equal(t, topology.KindDevice, entries[3].Kind)
	assert.Len(t, entries[3].Variants, 4)
}
