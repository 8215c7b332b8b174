// ABOUTME: Catalog of class variants per agent kind, loaded from an icons.xml file or YAML.
// ABOUTME: Variants give each agent a runtime class name and an icon asset; index 0 is the default.
package catalog

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/clusterdesigner/topology"
)

// Variant is one selectable class of an agent kind.
type Variant struct {
	Asset     string `xml:"url,attr" yaml:"asset" json:"asset"`
	ClassName string `xml:"class,attr" yaml:"class" json:"className"`
}

// Catalog maps each kind to its ordered variants. A nil *Catalog behaves as
// an empty one.
type Catalog struct {
	variants map[topology.Kind][]Variant
}

// New builds a catalog from explicit variant lists. Kinds without variants
// get a single variant named after the kind.
func New(variants map[topology.Kind][]Variant) *Catalog {
	c := &Catalog{variants: make(map[topology.Kind][]Variant, len(variants))}
	for _, k := range topology.Kinds() {
		list := variants[k]
		if len(list) == 0 {
			list = []Variant{{ClassName: k.String()}}
		}
		c.variants[k] = append([]Variant(nil), list...)
	}
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New(map[topology.Kind][]Variant{
		topology.KindAuctioneer: {
			{Asset: "img/auctioneer.png", ClassName: "Auctioneer"},
		},
		topology.KindConcentrator: {
			{Asset: "img/concentrator.png", ClassName: "Concentrator"},
		},
		topology.KindObjective: {
			{Asset: "img/objective.png", ClassName: "Objective"},
		},
		topology.KindDevice: {
			{Asset: "img/device.png", ClassName: "Device"},
			{Asset: "img/freezer.png", ClassName: "Freezer"},
			{Asset: "img/heatpump.png", ClassName: "HeatPump"},
			{Asset: "img/solarpanel.png", ClassName: "SolarPanel"},
		},
	})
}

// Variants returns the variants of a kind.
func (c *Catalog) Variants(k topology.Kind) []Variant {
	if c == nil {
		return nil
	}
	return c.variants[k]
}

// Len returns the number of variants of a kind.
func (c *Catalog) Len(k topology.Kind) int {
	return len(c.Variants(k))
}

// Lookup returns the variant at index idx.
func (c *Catalog) Lookup(k topology.Kind, idx int) (Variant, bool) {
	list := c.Variants(k)
	if idx < 0 || idx >= len(list) {
		return Variant{}, false
	}
	return list[idx], true
}

// ClassName returns the class name of a variant, or the index itself when
// the catalog does not know it.
func (c *Catalog) ClassName(k topology.Kind, idx int) string {
	if v, ok := c.Lookup(k, idx); ok && v.ClassName != "" {
		return v.ClassName
	}
	return strconv.Itoa(idx)
}

// Asset returns the icon asset of a variant, or "".
func (c *Catalog) Asset(k topology.Kind, idx int) string {
	v, _ := c.Lookup(k, idx)
	return v.Asset
}

// iconsFile mirrors icons.xml: one element per variant, named after the kind.
type iconsFile struct {
	Auctioneers   []Variant `xml:"auctioneer"`
	Concentrators []Variant `xml:"concentrator"`
	Objectives    []Variant `xml:"objective"`
	Devices       []Variant `xml:"device"`
}

// ParseXML reads an icons.xml document.
func ParseXML(r io.Reader) (*Catalog, error) {
	var f iconsFile
	if err := xml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode icons xml: %w", err)
	}
	return New(map[topology.Kind][]Variant{
		topology.KindAuctioneer:   f.Auctioneers,
		topology.KindConcentrator: f.Concentrators,
		topology.KindObjective:    f.Objectives,
		topology.KindDevice:       f.Devices,
	}), nil
}

// ParseYAML reads a YAML catalog keyed by kind name:
//
//	device:
//	  - class: Freezer
//	    asset: img/freezer.png
func ParseYAML(r io.Reader) (*Catalog, error) {
	var raw map[string][]Variant
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog yaml: %w", err)
	}
	variants := make(map[topology.Kind][]Variant, len(raw))
	for name, list := range raw {
		k, err := topology.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("decode catalog yaml: %w", err)
		}
		variants[k] = list
	}
	return New(variants), nil
}

// Load reads a catalog file, choosing the format by extension.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(f)
	default:
		return ParseXML(f)
	}
}

// Entry is the JSON view of one kind's variants.
type Entry struct {
	Kind     topology.Kind `json:"kind"`
	Variants []Variant     `json:"variants"`
}

// Entries lists every kind with its variants in canonical kind order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(topology.Kinds()))
	for _, k := range topology.Kinds() {
		out = append(out, Entry{Kind: k, Variants: c.Variants(k)})
	}
	return out
}
