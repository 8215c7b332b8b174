// ABOUTME: Encoders for configuration documents (XML for the runtime, YAML and JSON for tooling).
// ABOUTME: Also derives the output file name from the cluster settings.
package nodeconfig

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/clusterdesigner/topology"
)

// Format selects a document encoding.
type Format string

const (
	FormatXML  Format = "xml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts xml, yaml, yml, or json. Empty means xml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xml":
		return FormatXML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (expected xml, yaml, or json)", s)
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// Write encodes doc in the given format.
func Write(w io.Writer, doc *Document, f Format) error {
	switch f {
	case FormatXML, "":
		return WriteXML(w, doc)
	case FormatYAML:
		return WriteYAML(w, doc)
	case FormatJSON:
		return WriteJSON(w, doc)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

// WriteXML writes the runtime's nodeconfig XML.
func WriteXML(w io.Writer, doc *Document) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode nodeconfig xml: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("write xml trailer: %w", err)
	}
	return nil
}

// WriteYAML writes doc as YAML.
func WriteYAML(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode nodeconfig yaml: %w", err)
	}
	return enc.Close()
}

// WriteJSON writes doc as indented JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode nodeconfig json: %w", err)
	}
	return nil
}

// FileName returns "<fileName>.<ext>" with any directory parts and unsafe
// characters removed from the cluster name.
func FileName(s topology.Settings, f Format) string {
	if f == "" {
		f = FormatXML
	}
	return sanitizeFilename(s.FileName) + "." + f.Extension()
}

// sanitizeFilename keeps letters, digits, dots, dashes, and underscores.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "cluster"
	}
	return out
}
