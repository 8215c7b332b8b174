// ABOUTME: Document model for PowerMatcher node configurations: nested group and factory blocks with typed properties.
// ABOUTME: The same model is encoded as nodeconfig XML, YAML, or JSON.
package nodeconfig

import "encoding/xml"

// Block types.
const (
	TypeGroup   = "group"
	TypeFactory = "factory"
)

// Property value types understood by the runtime.
const (
	PropString  = "String"
	PropInteger = "Integer"
	PropDouble  = "Double"
)

// Document is a complete node configuration.
type Document struct {
	XMLName     xml.Name `xml:"nodeconfig" json:"-" yaml:"-"`
	ID          string   `xml:"id,attr" json:"id" yaml:"id"`
	Name        string   `xml:"name,attr" json:"name" yaml:"name"`
	Description string   `xml:"description,attr" json:"description" yaml:"description"`
	Date        string   `xml:"date,attr" json:"date" yaml:"date"`
	Root        Block    `xml:"configuration" json:"configuration" yaml:"configuration"`
}

// Block is a configuration element. Groups nest other blocks; factories
// instantiate one runtime component.
type Block struct {
	Type       string     `xml:"type,attr" json:"type" yaml:"type"`
	Cluster    string     `xml:"cluster,attr,omitempty" json:"cluster,omitempty" yaml:"cluster,omitempty"`
	PID        string     `xml:"pid,attr,omitempty" json:"pid,omitempty" yaml:"pid,omitempty"`
	ID         string     `xml:"id,attr" json:"id" yaml:"id"`
	Properties []Property `xml:"property" json:"properties,omitempty" yaml:"properties,omitempty"`
	Blocks     []Block    `xml:"configuration" json:"configurations,omitempty" yaml:"configurations,omitempty"`
}

// Property is one typed key/value pair.
type Property struct {
	Name  string `xml:"name,attr" json:"name" yaml:"name"`
	Value string `xml:"value,attr" json:"value" yaml:"value"`
	Type  string `xml:"type,attr" json:"type" yaml:"type"`
}

// Find returns the first block with the given id in a depth-first walk.
func (b *Block) Find(id string) (*Block, bool) {
	if b.ID == id {
		return b, true
	}
	for i := range b.Blocks {
		if found, ok := b.Blocks[i].Find(id); ok {
			return found, true
		}
	}
	return nil, false
}

// Property returns the value of a named property.
func (b *Block) Property(name string) (string, bool) {
	for _, p := range b.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

func str(name, value string) Property {
	return Property{Name: name, Value: value, Type: PropString}
}
