package coins

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the set of coins the detector can report, loaded from a YAML file.
// It maps detector class ids and coin ids to descriptors and knows which coins
// are featured.
type Catalog struct {
	byID    map[string]Descriptor
	byClass map[int]Descriptor
	order   []string
}

// LoadCatalog reads a YAML list of coin descriptors.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read coin catalog: %w", err)
	}

	var descriptors []Descriptor
	if err := yaml.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("failed to parse coin catalog: %w", err)
	}

	return NewCatalog(descriptors), nil
}

// NewCatalog builds a catalog from descriptors, preserving their order.
func NewCatalog(descriptors []Descriptor) *Catalog {
	c := &Catalog{
		byID:    make(map[string]Descriptor),
		byClass: make(map[int]Descriptor),
	}
	for _, d := range descriptors {
		if _, exists := c.byID[d.ID]; exists {
			continue
		}
		c.byID[d.ID] = d
		c.byClass[d.ClassID] = d
		c.order = append(c.order, d.ID)
	}
	return c
}

// Lookup returns the descriptor for a coin id.
func (c *Catalog) Lookup(id string) (Descriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// LookupClass returns the descriptor for a detector class id.
func (c *Catalog) LookupClass(classID int) (Descriptor, bool) {
	d, ok := c.byClass[classID]
	return d, ok
}

// Featured returns the featured descriptors in catalog order.
func (c *Catalog) Featured() []Descriptor {
	var featured []Descriptor
	for _, id := range c.order {
		if d := c.byID[id]; d.Featured {
			featured = append(featured, d)
		}
	}
	return featured
}

// Size returns the number of cataloged coins.
func (c *Catalog) Size() int {
	return len(c.order)
}
