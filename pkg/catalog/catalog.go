// Package catalog holds the fixed set of establishments the index is built from.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rcookie777/pizza-api/pkg/measurement"
)

var (
	// ErrEmptyCatalog is returned when a catalog file lists no establishments
	ErrEmptyCatalog = errors.New("catalog has no establishments")

	// ErrDuplicateID is returned when two entries share an id
	ErrDuplicateID = errors.New("duplicate establishment id")
)

// Catalog is an immutable, ordered set of establishments.
// It is safe for concurrent use because nothing mutates it after construction.
type Catalog struct {
	order []string
	byID  map[string]measurement.Establishment
}

// New builds a catalog from the given establishments, preserving their order.
func New(establishments []measurement.Establishment) (*Catalog, error) {
	if len(establishments) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		order: make([]string, 0, len(establishments)),
		byID:  make(map[string]measurement.Establishment, len(establishments)),
	}
	for _, e := range establishments {
		if e.ID == "" {
			return nil, fmt.Errorf("establishment %q: %w", e.Name, measurement.ErrEmptyID)
		}
		if len(e.ID) > measurement.MaxIDLength {
			return nil, fmt.Errorf("establishment %q: %w", e.Name, measurement.ErrIDTooLong)
		}
		if _, exists := c.byID[e.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		c.order = append(c.order, e.ID)
		c.byID[e.ID] = e
	}
	return c, nil
}

// Default returns the five establishments around the Pentagon tracked by the index.
func Default() *Catalog {
	c, err := New(defaultEstablishments)
	if err != nil {
		panic(err)
	}
	return c
}

// fileFormat is the YAML layout of a catalog file.
type fileFormat struct {
	Establishments []measurement.Establishment `yaml:"establishments"`
}

// LoadFile reads a catalog from a YAML file:
//
//	establishments:
//	  - id: extreme_pizza
//	    name: Extreme Pizza
//	    address: 1419 S Fern St, Arlington, VA 22202
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return New(f.Establishments)
}

// Get returns the establishment with the given id.
func (c *Catalog) Get(id string) (measurement.Establishment, bool) {
	e, ok := c.byID[id]
	return e, ok
}

// Contains reports whether id is a known establishment.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// IDs returns establishment ids in catalog order. The slice is a copy.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

// All returns the establishments in catalog order.
func (c *Catalog) All() []measurement.Establishment {
	all := make([]measurement.Establishment, 0, len(c.order))
	for _, id := range c.order {
		all = append(all, c.byID[id])
	}
	return all
}

// Len returns the number of establishments.
func (c *Catalog) Len() int {
	return len(c.order)
}
