package catalog

import (
	"fmt"
	"sort"
)

// Component is one assembly requirement: building SetURL consumes
// Quantity copies of PartURL.
type Component struct {
	SetURL   string
	PartURL  string
	Quantity int
}

// Catalog is the set -> required parts lookup table
// ⭐ SSOT: component requirements are resolved through this type only
type Catalog struct {
	parts map[string][]Component
	sets  []string
}

// New builds a Catalog from raw component rows.
//
// Rows are normalized before indexing: blank URLs are dropped,
// quantities below 1 are taken as 1, and duplicate (set, part) pairs
// collapse to the highest quantity seen. Monthly partitions overlap
// after a catalog refresh, so duplicates are the normal case, not an
// error.
func New(components []Component) (*Catalog, error) {
	merged := make(map[string]map[string]int)

	for _, comp := range components {
		if comp.SetURL == "" || comp.PartURL == "" {
			continue
		}

		qty := comp.Quantity
		if qty < 1 {
			qty = 1
		}

		byPart, ok := merged[comp.SetURL]
		if !ok {
			byPart = make(map[string]int)
			merged[comp.SetURL] = byPart
		}
		if qty > byPart[comp.PartURL] {
			byPart[comp.PartURL] = qty
		}
	}

	if len(merged) == 0 {
		return nil, fmt.Errorf("component catalog is empty")
	}

	c := &Catalog{
		parts: make(map[string][]Component, len(merged)),
		sets:  make([]string, 0, len(merged)),
	}

	for setURL, byPart := range merged {
		parts := make([]Component, 0, len(byPart))
		for partURL, qty := range byPart {
			parts = append(parts, Component{SetURL: setURL, PartURL: partURL, Quantity: qty})
		}
		sort.Slice(parts, func(i, j int) bool { return parts[i].PartURL < parts[j].PartURL })

		c.parts[setURL] = parts
		c.sets = append(c.sets, setURL)
	}
	sort.Strings(c.sets)

	return c, nil
}

// Sets returns all set URLs in lexical order.
func (c *Catalog) Sets() []string {
	return c.sets
}

// Parts returns the required parts of a set in part URL order, or nil
// when the set is unknown.
func (c *Catalog) Parts(setURL string) []Component {
	return c.parts[setURL]
}

// Has reports whether the catalog knows the set.
func (c *Catalog) Has(setURL string) bool {
	_, ok := c.parts[setURL]
	return ok
}

// NumSets returns the number of distinct sets.
func (c *Catalog) NumSets() int {
	return len(c.sets)
}

// NumComponents returns the number of (set, part) requirements.
func (c *Catalog) NumComponents() int {
	n := 0
	for _, parts := range c.parts {
		n += len(parts)
	}
	return n
}

// Components returns every requirement row in (set, part) order.
func (c *Catalog) Components() []Component {
	out := make([]Component, 0, c.NumComponents())
	for _, setURL := range c.sets {
		out = append(out, c.parts[setURL]...)
	}
	return out
}

// TotalQuantity returns the summed part quantity a set consumes.
func (c *Catalog) TotalQuantity(setURL string) int {
	total := 0
	for _, p := range c.parts[setURL] {
		total += p.Quantity
	}
	return total
}
