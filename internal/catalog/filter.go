package catalog

import (
	"fmt"
	"strings"
)

// Filter holds craftable-set selection criteria.
type Filter struct {
	MinParts    int  // minimum distinct part kinds
	MinTotalQty int  // minimum summed part quantity
	PrimeOnly   bool // keep only prime sets
}

// DefaultFilter matches sets that are actually assembled from parts:
// at least two distinct parts, or a single part needed twice.
func DefaultFilter(primeOnly bool) Filter {
	return Filter{
		MinParts:    2,
		MinTotalQty: 2,
		PrimeOnly:   primeOnly,
	}
}

// Selection is the craftable universe after filtering.
type Selection struct {
	Sets     []string          // set URLs that passed, lexical order
	Excluded map[string]string // set URL -> exclusion reason
}

// Select applies the filter to every set in the catalog.
func (c *Catalog) Select(f Filter) *Selection {
	sel := &Selection{
		Sets:     make([]string, 0, len(c.sets)),
		Excluded: make(map[string]string),
	}

	for _, setURL := range c.sets {
		reason := f.checkExclusion(setURL, c.parts[setURL])
		if reason != "" {
			sel.Excluded[setURL] = reason
			continue
		}
		sel.Sets = append(sel.Sets, setURL)
	}

	return sel
}

// checkExclusion returns a reason string, or "" when the set passes.
func (f Filter) checkExclusion(setURL string, parts []Component) string {
	total := 0
	for _, p := range parts {
		total += p.Quantity
	}

	// A set is craftable when it needs several part kinds or several
	// copies of one part. Single-part single-copy entries are container
	// items, not assemblies.
	if len(parts) < f.MinParts && total < f.MinTotalQty {
		return fmt.Sprintf("not craftable (%d parts, total qty %d)", len(parts), total)
	}

	if f.PrimeOnly && !strings.Contains(setURL, "prime_set") {
		return "not a prime set"
	}

	return ""
}
