package dataset

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned by Catalog.Get for indices outside [0, Len())
var ErrIndexOutOfRange = errors.New("catalog index out of range")

// Sample references one image and its saliency map
type Sample struct {
	ImagePath string
	MapPath   string
}

// Catalog is an ordered list of verified image/map pairs. It is built once;
// later Build calls are no-ops.
type Catalog struct {
	layout  Layout
	samples []Sample
	dropped int
	built   bool
}

// NewCatalog creates an empty catalog over layout
func NewCatalog(layout Layout) *Catalog {
	return &Catalog{layout: layout}
}

// Build lists every category in order and pairs its files positionally after
// sorting. Pairs whose keys differ, and surplus files in the longer listing,
// are dropped without error.
func (c *Catalog) Build(categories []string) error {
	if c.built {
		return nil
	}

	var samples []Sample
	dropped := 0

	for _, category := range categories {
		images, maps, err := c.layout.List(category)
		if err != nil {
			return fmt.Errorf("failed to list category %q: %w", category, err)
		}

		n := min(len(images), len(maps))
		dropped += len(images) + len(maps) - 2*n

		for i := 0; i < n; i++ {
			if c.layout.Key(images[i]) != c.layout.Key(maps[i]) {
				dropped++
				continue
			}
			samples = append(samples, Sample{ImagePath: images[i], MapPath: maps[i]})
		}
	}

	c.samples = samples
	c.dropped = dropped
	c.built = true
	return nil
}

// Built reports whether Build has completed
func (c *Catalog) Built() bool {
	return c.built
}

// Len returns the number of pairs
func (c *Catalog) Len() int {
	return len(c.samples)
}

// Dropped returns how many candidate files were excluded during Build: one
// per mismatched positional pair plus one per unpaired surplus file.
func (c *Catalog) Dropped() int {
	return c.dropped
}

// Get returns the pair at index
func (c *Catalog) Get(index int) (Sample, error) {
	if index < 0 || index >= len(c.samples) {
		return Sample{}, fmt.Errorf("index %d out of range [0, %d): %w", index, len(c.samples), ErrIndexOutOfRange)
	}
	return c.samples[index], nil
}

// Samples returns a copy of all pairs in order
func (c *Catalog) Samples() []Sample {
	out := make([]Sample, len(c.samples))
	copy(out, c.samples)
	return out
}
