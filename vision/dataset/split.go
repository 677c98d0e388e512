package dataset

import (
	"fmt"
	"math/rand"

	"github.com/salmap/go-salmap/tensor"
)

// SubsetDataset exposes a selection of another dataset's indices
type SubsetDataset struct {
	original Dataset
	indices  []int
}

// Subset creates a view of ds restricted to indices
func Subset(ds Dataset, indices []int) (*SubsetDataset, error) {
	for _, idx := range indices {
		if idx < 0 || idx >= ds.Len() {
			return nil, fmt.Errorf("subset index %d out of range [0, %d)", idx, ds.Len())
		}
	}
	return &SubsetDataset{original: ds, indices: append([]int(nil), indices...)}, nil
}

// Len returns the number of samples in the subset
func (s *SubsetDataset) Len() int {
	return len(s.indices)
}

// Get returns the sample at the subset-relative index
func (s *SubsetDataset) Get(index int) (*tensor.Tensor, *tensor.Tensor, error) {
	if index < 0 || index >= len(s.indices) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d): %w", index, len(s.indices), ErrIndexOutOfRange)
	}
	return s.original.Get(s.indices[index])
}

// RandomSplit shuffles the indices of ds with seed and cuts them into
// consecutive subsets sized by fractions. The last subset takes the rounding
// remainder.
func RandomSplit(ds Dataset, fractions []float64, seed int64) ([]*SubsetDataset, error) {
	if len(fractions) == 0 {
		return nil, fmt.Errorf("at least one split fraction is required")
	}
	total := 0.0
	for _, f := range fractions {
		if f < 0 {
			return nil, fmt.Errorf("split fraction %v is negative", f)
		}
		total += f
	}
	if total <= 0 || total > 1.0+1e-9 {
		return nil, fmt.Errorf("split fractions must sum to (0, 1], got %v", total)
	}

	n := ds.Len()
	indices := rand.New(rand.NewSource(seed)).Perm(n)

	splits := make([]*SubsetDataset, len(fractions))
	start := 0
	for i, f := range fractions {
		size := int(float64(n) * f)
		if i == len(fractions)-1 && total > 1.0-1e-9 {
			size = n - start
		}
		if start+size > n {
			size = n - start
		}
		splits[i] = &SubsetDataset{original: ds, indices: indices[start : start+size]}
		start += size
	}
	return splits, nil
}
