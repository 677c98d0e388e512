package dataset

import (
	"sort"
	"testing"

	"github.com/salmap/go-salmap/tensor"
)

// indexDataset returns tensors holding their own index
type indexDataset struct {
	n int
}

func (d indexDataset) Len() int { return d.n }

func (d indexDataset) Get(i int) (*tensor.Tensor, *tensor.Tensor, error) {
	in, err := tensor.Full([]int{1, 1, 1}, float32(i))
	if err != nil {
		return nil, nil, err
	}
	return in, in.Clone(), nil
}

func TestRandomSplit(t *testing.T) {
	ds := indexDataset{n: 10}

	t.Run("SizesAndCoverage", func(t *testing.T) {
		splits, err := RandomSplit(ds, []float64{0.8, 0.2}, 42)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if splits[0].Len() != 8 || splits[1].Len() != 2 {
			t.Fatalf("Expected sizes 8/2, got %d/%d", splits[0].Len(), splits[1].Len())
		}

		var seen []int
		for _, s := range splits {
			for i := 0; i < s.Len(); i++ {
				in, _, err := s.Get(i)
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				seen = append(seen, int(in.Data[0]))
			}
		}
		sort.Ints(seen)
		for i, v := range seen {
			if v != i {
				t.Fatalf("Expected every index exactly once, got %v", seen)
			}
		}
	})

	t.Run("SeedIsDeterministic", func(t *testing.T) {
		a, _ := RandomSplit(ds, []float64{0.5, 0.5}, 7)
		b, _ := RandomSplit(ds, []float64{0.5, 0.5}, 7)
		for i := 0; i < a[0].Len(); i++ {
			x, _, _ := a[0].Get(i)
			y, _, _ := b[0].Get(i)
			if x.Data[0] != y.Data[0] {
				t.Fatalf("Expected identical splits for identical seeds")
			}
		}
	})

	t.Run("PartialFractions", func(t *testing.T) {
		splits, err := RandomSplit(ds, []float64{0.3}, 1)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if splits[0].Len() != 3 {
			t.Errorf("Expected 3 samples, got %d", splits[0].Len())
		}
	})

	t.Run("InvalidFractions", func(t *testing.T) {
		for _, fr := range [][]float64{nil, {0.8, 0.5}, {-0.1, 0.5}, {0}} {
			if _, err := RandomSplit(ds, fr, 1); err == nil {
				t.Errorf("Expected error for fractions %v", fr)
			}
		}
	})
}

func TestSubset(t *testing.T) {
	ds := indexDataset{n: 5}

	sub, err := Subset(ds, []int{4, 0})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	in, _, err := sub.Get(0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if in.Data[0] != 4 {
		t.Errorf("Expected index 4, got %v", in.Data[0])
	}
	if _, _, err := sub.Get(2); err == nil {
		t.Error("Expected out of range error")
	}
	if _, err := Subset(ds, []int{5}); err == nil {
		t.Error("Expected error for invalid index")
	}
}
