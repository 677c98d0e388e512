package training

import (
	"context"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/salmap/go-salmap/tensor"
)

// memoryDataset holds generated samples
type memoryDataset struct {
	inputs, targets []*tensor.Tensor
}

func newMemoryDataset(t *testing.T, n, size int) *memoryDataset {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	ds := &memoryDataset{}
	for i := 0; i < n; i++ {
		in, err := tensor.Random([]int{3, size, size}, rng)
		if err != nil {
			t.Fatalf("Failed to create input: %v", err)
		}
		target, err := tensor.Random([]int{1, size, size}, rng)
		if err != nil {
			t.Fatalf("Failed to create target: %v", err)
		}
		ds.inputs = append(ds.inputs, in)
		ds.targets = append(ds.targets, target)
	}
	return ds
}

func (d *memoryDataset) Len() int { return len(d.inputs) }

func (d *memoryDataset) Get(i int) (*tensor.Tensor, *tensor.Tensor, error) {
	return d.inputs[i], d.targets[i], nil
}

func TestDataModulePrepare(t *testing.T) {
	dm := NewDataModuleFrom(newMemoryDataset(t, 10, 4), DataModuleConfig{BatchSize: 2, Seed: 1})

	if b, err := dm.Train().Next(); b != nil || err != nil {
		t.Errorf("Expected an empty iterator before Prepare, got %v, %v", b, err)
	}

	if err := dm.Prepare(); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	train := dm.Loader(SplitTrain)
	if err := dm.Prepare(); err != nil {
		t.Fatalf("Second Prepare failed: %v", err)
	}
	if dm.Loader(SplitTrain) != train {
		t.Error("Expected Prepare to be idempotent")
	}

	tests := []struct {
		split   Split
		batches int
	}{
		{SplitTrain, 4},
		{SplitValidation, 1},
		{SplitTest, 1},
	}
	for _, tt := range tests {
		if got := dm.Loader(tt.split).Len(); got != tt.batches {
			t.Errorf("%s: expected %d batches, got %d", tt.split, tt.batches, got)
		}
	}
	if dm.Source().Len() != 10 {
		t.Errorf("Expected source of 10 samples, got %d", dm.Source().Len())
	}
}

func TestDataModuleErrors(t *testing.T) {
	ds := newMemoryDataset(t, 4, 2)

	if err := NewDataModuleFrom(ds, DataModuleConfig{BatchSize: 1, Fractions: []float64{0.5, 0.5}}).Prepare(); err == nil {
		t.Error("Expected error for two fractions")
	}
	if err := NewDataModuleFrom(ds, DataModuleConfig{BatchSize: 0}).Prepare(); err == nil {
		t.Error("Expected error for zero batch size")
	}

	err := NewDataModule(context.Background(), DataModuleConfig{Dataset: "nope", Root: t.TempDir(), BatchSize: 1}).Prepare()
	if err == nil || !strings.Contains(err.Error(), "unknown dataset") {
		t.Errorf("Expected unknown dataset error, got %v", err)
	}
}

func TestFitWithDataModule(t *testing.T) {
	dm := NewDataModuleFrom(newMemoryDataset(t, 10, 4), DataModuleConfig{BatchSize: 3, Seed: 9})
	session, _ := newTestSession(t, nil)

	summaries, err := Fit(session, dm, 2)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	// 8 training samples in batches of 3
	if summaries[1].Train.Batches != 3 {
		t.Errorf("Expected 3 training batches, got %d", summaries[1].Train.Batches)
	}
	if _, _, err := Test(session, dm); err != nil {
		t.Fatalf("Test failed: %v", err)
	}
}

func TestFitWithPrefetch(t *testing.T) {
	run := func(prefetch int) []EpochSummary {
		dm := NewDataModuleFrom(newMemoryDataset(t, 10, 4), DataModuleConfig{BatchSize: 3, Seed: 9, Prefetch: prefetch})
		defer dm.Close()
		session, _ := newTestSession(t, nil)
		summaries, err := Fit(session, dm, 2)
		if err != nil {
			t.Fatalf("Fit with prefetch %d failed: %v", prefetch, err)
		}
		return summaries
	}

	plain, prefetched := run(0), run(2)
	for i := range plain {
		if plain[i].Train.MeanLoss != prefetched[i].Train.MeanLoss || plain[i].Val.MeanLoss != prefetched[i].Val.MeanLoss {
			t.Errorf("Epoch %d: expected identical losses with read-ahead, got %+v and %+v", i, plain[i], prefetched[i])
		}
	}
}

// countingDataset counts sample loads
type countingDataset struct {
	*memoryDataset
	loads atomic.Int64
}

func (d *countingDataset) Get(i int) (*tensor.Tensor, *tensor.Tensor, error) {
	d.loads.Add(1)
	return d.memoryDataset.Get(i)
}

func TestPrefetchVisualizationLoadsOneBatch(t *testing.T) {
	loads := func(prefetch int) int64 {
		ds := &countingDataset{memoryDataset: newMemoryDataset(t, 40, 4)}
		dm := NewDataModuleFrom(ds, DataModuleConfig{BatchSize: 2, Seed: 3, Prefetch: prefetch})
		defer dm.Close()
		session, _ := newTestSession(t, nil)
		if _, err := Fit(session, dm, 1); err != nil {
			t.Fatalf("Fit with prefetch %d failed: %v", prefetch, err)
		}
		return ds.loads.Load()
	}

	plain, prefetched := loads(0), loads(4)
	// 32 train + 4 validation samples, plus one batch of 2 for visualization
	if plain != 38 {
		t.Errorf("Expected 38 loads without read-ahead, got %d", plain)
	}
	if prefetched != plain {
		t.Errorf("Expected read-ahead to load %d samples, got %d", plain, prefetched)
	}
}
