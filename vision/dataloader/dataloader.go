package dataloader

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/salmap/go-salmap/tensor"
)

// Dataset interface defines the contract for datasets
type Dataset interface {
	Len() int
	Get(index int) (input, target *tensor.Tensor, err error)
}

// Batch holds stacked NCHW inputs and targets
type Batch struct {
	Inputs  *tensor.Tensor
	Targets *tensor.Tensor
	Indices []int
}

// Size returns the number of samples in the batch
func (b *Batch) Size() int {
	return len(b.Indices)
}

// DataLoader yields batches of a dataset in order, loading the samples of
// each batch concurrently
type DataLoader struct {
	dataset    Dataset
	batchSize  int
	shuffle    bool
	dropLast   bool
	numWorkers int
	rng        *rand.Rand
	indices    []int
	position   int
	mu         sync.Mutex
}

// Config holds configuration for DataLoader
type Config struct {
	BatchSize  int   `json:"batch_size"`
	Shuffle    bool  `json:"shuffle"`
	Seed       int64 `json:"seed"`
	NumWorkers int   `json:"num_workers"` // Number of parallel sample loaders
	DropLast   bool  `json:"drop_last"`
}

// NewDataLoader creates a new data loader
func NewDataLoader(dataset Dataset, config Config) (*DataLoader, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}

	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}

	dl := &DataLoader{
		dataset:    dataset,
		batchSize:  config.BatchSize,
		shuffle:    config.Shuffle,
		dropLast:   config.DropLast,
		numWorkers: config.NumWorkers,
		rng:        rand.New(rand.NewSource(config.Seed)),
		indices:    indices,
	}
	dl.shuffleIndices()
	return dl, nil
}

func (dl *DataLoader) shuffleIndices() {
	if !dl.shuffle {
		return
	}
	dl.rng.Shuffle(len(dl.indices), func(i, j int) {
		dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
	})
}

// Len returns the number of batches per pass
func (dl *DataLoader) Len() int {
	n := len(dl.indices)
	if dl.dropLast {
		return n / dl.batchSize
	}
	return (n + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader and reshuffles when shuffling is enabled
func (dl *DataLoader) Reset() {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.position = 0
	dl.shuffleIndices()
}

// Next loads the next batch. It returns nil, nil once the pass is exhausted.
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	remaining := len(dl.indices) - dl.position
	if remaining <= 0 || (dl.dropLast && remaining < dl.batchSize) {
		return nil, nil
	}

	batchSize := min(dl.batchSize, remaining)
	indices := append([]int(nil), dl.indices[dl.position:dl.position+batchSize]...)
	dl.position += batchSize

	inputs, targets, err := dl.load(indices)
	if err != nil {
		return nil, err
	}

	stackedInputs, err := tensor.Stack(inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to stack inputs: %w", err)
	}
	stackedTargets, err := tensor.Stack(targets)
	if err != nil {
		return nil, fmt.Errorf("failed to stack targets: %w", err)
	}

	return &Batch{Inputs: stackedInputs, Targets: stackedTargets, Indices: indices}, nil
}

// load fetches samples with a bounded worker pool, keeping batch order
func (dl *DataLoader) load(indices []int) ([]*tensor.Tensor, []*tensor.Tensor, error) {
	inputs := make([]*tensor.Tensor, len(indices))
	targets := make([]*tensor.Tensor, len(indices))
	errs := make([]error, len(indices))

	jobs := make(chan int, len(indices))
	var wg sync.WaitGroup

	workers := min(dl.numWorkers, len(indices))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for slot := range jobs {
				inputs[slot], targets[slot], errs[slot] = dl.dataset.Get(indices[slot])
			}
		}()
	}

	for slot := range indices {
		jobs <- slot
	}
	close(jobs)
	wg.Wait()

	for slot, err := range errs {
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load sample %d: %w", indices[slot], err)
		}
	}
	return inputs, targets, nil
}

// Progress returns the current progress through the dataset
func (dl *DataLoader) Progress() (current, total int) {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.position, len(dl.indices)
}
