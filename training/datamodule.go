package training

import (
	"context"
	"fmt"

	"github.com/salmap/go-salmap/async"
	"github.com/salmap/go-salmap/vision/dataloader"
	"github.com/salmap/go-salmap/vision/dataset"
	"github.com/salmap/go-salmap/vision/preprocessing"
)

// DefaultSplitFractions divides a dataset into train, validation and test
var DefaultSplitFractions = []float64{0.8, 0.1, 0.1}

// DataModuleConfig selects a dataset and how it is split and batched
type DataModuleConfig struct {
	Dataset    string    `json:"dataset"`
	Root       string    `json:"root"`
	Categories []string  `json:"categories,omitempty"`
	ImageSize  int       `json:"image_size"`
	Fractions  []float64 `json:"fractions,omitempty"`
	BatchSize  int       `json:"batch_size"`
	NumWorkers int       `json:"num_workers"`
	Seed       int64     `json:"seed"`
	Prefetch   int       `json:"prefetch"` // batches read ahead per split, 0 disables
}

// DataModule acquires a dataset, splits it and exposes one loader per split.
// It implements DataProvider.
type DataModule struct {
	cfg  DataModuleConfig
	ctx  context.Context
	open func(ctx context.Context) (dataset.Dataset, error)

	prepared bool
	source   dataset.Dataset
	loaders  map[Split]*dataloader.DataLoader
	iters    map[Split]BatchIterator
}

// NewDataModule builds a DataModule for a named dataset ("imp1k" or
// "salicon"). Images and maps are resized to ImageSize when it is positive.
func NewDataModule(ctx context.Context, cfg DataModuleConfig) *DataModule {
	return &DataModule{
		cfg: cfg,
		ctx: ctx,
		open: func(ctx context.Context) (dataset.Dataset, error) {
			opts := dataset.Options{Categories: cfg.Categories}
			if cfg.ImageSize > 0 {
				opts.ImageTransform = preprocessing.NewResize(uint(cfg.ImageSize))
			}
			ds, err := dataset.New(ctx, cfg.Dataset, cfg.Root, opts)
			if err != nil {
				return nil, err
			}
			return ds, nil
		},
	}
}

// NewDataModuleFrom wraps an existing dataset
func NewDataModuleFrom(ds dataset.Dataset, cfg DataModuleConfig) *DataModule {
	return &DataModule{
		cfg: cfg,
		ctx: context.Background(),
		open: func(context.Context) (dataset.Dataset, error) {
			return ds, nil
		},
	}
}

// Prepare acquires and splits the dataset once; later calls are no-ops
func (dm *DataModule) Prepare() error {
	if dm.prepared {
		return nil
	}

	ds, err := dm.open(dm.ctx)
	if err != nil {
		return err
	}

	fractions := dm.cfg.Fractions
	if len(fractions) == 0 {
		fractions = DefaultSplitFractions
	}
	if len(fractions) != len(Splits) {
		return fmt.Errorf("expected %d split fractions, got %d", len(Splits), len(fractions))
	}
	subsets, err := dataset.RandomSplit(ds, fractions, dm.cfg.Seed)
	if err != nil {
		return err
	}

	loaders := make(map[Split]*dataloader.DataLoader, len(Splits))
	for i, split := range Splits {
		dl, err := dataloader.NewDataLoader(subsets[i], dataloader.Config{
			BatchSize:  dm.cfg.BatchSize,
			Shuffle:    split == SplitTrain,
			Seed:       dm.cfg.Seed + int64(i),
			NumWorkers: dm.cfg.NumWorkers,
		})
		if err != nil {
			return fmt.Errorf("%s loader: %w", split, err)
		}
		loaders[split] = dl
	}

	iters := make(map[Split]BatchIterator, len(Splits))
	for split, dl := range loaders {
		if dm.cfg.Prefetch > 0 {
			iters[split] = async.NewPrefetcher(dl, dm.cfg.Prefetch)
		} else {
			iters[split] = dl
		}
	}

	dm.source = ds
	dm.loaders = loaders
	dm.iters = iters
	dm.prepared = true
	return nil
}

// Source returns the full dataset once prepared
func (dm *DataModule) Source() dataset.Dataset {
	return dm.source
}

// Loader returns the loader of split, or nil before Prepare
func (dm *DataModule) Loader(split Split) *dataloader.DataLoader {
	return dm.loaders[split]
}

// Train returns the shuffled training loader
func (dm *DataModule) Train() BatchIterator { return dm.iterator(SplitTrain) }

// Val returns the validation loader
func (dm *DataModule) Val() BatchIterator { return dm.iterator(SplitValidation) }

// Test returns the test loader
func (dm *DataModule) Test() BatchIterator { return dm.iterator(SplitTest) }

func (dm *DataModule) iterator(split Split) BatchIterator {
	it := dm.iters[split]
	if it == nil {
		return emptyIterator{}
	}
	return it
}

// Close stops any read-ahead goroutines
func (dm *DataModule) Close() {
	for _, it := range dm.iters {
		if p, ok := it.(*async.Prefetcher); ok {
			p.Close()
		}
	}
}

// emptyIterator stands in before Prepare so callers see ErrZeroBatches
// rather than a nil dereference
type emptyIterator struct{}

func (emptyIterator) Len() int                          { return 0 }
func (emptyIterator) Reset()                            {}
func (emptyIterator) Next() (*dataloader.Batch, error) { return nil, nil }
