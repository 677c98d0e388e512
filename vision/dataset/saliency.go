package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/salmap/go-salmap/downloader"
	"github.com/salmap/go-salmap/tensor"
	"github.com/salmap/go-salmap/vision/preprocessing"
)

// Dataset is an indexable collection of (input, target) pairs
type Dataset interface {
	Len() int
	Get(index int) (input, target *tensor.Tensor, err error)
}

// SaliencyDataset pairs a Catalog with a Loader
type SaliencyDataset struct {
	name    string
	catalog *Catalog
	loader  *Loader
}

// NewSaliencyDataset wraps an already built catalog
func NewSaliencyDataset(name string, catalog *Catalog, loader *Loader) *SaliencyDataset {
	return &SaliencyDataset{name: name, catalog: catalog, loader: loader}
}

// Len returns the number of pairs
func (d *SaliencyDataset) Len() int {
	return d.catalog.Len()
}

// Get loads the pair at index
func (d *SaliencyDataset) Get(index int) (*tensor.Tensor, *tensor.Tensor, error) {
	sample, err := d.catalog.Get(index)
	if err != nil {
		return nil, nil, err
	}
	return d.loader.Load(sample)
}

// Catalog returns the underlying catalog
func (d *SaliencyDataset) Catalog() *Catalog {
	return d.catalog
}

// String returns a short summary of the dataset
func (d *SaliencyDataset) String() string {
	return fmt.Sprintf("%s: %d pairs (%d dropped while pairing)", d.name, d.catalog.Len(), d.catalog.Dropped())
}

// Options configures dataset construction
type Options struct {
	Categories     []string
	ImageTransform preprocessing.Transform
	MapTransform   preprocessing.Transform
	Decoder        preprocessing.Decoder
}

// Imp1k categories
const (
	Imp1kAds           = "ads"
	Imp1kInfographics  = "infographics"
	Imp1kMoviePosters  = "movie_posters"
	Imp1kWebpages      = "webpages"
	Imp1kURL           = "https://predimportance.mit.edu/data/imp1k.zip"
	SaliconImagesID    = "16RKP-gtuZrbA_L5zLDjO-Fxke_9dIpB3"
	SaliconMapsID      = "16OlRr5sfLFrw322Hqadi9E4oKXWPjriw"
	saliconImagesZip   = "images.zip"
	saliconMapsZip     = "maps.zip"
	saliconSubdirName  = "salicon"
	imp1kDatasetName   = "Imp1k"
	saliconDatasetName = "SALICON"
)

// Imp1kCategories lists every Imp1k category in canonical order
var Imp1kCategories = []string{Imp1kAds, Imp1kInfographics, Imp1kMoviePosters, Imp1kWebpages}

// SaliconCategories lists the default SALICON splits
var SaliconCategories = []string{"test", "train"}

// NewImp1k acquires the Imp1k archive under root and builds its catalog
func NewImp1k(ctx context.Context, root string, opts Options) (*SaliencyDataset, error) {
	return newImp1k(ctx, root, downloader.NewZipDownloader(Imp1kURL), opts)
}

func newImp1k(ctx context.Context, root string, dl downloader.Downloader, opts Options) (*SaliencyDataset, error) {
	extracted, err := dl.Acquire(ctx, root)
	if err != nil {
		return nil, err
	}

	categories := opts.Categories
	if len(categories) == 0 {
		categories = Imp1kCategories
	}

	catalog := NewCatalog(FlatLayout{Root: extracted})
	if err := catalog.Build(categories); err != nil {
		return nil, err
	}

	return NewSaliencyDataset(imp1kDatasetName, catalog, &Loader{
		Decoder:        opts.Decoder,
		ImageTransform: opts.ImageTransform,
		MapTransform:   opts.MapTransform,
		Policy:         Imp1kPolicy,
	}), nil
}

// NewSalicon acquires the SALICON image and map archives under root/salicon
// and builds its catalog
func NewSalicon(ctx context.Context, root string, opts Options) (*SaliencyDataset, error) {
	base := filepath.Join(root, saliconSubdirName)
	return newSalicon(ctx, base,
		downloader.NewGoogleDriveDownloader(SaliconImagesID, saliconImagesZip),
		downloader.NewGoogleDriveDownloader(SaliconMapsID, saliconMapsZip),
		opts)
}

func newSalicon(ctx context.Context, base string, images, maps downloader.Downloader, opts Options) (*SaliencyDataset, error) {
	imageRoot, err := images.Acquire(ctx, base)
	if err != nil {
		return nil, err
	}
	mapRoot, err := maps.Acquire(ctx, base)
	if err != nil {
		return nil, err
	}

	categories := opts.Categories
	if len(categories) == 0 {
		categories = SaliconCategories
	}

	catalog := NewCatalog(NestedLayout{ImageRoot: imageRoot, MapRoot: mapRoot})
	if err := catalog.Build(categories); err != nil {
		return nil, err
	}

	return NewSaliencyDataset(saliconDatasetName, catalog, &Loader{
		Decoder:        opts.Decoder,
		ImageTransform: opts.ImageTransform,
		MapTransform:   opts.MapTransform,
		Policy:         SaliconPolicy,
	}), nil
}

// New builds the named dataset ("imp1k" or "salicon")
func New(ctx context.Context, name, root string, opts Options) (*SaliencyDataset, error) {
	switch strings.ToLower(name) {
	case "imp1k":
		return NewImp1k(ctx, root, opts)
	case "salicon":
		return NewSalicon(ctx, root, opts)
	default:
		return nil, fmt.Errorf("unknown dataset %q", name)
	}
}
