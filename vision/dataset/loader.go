package dataset

import (
	"fmt"

	"github.com/salmap/go-salmap/tensor"
	"github.com/salmap/go-salmap/vision/preprocessing"
)

// TransformPolicy decides how the loader transforms the saliency map.
//
// With FallbackForTarget set, the image transform is reused for the map when
// no map transform is configured, keeping geometric transforms aligned.
// With GatedOnImageTransform set, no transform touches either tensor unless
// an image transform is configured at all.
type TransformPolicy struct {
	FallbackForTarget     bool
	GatedOnImageTransform bool
}

var (
	// Imp1kPolicy falls back to the image transform and applies a lone map transform
	Imp1kPolicy = TransformPolicy{FallbackForTarget: true}
	// SaliconPolicy only transforms when an image transform is configured
	SaliconPolicy = TransformPolicy{FallbackForTarget: true, GatedOnImageTransform: true}
)

// Loader turns a Sample into an (input, target) tensor pair
type Loader struct {
	Decoder        preprocessing.Decoder
	ImageTransform preprocessing.Transform
	MapTransform   preprocessing.Transform
	Policy         TransformPolicy
}

// Load decodes and transforms one sample. Nothing is cached.
func (l *Loader) Load(s Sample) (*tensor.Tensor, *tensor.Tensor, error) {
	decoder := l.Decoder
	if decoder == nil {
		decoder = preprocessing.FileDecoder{}
	}

	input, err := decoder.DecodeFile(s.ImagePath, preprocessing.RGB)
	if err != nil {
		return nil, nil, err
	}
	target, err := decoder.DecodeFile(s.MapPath, preprocessing.Gray)
	if err != nil {
		return nil, nil, err
	}

	if l.Policy.GatedOnImageTransform && l.ImageTransform == nil {
		return input, target, nil
	}

	if l.ImageTransform != nil {
		input, err = l.ImageTransform.Apply(input)
		if err != nil {
			return nil, nil, fmt.Errorf("image transform failed for %s: %w", s.ImagePath, err)
		}
	}

	if tr := l.targetTransform(); tr != nil {
		target, err = tr.Apply(target)
		if err != nil {
			return nil, nil, fmt.Errorf("map transform failed for %s: %w", s.MapPath, err)
		}
	}

	return input, target, nil
}

func (l *Loader) targetTransform() preprocessing.Transform {
	if l.MapTransform != nil {
		return l.MapTransform
	}
	if l.Policy.FallbackForTarget {
		return l.ImageTransform
	}
	return nil
}
