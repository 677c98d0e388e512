package preprocessing

import (
	"fmt"

	"github.com/nfnt/resize"

	"github.com/salmap/go-salmap/tensor"
)

// Transform maps a CHW tensor to a new tensor. Implementations must not
// modify their input.
type Transform interface {
	Apply(t *tensor.Tensor) (*tensor.Tensor, error)
}

// TransformFunc adapts a plain function to Transform
type TransformFunc func(t *tensor.Tensor) (*tensor.Tensor, error)

// Apply calls f(t)
func (f TransformFunc) Apply(t *tensor.Tensor) (*tensor.Tensor, error) {
	return f(t)
}

// Compose chains transforms left to right
type Compose []Transform

// Apply runs every transform in order
func (c Compose) Apply(t *tensor.Tensor) (*tensor.Tensor, error) {
	out := t
	for i, tr := range c {
		next, err := tr.Apply(out)
		if err != nil {
			return nil, fmt.Errorf("transform %d failed: %w", i, err)
		}
		out = next
	}
	return out, nil
}

// Resize scales a CHW tensor to Width x Height. It works for any supported
// channel count, so a single Resize can be shared by images and maps.
type Resize struct {
	Width         uint
	Height        uint
	Interpolation resize.InterpolationFunction
}

// NewResize creates a square Lanczos resize
func NewResize(size uint) *Resize {
	return &Resize{Width: size, Height: size, Interpolation: resize.Lanczos3}
}

// Apply resizes t
func (r *Resize) Apply(t *tensor.Tensor) (*tensor.Tensor, error) {
	if r.Width == 0 || r.Height == 0 {
		return nil, fmt.Errorf("resize target %dx%d must be positive", r.Width, r.Height)
	}

	img, err := ToImage(t)
	if err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}

	mode := RGB
	if t.Shape[0] == 1 {
		mode = Gray
	}

	return FromImage(resize.Resize(r.Width, r.Height, img, r.Interpolation), mode)
}

// Normalize applies (x - mean) / std per channel. A single mean/std pair is
// broadcast over all channels.
type Normalize struct {
	Mean []float32
	Std  []float32
}

// Apply normalizes t
func (n *Normalize) Apply(t *tensor.Tensor) (*tensor.Tensor, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("normalize expects CHW tensor, got shape %v", t.Shape)
	}
	if len(n.Mean) != len(n.Std) || len(n.Mean) == 0 {
		return nil, fmt.Errorf("normalize needs matching non-empty mean and std")
	}

	channels := t.Shape[0]
	if len(n.Mean) != 1 && len(n.Mean) != channels {
		return nil, fmt.Errorf("normalize configured for %d channels, tensor has %d", len(n.Mean), channels)
	}

	out := t.Clone()
	plane := t.Shape[1] * t.Shape[2]
	for c := 0; c < channels; c++ {
		k := c
		if len(n.Mean) == 1 {
			k = 0
		}
		if n.Std[k] == 0 {
			return nil, fmt.Errorf("normalize std for channel %d is zero", c)
		}
		ch := out.Data[c*plane : (c+1)*plane]
		for i := range ch {
			ch[i] = (ch[i] - n.Mean[k]) / n.Std[k]
		}
	}
	return out, nil
}
