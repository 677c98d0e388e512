package tensor

import (
	"fmt"

	"github.com/salmap/go-salmap/memory"
)

// Tensor is a dense, row-major float32 array living in host memory. Image data
// uses the CHW layout for single samples and NCHW for batches.
type Tensor struct {
	Shape    []int
	Strides  []int
	Data     []float32
	NumElems int

	requiresGrad bool
	grad         *Tensor
	pool         *memory.BufferPool // set when Data is borrowed from a pool
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, elements=%d, pooled=%t)", t.Shape, t.NumElems, t.pool != nil)
}

// RequiresGrad reports whether gradients are tracked for this tensor
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// SetRequiresGrad marks the tensor as a trainable parameter
func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

// Grad returns the accumulated gradient, or nil before the first backward pass
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// AccumulateGrad adds delta element-wise into the gradient buffer
func (t *Tensor) AccumulateGrad(delta []float32) error {
	if !t.requiresGrad {
		return fmt.Errorf("tensor %v does not require gradients", t.Shape)
	}
	if len(delta) != t.NumElems {
		return fmt.Errorf("gradient length %d does not match tensor size %d", len(delta), t.NumElems)
	}
	if t.grad == nil {
		t.grad = &Tensor{
			Shape:    append([]int(nil), t.Shape...),
			Strides:  calculateStrides(t.Shape),
			Data:     make([]float32, t.NumElems),
			NumElems: t.NumElems,
		}
	}
	for i, d := range delta {
		t.grad.Data[i] += d
	}
	return nil
}

// Pooled reports whether the tensor's storage must be returned with Release
func (t *Tensor) Pooled() bool {
	return t.pool != nil
}

// Release returns pooled storage to its pool. The tensor must not be used
// afterwards; releasing a heap tensor only drops its data reference.
func (t *Tensor) Release() {
	if t.pool != nil && t.Data != nil {
		t.pool.Put(t.Data)
	}
	t.pool = nil
	t.Data = nil
	t.grad = nil
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

// SameShape reports whether two shapes are identical
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
