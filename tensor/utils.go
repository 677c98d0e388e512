package tensor

import (
	"fmt"
	"strings"
)

// Reshape returns a tensor sharing t's data under a new shape. A single -1
// dimension is inferred.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	shape := append([]int(nil), newShape...)
	known := 1
	inferAt := -1

	for i, dim := range shape {
		switch {
		case dim == -1:
			if inferAt >= 0 {
				return nil, fmt.Errorf("only one dimension can be -1")
			}
			inferAt = i
		case dim <= 0:
			return nil, fmt.Errorf("invalid dimension %d at index %d", dim, i)
		default:
			known *= dim
		}
	}

	if inferAt >= 0 {
		if t.NumElems%known != 0 {
			return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v", t.NumElems, newShape)
		}
		shape[inferAt] = t.NumElems / known
		known *= shape[inferAt]
	}

	if known != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v (size %d)", t.NumElems, shape, known)
	}

	return &Tensor{
		Shape:        shape,
		Strides:      calculateStrides(shape),
		Data:         t.Data,
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad,
	}, nil
}

// Clone returns a deep copy on the heap, without gradient state
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{
		Shape:    append([]int(nil), t.Shape...),
		Strides:  calculateStrides(t.Shape),
		Data:     data,
		NumElems: t.NumElems,
	}
}

// Sample returns a view of the i-th entry along the leading dimension
func (t *Tensor) Sample(i int) (*Tensor, error) {
	if len(t.Shape) < 2 {
		return nil, fmt.Errorf("sample requires a batched tensor, got shape %v", t.Shape)
	}
	if i < 0 || i >= t.Shape[0] {
		return nil, fmt.Errorf("sample index %d out of range [0, %d)", i, t.Shape[0])
	}
	size := t.NumElems / t.Shape[0]
	return &Tensor{
		Shape:    append([]int(nil), t.Shape[1:]...),
		Strides:  calculateStrides(t.Shape[1:]),
		Data:     t.Data[i*size : (i+1)*size],
		NumElems: size,
	}, nil
}

// Item returns the value of a single-element tensor
func (t *Tensor) Item() (float32, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("item() can only be called on single-element tensors, got %d elements", t.NumElems)
	}
	return t.Data[0], nil
}

// At returns the element at the given coordinates
func (t *Tensor) At(indices ...int) (float32, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of range for dimension %d with size %d", idx, i, t.Shape[i])
		}
		offset += idx * t.Strides[i]
	}
	return t.Data[offset], nil
}

// Numel returns the number of elements
func (t *Tensor) Numel() int {
	return t.NumElems
}

// Dim returns the number of dimensions
func (t *Tensor) Dim() int {
	return len(t.Shape)
}

// Equal reports whether two tensors have identical shape and bit-identical data
func (t *Tensor) Equal(other *Tensor) bool {
	if !SameShape(t.Shape, other.Shape) || len(t.Data) != len(other.Data) {
		return false
	}
	for i := range t.Data {
		if t.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// MinMax returns the smallest and largest element
func (t *Tensor) MinMax() (float32, float32) {
	if len(t.Data) == 0 {
		return 0, 0
	}
	lo, hi := t.Data[0], t.Data[0]
	for _, v := range t.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// PrintData renders up to maxElements values for debugging
func (t *Tensor) PrintData(maxElements int) string {
	var sb strings.Builder
	sb.WriteString(t.String())
	sb.WriteString(" [")
	for i, v := range t.Data {
		if i >= maxElements {
			sb.WriteString(" ...")
			break
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%.4f", v))
	}
	sb.WriteString("]")
	return sb.String()
}

// ZeroGrad clears the gradients of all given parameters
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		if t.requiresGrad && t.grad != nil {
			clear(t.grad.Data)
		}
	}
}
