package tensor

import (
	"fmt"
	"math/rand"
)

// NewTensor wraps data in a tensor of the given shape. The slice is not copied.
func NewTensor(shape []int, data []float32) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	if data == nil {
		data = make([]float32, numElems)
	}
	if len(data) != numElems {
		return nil, fmt.Errorf("data length %d does not match tensor size %d", len(data), numElems)
	}

	return &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		Data:     data,
		NumElems: numElems,
	}, nil
}

// Zeros creates a zero-filled tensor
func Zeros(shape []int) (*Tensor, error) {
	return NewTensor(shape, nil)
}

// Full creates a tensor filled with value
func Full(shape []int, value float32) (*Tensor, error) {
	t, err := NewTensor(shape, nil)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = value
	}
	return t, nil
}

// Random creates a tensor with values drawn uniformly from [0, 1) using rng
func Random(shape []int, rng *rand.Rand) (*Tensor, error) {
	t, err := NewTensor(shape, nil)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = rng.Float32()
	}
	return t, nil
}

// Stack joins equally-shaped tensors along a new leading dimension
func Stack(items []*Tensor) (*Tensor, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("cannot stack zero tensors")
	}

	first := items[0]
	shape := append([]int{len(items)}, first.Shape...)
	out, err := Zeros(shape)
	if err != nil {
		return nil, err
	}

	for i, item := range items {
		if !SameShape(item.Shape, first.Shape) {
			return nil, fmt.Errorf("stack: item %d has shape %v, expected %v", i, item.Shape, first.Shape)
		}
		copy(out.Data[i*first.NumElems:(i+1)*first.NumElems], item.Data)
	}
	return out, nil
}
