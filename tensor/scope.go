package tensor

import (
	"fmt"

	"github.com/salmap/go-salmap/memory"
)

// Allocator creates scratch tensors. Heap allocates ordinary garbage-collected
// tensors; Scope borrows from a BufferPool and releases everything on Close.
type Allocator interface {
	Zeros(shape []int) (*Tensor, error)
}

// Heap is the garbage-collected Allocator
type Heap struct{}

// Zeros allocates a zeroed heap tensor
func (Heap) Zeros(shape []int) (*Tensor, error) {
	return Zeros(shape)
}

// Scope owns a set of pooled tensors. Close returns every one of them to the
// pool; it is safe to call Close more than once, so callers defer it right
// after NewScope to cover early returns.
type Scope struct {
	pool  *memory.BufferPool
	owned []*Tensor
}

// NewScope creates a scope borrowing from pool, or from the global pool when nil
func NewScope(pool *memory.BufferPool) *Scope {
	if pool == nil {
		pool = memory.GlobalBufferPool()
	}
	return &Scope{pool: pool}
}

// Zeros borrows a zeroed tensor of the given shape
func (s *Scope) Zeros(shape []int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	t := &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		Data:     s.pool.Get(n),
		NumElems: n,
		pool:     s.pool,
	}
	s.owned = append(s.owned, t)
	return t, nil
}

// Detach copies t into pooled storage. The copy never carries gradient state.
func (s *Scope) Detach(t *Tensor) (*Tensor, error) {
	if t == nil || t.Data == nil {
		return nil, fmt.Errorf("cannot detach a released tensor")
	}
	d, err := s.Zeros(t.Shape)
	if err != nil {
		return nil, err
	}
	copy(d.Data, t.Data)
	return d, nil
}

// DetachSample copies the i-th entry of a batched tensor into pooled storage
func (s *Scope) DetachSample(t *Tensor, i int) (*Tensor, error) {
	view, err := t.Sample(i)
	if err != nil {
		return nil, err
	}
	return s.Detach(view)
}

// Len returns the number of live tensors owned by the scope
func (s *Scope) Len() int {
	return len(s.owned)
}

// Close releases every tensor borrowed through the scope
func (s *Scope) Close() {
	for _, t := range s.owned {
		t.Release()
	}
	s.owned = nil
}
