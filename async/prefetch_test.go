package async

import (
	"errors"
	"sync"
	"testing"

	"github.com/salmap/go-salmap/vision/dataloader"
)

// countingSource yields n single-index batches and can fail at one position
type countingSource struct {
	mu     sync.Mutex
	n      int
	pos    int
	failAt int
	resets int
}

func newCountingSource(n int) *countingSource {
	return &countingSource{n: n, failAt: -1}
}

func (s *countingSource) Len() int { return s.n }

func (s *countingSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
	s.resets++
}

func (s *countingSource) Next() (*dataloader.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == s.failAt {
		s.pos++
		return nil, errors.New("decode failed")
	}
	if s.pos >= s.n {
		return nil, nil
	}
	b := &dataloader.Batch{Indices: []int{s.pos}}
	s.pos++
	return b, nil
}

func drain(t *testing.T, p *Prefetcher) []int {
	t.Helper()
	var got []int
	for {
		b, err := p.Next()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if b == nil {
			return got
		}
		got = append(got, b.Indices[0])
	}
}

func TestPrefetcherPreservesOrder(t *testing.T) {
	src := newCountingSource(10)
	p := NewPrefetcher(src, 3)
	defer p.Close()

	p.Reset()
	got := drain(t, p)
	if len(got) != 10 {
		t.Fatalf("Expected 10 batches, got %d", len(got))
	}
	for i, idx := range got {
		if idx != i {
			t.Errorf("Expected batch %d at position %d, got %d", i, i, idx)
		}
	}

	// exhausted passes keep returning nil
	if b, err := p.Next(); b != nil || err != nil {
		t.Errorf("Expected nil, nil after the pass, got %v, %v", b, err)
	}
	if p.Len() != 10 {
		t.Errorf("Expected Len 10, got %d", p.Len())
	}
}

func TestPrefetcherResetMidPass(t *testing.T) {
	src := newCountingSource(20)
	p := NewPrefetcher(src, 2)
	defer p.Close()

	p.Reset()
	for i := 0; i < 3; i++ {
		if _, err := p.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}

	p.Reset()
	got := drain(t, p)
	if len(got) != 20 || got[0] != 0 {
		t.Errorf("Expected a full pass from 0 after Reset, got %d batches starting at %v", len(got), got)
	}
	if src.resets != 2 {
		t.Errorf("Expected the source to be reset twice, got %d", src.resets)
	}

	stats := p.Stats()
	if stats.Passes != 2 || stats.Delivered != 23 {
		t.Errorf("Expected 2 passes and 23 batches, got %+v", stats)
	}
	if stats.Abandoned > 1 {
		t.Errorf("Expected at most one abandoned pass, got %d", stats.Abandoned)
	}
}

func TestPrefetcherStopsOnError(t *testing.T) {
	src := newCountingSource(5)
	src.failAt = 2
	p := NewPrefetcher(src, 0)
	defer p.Close()

	p.Reset()
	for i := 0; i < 2; i++ {
		if b, err := p.Next(); err != nil || b == nil {
			t.Fatalf("Expected batch %d, got %v, %v", i, b, err)
		}
	}
	if _, err := p.Next(); err == nil {
		t.Fatal("Expected the source error")
	}
	if b, err := p.Next(); b != nil || err != nil {
		t.Errorf("Expected the pass to end after an error, got %v, %v", b, err)
	}
}

func TestPrefetcherLazyStartAndClose(t *testing.T) {
	src := newCountingSource(2)
	p := NewPrefetcher(src, 1)

	// Next without Reset reads the source from its current position
	if b, err := p.Next(); err != nil || b == nil || b.Indices[0] != 0 {
		t.Fatalf("Expected first batch, got %v, %v", b, err)
	}
	p.Close()
	p.Close()
	if src.resets != 0 {
		t.Errorf("Expected no source reset, got %d", src.resets)
	}
}

func TestPrefetcherFirstReadsOneBatch(t *testing.T) {
	src := newCountingSource(10)
	p := NewPrefetcher(src, 4)
	defer p.Close()

	p.Reset()
	drain(t, p)

	b, err := p.First()
	if err != nil || b == nil || b.Indices[0] != 0 {
		t.Fatalf("Expected batch 0, got %v, %v", b, err)
	}
	src.mu.Lock()
	pos := src.pos
	src.mu.Unlock()
	if pos != 1 {
		t.Errorf("Expected First to read exactly one batch, source at %d", pos)
	}

	// a full pass still follows Reset
	p.Reset()
	if got := drain(t, p); len(got) != 10 {
		t.Errorf("Expected 10 batches after Reset, got %d", len(got))
	}
}
