// Package async overlaps batch loading with training by reading ahead of the
// consumer on a background goroutine.
package async

import (
	"context"
	"sync"

	"github.com/salmap/go-salmap/vision/dataloader"
)

// DefaultPrefetchDepth is the number of batches kept ready ahead of the consumer
const DefaultPrefetchDepth = 2

// Source yields batches in order; Next returns nil, nil once exhausted
type Source interface {
	Len() int
	Reset()
	Next() (*dataloader.Batch, error)
}

type result struct {
	batch *dataloader.Batch
	err   error
}

// Prefetcher reads up to depth batches ahead of Next. The source is only
// touched by the background goroutine while a pass is running, and only by
// the caller between passes. A Prefetcher has a single consumer.
type Prefetcher struct {
	src   Source
	depth int

	mu      sync.Mutex
	results chan result
	cancel  context.CancelFunc
	done    chan struct{}
	stats   Stats
}

// Stats counts passes started, batches delivered and passes stopped while
// the source was still being read
type Stats struct {
	Passes    int
	Delivered int
	Abandoned int
}

// NewPrefetcher wraps src. depth <= 0 uses DefaultPrefetchDepth.
func NewPrefetcher(src Source, depth int) *Prefetcher {
	if depth <= 0 {
		depth = DefaultPrefetchDepth
	}
	return &Prefetcher{src: src, depth: depth}
}

// Len returns the number of batches per pass
func (p *Prefetcher) Len() int {
	return p.src.Len()
}

// Reset abandons the current pass, rewinds the source and starts reading the next pass
func (p *Prefetcher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.src.Reset()
	p.startLocked()
}

// Next returns the next batch, or nil, nil at the end of the pass. A source
// error ends the pass.
func (p *Prefetcher) Next() (*dataloader.Batch, error) {
	p.mu.Lock()
	if p.results == nil {
		p.startLocked()
	}
	results := p.results
	p.mu.Unlock()

	r, ok := <-results
	if !ok {
		return nil, nil
	}
	if r.batch != nil {
		p.mu.Lock()
		p.stats.Delivered++
		p.mu.Unlock()
	}
	return r.batch, r.err
}

// First abandons the current pass, rewinds the source and reads its first
// batch on the calling goroutine without reading ahead. Call Reset before the
// next full pass.
func (p *Prefetcher) First() (*dataloader.Batch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.src.Reset()
	batch, err := p.src.Next()
	if batch != nil {
		p.stats.Delivered++
	}
	return batch, err
}

// Stats returns a copy of the counters
func (p *Prefetcher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close stops the background goroutine
func (p *Prefetcher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Prefetcher) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan result, p.depth)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(results)
		for {
			batch, err := p.src.Next()
			if batch == nil && err == nil {
				return
			}
			select {
			case results <- result{batch: batch, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	p.results = results
	p.cancel = cancel
	p.done = done
	p.stats.Passes++
}

func (p *Prefetcher) stopLocked() {
	if p.cancel == nil {
		return
	}
	select {
	case <-p.done:
	default:
		p.stats.Abandoned++
	}
	p.cancel()
	<-p.done
	p.results = nil
	p.cancel = nil
	p.done = nil
}
