package sweep

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// ParsePool bounds how many feed bodies are parsed at once. Parsing is CPU
// bound, so concurrent fetches share a small number of parse slots.
type ParsePool struct {
	sem *semaphore.Weighted
}

// NewParsePool creates a pool with workers slots. workers <= 0 uses
// GOMAXPROCS.
func NewParsePool(workers int) *ParsePool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &ParsePool{sem: semaphore.NewWeighted(int64(workers))}
}

// Parse runs fn once a slot is free. It returns ctx's error if ctx is done
// before a slot frees up.
func (p *ParsePool) Parse(ctx context.Context, body []byte, fn ParseFunc) ([]string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return fn(body)
}
