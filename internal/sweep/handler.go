package sweep

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/signal"
	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
)

// Handler turns a source into the records observed in it.
type Handler interface {
	Handle(ctx context.Context, src Source) ([]signal.Record, error)
}

// ParseFunc extracts addresses from a feed body.
type ParseFunc func(body []byte) ([]string, error)

// Registry dispatches a source to the handler for its type.
type Registry map[SourceType]Handler

// NewRegistry returns a registry with the txt, csv and json handlers, all
// fetching through f and parsing on pool.
func NewRegistry(f *Fetcher, pool *ParsePool) Registry {
	return Registry{
		SourceTXT:  &FeedHandler{fetcher: f, pool: pool, parse: ParseText},
		SourceCSV:  &FeedHandler{fetcher: f, pool: pool, parse: ParseCSV},
		SourceJSON: &FeedHandler{fetcher: f, pool: pool, parse: ParseJSON},
	}
}

// Handle runs the handler registered for src.Type.
func (r Registry) Handle(ctx context.Context, src Source) ([]signal.Record, error) {
	h, ok := r[src.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownSourceType, src.Type)
	}
	return h.Handle(ctx, src)
}

// bodyFetcher is the part of Fetcher a FeedHandler needs.
type bodyFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FeedHandler fetches a feed and parses it with one ParseFunc.
type FeedHandler struct {
	fetcher bodyFetcher
	pool    *ParsePool
	parse   ParseFunc
}

// NewFeedHandler creates a handler for a custom feed format.
func NewFeedHandler(f *Fetcher, pool *ParsePool, parse ParseFunc) *FeedHandler {
	return &FeedHandler{fetcher: f, pool: pool, parse: parse}
}

// Handle fetches src and returns one record per distinct address, tagged
// with the source url.
func (h *FeedHandler) Handle(ctx context.Context, src Source) ([]signal.Record, error) {
	body, err := h.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	ips, err := h.pool.Parse(ctx, body, h.parse)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", src, err)
	}
	records := make([]signal.Record, 0, len(ips))
	for _, ip := range ips {
		records = append(records, signal.Record{IP: ip, SourceURL: src.URL})
	}
	return records, nil
}
