package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/signal"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/stream"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/metrics"
)

// Publisher is the part of stream.Publisher a Runner needs.
type Publisher interface {
	PublishAll(ctx context.Context, records []signal.Record, concurrency int) ([]stream.Result, error)
}

// RunnerConfig bounds the concurrency of a sweep.
type RunnerConfig struct {
	// SourceConcurrency is how many sources are fetched at once.
	SourceConcurrency int
	// PublishConcurrency is how many records are published at once.
	PublishConcurrency int
}

// Summary describes the outcome of one sweep.
type Summary struct {
	RunID         string
	Sources       int
	FailedSources int
	Records       int
	Published     int
	Duplicates    int
	Unavailable   int
	EntryIDs      []string
	Duration      time.Duration
}

// Runner sweeps a list of sources into the signal stream.
type Runner struct {
	handler   Handler
	publisher Publisher
	cfg       RunnerConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewRunner(handler Handler, publisher Publisher, cfg RunnerConfig, log *slog.Logger, m *metrics.Metrics) *Runner {
	if cfg.SourceConcurrency <= 0 {
		cfg.SourceConcurrency = 5
	}
	if cfg.PublishConcurrency <= 0 {
		cfg.PublishConcurrency = cfg.SourceConcurrency * 10
	}
	return &Runner{
		handler:   handler,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.WithComponent(log, "sweep"),
		metrics:   m,
	}
}

// Run handles every source, then publishes all observed records. A source
// that fails is logged and skipped. The returned error is non-nil only when
// publishing hit a fatal store error.
func (r *Runner) Run(ctx context.Context, sources []Source) (Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx, r.logger)
	sum := Summary{RunID: runID, Sources: len(sources)}
	log.Info("sweep started", "sources", len(sources))

	perSource := make([][]signal.Record, len(sources))
	failed := make([]bool, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.SourceConcurrency)
	for i, src := range sources {
		g.Go(func() error {
			log.Info("handling data source", "url", src.URL, "type", src.Type)
			records, err := r.handler.Handle(gctx, src)
			if err != nil {
				failed[i] = true
				r.metrics.IncSource(string(src.Type), "failed")
				log.Error("data source failed", "url", src.URL, "type", src.Type, "error", err)
				return nil
			}
			r.metrics.IncSource(string(src.Type), "ok")
			log.Info("data source handled", "url", src.URL, "records", len(records))
			perSource[i] = records
			return nil
		})
	}
	g.Wait()

	var records []signal.Record
	for i := range sources {
		if failed[i] {
			sum.FailedSources++
		}
		records = append(records, perSource[i]...)
	}
	sum.Records = len(records)

	results, err := r.publisher.PublishAll(ctx, records, r.cfg.PublishConcurrency)
	for _, res := range results {
		switch res.Outcome {
		case stream.OutcomePublished:
			sum.Published++
			sum.EntryIDs = append(sum.EntryIDs, res.EntryID)
		case stream.OutcomeDuplicate:
			sum.Duplicates++
		}
	}
	sum.Duration = time.Since(start)
	if err != nil {
		log.Error("sweep aborted", "error", err)
		return sum, fmt.Errorf("sweep %s: %w", runID, err)
	}
	sum.Unavailable = len(records) - sum.Published - sum.Duplicates

	log.Info("sweep finished",
		"records", sum.Records,
		"published", sum.Published,
		"duplicates", sum.Duplicates,
		"unavailable", sum.Unavailable,
		"failed_sources", sum.FailedSources,
		"duration_ms", sum.Duration.Milliseconds(),
	)
	return sum, nil
}
