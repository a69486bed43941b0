package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/signal"
	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/resilience"
)

// Outcome is what happened to a published record.
type Outcome int

const (
	// OutcomeUnavailable means the store could not be reached; the record
	// was not ingested and may be published again later.
	OutcomeUnavailable Outcome = iota
	OutcomePublished
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublished:
		return "published"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Result reports a publish. EntryID is set only for OutcomePublished.
type Result struct {
	EntryID     string
	Fingerprint string
	Outcome     Outcome
}

// Empty reports whether nothing was appended to the stream.
func (r Result) Empty() bool {
	return r.EntryID == ""
}

// Steps of the publish sequence, used as the "step" log attribute.
const (
	stepLedgerCheck  = "ledger_check"
	stepLedgerInsert = "ledger_insert"
	stepStreamAppend = "stream_append"
)

// PublisherConfig names the ledger and stream and sets the retry policy for
// transient store failures.
type PublisherConfig struct {
	Ledger string
	Stream string
	// Retry is applied to each store round trip separately and only to
	// store-unavailable errors. MaxAttempts of 1 disables retrying.
	Retry resilience.RetryConfig
}

// Publisher turns observed records into stream entries, at most once per
// fingerprint as far as the ledger can tell. The check, insert and append
// are separate round trips, so two publishers racing on a new fingerprint
// can both append it.
type Publisher struct {
	store   Store
	cfg     PublisherConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPublisher creates a Publisher. Empty resource names fall back to the
// defaults.
func NewPublisher(store Store, cfg PublisherConfig, log *slog.Logger, m *metrics.Metrics) *Publisher {
	if cfg.Ledger == "" {
		cfg.Ledger = DefaultLedger
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	log = logger.WithComponent(log, "publisher")
	cfg.Retry.Retryable = apperrors.IsTransient
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = log
	}
	return &Publisher{
		store:   store,
		cfg:     cfg,
		logger:  log,
		metrics: m,
	}
}

// Publish checks the ledger for the record's fingerprint and, if it is new,
// records it and appends the record to the stream.
//
// A store that stays unreachable is not an error: the failure is logged and
// the result has OutcomeUnavailable. Any other failure is logged and
// returned.
func (p *Publisher) Publish(ctx context.Context, rec signal.Record) (Result, error) {
	start := time.Now()
	res, err := p.publish(ctx, rec)
	outcome := res.Outcome.String()
	if err != nil {
		outcome = "error"
	}
	p.metrics.ObservePublish(outcome, time.Since(start).Seconds())
	return res, err
}

func (p *Publisher) publish(ctx context.Context, rec signal.Record) (Result, error) {
	fp := signal.Fingerprint(rec)
	res := Result{Fingerprint: fp}
	log := logger.FromContext(ctx, p.logger)

	var seen bool
	err := p.step(ctx, stepLedgerCheck, func() error {
		var err error
		seen, err = p.store.IsMember(ctx, p.cfg.Ledger, fp)
		return err
	})
	if err != nil {
		return p.fail(log, rec, res, stepLedgerCheck, err)
	}
	if seen {
		res.Outcome = OutcomeDuplicate
		log.Debug("record already ingested", "ip", rec.IP, "source_url", rec.SourceURL, "fingerprint", fp)
		return res, nil
	}

	// Once the fingerprint is in the ledger the record must reach the stream,
	// or every later publish reports it as a duplicate. Cancellation is not
	// allowed to land between the two writes.
	wctx := context.WithoutCancel(ctx)
	log.Info("writing new entry to stream", "ip", rec.IP, "source_url", rec.SourceURL)
	err = p.step(wctx, stepLedgerInsert, func() error {
		return p.store.AddMember(wctx, p.cfg.Ledger, fp)
	})
	if err != nil {
		return p.fail(log, rec, res, stepLedgerInsert, err)
	}

	var id string
	err = p.step(wctx, stepStreamAppend, func() error {
		var err error
		id, err = p.store.Append(wctx, p.cfg.Stream, rec.Fields())
		return err
	})
	if err != nil {
		return p.fail(log, rec, res, stepStreamAppend, err)
	}
	res.EntryID = id
	res.Outcome = OutcomePublished
	return res, nil
}

func (p *Publisher) step(ctx context.Context, name string, fn func() error) error {
	return resilience.Retry(ctx, name, p.cfg.Retry, fn)
}

func (p *Publisher) fail(log *slog.Logger, rec signal.Record, res Result, step string, err error) (Result, error) {
	cause := apperrors.CauseOf(err)
	if apperrors.IsTransient(err) {
		log.Error("store unavailable while writing to signal stream",
			"cause", cause,
			"step", step,
			"ip", rec.IP,
			"source_url", rec.SourceURL,
			"error", err,
		)
		res.Outcome = OutcomeUnavailable
		return res, nil
	}
	log.Error("unexpected error while writing to signal stream",
		"cause", cause,
		"step", step,
		"ip", rec.IP,
		"source_url", rec.SourceURL,
		"error", err,
	)
	return res, fmt.Errorf("publishing %s at %s: %w", rec, step, err)
}

// PublishAll publishes records with at most concurrency publishes in flight
// and returns results in input order. The first fatal error stops launching
// new publishes and is returned; publishes already past the ledger check
// still complete their writes.
func (p *Publisher) PublishAll(ctx context.Context, records []signal.Record, concurrency int) ([]Result, error) {
	results := make([]Result, len(records))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, rec := range records {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := p.Publish(gctx, rec)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
