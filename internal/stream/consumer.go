package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/signal"
	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/metrics"
)

// Handler processes one delivered entry. Returning an error stops the
// consumer; the entry is left unacknowledged.
type Handler func(ctx context.Context, entry Entry) error

// State is the consumer loop's position in its lifecycle.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StatePolling
	StateDelivering
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StatePolling:
		return "polling"
	case StateDelivering:
		return "delivering"
	case StateIdle:
		return "idle"
	default:
		return "stopped"
	}
}

// ConsumerConfig identifies the consumer within its group and bounds each
// read.
type ConsumerConfig struct {
	Stream       string
	Group        string
	Consumer     string
	BatchSize    int
	BlockTimeout time.Duration
	CreateStream bool
	// Ack acknowledges every entry after its handler returns. With Ack off
	// nothing is ever acknowledged and a restarted consumer cannot tell
	// which delivered entries were processed.
	Ack bool
}

// Consumer polls a consumer group and hands entries to a Handler, one at a
// time and in delivery order.
type Consumer struct {
	store   Store
	groups  *Groups
	cfg     ConsumerConfig
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Metrics
	state   atomic.Int32
}

// NewConsumer creates a Consumer. handler must not be nil.
func NewConsumer(store Store, cfg ConsumerConfig, handler Handler, log *slog.Logger, m *metrics.Metrics) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if cfg.Consumer == "" {
		cfg.Consumer = DefaultConsumer
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = time.Second
	}
	return &Consumer{
		store:   store,
		groups:  NewGroups(store, GroupConfig{Stream: cfg.Stream, CreateStream: cfg.CreateStream}, log),
		cfg:     cfg,
		handler: handler,
		logger: logger.WithComponent(log, "signal-consumer").With(
			"group", cfg.Group,
			"consumer", cfg.Consumer,
		),
		metrics: m,
	}
}

// State returns the loop's current state.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
}

// Run ensures the group exists and then polls until ctx is cancelled or a
// fatal error occurs. Cancellation is observed between reads, so it takes
// effect within one block timeout; a batch being delivered always runs to
// completion. Run returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.setState(StateStopped)
	c.setState(StateStarting)
	c.logger.Info("signal consumer starting",
		"stream", c.cfg.Stream,
		"batch_size", c.cfg.BatchSize,
		"block_timeout", c.cfg.BlockTimeout,
		"ack", c.cfg.Ack,
	)
	if err := c.groups.EnsureGroup(ctx, c.cfg.Group); err != nil {
		if ctx.Err() != nil {
			c.logger.Info("signal consumer stopping", "reason", ctx.Err())
			return nil
		}
		return err
	}
	if c.cfg.Ack {
		if err := c.replayPending(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	for {
		if ctx.Err() != nil {
			c.logger.Info("signal consumer stopping", "reason", ctx.Err())
			return nil
		}
		c.setState(StatePolling)
		entries, err := c.read(ctx, StartNew, c.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("signal consumer stopping", "reason", ctx.Err())
				return nil
			}
			return err
		}
		if len(entries) == 0 {
			c.setState(StateIdle)
			c.logger.Debug("no new signals")
			continue
		}
		if err := c.deliver(ctx, entries); err != nil {
			return err
		}
	}
}

// replayPending re-delivers entries this consumer received before a restart
// but never acknowledged.
func (c *Consumer) replayPending(ctx context.Context) error {
	cursor := StartPending
	replayed := 0
	for {
		entries, err := c.read(ctx, cursor, 0)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			break
		}
		if err := c.deliver(ctx, entries); err != nil {
			return err
		}
		replayed += len(entries)
		cursor = entries[len(entries)-1].ID
	}
	if replayed > 0 {
		c.logger.Info("replayed pending signals", "count", replayed)
	}
	return nil
}

func (c *Consumer) read(ctx context.Context, start string, block time.Duration) ([]RawEntry, error) {
	entries, err := c.store.ReadGroup(ctx, ReadGroupArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Start:    start,
		Count:    int64(c.cfg.BatchSize),
		Block:    block,
	})
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error("failed to read from consumer group",
				"start", start,
				"cause", apperrors.CauseOf(err),
				"error", err,
			)
		}
		return nil, fmt.Errorf("reading group %s as %s: %w", c.cfg.Group, c.cfg.Consumer, err)
	}
	c.metrics.ObserveBatch(len(entries))
	return entries, nil
}

// deliver hands a batch to the handler. The handler runs with a context
// that is not cancelled with ctx, so a started batch is never cut short.
func (c *Consumer) deliver(ctx context.Context, entries []RawEntry) error {
	c.setState(StateDelivering)
	dctx := context.WithoutCancel(ctx)
	done := make([]string, 0, len(entries))
	ids := make([]string, 0, len(entries))
	var handlerErr error

	for _, raw := range entries {
		ids = append(ids, raw.ID)
		rec, err := signal.RecordFromFields(raw.Fields)
		if err != nil {
			c.metrics.IncMalformed()
			c.logger.Warn("skipping malformed entry", "entry_id", raw.ID, "error", err)
			done = append(done, raw.ID)
			continue
		}
		entry := Entry{ID: raw.ID, Record: rec}
		c.logger.Debug("delivering signal", "entry_id", entry.ID, "ip", rec.IP, "source_url", rec.SourceURL)
		if err := c.handler(dctx, entry); err != nil {
			c.logger.Error("signal handler failed", "entry_id", raw.ID, "ip", rec.IP, "error", err)
			handlerErr = fmt.Errorf("handling entry %s: %w", raw.ID, err)
			break
		}
		c.metrics.IncDelivered()
		done = append(done, raw.ID)
	}

	c.ack(dctx, done)
	c.logger.Info("delivered signal batch", "count", len(done), "entry_ids", ids)
	return handlerErr
}

// ack acknowledges handled entries. A failed ack is logged and left for
// the pending replay on the next start.
func (c *Consumer) ack(ctx context.Context, ids []string) {
	if !c.cfg.Ack || len(ids) == 0 {
		return
	}
	if err := c.store.Ack(ctx, c.cfg.Stream, c.cfg.Group, ids...); err != nil {
		c.logger.Error("failed to acknowledge entries",
			"count", len(ids),
			"cause", apperrors.CauseOf(err),
			"error", err,
		)
	}
}
