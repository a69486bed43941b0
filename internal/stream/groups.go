package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/logger"
)

// GroupConfig controls consumer group creation.
type GroupConfig struct {
	Stream string
	// CreateStream creates an empty stream when it does not exist yet.
	// Without it, creating a group on a missing stream fails.
	CreateStream bool
}

// Groups creates consumer groups anchored at the start of the stream.
type Groups struct {
	store  Store
	cfg    GroupConfig
	logger *slog.Logger
}

func NewGroups(store Store, cfg GroupConfig, log *slog.Logger) *Groups {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	return &Groups{
		store:  store,
		cfg:    cfg,
		logger: logger.WithComponent(log, "consumer-groups"),
	}
}

// EnsureGroup creates group so that it replays the whole stream. A group
// that already exists is left untouched and reported as a warning.
func (g *Groups) EnsureGroup(ctx context.Context, group string) error {
	err := g.store.CreateGroup(ctx, g.cfg.Stream, group, StartOldest, g.cfg.CreateStream)
	switch {
	case err == nil:
		g.logger.Info("consumer group created", "stream", g.cfg.Stream, "group", group)
		return nil
	case errors.Is(err, apperrors.ErrGroupExists):
		g.logger.Warn("consumer group already exists", "stream", g.cfg.Stream, "group", group)
		return nil
	default:
		g.logger.Error("failed to create consumer group",
			"stream", g.cfg.Stream,
			"group", group,
			"cause", apperrors.CauseOf(err),
			"error", err,
		)
		return fmt.Errorf("creating consumer group %s on %s: %w", group, g.cfg.Stream, err)
	}
}
