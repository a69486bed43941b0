// Package stream is the signal stream: it deduplicates records against a
// durable ledger, appends new ones to an ordered log and delivers them to
// named consumer groups. The package holds no state of its own; the ledger,
// the log and group cursors all live in the Store.
package stream

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/signal"
)

// Default resource names shared by every producer and consumer.
const (
	DefaultLedger   = "signal-stream-set"
	DefaultStream   = "signal-stream"
	DefaultGroup    = "signal-forge"
	DefaultConsumer = "signal-processor"
)

// Read start positions.
const (
	// StartNew reads entries never delivered to the group.
	StartNew = ">"
	// StartPending reads the consumer's delivered but unacknowledged entries.
	StartPending = "0"
	// StartOldest anchors a new group at the beginning of the stream.
	StartOldest = "0"
)

// Store is the subset of the durable store the signal stream needs.
// Implementations classify failures with pkg/errors so callers can tell
// connectivity problems from protocol errors.
type Store interface {
	IsMember(ctx context.Context, set, member string) (bool, error)
	AddMember(ctx context.Context, set, member string) error
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)
	CreateGroup(ctx context.Context, stream, group, start string, mkStream bool) error
	ReadGroup(ctx context.Context, args ReadGroupArgs) ([]RawEntry, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
}

// ReadGroupArgs describes one blocking consumer group read.
type ReadGroupArgs struct {
	Stream   string
	Group    string
	Consumer string
	Start    string
	Count    int64
	Block    time.Duration
}

// RawEntry is a stream entry as the store returns it.
type RawEntry struct {
	ID     string
	Fields map[string]string
}

// Entry is a decoded stream entry handed to consumers.
type Entry struct {
	ID     string
	Record signal.Record
}
