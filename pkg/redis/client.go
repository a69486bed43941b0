// Package redis wraps go-redis/v9 with the set and stream commands the signal
// stream needs. Every failure is returned as an *errors.StoreError whose cause
// tells a transient condition (connection, timeout) from a protocol error.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// Message is one stream entry as returned by XREADGROUP.
type Message struct {
	ID     string
	Values map[string]string
}

// ReadArgs describes an XREADGROUP call on a single stream. Block <= 0 means
// the read returns immediately.
type ReadArgs struct {
	Stream   string
	Group    string
	Consumer string
	Start    string
	Count    int64
	Block    time.Duration
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	c := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return c, nil
}

// New creates a Redis client without contacting the server. Connections are
// made lazily, so a server that is down surfaces as a connection failure on
// the first command.
func New(cfg config.RedisConfig) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
	})
	return &Client{rdb: rdb}
}

// IsMember reports whether member is in the set (SISMEMBER).
func (c *Client) IsMember(ctx context.Context, set, member string) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, set, member).Result()
	if err != nil {
		return false, classify("sismember", err)
	}
	return ok, nil
}

// AddMember adds member to the set (SADD). Adding an existing member is not
// an error.
func (c *Client) AddMember(ctx context.Context, set, member string) error {
	return classify("sadd", c.rdb.SAdd(ctx, set, member).Err())
}

// Append adds an entry with a server-assigned id (XADD *) and returns the id.
func (c *Client) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: values,
	}).Result()
	if err != nil {
		return "", classify("xadd", err)
	}
	return id, nil
}

// CreateGroup creates a consumer group whose cursor starts at start
// (XGROUP CREATE). With mkStream a missing stream is created empty.
func (c *Client) CreateGroup(ctx context.Context, stream, group, start string, mkStream bool) error {
	var err error
	if mkStream {
		err = c.rdb.XGroupCreateMkStream(ctx, stream, group, start).Err()
	} else {
		err = c.rdb.XGroupCreate(ctx, stream, group, start).Err()
	}
	return classify("xgroup create", err)
}

// ReadGroup reads entries as a group consumer (XREADGROUP). A read that
// times out with nothing to deliver returns no messages and no error.
func (c *Client) ReadGroup(ctx context.Context, args ReadArgs) ([]Message, error) {
	block := args.Block
	if block <= 0 {
		// go-redis sends BLOCK for any non-negative value and BLOCK 0
		// waits forever.
		block = -1
	}
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    args.Group,
		Consumer: args.Consumer,
		Streams:  []string{args.Stream, args.Start},
		Count:    args.Count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("xreadgroup", err)
	}

	var out []Message
	for _, s := range streams {
		for _, m := range s.Messages {
			values := make(map[string]string, len(m.Values))
			for k, v := range m.Values {
				if str, ok := v.(string); ok {
					values[k] = str
				} else {
					values[k] = fmt.Sprint(v)
				}
			}
			out = append(out, Message{ID: m.ID, Values: values})
		}
	}
	return out, nil
}

// Ack acknowledges entries for a group (XACK).
func (c *Client) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return classify("xack", c.rdb.XAck(ctx, stream, group, ids...).Err())
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return classify("ping", c.rdb.Ping(ctx).Err())
}

// classify tags a go-redis error with the cause used for retries and logs.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	var opErr *net.OpError
	msg := err.Error()
	cause := apperrors.CauseProtocol
	switch {
	case strings.HasPrefix(msg, "BUSYGROUP"):
		cause = apperrors.CauseBusyGroup
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(msg, "connection pool timeout"):
		cause = apperrors.CauseTimeout
	case errors.Is(err, redis.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.As(err, &opErr):
		cause = apperrors.CauseConnection
	}
	return apperrors.NewStoreError(op, cause, err)
}
