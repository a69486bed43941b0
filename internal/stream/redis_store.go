package stream

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/redis"
)

// RedisStore backs the signal stream with a Redis set and a Redis stream.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore adapts client to the Store interface.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) IsMember(ctx context.Context, set, member string) (bool, error) {
	return s.client.IsMember(ctx, set, member)
}

func (s *RedisStore) AddMember(ctx context.Context, set, member string) error {
	return s.client.AddMember(ctx, set, member)
}

func (s *RedisStore) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	return s.client.Append(ctx, stream, fields)
}

func (s *RedisStore) CreateGroup(ctx context.Context, stream, group, start string, mkStream bool) error {
	return s.client.CreateGroup(ctx, stream, group, start, mkStream)
}

func (s *RedisStore) ReadGroup(ctx context.Context, args ReadGroupArgs) ([]RawEntry, error) {
	msgs, err := s.client.ReadGroup(ctx, redis.ReadArgs{
		Stream:   args.Stream,
		Group:    args.Group,
		Consumer: args.Consumer,
		Start:    args.Start,
		Count:    args.Count,
		Block:    args.Block,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]RawEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, RawEntry{ID: m.ID, Fields: m.Values})
	}
	return entries, nil
}

func (s *RedisStore) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return s.client.Ack(ctx, stream, group, ids...)
}

var _ Store = (*RedisStore)(nil)
