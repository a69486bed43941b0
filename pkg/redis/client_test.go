package redis

import (
	"context"
	"errors"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	c, err := NewClient(config.RedisConfig{
		Host:        mr.Host(),
		Port:        port,
		PoolSize:    4,
		DialTimeout: time.Second,
		ReadTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestSetMembership(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	ok, err := c.IsMember(ctx, "ledger", "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.AddMember(ctx, "ledger", "abc"))
	require.NoError(t, c.AddMember(ctx, "ledger", "abc"))

	ok, err = c.IsMember(ctx, "ledger", "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := mr.Members("ledger")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, members)
}

func TestAppendAndReadGroup(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	id1, err := c.Append(ctx, "log", map[string]string{"ip": "10.0.0.1", "source_url": "https://a/x.txt"})
	require.NoError(t, err)
	id2, err := c.Append(ctx, "log", map[string]string{"ip": "10.0.0.2", "source_url": "https://a/x.txt"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	require.NoError(t, c.CreateGroup(ctx, "log", "g", "0", false))

	msgs, err := c.ReadGroup(ctx, ReadArgs{Stream: "log", Group: "g", Consumer: "c", Start: ">", Count: 10, Block: 10 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, id1, msgs[0].ID)
	assert.Equal(t, map[string]string{"ip": "10.0.0.1", "source_url": "https://a/x.txt"}, msgs[0].Values)
	assert.Equal(t, id2, msgs[1].ID)

	// Nothing new: the read times out with an empty result.
	msgs, err = c.ReadGroup(ctx, ReadArgs{Stream: "log", Group: "g", Consumer: "c", Start: ">", Count: 10, Block: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Both entries are pending until acknowledged.
	pending, err := c.ReadGroup(ctx, ReadArgs{Stream: "log", Group: "g", Consumer: "c", Start: "0", Count: 10})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, c.Ack(ctx, "log", "g", id1))
	pending, err = c.ReadGroup(ctx, ReadArgs{Stream: "log", Group: "g", Consumer: "c", Start: "0", Count: 10})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id2, pending[0].ID)
}

func TestReadGroupCount(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	for i := range 5 {
		_, err := c.Append(ctx, "log", map[string]string{"ip": "10.0.0." + strconv.Itoa(i), "source_url": "u"})
		require.NoError(t, err)
	}
	require.NoError(t, c.CreateGroup(ctx, "log", "g", "0", false))

	msgs, err := c.ReadGroup(ctx, ReadArgs{Stream: "log", Group: "g", Consumer: "c", Start: ">", Count: 3})
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	msgs, err = c.ReadGroup(ctx, ReadArgs{Stream: "log", Group: "g", Consumer: "c", Start: ">", Count: 3})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestCreateGroupErrors(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	err := c.CreateGroup(ctx, "missing", "g", "0", false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CauseProtocol, apperrors.CauseOf(err))
	assert.False(t, apperrors.IsTransient(err))

	require.NoError(t, c.CreateGroup(ctx, "missing", "g", "0", true))

	err = c.CreateGroup(ctx, "missing", "g", "0", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrGroupExists)
	assert.Equal(t, apperrors.CauseBusyGroup, apperrors.CauseOf(err))
}

func TestServerDownIsTransient(t *testing.T) {
	c, mr := newTestClient(t)
	mr.Close()

	_, err := c.IsMember(context.Background(), "ledger", "abc")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err), "got %v", err)
	assert.Contains(t, []string{apperrors.CauseConnection, apperrors.CauseTimeout}, apperrors.CauseOf(err))
	assert.Error(t, c.Ping(context.Background()))
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	host := mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	_, err = NewClient(config.RedisConfig{Host: host, Port: port, DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		cause string
	}{
		{"busygroup", errors.New("BUSYGROUP Consumer Group name already exists"), apperrors.CauseBusyGroup},
		{"eof", io.EOF, apperrors.CauseConnection},
		{"deadline", context.DeadlineExceeded, apperrors.CauseTimeout},
		{"pool", errors.New("redis: connection pool timeout"), apperrors.CauseTimeout},
		{"wrongtype", errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"), apperrors.CauseProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.Equal(t, tt.cause, apperrors.CauseOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, classify("op", nil))
	canceled := classify("op", context.Canceled)
	assert.ErrorIs(t, canceled, context.Canceled)
	assert.Equal(t, apperrors.CauseUnhandled, apperrors.CauseOf(canceled))
}
