package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/forge"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/kafka"
)

type fakeProducer struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (p *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func report(ip string) forge.IPReport {
	return forge.IPReport{Host: forge.HostMetadata{IPAddress: ip}}
}

func TestFlushOnBatchSize(t *testing.T) {
	p := &fakeProducer{}
	bc := NewBatchCollector(p, 2, time.Hour, nil)

	require.NoError(t, bc.Save(context.Background(), report("1.1.1.1")))
	assert.Equal(t, 1, bc.BufferLen())
	require.NoError(t, bc.Save(context.Background(), report("2.2.2.2")))

	require.Eventually(t, func() bool { return p.count() == 2 }, time.Second, time.Millisecond)
	assert.Zero(t, bc.BufferLen())
	p.mu.Lock()
	assert.Equal(t, "1.1.1.1", p.batches[0][0].Key)
	p.mu.Unlock()
}

func TestFlushOnCancel(t *testing.T) {
	p := &fakeProducer{}
	bc := NewBatchCollector(p, 100, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	require.NoError(t, bc.Save(context.Background(), report("1.1.1.1")))
	cancel()
	bc.Close()
	assert.Equal(t, 1, p.count())
}

func TestFlushOnInterval(t *testing.T) {
	p := &fakeProducer{}
	bc := NewBatchCollector(p, 100, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bc.Start(ctx)

	require.NoError(t, bc.Save(context.Background(), report("1.1.1.1")))
	require.Eventually(t, func() bool { return p.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFailedFlushRequeuesAndCaps(t *testing.T) {
	p := &fakeProducer{fail: true}
	bc := NewBatchCollector(p, 1, time.Hour, nil)

	for _, ip := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4", "5.5.5.5"} {
		bc.mu.Lock()
		bc.buffer = append(bc.buffer, kafka.Event{Key: ip, Value: report(ip)})
		bc.mu.Unlock()
		bc.flush(context.Background())
	}
	assert.Equal(t, 3, bc.BufferLen())
	bc.mu.Lock()
	assert.Equal(t, "3.3.3.3", bc.buffer[0].Key, "oldest dropped first")
	bc.mu.Unlock()

	p.mu.Lock()
	p.fail = false
	p.mu.Unlock()
	bc.flush(context.Background())
	assert.Equal(t, 3, p.count())
	assert.Zero(t, bc.BufferLen())
}
