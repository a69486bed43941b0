package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/signal"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/stream"
	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
)

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ips.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "192.168.1.1\n10.0.0.1\n192.168.1.1\n")
	})
	mux.HandleFunc("/ips.csv", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ip,seen\n172.16.0.1,today\n10.0.0.1,today\n")
	})
	mux.HandleFunc("/ips.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hosts":[{"ip":"203.0.113.9"}]}`)
	})
	mux.HandleFunc("/gone.txt", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRegistry(srv *httptest.Server) Registry {
	return NewRegistry(NewFetcher(srv.Client(), time.Second, slog.Default()), NewParsePool(2))
}

type fakePublisher struct {
	mu      sync.Mutex
	seen    map[string]bool
	records []signal.Record
	err     error
}

func (p *fakePublisher) PublishAll(_ context.Context, records []signal.Record, _ int) ([]stream.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return make([]stream.Result, len(records)), p.err
	}
	if p.seen == nil {
		p.seen = map[string]bool{}
	}
	results := make([]stream.Result, len(records))
	for i, rec := range records {
		p.records = append(p.records, rec)
		fp := signal.Fingerprint(rec)
		results[i].Fingerprint = fp
		if p.seen[fp] {
			results[i].Outcome = stream.OutcomeDuplicate
			continue
		}
		p.seen[fp] = true
		results[i].Outcome = stream.OutcomePublished
		results[i].EntryID = fmt.Sprintf("%d-0", i+1)
	}
	return results, nil
}

func TestFeedHandlerTagsRecordsWithSource(t *testing.T) {
	srv := feedServer(t)
	reg := newTestRegistry(srv)

	records, err := reg.Handle(context.Background(), Source{URL: srv.URL + "/ips.txt", Type: SourceTXT})
	require.NoError(t, err)
	assert.Equal(t, []signal.Record{
		{IP: "192.168.1.1", SourceURL: srv.URL + "/ips.txt"},
		{IP: "10.0.0.1", SourceURL: srv.URL + "/ips.txt"},
	}, records)
}

func TestRegistryUnknownType(t *testing.T) {
	_, err := Registry{}.Handle(context.Background(), Source{URL: "https://a.example", Type: "xlsx"})
	assert.ErrorIs(t, err, apperrors.ErrUnknownSourceType)
}

func TestFetchNon2xx(t *testing.T) {
	srv := feedServer(t)
	f := NewFetcher(srv.Client(), time.Second, nil)
	_, err := f.Fetch(context.Background(), srv.URL+"/gone.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
	assert.Contains(t, err.Error(), "410")
}

func TestNewFetcherLeavesClientUnchanged(t *testing.T) {
	client := &http.Client{Timeout: time.Minute}
	f := NewFetcher(client, time.Second, nil)
	assert.Equal(t, time.Minute, client.Timeout)
	assert.Equal(t, time.Second, f.client.Timeout)
	assert.NotSame(t, client, f.client)

	assert.NotNil(t, NewFetcher(nil, 0, nil).client)
}

func TestRunnerSweepsAllSources(t *testing.T) {
	srv := feedServer(t)
	pub := &fakePublisher{}
	r := NewRunner(newTestRegistry(srv), pub, RunnerConfig{SourceConcurrency: 2}, slog.Default(), nil)

	sources := []Source{
		{URL: srv.URL + "/ips.txt", Type: SourceTXT},
		{URL: srv.URL + "/gone.txt", Type: SourceTXT},
		{URL: srv.URL + "/ips.csv", Type: SourceCSV},
		{URL: srv.URL + "/ips.json", Type: SourceJSON},
	}
	sum, err := r.Run(context.Background(), sources)
	require.NoError(t, err)

	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 4, sum.Sources)
	assert.Equal(t, 1, sum.FailedSources)
	assert.Equal(t, 5, sum.Records)
	assert.Equal(t, 5, sum.Published, "10.0.0.1 from two feeds has two fingerprints")
	assert.Zero(t, sum.Duplicates)
	assert.Zero(t, sum.Unavailable)
	assert.Len(t, sum.EntryIDs, 5)

	// Records are flattened in source order.
	require.Len(t, pub.records, 5)
	assert.Equal(t, srv.URL+"/ips.txt", pub.records[0].SourceURL)
	assert.Equal(t, srv.URL+"/ips.json", pub.records[4].SourceURL)

	again, err := r.Run(context.Background(), sources)
	require.NoError(t, err)
	assert.Zero(t, again.Published)
	assert.Equal(t, 5, again.Duplicates)
	assert.NotEqual(t, sum.RunID, again.RunID)
}

func TestRunnerPublishFailure(t *testing.T) {
	srv := feedServer(t)
	pub := &fakePublisher{err: errors.New("WRONGTYPE")}
	r := NewRunner(newTestRegistry(srv), pub, RunnerConfig{}, slog.Default(), nil)

	_, err := r.Run(context.Background(), []Source{{URL: srv.URL + "/ips.txt", Type: SourceTXT}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WRONGTYPE")
}

func TestParsePoolHonoursContext(t *testing.T) {
	pool := NewParsePool(1)
	block := make(chan struct{})
	started := make(chan struct{})
	go pool.Parse(context.Background(), nil, func([]byte) ([]string, error) {
		close(started)
		<-block
		return nil, nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := pool.Parse(ctx, nil, ParseText)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}
