package sweep

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/logger"
)

// maxBodySize bounds how much of a feed is read into memory.
const maxBodySize = 64 << 20

// Fetcher downloads feed bodies over HTTP.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewFetcher creates a Fetcher whose requests time out after timeout. The
// Fetcher works on a copy of client, which is left unchanged. A nil client
// uses a new http.Client.
func NewFetcher(client *http.Client, timeout time.Duration, log *slog.Logger) *Fetcher {
	var c http.Client
	if client != nil {
		c = *client
	}
	if timeout > 0 {
		c.Timeout = timeout
	}
	return &Fetcher{
		client: &c,
		logger: logger.WithComponent(log, "fetcher"),
	}
}

// Fetch returns the body at url. A transport failure or a non-2xx status
// is reported as ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %v", apperrors.ErrFetchFailed, url, err)
	}
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrFetchFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s: unexpected status %d", apperrors.ErrFetchFailed, url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", apperrors.ErrFetchFailed, url, err)
	}
	logger.FromContext(ctx, f.logger).Debug("feed fetched",
		"url", url,
		"bytes", len(body),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}
