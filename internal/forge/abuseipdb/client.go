// Package abuseipdb is a client for the AbuseIPDB v2 check endpoint. Calls go
// through a circuit breaker and a per-call timeout, and concurrent checks of
// the same address share one request.
package abuseipdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/resilience"
)

const DefaultURL = "https://api.abuseipdb.com/api/v2/check"

// Response is the body of a successful check.
type Response struct {
	Data CheckData `json:"data"`
}

// CheckData describes one address and, with verbose output, its reports.
type CheckData struct {
	IPAddress            string    `json:"ipAddress"`
	IsPublic             bool      `json:"isPublic"`
	IPVersion            int       `json:"ipVersion"`
	IsWhitelisted        bool      `json:"isWhitelisted"`
	AbuseConfidenceScore int       `json:"abuseConfidenceScore"`
	CountryCode          string    `json:"countryCode"`
	CountryName          string    `json:"countryName"`
	UsageType            string    `json:"usageType"`
	ISP                  string    `json:"isp"`
	Domain               string    `json:"domain"`
	Hostnames            []string  `json:"hostnames"`
	IsTor                bool      `json:"isTor"`
	TotalReports         int       `json:"totalReports"`
	NumDistinctUsers     int       `json:"numDistinctUsers"`
	LastReportedAt       time.Time `json:"lastReportedAt"`
	Reports              []Report  `json:"reports"`
}

// Report is one abuse report filed against an address.
type Report struct {
	ReportedAt          time.Time `json:"reportedAt"`
	Comment             string    `json:"comment"`
	Categories          []int     `json:"categories"`
	ReporterID          int       `json:"reporterId"`
	ReporterCountryCode string    `json:"reporterCountryCode"`
}

// APIError is a non-200 answer from the API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Detail)
}

func (e *APIError) Unwrap() error {
	return apperrors.ErrEnrichmentFailed
}

// IsRejected reports whether err is the API refusing the address itself,
// such as a malformed or non-routable address. Repeating the lookup gives
// the same answer. Rate limits, server errors, timeouts and an open breaker
// are not rejections.
func IsRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

type errorBody struct {
	Errors []struct {
		Detail string `json:"detail"`
		Status int    `json:"status"`
	} `json:"errors"`
}

// Client checks addresses against AbuseIPDB.
type Client struct {
	http    *http.Client
	url     string
	apiKey  string
	maxAge  int
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Client. A nil httpClient uses a new http.Client.
func New(httpClient *http.Client, cfg config.EnrichmentConfig, log *slog.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	log = logger.WithComponent(log, "abuseipdb")
	api := cfg.AbuseIPDB
	if api.URL == "" {
		api.URL = DefaultURL
	}
	if api.MaxAgeInDays <= 0 {
		api.MaxAgeInDays = 90
	}
	return &Client{
		http:    httpClient,
		url:     api.URL,
		apiKey:  api.APIKey,
		maxAge:  api.MaxAgeInDays,
		timeout: api.Timeout,
		breaker: resilience.NewCircuitBreaker("abuseipdb", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Breaker.ResetTimeout,
			Logger:           log,
			OnStateChange: func(name string, to resilience.State) {
				m.SetBreakerState(name, int(to))
			},
		}),
		logger:  log,
		metrics: m,
	}
}

// Check looks up ip with verbose output. While the breaker is open it fails
// fast with resilience.ErrCircuitOpen. A rejected address does not count
// against the breaker.
func (c *Client) Check(ctx context.Context, ip string) (*Response, error) {
	v, err, shared := c.group.Do(ip, func() (any, error) {
		start := time.Now()
		var resp *Response
		var rejected error
		err := c.breaker.Execute(func() error {
			err := resilience.WithTimeout(ctx, c.timeout, "abuseipdb check", func(ctx context.Context) error {
				var err error
				resp, err = c.check(ctx, ip)
				return err
			})
			if IsRejected(err) {
				rejected = err
				return nil
			}
			return err
		})
		if err == nil {
			err = rejected
		}
		status := "ok"
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			status = "circuit_open"
		case IsRejected(err):
			status = "rejected"
		case err != nil:
			status = "failed"
		}
		c.metrics.ObserveEnrichment(status, time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("shared in-flight check", "ip", ip)
	}
	return v.(*Response), nil
}

func (c *Client) check(ctx context.Context, ip string) (*Response, error) {
	q := url.Values{}
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", strconv.Itoa(c.maxAge))
	q.Set("verbose", "")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", apperrors.ErrEnrichmentFailed, err)
	}
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: checking %s: %w", apperrors.ErrEnrichmentFailed, ip, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response for %s: %w", apperrors.ErrEnrichmentFailed, ip, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checking %s: %w", ip, &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(body)})
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decoding response for %s: %v", apperrors.ErrEnrichmentFailed, ip, err)
	}
	return &out, nil
}

func errorDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && len(eb.Errors) > 0 {
		details := make([]string, 0, len(eb.Errors))
		for _, e := range eb.Errors {
			details = append(details, e.Detail)
		}
		return strings.Join(details, "; ")
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return strings.TrimSpace(string(body))
}
