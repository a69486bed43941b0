package forge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/forge/abuseipdb"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/stream"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/resilience"
)

// Checker looks up the reputation of an address.
type Checker interface {
	Check(ctx context.Context, ip string) (*abuseipdb.Response, error)
}

// Sink receives enriched reports.
type Sink interface {
	Save(ctx context.Context, report IPReport) error
}

// Processor enriches delivered signals. Its Handle method is a
// stream.Handler.
type Processor struct {
	checker Checker
	sinks   []Sink
	logger  *slog.Logger
	now     func() time.Time
}

func NewProcessor(checker Checker, sinks []Sink, log *slog.Logger) *Processor {
	return &Processor{
		checker: checker,
		sinks:   sinks,
		logger:  logger.WithComponent(log, "signal-processor"),
		now:     time.Now,
	}
}

// Handle checks the entry's address and saves the report to every sink.
//
// An address the API rejects outright is logged and the entry is treated as
// handled. Any other lookup failure, and any sink failure, is returned: the
// consumer stops and the entry stays pending until it is replayed.
func (p *Processor) Handle(ctx context.Context, entry stream.Entry) error {
	log := p.logger.With("entry_id", entry.ID, "ip", entry.Record.IP)
	resp, err := p.checker.Check(ctx, entry.Record.IP)
	if err != nil {
		switch {
		case abuseipdb.IsRejected(err):
			log.Warn("address rejected by reputation API, skipping", "error", err)
			return nil
		case errors.Is(err, resilience.ErrCircuitOpen):
			log.Warn("reputation lookup refused, circuit open")
		default:
			log.Error("reputation lookup failed", "error", err)
		}
		return fmt.Errorf("checking %s: %w", entry.Record.IP, err)
	}

	host, reports := Format(resp)
	report := IPReport{
		EntryID:         entry.ID,
		SourceURL:       entry.Record.SourceURL,
		Host:            host,
		ConfidenceScore: resp.Data.AbuseConfidenceScore,
		TotalReports:    resp.Data.TotalReports,
		Reports:         reports,
		ByDate:          GroupReports(reports),
		CheckedAt:       p.now().UTC(),
	}
	for _, s := range p.sinks {
		if err := s.Save(ctx, report); err != nil {
			return fmt.Errorf("saving report for %s: %w", entry.Record.IP, err)
		}
	}
	log.Info("signal enriched",
		"country", host.CountryCode,
		"isp", host.ISP,
		"score", report.ConfidenceScore,
		"reports", len(reports),
	)
	return nil
}
