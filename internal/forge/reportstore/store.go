// Package reportstore persists enriched reports to PostgreSQL.
package reportstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/forge"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS ip_hosts (
	ip_address   TEXT PRIMARY KEY,
	country_code TEXT NOT NULL DEFAULT '',
	country_name TEXT NOT NULL DEFAULT '',
	usage_type   TEXT NOT NULL DEFAULT '',
	domain       TEXT NOT NULL DEFAULT '',
	isp          TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ip_enrichments (
	entry_id               TEXT PRIMARY KEY,
	ip_address             TEXT NOT NULL REFERENCES ip_hosts (ip_address),
	source_url             TEXT NOT NULL,
	abuse_confidence_score INTEGER NOT NULL,
	total_reports          INTEGER NOT NULL,
	checked_at             TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS abuse_reports (
	report_key  TEXT PRIMARY KEY,
	ip_address  TEXT NOT NULL REFERENCES ip_hosts (ip_address),
	reported_at TIMESTAMPTZ NOT NULL,
	comment     TEXT NOT NULL,
	categories  INTEGER[] NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_abuse_reports_ip_reported
	ON abuse_reports (ip_address, reported_at);
`

// Store writes reports to PostgreSQL, one transaction per report.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client, log *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent(log, "report-store"),
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating report schema: %w", err)
	}
	return nil
}

// Save upserts the host, records the enrichment of the entry and inserts the
// reports not stored yet. Saving the same report twice is a no-op.
func (s *Store) Save(ctx context.Context, r forge.IPReport) error {
	inserted := 0
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		h := r.Host
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ip_hosts (ip_address, country_code, country_name, usage_type, domain, isp, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (ip_address) DO UPDATE SET
				country_code = EXCLUDED.country_code,
				country_name = EXCLUDED.country_name,
				usage_type = EXCLUDED.usage_type,
				domain = EXCLUDED.domain,
				isp = EXCLUDED.isp,
				updated_at = EXCLUDED.updated_at`,
			h.IPAddress, h.CountryCode, h.CountryName, h.UsageType, h.Domain, h.ISP, r.CheckedAt); err != nil {
			return fmt.Errorf("upserting host: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ip_enrichments (entry_id, ip_address, source_url, abuse_confidence_score, total_reports, checked_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (entry_id) DO NOTHING`,
			r.EntryID, h.IPAddress, r.SourceURL, r.ConfidenceScore, r.TotalReports, r.CheckedAt); err != nil {
			return fmt.Errorf("inserting enrichment: %w", err)
		}

		for _, rep := range r.Reports {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO abuse_reports (report_key, ip_address, reported_at, comment, categories)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (report_key) DO NOTHING`,
				reportKey(rep), rep.IPAddress, rep.ReportedAt, rep.Comment, pq.Array(categories(rep.Categories)))
			if err != nil {
				return fmt.Errorf("inserting report: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to save report", "ip", r.Host.IPAddress, "entry_id", r.EntryID, "error", err)
		return err
	}
	s.logger.Debug("report saved", "ip", r.Host.IPAddress, "new_reports", inserted)
	return nil
}

// CountReports returns how many reports are stored for ip.
func (s *Store) CountReports(ctx context.Context, ip string) (int, error) {
	var n int
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM abuse_reports WHERE ip_address = $1`, ip).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting reports for %s: %w", ip, err)
	}
	return n, nil
}

// reportKey identifies a report by address, time and comment, since the API
// exposes no report id.
func reportKey(r forge.AbuseReport) string {
	sum := sha256.Sum256([]byte(r.IPAddress + "|" + r.ReportedAt.UTC().Format(time.RFC3339Nano) + "|" + r.Comment))
	return hex.EncodeToString(sum[:])
}

func categories(cats []int) []int64 {
	out := make([]int64, len(cats))
	for i, c := range cats {
		out[i] = int64(c)
	}
	return out
}

var _ forge.Sink = (*Store)(nil)
