// Package forge enriches delivered signals with AbuseIPDB reputation data and
// hands the resulting reports to sinks.
package forge

import (
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/attack-radar/internal/forge/abuseipdb"
)

// HostMetadata is what is known about the host behind an address.
type HostMetadata struct {
	IPAddress   string `json:"ip_address"`
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	UsageType   string `json:"usage_type"`
	Domain      string `json:"domain"`
	ISP         string `json:"isp"`
}

// AbuseReport is one abuse report against an address.
type AbuseReport struct {
	IPAddress  string    `json:"ip_address"`
	ReportedAt time.Time `json:"reported_at"`
	Comment    string    `json:"comment"`
	Categories []int     `json:"categories"`
}

// ReportEntry is a report as listed under its date and category.
type ReportEntry struct {
	ReportedAt time.Time `json:"reported_at"`
	Comment    string    `json:"comment"`
}

// GroupedReports maps a report date (YYYY-MM-DD, UTC) to category id to the
// reports filed that day with that category.
type GroupedReports map[string]map[int][]ReportEntry

// IPReport is the enrichment result for one delivered signal.
type IPReport struct {
	EntryID         string         `json:"entry_id"`
	SourceURL       string         `json:"source_url"`
	Host            HostMetadata   `json:"host"`
	ConfidenceScore int            `json:"abuse_confidence_score"`
	TotalReports    int            `json:"total_reports"`
	Reports         []AbuseReport  `json:"-"`
	ByDate          GroupedReports `json:"reports"`
	CheckedAt       time.Time      `json:"checked_at"`
}

// Format splits a check response into host metadata and its report list.
func Format(resp *abuseipdb.Response) (HostMetadata, []AbuseReport) {
	d := resp.Data
	host := HostMetadata{
		IPAddress:   d.IPAddress,
		CountryCode: d.CountryCode,
		CountryName: d.CountryName,
		UsageType:   d.UsageType,
		Domain:      d.Domain,
		ISP:         d.ISP,
	}
	reports := make([]AbuseReport, 0, len(d.Reports))
	for _, r := range d.Reports {
		reports = append(reports, AbuseReport{
			IPAddress:  d.IPAddress,
			ReportedAt: r.ReportedAt,
			Comment:    r.Comment,
			Categories: r.Categories,
		})
	}
	return host, reports
}

// GroupReports groups reports by the day they were filed and then by
// category. A report with several categories is listed under each. Within a
// group, reports are ordered oldest first.
func GroupReports(reports []AbuseReport) GroupedReports {
	out := make(GroupedReports)
	for _, r := range reports {
		day := r.ReportedAt.UTC().Format(time.DateOnly)
		byCat, ok := out[day]
		if !ok {
			byCat = make(map[int][]ReportEntry)
			out[day] = byCat
		}
		for _, cat := range r.Categories {
			byCat[cat] = append(byCat[cat], ReportEntry{ReportedAt: r.ReportedAt, Comment: r.Comment})
		}
	}
	for _, byCat := range out {
		for _, entries := range byCat {
			sort.SliceStable(entries, func(i, j int) bool {
				return entries[i].ReportedAt.Before(entries[j].ReportedAt)
			})
		}
	}
	return out
}
