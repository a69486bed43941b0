// Package signal defines the unit of signal published on the stream and the
// content fingerprint used to deduplicate it.
package signal

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
)

// Field names used on the wire. They are part of the fingerprint input, so
// changing them changes every fingerprint in the ledger.
const (
	FieldIP        = "ip"
	FieldSourceURL = "source_url"
)

// Record is an IP observed in a threat-intelligence feed. IP is expected to
// look like an IPv4 address but is not validated here.
type Record struct {
	IP        string
	SourceURL string
}

// Fields returns the record as the field map stored on the stream.
func (r Record) Fields() map[string]string {
	return map[string]string{
		FieldIP:        r.IP,
		FieldSourceURL: r.SourceURL,
	}
}

func (r Record) String() string {
	return fmt.Sprintf("Record(ip=%s, source_url=%s)", r.IP, r.SourceURL)
}

// RecordFromFields decodes a stream entry's field map. Unknown fields are
// ignored.
func RecordFromFields(fields map[string]string) (Record, error) {
	ip, ok := fields[FieldIP]
	if !ok {
		return Record{}, fmt.Errorf("%w: missing %q", apperrors.ErrMalformedEntry, FieldIP)
	}
	src, ok := fields[FieldSourceURL]
	if !ok {
		return Record{}, fmt.Errorf("%w: missing %q", apperrors.ErrMalformedEntry, FieldSourceURL)
	}
	return Record{IP: ip, SourceURL: src}, nil
}
