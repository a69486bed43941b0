// Package sweep collects IP addresses from threat-intelligence feeds and
// publishes them to the signal stream. Each feed is a Source whose type
// selects the Handler that fetches and parses it.
package sweep

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SourceType is the format of a feed's body.
type SourceType string

const (
	SourceTXT  SourceType = "txt"
	SourceCSV  SourceType = "csv"
	SourceJSON SourceType = "json"
)

// Source is one feed to sweep.
type Source struct {
	URL  string     `yaml:"url"`
	Type SourceType `yaml:"type"`
}

func (s Source) String() string {
	return fmt.Sprintf("%s (%s)", s.URL, s.Type)
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// ValidationError holds per-field problems with one source entry.
type ValidationError struct {
	Index  int
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return fmt.Sprintf("source %d: %s", e.Index, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrUnknownSourceType for a bad type field.
func (e *ValidationError) Unwrap() error {
	if _, ok := e.Fields["type"]; ok {
		return apperrors.ErrUnknownSourceType
	}
	return apperrors.ErrInvalidConfig
}

// LoadSources reads the feed list from a YAML file of the form
//
//	sources:
//	  - url: https://example.com/ips.txt
//	    type: txt
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sources file %s: %w", path, err)
	}
	sources, err := ParseSources(data)
	if err != nil {
		return nil, fmt.Errorf("loading sources file %s: %w", path, err)
	}
	return sources, nil
}

// ParseSources decodes and validates a YAML feed list. Type names are
// case-insensitive.
func ParseSources(data []byte) ([]Source, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing sources: %v", apperrors.ErrInvalidConfig, err)
	}
	for i := range f.Sources {
		f.Sources[i].URL = strings.TrimSpace(f.Sources[i].URL)
		f.Sources[i].Type = SourceType(strings.ToLower(strings.TrimSpace(string(f.Sources[i].Type))))
		if err := validateSource(i, f.Sources[i]); err != nil {
			return nil, err
		}
	}
	return f.Sources, nil
}

func validateSource(i int, s Source) error {
	errs := make(map[string]string)
	if s.URL == "" {
		errs["url"] = "url is required"
	} else if u, err := url.Parse(s.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs["url"] = fmt.Sprintf("%q is not an http(s) url", s.URL)
	}
	switch s.Type {
	case SourceTXT, SourceCSV, SourceJSON:
	default:
		errs["type"] = fmt.Sprintf("unknown source type %q", s.Type)
	}
	if len(errs) > 0 {
		return &ValidationError{Index: i, Fields: errs}
	}
	return nil
}
