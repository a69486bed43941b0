package sweep

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ParseText extracts every address in a plain-text body.
func ParseText(body []byte) ([]string, error) {
	return ExtractIPv4(string(body)), nil
}

// ParseCSV extracts the addresses found in any cell. Rows may have differing
// numbers of fields.
func ParseCSV(body []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true
	r.Comment = '#'

	var ips []string
	seen := make(map[string]struct{})
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		for _, cell := range row {
			ips = appendUnique(ips, seen, cell)
		}
	}
	return ips, nil
}

// ParseJSON extracts the addresses found in any string value of the
// document, in document order. Object keys are not searched.
func ParseJSON(body []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var ips []string
	seen := make(map[string]struct{})
	var stack []jsonFrame
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading json: %w", err)
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				stack = valueSeen(stack)
				stack = append(stack, jsonFrame{object: d == '{', expectKey: d == '{'})
			default:
				stack = stack[:len(stack)-1]
			}
			continue
		}
		if n := len(stack); n > 0 && stack[n-1].object && stack[n-1].expectKey {
			stack[n-1].expectKey = false
			continue
		}
		stack = valueSeen(stack)
		if s, ok := tok.(string); ok {
			ips = appendUnique(ips, seen, s)
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("reading json: %w", io.ErrUnexpectedEOF)
	}
	return ips, nil
}

type jsonFrame struct {
	object    bool
	expectKey bool
}

// valueSeen records that the enclosing object's pending value was read, so
// its next string token is a key.
func valueSeen(stack []jsonFrame) []jsonFrame {
	if n := len(stack); n > 0 && stack[n-1].object {
		stack[n-1].expectKey = true
	}
	return stack
}
