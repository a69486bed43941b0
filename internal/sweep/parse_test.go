package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractIPv4(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"no addresses", "nothing to see here", nil},
		{"one per line", "1.2.3.4\n5.6.7.8\n", []string{"1.2.3.4", "5.6.7.8"}},
		{"dedup keeps first order", "9.9.9.9 1.1.1.1 9.9.9.9 2.2.2.2 1.1.1.1", []string{"9.9.9.9", "1.1.1.1", "2.2.2.2"}},
		{"embedded in prose", "blocked 203.0.113.7, port 22 (ssh)", []string{"203.0.113.7"}},
		{"octet bounds", "255.255.255.255 0.0.0.0", []string{"255.255.255.255", "0.0.0.0"}},
		{"out of range octet", "256.1.1.1", nil},
		{"too few octets", "10.0.0", nil},
		{"leading zeros", "010.001.002.003", []string{"010.001.002.003"}},
		{"non-ascii letter before", "é1.2.3.4", nil},
		{"non-ascii letter after", "1.2.3.4é", nil},
		{"underscore before", "_1.2.3.4", nil},
		{"restart after rejected match", "é1.2.3.4.5", []string{"2.3.4.5"}},
		{"non-ascii punctuation", "«1.2.3.4»", []string{"1.2.3.4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractIPv4(tt.text))
		})
	}
}

func TestParseCSV(t *testing.T) {
	body := []byte("# exported feed\nip,first_seen,note\n198.51.100.1,2024-01-01,\"scanner, seen from 198.51.100.2\"\n198.51.100.1,2024-01-02\n192.0.2.9\n")
	ips, err := ParseCSV(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"198.51.100.1", "198.51.100.2", "192.0.2.9"}, ips)
}

func TestParseJSON(t *testing.T) {
	body := []byte(`{
		"10.9.9.9": "keys are not searched",
		"data": [
			{"ip": "203.0.113.5", "score": 90, "tags": ["ssh", "from 203.0.113.6"]},
			{"ip": "203.0.113.5", "nested": {"addr": "192.0.2.1"}},
			{"ip": null, "ok": true}
		],
		"meta": "updated by 192.0.2.200"
	}`)
	ips, err := ParseJSON(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.5", "203.0.113.6", "192.0.2.1", "192.0.2.200"}, ips)
}

func TestParseJSONTopLevelArray(t *testing.T) {
	ips, err := ParseJSON([]byte(`["1.1.1.1", {"x": "2.2.2.2"}, "1.1.1.1"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1.1", "2.2.2.2"}, ips)
}

func TestParseJSONMalformed(t *testing.T) {
	_, err := ParseJSON([]byte(`{"ip": "1.1.1.1"`))
	assert.Error(t, err)
	_, err = ParseJSON([]byte(`{"ip" 1}`))
	assert.Error(t, err)
}

func TestParseText(t *testing.T) {
	ips, err := ParseText([]byte("# header\n192.168.1.1\n10.0.0.1 ; 172.16.0.1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.1", "10.0.0.1", "172.16.0.1"}, ips)
}
