package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	msgs, err := encode([]Event{
		{Key: "10.0.0.1", Value: map[string]int{"reports": 2}},
		{Key: "10.0.0.2", Value: "plain"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "10.0.0.1", string(msgs[0].Key))
	assert.JSONEq(t, `{"reports":2}`, string(msgs[0].Value))
	assert.Equal(t, `"plain"`, string(msgs[1].Value))
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode([]Event{{Key: "bad", Value: make(chan int)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}
