package mcl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadRawJSON(t *testing.T) {
	payload := []byte(`{"frameId":"laser"}`)
	got, err := DecodePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, got, "raw JSON passes through unchanged")
}

func TestDecodePayloadZlib(t *testing.T) {
	original := []byte(`{"frameId":"laser","ranges":[1.5,2.5]}`)
	compressed, err := DeflateZlib(original)
	require.NoError(t, err)
	require.NotEqual(t, byte('{'), compressed[0])

	got, err := DecodePayload(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestDecodePayloadErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty payload", nil},
		{"garbage bytes", []byte{0xde, 0xad, 0xbe, 0xef}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(tt.payload)
			assert.ErrorIs(t, err, ErrSensorDataInvalid)
		})
	}
}
