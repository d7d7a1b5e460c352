package ber

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"primitive integer", []byte{0x02, 0x01, 0x05}},
		{"sequence with children", []byte{0x30, 0x06, 0x02, 0x01, 0x05, 0x04, 0x01, 0xFF}},
		{"indefinite sequence", []byte{0x30, 0x80, 0x02, 0x01, 0x05, 0x00, 0x00}},
		{"multi-byte identifier", []byte{0x1F, 0x81, 0x00, 0x01, 0xAA}},
		{"long-form length", append([]byte{0x04, 0x82, 0x01, 0x00}, bytes.Repeat([]byte{0xEE}, 256)...)},
		{"nested sequences", []byte{0x30, 0x05, 0x31, 0x03, 0x02, 0x01, 0x09}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, err := DecodeBytes(tt.data, Options{})
			require.NoError(t, err)

			encoded, err := Encode(tag)
			require.NoError(t, err)
			assert.Equal(t, tt.data, encoded)

			// Decoding the re-encoded bytes yields an equal header and payload.
			again, err := DecodeBytes(encoded, Options{})
			require.NoError(t, err)
			assert.Equal(t, tag.Identifier, again.Identifier)
			assert.Equal(t, tag.Class, again.Class)
			assert.Equal(t, tag.Constructed, again.Constructed)
			assert.Equal(t, tag.Length, again.Length)
			assert.Equal(t, tag.Data, again.Data)
			assert.Equal(t, len(tag.Children), len(again.Children))
		})
	}
}

func TestEncodeBitStringKeepsRawPayload(t *testing.T) {
	// The speculative child of an expanded BIT STRING must not leak into
	// the wire form; Data is authoritative for primitive tags.
	data := []byte{0x03, 0x04, 0x00, 0x02, 0x01, 0x07}

	tag, err := DecodeBytes(data, Options{ExpandEmbedded: true})
	require.NoError(t, err)
	require.Len(t, tag.Children, 1)

	encoded, err := Encode(tag)
	require.NoError(t, err)
	assert.Equal(t, data, encoded)
}

func TestEncodeRecomputesConstructedLength(t *testing.T) {
	tag := &Tag{
		Identifier:  16,
		Class:       ClassUniversal,
		Constructed: true,
		Length:      99, // stale; children decide the real length
		Children: []*Tag{
			{Identifier: 2, Class: ClassUniversal, Length: 1, Data: []byte{0x05}},
		},
	}

	encoded, err := Encode(tag)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x30, 0x03, 0x02, 0x01, 0x05}, encoded)
}

func TestEncodeIndefiniteWithoutEOC(t *testing.T) {
	tag := &Tag{
		Identifier:  16,
		Class:       ClassUniversal,
		Constructed: true,
		Length:      LengthIndefinite,
		Children: []*Tag{
			{Identifier: 2, Class: ClassUniversal, Length: 1, Data: []byte{0x05}},
		},
	}

	_, err := Encode(tag)
	assert.Error(t, err)
}

func TestEncodePrimitiveIndefiniteRejected(t *testing.T) {
	tag := &Tag{Identifier: 4, Class: ClassUniversal, Length: LengthIndefinite}

	_, err := Encode(tag)
	assert.Error(t, err)
}
