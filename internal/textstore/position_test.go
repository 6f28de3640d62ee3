package textstore_test

import (
	"testing"

	"daelsp/internal/textstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func TestLineIndexUTF16(t *testing.T) {
	// "é" is 2 bytes / 1 unit, "😀" is 4 bytes / 2 units
	text := "aé😀b\r\nsecond\n"
	li := textstore.NewLineIndex(text)
	assert.Equal(t, 3, li.Lines())

	tests := []struct {
		pos  protocol.Position
		want int
	}{
		{protocol.Position{Line: 0, Character: 0}, 0},
		{protocol.Position{Line: 0, Character: 2}, 3},
		{protocol.Position{Line: 0, Character: 4}, 7},
		{protocol.Position{Line: 0, Character: 5}, 8},
		{protocol.Position{Line: 0, Character: 99}, 8}, // clamps before \r\n
		{protocol.Position{Line: 1, Character: 3}, 13},
		{protocol.Position{Line: 2, Character: 0}, len(text)},
	}
	for _, tt := range tests {
		got, err := li.Offset(tt.pos)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%+v", tt.pos)
		if tt.pos.Character != 99 {
			assert.Equal(t, tt.pos, li.Position(got))
		}
	}

	_, err := li.Offset(protocol.Position{Line: 4})
	assert.Error(t, err)
}

func TestLineIndexPastLastLine(t *testing.T) {
	li := textstore.NewLineIndex("abc")
	off, err := li.Offset(protocol.Position{Line: 1, Character: 0})
	require.NoError(t, err)
	assert.Equal(t, 3, off)

	_, err = li.Offset(protocol.Position{Line: 1, Character: 1})
	assert.Error(t, err)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 0, Character: 1},
		End:   protocol.Position{Line: 0, Character: 3},
	}, li.Range(1, 3))
}
