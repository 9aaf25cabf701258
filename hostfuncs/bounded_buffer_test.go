package hostfuncs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedBuffer_Write(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		writes    []string
		want      string
		truncated bool
	}{
		{"writes within limit", 100, []string{"hello"}, "hello", false},
		{"truncates at limit", 10, []string{"hello world"}, "hello worl", true},
		{"multiple writes truncate", 10, []string{"12345", "67890", "XXXXX"}, "1234567890", true},
		{"partial write at boundary", 8, []string{"12345", "67890"}, "12345678", true},
		{"exact fit", 5, []string{"hello"}, "hello", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewBoundedBuffer(tt.limit)
			for _, w := range tt.writes {
				n, err := buf.Write([]byte(w))
				require.NoError(t, err)
				assert.Equal(t, len(w), n, "writes report the full length")
			}
			assert.Equal(t, tt.want, buf.String())
			assert.Equal(t, tt.truncated, buf.Truncated)
		})
	}
}

func TestBoundedBuffer_Set(t *testing.T) {
	buf := NewBoundedBuffer(8)
	buf.Set("npc think loop")
	assert.Equal(t, "npc thin", buf.String())
	assert.True(t, buf.Truncated)

	buf.Set("tick")
	assert.Equal(t, "tick", buf.String())
	assert.False(t, buf.Truncated)
	assert.Equal(t, 4, buf.Len())
	assert.Equal(t, []byte("tick"), buf.Bytes())
}

func TestBoundedBuffer_Reset(t *testing.T) {
	buf := NewBoundedBuffer(5)
	_, _ = buf.WriteString("hello world")
	require.True(t, buf.Truncated)

	buf.Reset()

	assert.False(t, buf.Truncated)
	assert.Zero(t, buf.Len())
	assert.Empty(t, buf.String())
}
