package pgutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVector(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want string
	}{
		{"empty", nil, "[]"},
		{"single", []float32{0.5}, "[0.5]"},
		{"multiple", []float32{0.1, -0.25, 3}, "[0.1,-0.25,3]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatVector(tt.in))
		})
	}
}

func TestParseVector(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		in := []float32{0.125, -1.5, 0, 42}
		out, err := ParseVector(FormatVector(in))
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("empty literal", func(t *testing.T) {
		out, err := ParseVector("[]")
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("whitespace tolerated", func(t *testing.T) {
		out, err := ParseVector(" [0.1, 0.2] ")
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("missing brackets", func(t *testing.T) {
		_, err := ParseVector("0.1,0.2")
		assert.Error(t, err)
	})

	t.Run("bad component", func(t *testing.T) {
		_, err := ParseVector("[0.1,abc]")
		assert.Error(t, err)
	})
}
