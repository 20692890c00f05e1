package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenizer(t *testing.T) {
	tests := []struct {
		encoding string
		want     string
	}{
		{"cl100k_base", "cl100k_base"},
		{"o200k_base", "o200k_base"},
		{"", "cl100k_base"},
		{"made-up", "cl100k_base"},
	}
	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			tok, err := NewTokenizer(tt.encoding)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tok.Encoding())
		})
	}
}

func TestTokenizer_Count(t *testing.T) {
	tok, err := NewTokenizer("cl100k_base")
	require.NoError(t, err)

	assert.Equal(t, 0, tok.Count(""))
	assert.Greater(t, tok.Count("西昌邛海湿地生态保护成效显著"), 0)

	short := tok.Count("hello")
	long := tok.Count("hello world, this is a longer sentence with more tokens")
	assert.Greater(t, long, short)
}

func TestTokenizer_NilIsUnknown(t *testing.T) {
	var tok *Tokenizer
	assert.Equal(t, -1, tok.Count("anything"))
}
