package process

import (
	"github.com/tiktoken-go/tokenizer"
)

var encodings = map[string]tokenizer.Encoding{
	"cl100k_base": tokenizer.Cl100kBase,
	"o200k_base":  tokenizer.O200kBase,
	"p50k_base":   tokenizer.P50kBase,
	"p50k_edit":   tokenizer.P50kEdit,
	"r50k_base":   tokenizer.R50kBase,
}

// Tokenizer counts tokens with one tiktoken encoding. A Codec is safe for concurrent use.
type Tokenizer struct {
	codec    tokenizer.Codec
	encoding string
}

// NewTokenizer loads encoding. Unknown or empty names fall back to cl100k_base.
func NewTokenizer(encoding string) (*Tokenizer, error) {
	enc, ok := encodings[encoding]
	if !ok {
		encoding, enc = "cl100k_base", tokenizer.Cl100kBase
	}
	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{codec: codec, encoding: encoding}, nil
}

// Encoding returns the name of the loaded encoding
func (t *Tokenizer) Encoding() string {
	return t.encoding
}

// Count returns the number of tokens in text, or -1 when the text cannot be encoded
// so callers can tell "unknown" from an empty text.
func (t *Tokenizer) Count(text string) int {
	if t == nil || t.codec == nil {
		return -1
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return -1
	}
	return len(ids)
}
