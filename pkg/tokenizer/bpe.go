package tokenizer

import (
	"fmt"
	"strings"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const (
	ModeBPE = "bpe"

	DefaultEncoding = "cl100k_base"

	// bpeSpecialBase sits above the largest tiktoken vocabulary.
	bpeSpecialBase = 1 << 20
)

type bpeCodec struct {
	enc *tiktoken.Tiktoken
}

func (c bpeCodec) Encode(text string) []int {
	return c.enc.EncodeOrdinary(text)
}

// Decode drops the bytes of runes split by truncation.
func (c bpeCodec) Decode(ids []int) string {
	return strings.ToValidUTF8(c.enc.Decode(ids), "")
}

// NewBPE returns a tokenizer over a tiktoken encoding.
func NewBPE(encoding string, specials ...string) (*Tokenizer, error) {
	encoding = strings.TrimSpace(encoding)
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", encoding, err)
	}
	return New(bpeCodec{enc: enc}, bpeSpecialBase, specials...), nil
}
