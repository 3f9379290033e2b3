package tokenizer

import "unicode"

const ModeChar = "char"

// runeCodec gives every rune its code point as id.
type runeCodec struct{}

func (runeCodec) Encode(text string) []int {
	ids := make([]int, 0, len(text))
	for _, r := range text {
		ids = append(ids, int(r))
	}
	return ids
}

func (runeCodec) Decode(ids []int) string {
	rs := make([]rune, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id <= unicode.MaxRune {
			rs = append(rs, rune(id))
		}
	}
	return string(rs)
}

// NewRune returns a character-level tokenizer, one token per rune.
func NewRune(specials ...string) *Tokenizer {
	return New(runeCodec{}, unicode.MaxRune+1, specials...)
}
