// Package tokenizer maps text to token ids and back. A Tokenizer wraps a
// vocabulary codec and reserves ids for sentinel strings such as the markers
// the reward model frames its inputs with.
package tokenizer

import (
	"fmt"
	"strings"
)

// Codec is a vocabulary: it encodes text without adding special tokens and
// decodes ids it produced.
type Codec interface {
	Encode(text string) []int
	Decode(ids []int) string
}

// Tokenizer is a Codec extended with sentinel tokens. Sentinel i has id
// specialBase+i and is matched verbatim in input text.
type Tokenizer struct {
	codec       Codec
	specials    []string
	specialBase int
}

// New returns a Tokenizer over codec. specialBase must be above every id
// the codec can produce.
func New(codec Codec, specialBase int, specials ...string) *Tokenizer {
	return &Tokenizer{
		codec:       codec,
		specials:    specials,
		specialBase: specialBase,
	}
}

// Encode tokenizes text. Sentinels occurring in text become their reserved
// id; no other special tokens are added.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	for len(text) > 0 {
		idx, which := t.nextSpecial(text)
		if idx < 0 {
			ids = append(ids, t.codec.Encode(text)...)
			break
		}
		if idx > 0 {
			ids = append(ids, t.codec.Encode(text[:idx])...)
		}
		ids = append(ids, t.specialBase+which)
		text = text[idx+len(t.specials[which]):]
	}
	return ids
}

// EncodeTruncated encodes text and keeps at most maxLen ids from the left.
func (t *Tokenizer) EncodeTruncated(text string, maxLen int) []int {
	ids := t.Encode(text)
	if maxLen < 0 {
		maxLen = 0
	}
	if len(ids) > maxLen {
		ids = ids[:maxLen]
	}
	return ids
}

// Decode turns ids back into text. With skipSpecial, sentinel ids are
// dropped instead of being rendered.
func (t *Tokenizer) Decode(ids []int, skipSpecial bool) string {
	var (
		sb  strings.Builder
		run []int
	)
	flush := func() {
		if len(run) > 0 {
			sb.WriteString(t.codec.Decode(run))
			run = run[:0]
		}
	}
	for _, id := range ids {
		if s, ok := t.special(id); ok {
			flush()
			if !skipSpecial {
				sb.WriteString(s)
			}
			continue
		}
		run = append(run, id)
	}
	flush()
	return sb.String()
}

// SpecialID returns the reserved id of a registered sentinel.
func (t *Tokenizer) SpecialID(token string) (int, bool) {
	for i, s := range t.specials {
		if s == token {
			return t.specialBase + i, true
		}
	}
	return 0, false
}

func (t *Tokenizer) special(id int) (string, bool) {
	i := id - t.specialBase
	if i < 0 || i >= len(t.specials) {
		return "", false
	}
	return t.specials[i], true
}

// nextSpecial finds the earliest sentinel in text, preferring the longest
// one when several start at the same offset.
func (t *Tokenizer) nextSpecial(text string) (int, int) {
	bestIdx, which := -1, -1
	for i, s := range t.specials {
		if s == "" {
			continue
		}
		idx := strings.Index(text, s)
		if idx < 0 {
			continue
		}
		if bestIdx < 0 || idx < bestIdx || (idx == bestIdx && len(s) > len(t.specials[which])) {
			bestIdx, which = idx, i
		}
	}
	return bestIdx, which
}

// Load builds a tokenizer by mode name: "char" or "bpe". encoding selects
// the tiktoken encoding for "bpe" and defaults to cl100k_base.
func Load(mode, encoding string, specials ...string) (*Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeChar:
		return NewRune(specials...), nil
	case ModeBPE:
		return NewBPE(encoding, specials...)
	default:
		return nil, fmt.Errorf("unknown tokenizer mode %q", mode)
	}
}
