// Package prompt canonicalizes prompts and maps them to their reference
// labels.
//
// The external generation pipeline recovers prompts from rollouts after its
// own tokenize, generate and decode cycle. Lookups into the label map are
// exact string matches, so prompts are stored in the form that cycle
// produces.
package prompt

import (
	"strings"

	"github.com/papercomputeco/rlhfrun/pkg/tokenizer"
)

// markerHeadroom is the number of tokens reserved for the role marker when
// the text before it is truncated.
const markerHeadroom = 5

// Canonicalizer reproduces the generation pipeline's round trip for one
// tokenizer and role marker.
type Canonicalizer struct {
	Tokenizer  *tokenizer.Tokenizer
	RoleMarker string
}

// Canonicalize truncates the text before the role marker to maxLength-5
// tokens, re-appends the marker, then truncates the whole prompt to
// maxLength tokens. Both stages decode back to text and trim whitespace.
func (c *Canonicalizer) Canonicalize(raw string, maxLength int) string {
	head, _, _ := strings.Cut(raw, c.RoleMarker)
	head = strings.TrimSpace(c.roundTrip(head, maxLength-markerHeadroom))
	return strings.TrimSpace(c.roundTrip(head+c.RoleMarker, maxLength))
}

// CanonicalizeAll canonicalizes every prompt, preserving order.
func (c *Canonicalizer) CanonicalizeAll(prompts []string, maxLength int) []string {
	out := make([]string, len(prompts))
	for i, p := range prompts {
		out[i] = c.Canonicalize(p, maxLength)
	}
	return out
}

// Delimiter is the role marker as it appears in decoded rollouts. It
// separates a sample's prompt from the generated continuation.
func (c *Canonicalizer) Delimiter() string {
	return c.Tokenizer.Decode(c.Tokenizer.Encode(c.RoleMarker), true)
}

// Recoverable reports whether a rollout starting with the canonical prompt p
// splits back into p on the delimiter. It fails when truncation clipped
// the role marker.
func (c *Canonicalizer) Recoverable(p string) bool {
	d := c.Delimiter()
	if d == "" {
		return false
	}
	head, _, found := strings.Cut(p+"x", d)
	return found && head+d == p
}

func (c *Canonicalizer) roundTrip(text string, maxLen int) string {
	return c.Tokenizer.Decode(c.Tokenizer.EncodeTruncated(text, maxLen), true)
}

// MaxLength is the token budget left for a prompt once the generation
// budget is reserved.
func MaxLength(seqLength, maxNewTokens int) int {
	return seqLength - maxNewTokens
}
