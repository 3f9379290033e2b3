package dataset

import (
	"strings"
	"unicode"
)

const (
	DefaultUserTag    = "用户:"
	DefaultRoleMarker = "#小爱同学:"
)

// Template builds prompts of the form <UserTag><query><RoleMarker>.
type Template struct {
	UserTag    string
	RoleMarker string
}

// DefaultTemplate is the assistant persona template the reward model was
// trained on.
var DefaultTemplate = Template{
	UserTag:    DefaultUserTag,
	RoleMarker: DefaultRoleMarker,
}

// Prompt renders the template for query and drops every whitespace rune.
// The normalization is lossy on purpose: spacing between words is lost.
func (t Template) Prompt(query string) string {
	return stripSpace(t.UserTag + query + t.RoleMarker)
}

// SelectBest keeps, for each record, the first reply with the largest
// strictly positive margin. Records with no positive margin are dropped.
func (t Template) SelectBest(records []ConversationRecord) []SelectedExample {
	examples := make([]SelectedExample, 0, len(records))
	for _, rec := range records {
		best, ok := bestReply(rec.Replies)
		if !ok {
			continue
		}
		examples = append(examples, SelectedExample{
			Query:    rec.Query,
			Reply:    best.Text,
			Likes:    best.Likes,
			Dislikes: best.Dislikes,
			Margin:   best.Margin(),
			Prompt:   t.Prompt(rec.Query),
			Label:    best.Text,
		})
	}
	return examples
}

// SelectBest runs the selector with DefaultTemplate.
func SelectBest(records []ConversationRecord) []SelectedExample {
	return DefaultTemplate.SelectBest(records)
}

func bestReply(replies []Reply) (Reply, bool) {
	var (
		best     Reply
		found    bool
		bestDiff int
	)
	for _, r := range replies {
		// strict: a later reply with an equal margin never wins
		if d := r.Margin(); d > bestDiff {
			bestDiff = d
			best = r
			found = true
		}
	}
	return best, found
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
