// Package dataset reads conversation feedback records and selects the
// best-rated reply of each one as a prompt/label training example.
package dataset

// Reply is a single candidate reply with its crowd feedback.
type Reply struct {
	Text     string `json:"reply"`
	Likes    int    `json:"like"`
	Dislikes int    `json:"dislike"`
}

// Margin is likes minus dislikes.
func (r Reply) Margin() int {
	return r.Likes - r.Dislikes
}

// ConversationRecord is one line of the input dataset: a user query and its
// candidate replies in order.
type ConversationRecord struct {
	Query   string  `json:"query"`
	Replies []Reply `json:"replys"`
}

// SelectedExample is the best reply of a record, normalized into a prompt
// and its reference label.
type SelectedExample struct {
	Query    string `json:"query"`
	Reply    string `json:"reply"`
	Likes    int    `json:"like"`
	Dislikes int    `json:"dislike"`
	Margin   int    `json:"difference"`

	// Prompt is the role-tagged query with all whitespace removed
	Prompt string `json:"prompt"`

	// Label equals Reply
	Label string `json:"label"`
}
