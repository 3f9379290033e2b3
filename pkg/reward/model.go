// Package reward scores generated samples with a frozen reward model.
//
// The model itself runs elsewhere; this package frames and tokenizes text
// the way the model was trained on, and turns absolute scores into rewards
// relative to the human-written reference reply for the same prompt.
package reward

import "context"

// Batch is a fixed-width tokenized batch for reward model inference.
type Batch struct {
	InputIDs      [][]int `json:"input_ids"`
	AttentionMask [][]int `json:"attention_mask"`
}

// Len is the number of rows in the batch.
func (b Batch) Len() int {
	return len(b.InputIDs)
}

// ScoreResponse is the reward model's inference output.
type ScoreResponse struct {
	ChosenEndScores []float64 `json:"chosen_end_scores"`
}

// ScoringModel runs inference only. It returns the chosen end score of
// each row of the batch's chosen half.
type ScoringModel interface {
	Score(ctx context.Context, batch Batch) ([]float64, error)
}

// TextScorer scores raw texts, one score per text, in order.
type TextScorer interface {
	ScoreTexts(ctx context.Context, texts []string) ([]float64, error)
}
