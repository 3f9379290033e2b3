package reward

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/rlhfrun/pkg/prompt"
)

// Result is the scoring breakdown of one generated sample.
type Result struct {
	Sample         string  `json:"sample"`
	Prompt         string  `json:"prompt"`
	Reference      string  `json:"reference"`
	Score          float64 `json:"score"`
	ReferenceScore float64 `json:"reference_score"`
	Reward         float64 `json:"reward"`
}

// Scorer computes relative rewards: the score of a generated sample minus
// the score of the reference reply for the same prompt. It keeps no state
// between calls and is safe for concurrent use.
type Scorer struct {
	texts     TextScorer
	labels    prompt.LabelMap
	delimiter string
}

// NewScorer returns a Scorer. labels must not be modified afterwards.
func NewScorer(texts TextScorer, labels prompt.LabelMap, delimiter string) *Scorer {
	return &Scorer{
		texts:     texts,
		labels:    labels,
		delimiter: delimiter,
	}
}

// Score returns one reward per sample, in order.
func (s *Scorer) Score(ctx context.Context, samples []string) ([]float64, error) {
	results, err := s.ScoreDetailed(ctx, samples)
	if err != nil {
		return nil, err
	}
	rewards := make([]float64, len(results))
	for i, r := range results {
		rewards[i] = r.Reward
	}
	return rewards, nil
}

// ScoreDetailed scores samples and returns the full breakdown. It fails
// before any inference when a sample's prompt has no reference label.
func (s *Scorer) ScoreDetailed(ctx context.Context, samples []string) ([]Result, error) {
	if len(samples) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, len(samples))
	references := make([]string, len(samples))
	for i, sample := range samples {
		head, _, _ := strings.Cut(sample, s.delimiter)
		p := head + s.delimiter

		label, err := s.labels.Label(p)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		references[i] = p + label
		results[i] = Result{
			Sample:    sample,
			Prompt:    strings.TrimSpace(p),
			Reference: references[i],
		}
	}

	refScores, err := s.texts.ScoreTexts(ctx, references)
	if err != nil {
		return nil, fmt.Errorf("scoring references: %w", err)
	}
	scores, err := s.texts.ScoreTexts(ctx, samples)
	if err != nil {
		return nil, fmt.Errorf("scoring samples: %w", err)
	}
	if len(refScores) != len(samples) || len(scores) != len(samples) {
		return nil, errors.New("score count does not match sample count")
	}

	for i := range results {
		results[i].Score = scores[i]
		results[i].ReferenceScore = refScores[i]
		results[i].Reward = scores[i] - refScores[i]
	}
	return results, nil
}
