package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/papercomputeco/rlhfrun/pkg/reward"
)

// PromptEntry is the root content for a prompt and its reference reply.
type PromptEntry struct {
	Type      string `json:"type"`
	Prompt    string `json:"prompt"`
	Reference string `json:"reference"`
}

// RolloutEntry is the content of one scored rollout.
type RolloutEntry struct {
	Type           string  `json:"type"`
	Sample         string  `json:"sample"`
	Score          float64 `json:"score"`
	ReferenceScore float64 `json:"reference_score"`
	Reward         float64 `json:"reward"`
}

// ErrNonFinite is returned by Record for a result with an infinite or NaN
// score. Such a rollout has no JSON encoding and so no hash.
var ErrNonFinite = errors.New("rollout score is not finite")

// Record stores r as a rollout under its prompt node and returns the
// rollout node.
func Record(ctx context.Context, s Storer, r reward.Result) (*Node, error) {
	if !Finite(r) {
		return nil, fmt.Errorf("%w: score=%v reference=%v reward=%v",
			ErrNonFinite, r.Score, r.ReferenceScore, r.Reward)
	}

	promptNode := NewNode(PromptEntry{
		Type:      "prompt",
		Prompt:    r.Prompt,
		Reference: r.Reference,
	}, nil)
	if _, err := s.Put(ctx, promptNode); err != nil {
		return nil, fmt.Errorf("storing prompt node: %w", err)
	}

	rollout := NewNode(RolloutEntry{
		Type:           "rollout",
		Sample:         r.Sample,
		Score:          r.Score,
		ReferenceScore: r.ReferenceScore,
		Reward:         r.Reward,
	}, promptNode)
	if _, err := s.Put(ctx, rollout); err != nil {
		return nil, fmt.Errorf("storing rollout node: %w", err)
	}

	return rollout, nil
}

// Finite reports whether every score of r is a finite number.
func Finite(r reward.Result) bool {
	for _, v := range []float64{r.Score, r.ReferenceScore, r.Reward} {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// MergeStats counts the outcome of a merge.
type MergeStats struct {
	New       int
	Duplicate int
}

// Merge copies every node of each source into target. Nodes already
// present in target are counted as duplicates.
func Merge(ctx context.Context, target Storer, sources ...Storer) (MergeStats, error) {
	var stats MergeStats

	for _, source := range sources {
		nodes, err := source.List(ctx)
		if err != nil {
			return stats, fmt.Errorf("listing source nodes: %w", err)
		}
		for _, n := range nodes {
			isNew, err := target.Put(ctx, n)
			if err != nil {
				return stats, fmt.Errorf("could not put node %s: %w", n.Hash, err)
			}
			if isNew {
				stats.New++
			} else {
				stats.Duplicate++
			}
		}
	}
	return stats, nil
}
