package reward

import (
	"context"
	"errors"
)

// MockModel is a deterministic ScoringModel for dry runs and tests. The
// score of a row is the mean of (id mod 97)/97 over its attended tokens.
// Like the real model, it reads the first half of the batch as chosen.
type MockModel struct{}

// NewMockModel returns a MockModel.
func NewMockModel() *MockModel {
	return &MockModel{}
}

func (MockModel) Score(ctx context.Context, batch Batch) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(batch.InputIDs) != len(batch.AttentionMask) {
		return nil, errors.New("input ids and attention mask differ in rows")
	}

	chosen := batch.Len() / rowRepeat
	if chosen == 0 {
		chosen = batch.Len()
	}

	scores := make([]float64, chosen)
	for i := 0; i < chosen; i++ {
		scores[i] = rowScore(batch.InputIDs[i], batch.AttentionMask[i])
	}
	return scores, nil
}

func rowScore(ids, mask []int) float64 {
	var sum float64
	var n int
	for j, id := range ids {
		if j >= len(mask) || mask[j] == 0 {
			continue
		}
		sum += float64(id%97) / 97
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
