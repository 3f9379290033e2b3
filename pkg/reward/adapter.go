package reward

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/rlhfrun/pkg/tokenizer"
)

const (
	// StartMarker and PadMarker frame every text the reward model sees.
	StartMarker = "[unused1]"
	PadMarker   = "[PAD]"

	// DefaultBatchSize bounds how many texts go to the model at once.
	DefaultBatchSize = 2

	// rowRepeat duplicates each batch for the model's pairwise shape: the
	// first half is read as chosen, the copy as rejected.
	rowRepeat = 2
)

// Adapter turns texts into the exact framing and fixed-width tokenization
// the reward model was trained on.
type Adapter struct {
	model     ScoringModel
	tok       *tokenizer.Tokenizer
	seqLength int
	batchSize int
	padID     int
}

// NewAdapter returns an Adapter. The tokenizer must know StartMarker and
// PadMarker. A batchSize below one uses DefaultBatchSize.
func NewAdapter(model ScoringModel, tok *tokenizer.Tokenizer, seqLength, batchSize int) (*Adapter, error) {
	if model == nil {
		return nil, errors.New("nil scoring model")
	}
	if seqLength < 1 {
		return nil, fmt.Errorf("sequence length must be positive, got %d", seqLength)
	}
	if _, ok := tok.SpecialID(StartMarker); !ok {
		return nil, fmt.Errorf("tokenizer has no %s token", StartMarker)
	}
	padID, ok := tok.SpecialID(PadMarker)
	if !ok {
		return nil, fmt.Errorf("tokenizer has no %s token", PadMarker)
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	return &Adapter{
		model:     model,
		tok:       tok,
		seqLength: seqLength,
		batchSize: batchSize,
		padID:     padID,
	}, nil
}

// ScoreTexts scores texts in batches and returns one score per text.
func (a *Adapter) ScoreTexts(ctx context.Context, texts []string) ([]float64, error) {
	scores := make([]float64, 0, len(texts))
	for i := 0; i < len(texts); i += a.batchSize {
		end := min(i+a.batchSize, len(texts))
		sub := texts[i:end]

		out, err := a.model.Score(ctx, a.Encode(sub))
		if err != nil {
			return nil, fmt.Errorf("scoring batch %d-%d: %w", i, end-1, err)
		}
		out, err = collapse(out, len(sub))
		if err != nil {
			return nil, fmt.Errorf("scoring batch %d-%d: %w", i, end-1, err)
		}
		scores = append(scores, out...)
	}
	return scores, nil
}

// Encode frames, tokenizes and pads texts to the sequence length, then
// repeats the rows.
func (a *Adapter) Encode(texts []string) Batch {
	ids := make([][]int, 0, len(texts)*rowRepeat)
	masks := make([][]int, 0, len(texts)*rowRepeat)
	for _, text := range texts {
		row, mask := a.encodeRow(text)
		ids = append(ids, row)
		masks = append(masks, mask)
	}

	n := len(ids)
	for r := 1; r < rowRepeat; r++ {
		for i := 0; i < n; i++ {
			ids = append(ids, append([]int(nil), ids[i]...))
			masks = append(masks, append([]int(nil), masks[i]...))
		}
	}

	return Batch{InputIDs: ids, AttentionMask: masks}
}

func (a *Adapter) encodeRow(text string) ([]int, []int) {
	enc := a.tok.EncodeTruncated(StartMarker+text+PadMarker, a.seqLength)

	row := make([]int, a.seqLength)
	mask := make([]int, a.seqLength)
	for i := range row {
		if i < len(enc) {
			row[i] = enc[i]
			mask[i] = 1
			continue
		}
		row[i] = a.padID
	}
	return row, mask
}

// collapse reduces model output to one score per text. Models that score
// every duplicated row are cut back to the first copy.
func collapse(scores []float64, n int) ([]float64, error) {
	switch len(scores) {
	case n:
		return scores, nil
	case n * rowRepeat:
		return scores[:n], nil
	default:
		return nil, fmt.Errorf("reward model returned %d scores for %d texts", len(scores), n)
	}
}
