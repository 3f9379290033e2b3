// Package runsetup holds the setup shared by the rlhfrun subcommands:
// global flags, configuration, logging and the prepared data splits.
package runsetup

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/rlhfrun/pkg/config"
	"github.com/papercomputeco/rlhfrun/pkg/dataset"
	"github.com/papercomputeco/rlhfrun/pkg/logger"
	"github.com/papercomputeco/rlhfrun/pkg/prompt"
	"github.com/papercomputeco/rlhfrun/pkg/reward"
	"github.com/papercomputeco/rlhfrun/pkg/tokenizer"
)

const (
	ConfigFlag = "config"
	DebugFlag  = "debug"
)

// AddGlobalFlags registers the persistent flags every subcommand reads.
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP(ConfigFlag, "c", "", "Path to a TOML config file")
	cmd.PersistentFlags().Bool(DebugFlag, false, "Enable debug logging")
}

// Setup loads the configuration named by --config and builds the logger.
// Commands run without the root command fall back to the defaults.
func Setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	var path string
	if f := cmd.Flag(ConfigFlag); f != nil {
		path = f.Value.String()
	}
	debug := false
	if f := cmd.Flag(DebugFlag); f != nil {
		debug = f.Value.String() == "true"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewLogger(debug), nil
}

// NewTokenizer builds the configured tokenizer with the reward model's
// framing markers registered as special tokens.
func NewTokenizer(cfg *config.Config) (*tokenizer.Tokenizer, error) {
	tok, err := tokenizer.Load(cfg.Tokenizer.Mode, cfg.Tokenizer.Encoding, reward.StartMarker, reward.PadMarker)
	if err != nil {
		return nil, fmt.Errorf("could not load tokenizer: %w", err)
	}
	return tok, nil
}

// NewCanonicalizer returns the canonicalizer for the dataset's role marker.
func NewCanonicalizer(tok *tokenizer.Tokenizer) *prompt.Canonicalizer {
	return &prompt.Canonicalizer{
		Tokenizer:  tok,
		RoleMarker: dataset.DefaultRoleMarker,
	}
}

// Split is one prepared dataset split. Prompts are canonical and Labels
// holds the reference reply of each prompt.
type Split struct {
	Name     string
	Examples []dataset.SelectedExample
	Prompts  []string
	Labels   []string
}

const (
	TrainSplit = "train"
	DevSplit   = "dev"
)

// LoadSplits reads the train and dev splits.
func LoadSplits(cfg *config.Config, canon *prompt.Canonicalizer, log *zap.Logger) (train, dev *Split, err error) {
	if train, err = LoadSplit(cfg, canon, log, TrainSplit); err != nil {
		return nil, nil, err
	}
	if dev, err = LoadSplit(cfg, canon, log, DevSplit); err != nil {
		return nil, nil, err
	}
	return train, dev, nil
}

// LoadSplit reads one split, selects the best reply of every record and
// canonicalizes the prompts to the trainer's budget. Prompts whose role
// marker was clipped by truncation are dropped: rollouts built on them
// can't be split back into a prompt the label map knows.
func LoadSplit(cfg *config.Config, canon *prompt.Canonicalizer, log *zap.Logger, name string) (*Split, error) {
	var path string
	switch name {
	case TrainSplit:
		path = cfg.Data.TrainPath()
	case DevSplit:
		path = cfg.Data.DevPath()
	default:
		return nil, fmt.Errorf("unknown split %q", name)
	}

	maxLength := prompt.MaxLength(cfg.TRL.Train.SeqLength, cfg.TRL.Method.GenKwargs.MaxNewTokens)

	records, err := dataset.LoadFile(path, cfg.Data.MaxRecords)
	if err != nil {
		return nil, fmt.Errorf("could not load %s split: %w", name, err)
	}

	selected := dataset.SelectBest(records)
	raw := make([]string, len(selected))
	for i, ex := range selected {
		raw[i] = ex.Prompt
	}
	canonical := canon.CanonicalizeAll(raw, maxLength)

	split := &Split{Name: name}
	clipped := 0
	for i, ex := range selected {
		if !canon.Recoverable(canonical[i]) {
			clipped++
			continue
		}
		ex.Prompt = canonical[i]
		split.Examples = append(split.Examples, ex)
		split.Prompts = append(split.Prompts, ex.Prompt)
		split.Labels = append(split.Labels, ex.Label)
	}

	if clipped > 0 {
		log.Warn("dropped prompts whose role marker was truncated",
			zap.String("split", name),
			zap.Int("dropped", clipped),
			zap.Int("max_length", maxLength),
		)
	}
	log.Info("prepared split",
		zap.String("split", name),
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("selected", len(split.Examples)),
	)
	return split, nil
}

// LabelMap maps the canonical prompts of every split to their labels.
func LabelMap(splits ...*Split) (prompt.LabelMap, error) {
	labels := prompt.LabelMap{}
	for _, s := range splits {
		if err := labels.Add(s.Prompts, s.Labels); err != nil {
			return nil, fmt.Errorf("%s split: %w", s.Name, err)
		}
	}
	return labels, nil
}
