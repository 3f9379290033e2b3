package preparecmder

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rlhfrun/cmd/rlhfrun/runsetup"
	"github.com/papercomputeco/rlhfrun/pkg/dataset"
)

const prepareLongDesc string = `Prepare the prompt/label dataset the trainer sees.

Reads the train and dev conversation splits, keeps the reply with the
largest like-minus-dislike margin of every record, and canonicalizes the
prompts the way the generation pipeline will. Selected examples are
written as JSON lines; per-split counts go to stderr.

Examples:
  rlhfrun prepare --data-dir ./datasets > prepared.jsonl
  rlhfrun prepare --config rlhf.toml --split dev --out dev.jsonl`

const prepareShortDesc string = "Select best replies and canonicalize prompts"

type prepareCommander struct {
	out        string
	split      string
	dataDir    string
	maxRecords int
}

func NewPrepareCmd() *cobra.Command {
	cmder := &prepareCommander{}

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: prepareShortDesc,
		Long:  prepareLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&cmder.split, "split", "all", "Split to write: train, dev or all")
	cmd.Flags().StringVar(&cmder.dataDir, "data-dir", "", "Directory holding the dataset splits")
	cmd.Flags().IntVar(&cmder.maxRecords, "max-records", 0, "Records read per split, 0 for all")

	return cmd
}

func (c *prepareCommander) run(_ context.Context, cmd *cobra.Command) error {
	cfg, log, err := runsetup.Setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cmd.Flags().Changed("data-dir") {
		cfg.Data.Dir = c.dataDir
	}
	if cmd.Flags().Changed("max-records") {
		cfg.Data.MaxRecords = c.maxRecords
	}
	if err := cfg.Validate(false); err != nil {
		return err
	}

	var names []string
	switch c.split {
	case "all":
		names = []string{runsetup.TrainSplit, runsetup.DevSplit}
	case runsetup.TrainSplit, runsetup.DevSplit:
		names = []string{c.split}
	default:
		return fmt.Errorf("unknown split %q", c.split)
	}

	tok, err := runsetup.NewTokenizer(cfg)
	if err != nil {
		return err
	}
	canon := runsetup.NewCanonicalizer(tok)

	splits := make([]*runsetup.Split, 0, len(names))
	for _, name := range names {
		s, err := runsetup.LoadSplit(cfg, canon, log, name)
		if err != nil {
			return err
		}
		splits = append(splits, s)
	}

	var w io.Writer = cmd.OutOrStdout()
	if c.out != "" {
		f, err := os.Create(c.out)
		if err != nil {
			return fmt.Errorf("could not create %s: %w", c.out, err)
		}
		defer f.Close()
		w = f
	}

	for _, s := range splits {
		if err := dataset.WriteJSONL(w, s.Examples); err != nil {
			return fmt.Errorf("could not write %s split: %w", s.Name, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %d examples\n", s.Name, len(s.Examples))
	}

	return nil
}
