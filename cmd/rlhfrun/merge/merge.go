package mergecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rlhfrun/cmd/rlhfrun/runsetup"
	"github.com/papercomputeco/rlhfrun/pkg/ledger"
)

const mergeLongDesc string = `Merge one or more rollout ledgers into a target.

Content-addressing makes this a simple union: prompt and rollout nodes
that already exist in the target are skipped (deduped by hash). The
target defaults to the configured server ledger.

Examples:
  rlhfrun ledger-merge --ledger merged.sqlite run1.sqlite run2.sqlite
  RLHF_LEDGER=rollouts.sqlite rlhfrun ledger-merge worker-*.sqlite`

const mergeShortDesc string = "Merge rollout ledgers"

type mergeCommander struct {
	ledgerPath string
}

func NewMergeCmd() *cobra.Command {
	cmder := &mergeCommander{}

	cmd := &cobra.Command{
		Use:   "ledger-merge [sources...]",
		Short: mergeShortDesc,
		Long:  mergeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.ledgerPath, "ledger", "l", "", "Path to the target SQLite ledger")

	return cmd
}

func (c *mergeCommander) run(ctx context.Context, cmd *cobra.Command, sources []string) error {
	cfg, log, err := runsetup.Setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	targetPath := cfg.Server.LedgerPath
	if c.ledgerPath != "" {
		targetPath = c.ledgerPath
	}
	if targetPath == "" {
		return fmt.Errorf("no target ledger: pass --ledger or configure the server ledger")
	}

	target, err := ledger.NewSQLiteStorer(targetPath)
	if err != nil {
		return fmt.Errorf("could not open target ledger %s: %w", targetPath, err)
	}
	defer target.Close()

	var total ledger.MergeStats

	for _, srcPath := range sources {
		source, err := ledger.NewSQLiteStorer(srcPath)
		if err != nil {
			return fmt.Errorf("could not open source ledger %s: %w", srcPath, err)
		}

		stats, err := ledger.Merge(ctx, target, source)
		source.Close()
		if err != nil {
			return fmt.Errorf("could not merge %s: %w", srcPath, err)
		}

		total.New += stats.New
		total.Duplicate += stats.Duplicate

		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d new, %d already existed\n", srcPath, stats.New, stats.Duplicate)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merged %d new nodes from %d sources (%d already existed) into %s\n",
		total.New, len(sources), total.Duplicate, targetPath)

	return nil
}
