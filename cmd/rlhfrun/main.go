package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mergecmder "github.com/papercomputeco/rlhfrun/cmd/rlhfrun/merge"
	mockrmcmder "github.com/papercomputeco/rlhfrun/cmd/rlhfrun/mockrm"
	preparecmder "github.com/papercomputeco/rlhfrun/cmd/rlhfrun/prepare"
	pushcmder "github.com/papercomputeco/rlhfrun/cmd/rlhfrun/push"
	"github.com/papercomputeco/rlhfrun/cmd/rlhfrun/runsetup"
	traincmder "github.com/papercomputeco/rlhfrun/cmd/rlhfrun/train"
)

const rootLongDesc string = `rlhfrun prepares conversation data for RLHF and drives PPO fine-tuning.

The policy is rewarded by how much a rollout out-scores the human reference
reply for the same prompt, as judged by a pretrained reward model.

Configuration is read from --config (TOML), then a .env file, then RLHF_*
environment variables; command flags override all of them.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "rlhfrun",
		Short:        "RLHF data preparation and PPO training",
		Long:         rootLongDesc,
		SilenceUsage: true,
	}

	runsetup.AddGlobalFlags(cmd)

	cmd.AddCommand(preparecmder.NewPrepareCmd())
	cmd.AddCommand(traincmder.NewTrainCmd())
	cmd.AddCommand(mockrmcmder.NewMockRMCmd())
	cmd.AddCommand(mergecmder.NewMergeCmd())
	cmd.AddCommand(pushcmder.NewPushCmd())

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
