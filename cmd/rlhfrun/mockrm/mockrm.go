package mockrmcmder

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/rlhfrun/cmd/rlhfrun/runsetup"
	"github.com/papercomputeco/rlhfrun/pkg/reward"
	"github.com/papercomputeco/rlhfrun/rmserver"
)

const mockrmLongDesc string = `Serve a deterministic mock reward model.

The mock speaks the reward model inference protocol (POST /score with
input_ids and attention_mask) and scores every row from its token ids,
so dry runs of the pipeline need no GPU or checkpoint.

Examples:
  rlhfrun mockrm
  rlhfrun mockrm --listen 127.0.0.1:9000`

const mockrmShortDesc string = "Serve a mock reward model"

const defaultListen = ":8081"

type mockrmCommander struct {
	listen string

	// ready receives the bound address once serving starts
	ready chan<- net.Addr
}

func NewMockRMCmd() *cobra.Command {
	cmder := &mockrmCommander{}

	cmd := &cobra.Command{
		Use:   "mockrm",
		Short: mockrmShortDesc,
		Long:  mockrmLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", defaultListen, "Address to listen on")

	return cmd
}

func (c *mockrmCommander) run(ctx context.Context, cmd *cobra.Command) error {
	_, log, err := runsetup.Setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ln, err := net.Listen("tcp", c.listen)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", c.listen, err)
	}

	srv := rmserver.New(reward.NewMockModel(), log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.RunWithListener(ln)
	}()

	log.Info("mock reward model serving", zap.String("listen", ln.Addr().String()))
	if c.ready != nil {
		c.ready <- ln.Addr()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("mock reward model server failed: %w", err)
	case <-ctx.Done():
	}

	if err := srv.Shutdown(); err != nil {
		return fmt.Errorf("could not shut down: %w", err)
	}
	return nil
}
