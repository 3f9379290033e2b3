package pushcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rlhfrun/cmd/rlhfrun/runsetup"
	"github.com/papercomputeco/rlhfrun/pkg/ledger"
	"github.com/papercomputeco/rlhfrun/server"
)

const pushLongDesc string = `Push a local rollout ledger to a running reward server.

Reads every node of the local SQLite ledger and POSTs them to the
server's /ledger/nodes endpoint. Content-addressing ensures duplicates
are skipped on the server side.

Examples:
  rlhfrun ledger-push http://192.168.1.42:8090
  rlhfrun ledger-push --ledger worker1.sqlite http://localhost:8090`

const pushShortDesc string = "Push a rollout ledger to a reward server"

type pushCommander struct {
	ledgerPath string
	batchSize  int
}

func NewPushCmd() *cobra.Command {
	cmder := &pushCommander{}

	cmd := &cobra.Command{
		Use:   "ledger-push <server-url>",
		Short: pushShortDesc,
		Long:  pushLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.ledgerPath, "ledger", "l", "", "Path to the local SQLite ledger")
	cmd.Flags().IntVar(&cmder.batchSize, "batch-size", 500, "Nodes per HTTP request")

	return cmd
}

func (c *pushCommander) run(ctx context.Context, cmd *cobra.Command, serverURL string) error {
	serverURL = strings.TrimRight(serverURL, "/")
	if c.batchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.batchSize)
	}

	cfg, log, err := runsetup.Setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	path := cfg.Server.LedgerPath
	if c.ledgerPath != "" {
		path = c.ledgerPath
	}
	if path == "" {
		return fmt.Errorf("no local ledger: pass --ledger or configure the server ledger")
	}

	local, err := ledger.NewSQLiteStorer(path)
	if err != nil {
		return fmt.Errorf("could not open local ledger %s: %w", path, err)
	}
	defer local.Close()

	nodes, err := local.List(ctx)
	if err != nil {
		return fmt.Errorf("could not list local nodes: %w", err)
	}

	if len(nodes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No local nodes to push.")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pushing %d nodes from %s to %s\n", len(nodes), path, serverURL)

	var total server.PutNodesResponse

	for i := 0; i < len(nodes); i += c.batchSize {
		end := min(i+c.batchSize, len(nodes))

		resp, err := c.postBatch(ctx, serverURL, nodes[i:end])
		if err != nil {
			return fmt.Errorf("push failed on batch %d-%d: %w", i, end-1, err)
		}

		total.New += resp.New
		total.Duplicate += resp.Duplicate
		total.Errors += resp.Errors
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d new nodes (%d already existed, %d errors)\n",
		total.New, total.Duplicate, total.Errors)

	return nil
}

func (c *pushCommander) postBatch(ctx context.Context, serverURL string, nodes []*ledger.Node) (*server.PutNodesResponse, error) {
	body, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("could not marshal nodes: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/ledger/nodes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result server.PutNodesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("could not decode response: %w", err)
	}

	return &result, nil
}
