package traincmder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/rlhfrun/cmd/rlhfrun/runsetup"
	"github.com/papercomputeco/rlhfrun/pkg/checkpoint"
	"github.com/papercomputeco/rlhfrun/pkg/config"
	"github.com/papercomputeco/rlhfrun/pkg/reward"
	"github.com/papercomputeco/rlhfrun/pkg/trainer"
	"github.com/papercomputeco/rlhfrun/server"
)

const trainLongDesc string = `Run PPO fine-tuning against the reward model.

Makes sure the reward model checkpoint is present, prepares the train and
dev splits, and starts the reward callback server. It then submits the PPO
job to the trainer and waits for it to finish. Rewards are the reward
model's score of a rollout minus its score of the prompt's reference reply.

Examples:
  rlhfrun train --trainer-url http://trainer:7000
  rlhfrun train --config rlhf.toml --ledger rollouts.sqlite
  rlhfrun train --trainer-url http://trainer:7000 --eval-split train`

const trainShortDesc string = "Run PPO training against the reward model"

type trainCommander struct {
	trainerURL     string
	rewardURL      string
	listen         string
	publicURL      string
	ledgerPath     string
	dataDir        string
	maxRecords     int
	evalSplit      string
	skipCheckpoint bool
}

func NewTrainCmd() *cobra.Command {
	cmder := &trainCommander{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: trainShortDesc,
		Long:  trainLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.trainerURL, "trainer-url", "", "Base URL of the PPO training service")
	cmd.Flags().StringVar(&cmder.rewardURL, "reward-url", "", "Base URL of the reward model inference server")
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address the reward callback server listens on")
	cmd.Flags().StringVar(&cmder.publicURL, "public-url", "", "Base URL the trainer reaches the callback server at")
	cmd.Flags().StringVar(&cmder.ledgerPath, "ledger", "", "SQLite ledger recording every scored rollout")
	cmd.Flags().StringVar(&cmder.dataDir, "data-dir", "", "Directory holding the dataset splits")
	cmd.Flags().IntVar(&cmder.maxRecords, "max-records", 0, "Records read per split, 0 for all")
	cmd.Flags().StringVar(&cmder.evalSplit, "eval-split", "", "Split the eval prompts come from: dev or train")
	cmd.Flags().BoolVar(&cmder.skipCheckpoint, "skip-checkpoint", false, "Do not fetch the reward model checkpoint")

	return cmd
}

func (c *trainCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, log, err := runsetup.Setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	flags := cmd.Flags()
	if flags.Changed("trainer-url") {
		cfg.Trainer.URL = c.trainerURL
	}
	if flags.Changed("reward-url") {
		cfg.Reward.URL = c.rewardURL
	}
	if flags.Changed("listen") {
		cfg.Server.ListenAddr = c.listen
	}
	if flags.Changed("public-url") {
		cfg.Server.PublicURL = c.publicURL
	}
	if flags.Changed("ledger") {
		cfg.Server.LedgerPath = c.ledgerPath
	}
	if flags.Changed("data-dir") {
		cfg.Data.Dir = c.dataDir
	}
	if flags.Changed("max-records") {
		cfg.Data.MaxRecords = c.maxRecords
	}
	if flags.Changed("eval-split") {
		cfg.Data.EvalSplit = c.evalSplit
	}
	if err := cfg.Validate(true); err != nil {
		return err
	}

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))

	if !c.skipCheckpoint {
		client := &http.Client{Timeout: 30 * time.Minute}
		if _, err := checkpoint.Ensure(ctx, client, cfg.Reward.CheckpointPath, cfg.Reward.CheckpointURL, log); err != nil {
			return fmt.Errorf("could not fetch reward model checkpoint: %w", err)
		}
	}

	tok, err := runsetup.NewTokenizer(cfg)
	if err != nil {
		return err
	}
	canon := runsetup.NewCanonicalizer(tok)

	train, dev, err := runsetup.LoadSplits(cfg, canon, log)
	if err != nil {
		return err
	}
	if len(train.Prompts) == 0 {
		return errors.New("train split has no usable examples")
	}

	labels, err := runsetup.LabelMap(train, dev)
	if err != nil {
		return err
	}

	evalPrompts := dev.Prompts
	if cfg.Data.EvalSplit == config.EvalSplitTrain {
		evalPrompts = train.Prompts
	}

	model := reward.NewHTTPModel(cfg.Reward.URL, time.Duration(cfg.Reward.TimeoutSeconds)*time.Second)
	adapter, err := reward.NewAdapter(model, tok, cfg.TRL.Train.SeqLength, cfg.Reward.BatchSize)
	if err != nil {
		return err
	}
	scorer := reward.NewScorer(adapter, labels, canon.Delimiter())

	srvConfig := server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		PublicURL:  cfg.Server.PublicURL,
		LedgerPath: cfg.Server.LedgerPath,
	}
	srv, err := server.New(srvConfig, scorer, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", srvConfig.ListenAddr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", srvConfig.ListenAddr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.RunWithListener(ln)
	}()
	defer func() {
		if err := srv.Shutdown(); err != nil {
			log.Error("failed to shut down reward server", zap.Error(err))
		}
	}()

	job := trainer.NewJob(runID, srvConfig.CallbackURL(ln.Addr()), train.Prompts, evalPrompts, cfg.TRL, cfg.Trainer.OutputDir)
	client := trainer.NewClient(cfg.Trainer.URL, time.Duration(cfg.Trainer.PollSeconds)*time.Second, log)

	trainCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		status *trainer.Status
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		st, err := client.Train(trainCtx, job)
		done <- outcome{st, err}
	}()

	var res outcome
	select {
	case res = <-done:
	case err := <-serveErr:
		cancel()
		return fmt.Errorf("reward server failed: %w", err)
	}
	if res.err != nil {
		return fmt.Errorf("training failed: %w", res.err)
	}

	log.Info("training finished",
		zap.String("job_id", res.status.ID),
		zap.String("output_dir", res.status.OutputDir),
		zap.Int("steps", res.status.Step),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Training job %s succeeded; policy saved to %s\n", res.status.ID, outputDir(res.status, job))

	return nil
}

func outputDir(st *trainer.Status, job trainer.Job) string {
	if st.OutputDir != "" {
		return st.OutputDir
	}
	return job.OutputDir
}
