// Package config loads the rlhfrun configuration from defaults, an optional
// TOML file, an optional .env file and RLHF_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/papercomputeco/rlhfrun/pkg/checkpoint"
	"github.com/papercomputeco/rlhfrun/pkg/reward"
	"github.com/papercomputeco/rlhfrun/pkg/tokenizer"
	"github.com/papercomputeco/rlhfrun/pkg/trainer"
)

const (
	EnvRewardURL  = "RLHF_REWARD_URL"
	EnvTrainerURL = "RLHF_TRAINER_URL"
	EnvListen     = "RLHF_LISTEN"
	EnvLedger     = "RLHF_LEDGER"
	EnvDataDir    = "RLHF_DATA_DIR"
	EnvMaxRecords = "RLHF_MAX_RECORDS"

	EvalSplitDev   = "dev"
	EvalSplitTrain = "train"

	// markerHeadroom mirrors the tokens the canonicalizer reserves for the
	// role marker.
	markerHeadroom = 5
)

// Config is the full run configuration.
type Config struct {
	Data      DataConfig        `toml:"data"`
	Tokenizer TokenizerConfig   `toml:"tokenizer"`
	Reward    RewardConfig      `toml:"reward"`
	Server    ServerConfig      `toml:"server"`
	Trainer   TrainerConfig     `toml:"trainer"`
	TRL       trainer.TRLConfig `toml:"trl"`
}

// DataConfig locates the conversation splits.
type DataConfig struct {
	Dir       string `toml:"dir"`
	TrainFile string `toml:"train_file"`
	DevFile   string `toml:"dev_file"`

	// MaxRecords caps the records read per split. 0 reads everything.
	MaxRecords int `toml:"max_records"`

	// EvalSplit names the split the trainer's eval prompts come from:
	// "dev" or "train".
	EvalSplit string `toml:"eval_split"`
}

// TrainPath is the train split's path.
func (d DataConfig) TrainPath() string {
	return filepath.Join(d.Dir, d.TrainFile)
}

// DevPath is the dev split's path.
func (d DataConfig) DevPath() string {
	return filepath.Join(d.Dir, d.DevFile)
}

type TokenizerConfig struct {
	// Mode is "char" or "bpe".
	Mode     string `toml:"mode"`
	Encoding string `toml:"encoding"`
}

// RewardConfig points at the reward model inference endpoint and its
// checkpoint.
type RewardConfig struct {
	URL            string `toml:"url"`
	CheckpointPath string `toml:"checkpoint_path"`
	CheckpointURL  string `toml:"checkpoint_url"`
	BatchSize      int    `toml:"batch_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ServerConfig is the reward callback server configuration.
type ServerConfig struct {
	// Address to listen on (e.g., ":8090")
	ListenAddr string `toml:"listen_addr"`

	// PublicURL is the callback URL handed to the trainer. Empty derives it
	// from ListenAddr.
	PublicURL string `toml:"public_url"`

	// LedgerPath is the SQLite rollout ledger. Empty disables recording.
	LedgerPath string `toml:"ledger_path"`
}

type TrainerConfig struct {
	URL         string `toml:"url"`
	OutputDir   string `toml:"output_dir"`
	PollSeconds int    `toml:"poll_seconds"`
}

// Default returns the configuration of the reference run.
func Default() Config {
	return Config{
		Data: DataConfig{
			Dir:        "./nlpcc-2023-shared-task-9/datasets",
			TrainFile:  "datasets_train.jsonl",
			DevFile:    "datasets_dev.jsonl",
			MaxRecords: 100,
			EvalSplit:  EvalSplitDev,
		},
		Tokenizer: TokenizerConfig{
			Mode:     tokenizer.ModeChar,
			Encoding: tokenizer.DefaultEncoding,
		},
		Reward: RewardConfig{
			URL:            "http://localhost:8081",
			CheckpointPath: checkpoint.DefaultPath,
			CheckpointURL:  checkpoint.DefaultURL,
			BatchSize:      reward.DefaultBatchSize,
			TimeoutSeconds: 120,
		},
		Server: ServerConfig{
			ListenAddr: ":8090",
		},
		Trainer: TrainerConfig{
			OutputDir:   trainer.DefaultOutputDir,
			PollSeconds: 10,
		},
		TRL: trainer.DefaultTRLConfig(),
	}
}

// Load builds a Config from the defaults, the TOML file at path (skipped
// when path is empty), a .env file in the working directory if present,
// and finally the RLHF_* environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("could not decode config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("could not load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvRewardURL); v != "" {
		c.Reward.URL = v
	}
	if v := os.Getenv(EnvTrainerURL); v != "" {
		c.Trainer.URL = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvLedger); v != "" {
		c.Server.LedgerPath = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv(EnvMaxRecords); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxRecords, v, err)
		}
		c.Data.MaxRecords = n
	}
	return nil
}

// Validate rejects settings no run can satisfy. requireTrainer is set by
// commands that submit a training job.
func (c *Config) Validate(requireTrainer bool) error {
	seq := c.TRL.Train.SeqLength
	newTokens := c.TRL.Method.GenKwargs.MaxNewTokens
	if seq <= newTokens+markerHeadroom {
		return fmt.Errorf("seq_length %d leaves no room for a prompt after %d new tokens", seq, newTokens)
	}
	if c.Reward.BatchSize < 1 {
		return fmt.Errorf("reward batch_size must be at least 1, got %d", c.Reward.BatchSize)
	}
	if c.Data.MaxRecords < 0 {
		return fmt.Errorf("max_records must not be negative, got %d", c.Data.MaxRecords)
	}
	if c.Data.EvalSplit != EvalSplitDev && c.Data.EvalSplit != EvalSplitTrain {
		return fmt.Errorf("eval_split must be %q or %q, got %q", EvalSplitDev, EvalSplitTrain, c.Data.EvalSplit)
	}
	if requireTrainer && c.Trainer.URL == "" {
		return fmt.Errorf("trainer url is required (set [trainer] url or %s)", EnvTrainerURL)
	}
	return nil
}
