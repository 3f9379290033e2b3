// Package trainer describes PPO training runs and submits them to the
// external training service.
package trainer

// TRLConfig is the full configuration handed to the PPO trainer.
type TRLConfig struct {
	Train     TrainConfig     `toml:"train" json:"train"`
	Model     ModelConfig     `toml:"model" json:"model"`
	Tokenizer TokenizerConfig `toml:"tokenizer" json:"tokenizer"`
	Optimizer OptimizerConfig `toml:"optimizer" json:"optimizer"`
	Scheduler SchedulerConfig `toml:"scheduler" json:"scheduler"`
	Method    PPOConfig       `toml:"method" json:"method"`
}

type TrainConfig struct {
	SeqLength          int    `toml:"seq_length" json:"seq_length"`
	Epochs             int    `toml:"epochs" json:"epochs"`
	TotalSteps         int    `toml:"total_steps" json:"total_steps"`
	BatchSize          int    `toml:"batch_size" json:"batch_size"`
	CheckpointInterval int    `toml:"checkpoint_interval" json:"checkpoint_interval"`
	EvalInterval       int    `toml:"eval_interval" json:"eval_interval"`
	Pipeline           string `toml:"pipeline" json:"pipeline"`
	Trainer            string `toml:"trainer" json:"trainer"`
}

type ModelConfig struct {
	// ModelPath is the supervised fine-tuned policy to start from
	ModelPath         string `toml:"model_path" json:"model_path"`
	NumLayersUnfrozen int    `toml:"num_layers_unfrozen" json:"num_layers_unfrozen"`
}

type TokenizerConfig struct {
	TokenizerPath  string `toml:"tokenizer_path" json:"tokenizer_path"`
	TruncationSide string `toml:"truncation_side" json:"truncation_side"`
}

type OptimizerConfig struct {
	Name   string         `toml:"name" json:"name"`
	Kwargs map[string]any `toml:"kwargs" json:"kwargs"`
}

type SchedulerConfig struct {
	Name   string         `toml:"name" json:"name"`
	Kwargs map[string]any `toml:"kwargs" json:"kwargs"`
}

// PPOConfig holds the PPO hyperparameters. Zero pointers are sent as null
// and leave the trainer's own default in place.
type PPOConfig struct {
	Name            string   `toml:"name" json:"name"`
	NumRollouts     int      `toml:"num_rollouts" json:"num_rollouts"`
	ChunkSize       int      `toml:"chunk_size" json:"chunk_size"`
	PPOEpochs       int      `toml:"ppo_epochs" json:"ppo_epochs"`
	InitKLCoef      float64  `toml:"init_kl_coef" json:"init_kl_coef"`
	Target          float64  `toml:"target" json:"target"`
	Horizon         int      `toml:"horizon" json:"horizon"`
	Gamma           float64  `toml:"gamma" json:"gamma"`
	Lam             float64  `toml:"lam" json:"lam"`
	ClipRange       float64  `toml:"cliprange" json:"cliprange"`
	ClipRangeValue  float64  `toml:"cliprange_value" json:"cliprange_value"`
	VFCoef          float64  `toml:"vf_coef" json:"vf_coef"`
	ScaleReward     *string  `toml:"scale_reward" json:"scale_reward"`
	RefMean         *float64 `toml:"ref_mean" json:"ref_mean"`
	RefStd          *float64 `toml:"ref_std" json:"ref_std"`
	ClipRangeReward float64  `toml:"cliprange_reward" json:"cliprange_reward"`

	GenKwargs GenKwargs `toml:"gen_kwargs" json:"gen_kwargs"`
}

type GenKwargs struct {
	MaxNewTokens int `toml:"max_new_tokens" json:"max_new_tokens"`
}

// DefaultTRLConfig returns the settings of the reference PPO run.
func DefaultTRLConfig() TRLConfig {
	return TRLConfig{
		Train: TrainConfig{
			SeqLength:          128,
			Epochs:             3,
			TotalSteps:         20000,
			BatchSize:          4,
			CheckpointInterval: 500,
			EvalInterval:       1000,
			Pipeline:           "PromptPipeline",
			Trainer:            "AcceleratePPOTrainer",
		},
		Model: ModelConfig{
			ModelPath:         "gpt2-supervised-text-checkpoint",
			NumLayersUnfrozen: 8,
		},
		Tokenizer: TokenizerConfig{
			TokenizerPath:  "gpt2_chinese",
			TruncationSide: "right",
		},
		Optimizer: OptimizerConfig{
			Name: "adamw",
			Kwargs: map[string]any{
				"lr":           5.0e-6,
				"betas":        []float64{0.9, 0.999},
				"eps":          1.0e-8,
				"weight_decay": 0.01,
			},
		},
		Scheduler: SchedulerConfig{
			Name: "cosine_annealing",
			Kwargs: map[string]any{
				"T_max":   100000,
				"eta_min": 5.0e-6,
			},
		},
		Method: PPOConfig{
			Name:            "PPOConfig",
			NumRollouts:     128,
			ChunkSize:       16,
			PPOEpochs:       4,
			InitKLCoef:      0.1,
			Target:          6,
			Horizon:         10000,
			Gamma:           1,
			Lam:             0.95,
			ClipRange:       0.2,
			ClipRangeValue:  0.2,
			VFCoef:          0.2,
			ClipRangeReward: 10,
			GenKwargs: GenKwargs{
				MaxNewTokens: 50,
			},
		},
	}
}

// MaxPromptLength is the prompt token budget left after generation.
func (c TRLConfig) MaxPromptLength() int {
	return c.Train.SeqLength - c.Method.GenKwargs.MaxNewTokens
}
