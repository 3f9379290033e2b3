package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxEvalPrompts bounds the evaluation set to keep evaluation fast.
	MaxEvalPrompts = 1000

	// DefaultOutputDir is where the trainer saves the tuned policy.
	DefaultOutputDir = "ppo_model"

	StateQueued    = "queued"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Job is a PPO training request. RewardURL is the reward callback the
// trainer calls during rollouts.
type Job struct {
	RunID       string    `json:"run_id"`
	RewardURL   string    `json:"reward_url"`
	Prompts     []string  `json:"prompts"`
	EvalPrompts []string  `json:"eval_prompts"`
	Config      TRLConfig `json:"config"`
	OutputDir   string    `json:"output_dir"`
}

// NewJob builds a Job, keeping at most MaxEvalPrompts eval prompts.
func NewJob(runID, rewardURL string, prompts, evalPrompts []string, cfg TRLConfig, outputDir string) Job {
	if len(evalPrompts) > MaxEvalPrompts {
		evalPrompts = evalPrompts[:MaxEvalPrompts]
	}
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	return Job{
		RunID:       runID,
		RewardURL:   rewardURL,
		Prompts:     prompts,
		EvalPrompts: evalPrompts,
		Config:      cfg,
		OutputDir:   outputDir,
	}
}

// Status is the trainer's view of a job.
type Status struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	Step      int    `json:"step"`
	OutputDir string `json:"output_dir,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Done reports whether the job reached a final state.
func (s *Status) Done() bool {
	return s.State == StateSucceeded || s.State == StateFailed
}

// Client talks to the training service.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewClient returns a Client for the trainer at baseURL.
func NewClient(baseURL string, pollInterval time.Duration, logger *zap.Logger) *Client {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: time.Minute},
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Train submits job and blocks until it finishes.
func (c *Client) Train(ctx context.Context, job Job) (*Status, error) {
	st, err := c.Submit(ctx, job)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, st.ID)
}

// Submit POSTs the job to /jobs.
func (c *Client) Submit(ctx context.Context, job Job) (*Status, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	var st Status
	if err := c.do(ctx, http.MethodPost, "/jobs", body, &st); err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	if st.ID == "" {
		return nil, fmt.Errorf("submit job: trainer returned no job id")
	}

	c.logger.Info("training job submitted",
		zap.String("job_id", st.ID),
		zap.String("run_id", job.RunID),
		zap.Int("prompts", len(job.Prompts)),
		zap.Int("eval_prompts", len(job.EvalPrompts)),
	)
	return &st, nil
}

// Status fetches the job's current state.
func (c *Client) Status(ctx context.Context, id string) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id, nil, &st); err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	return &st, nil
}

// Wait polls the job until it succeeds, fails, or ctx is done. A failed
// job is returned together with an error carrying the trainer's message.
func (c *Client) Wait(ctx context.Context, id string) (*Status, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	lastStep := -1
	for {
		st, err := c.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if st.Step != lastStep {
			c.logger.Debug("training progress",
				zap.String("job_id", id),
				zap.String("state", st.State),
				zap.Int("step", st.Step),
			)
			lastStep = st.Step
		}

		switch st.State {
		case StateSucceeded:
			return st, nil
		case StateFailed:
			return st, fmt.Errorf("training job %s failed: %s", id, st.Error)
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("trainer returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
