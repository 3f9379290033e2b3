// Package checkpoint makes sure the reward model weights are on disk
// before a run starts.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	DefaultPath = "rm_checkpoint/checkpoint-9500/pytorch_model.bin"
	DefaultURL  = "https://huggingface.co/CarperAI/openai_summarize_tldr_rm_checkpoint/resolve/main/pytorch_model.bin"
)

// Ensure downloads url to path unless path already exists. It reports
// whether a download happened. A failed download is not retried and leaves
// no file at path.
func Ensure(ctx context.Context, client *http.Client, path, url string, logger *zap.Logger) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		logger.Debug("reward checkpoint present", zap.String("path", path))
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat checkpoint: %w", err)
	}

	if client == nil {
		client = http.DefaultClient
	}

	logger.Info("downloading reward checkpoint",
		zap.String("path", path),
		zap.String("url", url),
	)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create checkpoint dir: %w", err)
	}

	n, err := download(ctx, client, path, url)
	if err != nil {
		return false, err
	}

	logger.Info("reward checkpoint downloaded",
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return true, nil
}

func download(ctx context.Context, client *http.Client, path, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch checkpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch checkpoint: server returned %d", resp.StatusCode)
	}

	part := path + ".part"
	f, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("create checkpoint file: %w", err)
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return 0, fmt.Errorf("write checkpoint: %w", err)
	}

	if err := os.Rename(part, path); err != nil {
		os.Remove(part)
		return 0, fmt.Errorf("move checkpoint into place: %w", err)
	}
	return n, nil
}
