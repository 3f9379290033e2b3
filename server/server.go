// Package server exposes the relative reward scorer as the HTTP reward
// callback the PPO trainer calls during rollouts. Every scored sample can
// be recorded in a content-addressed ledger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/papercomputeco/rlhfrun/pkg/ledger"
	"github.com/papercomputeco/rlhfrun/pkg/logger"
	"github.com/papercomputeco/rlhfrun/pkg/prompt"
	"github.com/papercomputeco/rlhfrun/pkg/reward"
)

// RewardPath is the route the trainer posts rollouts to.
const RewardPath = "/reward"

// RewardFunc scores a batch of rollouts against their reference replies.
type RewardFunc interface {
	ScoreDetailed(ctx context.Context, samples []string) ([]reward.Result, error)
}

// RewardRequest is the trainer's callback body.
type RewardRequest struct {
	Samples []string `json:"samples"`
}

// RewardResponse carries one reward per sample, in request order.
type RewardResponse struct {
	Rewards []float64 `json:"rewards"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PromptHistory is a prompt node together with its scored rollouts.
type PromptHistory struct {
	Prompt   *ledger.Node   `json:"prompt"`
	Rollouts []*ledger.Node `json:"rollouts"`
	Count    int            `json:"count"`
}

// PutNodesResponse counts the outcome of a ledger push.
type PutNodesResponse struct {
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`
}

// Server is the reward callback server.
type Server struct {
	config Config
	scorer RewardFunc
	storer ledger.Storer
	logger *zap.Logger
	server *fiber.App
}

// New creates a Server. A ledger is opened when config.LedgerPath is set.
func New(config Config, scorer RewardFunc, logger *zap.Logger) (*Server, error) {
	var storer ledger.Storer

	switch config.LedgerPath {
	case "":
		logger.Info("rollout ledger disabled")
	case ":memory:":
		storer = ledger.NewMemoryStorer()
		logger.Info("using in-memory rollout ledger")
	default:
		s, err := ledger.NewSQLiteStorer(config.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite ledger: %w", err)
		}
		storer = s
		logger.Info("using SQLite rollout ledger", zap.String("path", config.LedgerPath))
	}

	return newServer(config, scorer, storer, logger), nil
}

func newServer(config Config, scorer RewardFunc, storer ledger.Storer, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		scorer: scorer,
		storer: storer,
		logger: logger,
		server: app,
	}

	app.Use(recover.New())

	app.Post(RewardPath, s.handleReward)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	app.Get("/ledger/stats", s.handleLedgerStats)
	app.Get("/ledger/node/:hash", s.handleGetNode)
	app.Get("/ledger/prompt/:hash", s.handleGetPrompt)
	app.Post("/ledger/nodes", s.handlePutNodes)

	return s
}

// App exposes the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.server
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting reward server", zap.String("listen", s.config.ListenAddr))
	return s.server.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting reward server", zap.String("listen", ln.Addr().String()))
	return s.server.Listener(ln)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() error {
	return s.server.Shutdown()
}

// Close releases the ledger.
func (s *Server) Close() error {
	if s.storer == nil {
		return nil
	}
	return s.storer.Close()
}

// handleReward scores the trainer's rollouts. An unknown prompt is a 422 so
// the trainer fails the run rather than training on a missing baseline.
func (s *Server) handleReward(c *fiber.Ctx) error {
	var req RewardRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Error("failed to parse reward request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if len(req.Samples) > 0 {
		s.logger.Debug("received rollouts",
			zap.Int("samples", len(req.Samples)),
			zap.String("first", logger.Truncate(req.Samples[0], 100)),
		)
	}

	results, err := s.scorer.ScoreDetailed(c.Context(), req.Samples)
	if err != nil {
		var notFound prompt.ErrNotFound
		if errors.As(err, &notFound) {
			s.logger.Error("rollout prompt has no reference", zap.Error(err))
			return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Error: err.Error()})
		}
		s.logger.Error("scoring failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "reward model request failed"})
	}

	rewards := make([]float64, len(results))
	for i, r := range results {
		if !ledger.Finite(r) {
			s.logger.Warn("reward model returned a non-finite score",
				zap.String("sample", logger.Truncate(r.Sample, 100)),
				zap.Float64("score", r.Score),
				zap.Float64("reference_score", r.ReferenceScore),
			)
			return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "reward model returned a non-finite score"})
		}
		rewards[i] = r.Reward
	}

	s.record(c.Context(), results)

	return c.JSON(RewardResponse{Rewards: rewards})
}

// record stores results in the ledger. Failures are logged; recording never
// fails a reward request.
func (s *Server) record(ctx context.Context, results []reward.Result) {
	if s.storer == nil {
		return
	}
	for _, r := range results {
		node, err := ledger.Record(ctx, s.storer, r)
		if err != nil {
			s.logger.Error("failed to record rollout", zap.Error(err))
			continue
		}
		s.logger.Debug("rollout recorded",
			zap.String("hash", logger.Truncate(node.Hash, 16)),
			zap.Float64("reward", r.Reward),
		)
	}
}

func (s *Server) ledgerDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "ledger disabled"})
}

// handleLedgerStats returns node counts of the ledger.
func (s *Server) handleLedgerStats(c *fiber.Ctx) error {
	if s.storer == nil {
		return s.ledgerDisabled(c)
	}
	ctx := c.Context()

	nodes, err := s.storer.List(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list nodes"})
	}

	roots, err := s.storer.Roots(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get roots"})
	}

	return c.JSON(map[string]any{
		"total_nodes":   len(nodes),
		"prompt_count":  len(roots),
		"rollout_count": len(nodes) - len(roots),
	})
}

// handleGetNode returns a single node by its hash.
func (s *Server) handleGetNode(c *fiber.Ctx) error {
	if s.storer == nil {
		return s.ledgerDisabled(c)
	}

	node, err := s.storer.Get(c.Context(), c.Params("hash"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "node not found"})
	}

	return c.JSON(node)
}

// handleGetPrompt returns a prompt node and every rollout scored against it.
func (s *Server) handleGetPrompt(c *fiber.Ctx) error {
	if s.storer == nil {
		return s.ledgerDisabled(c)
	}
	ctx := c.Context()

	node, err := s.storer.Get(ctx, c.Params("hash"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "node not found"})
	}
	if node.ParentHash != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "not a prompt node"})
	}

	rollouts, err := s.storer.Children(ctx, node.Hash)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get rollouts"})
	}

	return c.JSON(PromptHistory{
		Prompt:   node,
		Rollouts: rollouts,
		Count:    len(rollouts),
	})
}

// handlePutNodes ingests ledger nodes pushed from another run. Nodes keep
// their hashes, so pushing the same ledger twice adds nothing.
func (s *Server) handlePutNodes(c *fiber.Ctx) error {
	if s.storer == nil {
		return s.ledgerDisabled(c)
	}

	var nodes []*ledger.Node
	if err := json.Unmarshal(c.Body(), &nodes); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	var resp PutNodesResponse
	for _, n := range nodes {
		if n == nil || n.Hash == "" {
			resp.Errors++
			continue
		}
		isNew, err := s.storer.Put(c.Context(), n)
		switch {
		case err != nil:
			s.logger.Warn("failed to store pushed node", zap.String("hash", n.Hash), zap.Error(err))
			resp.Errors++
		case isNew:
			resp.New++
		default:
			resp.Duplicate++
		}
	}

	s.logger.Info("ledger nodes pushed",
		zap.Int("new", resp.New),
		zap.Int("duplicate", resp.Duplicate),
		zap.Int("errors", resp.Errors),
	)
	return c.JSON(resp)
}
