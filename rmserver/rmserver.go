// Package rmserver serves a reward.ScoringModel over HTTP with the same
// wire shape as the real reward model inference endpoint.
package rmserver

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/papercomputeco/rlhfrun/pkg/reward"
)

// Server is an inference server for a reward model.
type Server struct {
	model  reward.ScoringModel
	logger *zap.Logger
	app    *fiber.App
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates a Server for model.
func New(model reward.ScoringModel, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		model:  model,
		logger: logger,
		app:    app,
	}

	app.Use(recover.New())

	app.Post("/score", s.handleScore)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	return s
}

// App exposes the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on addr.
func (s *Server) Run(addr string) error {
	s.logger.Info("starting reward model server", zap.String("listen", addr))
	return s.app.Listen(addr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleScore(c *fiber.Ctx) error {
	var batch reward.Batch
	if err := json.Unmarshal(c.Body(), &batch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid batch"})
	}
	if err := validate(batch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}

	scores, err := s.model.Score(c.Context(), batch)
	if err != nil {
		s.logger.Error("scoring failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "scoring failed"})
	}

	s.logger.Debug("scored batch",
		zap.Int("rows", batch.Len()),
		zap.Int("scores", len(scores)),
	)

	return c.JSON(reward.ScoreResponse{ChosenEndScores: scores})
}

func validate(b reward.Batch) error {
	if len(b.InputIDs) != len(b.AttentionMask) {
		return fmt.Errorf("%d id rows but %d mask rows", len(b.InputIDs), len(b.AttentionMask))
	}
	for i := range b.InputIDs {
		if len(b.InputIDs[i]) != len(b.AttentionMask[i]) {
			return fmt.Errorf("row %d: %d ids but %d mask entries", i, len(b.InputIDs[i]), len(b.AttentionMask[i]))
		}
	}
	return nil
}
