package session

import (
	"context"
	"time"

	"github.com/bikepack-planner/server/internal/agent/graph"
	"github.com/bikepack-planner/server/internal/agent/model"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

// Service runs turns on registered sessions, one at a time per session.
type Service struct {
	registry *Registry
	runner   graph.Runner
}

func NewService(r *Registry, runner graph.Runner) *Service {
	return &Service{registry: r, runner: runner}
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Send runs one turn for a user message.
func (s *Service) Send(ctx context.Context, id, text string, sink model.Sink) (*model.TurnResult, error) {
	return s.withTurn(ctx, id, func() (*model.TurnResult, error) {
		return s.runner.RunTurn(ctx, id, text, sink)
	})
}

// Resume continues an interrupted turn.
func (s *Service) Resume(ctx context.Context, id string, sink model.Sink) (*model.TurnResult, error) {
	return s.withTurn(ctx, id, func() (*model.TurnResult, error) {
		return s.runner.Resume(ctx, id, sink)
	})
}

// State returns the session's checkpoint.
func (s *Service) State(ctx context.Context, id string) (*model.ConversationState, error) {
	if _, err := s.registry.Get(id); err != nil {
		return nil, err
	}
	return s.runner.State(ctx, id)
}

func (s *Service) withTurn(ctx context.Context, id string, run func() (*model.TurnResult, error)) (*model.TurnResult, error) {
	release, err := s.registry.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := run()
	if err != nil {
		// a failed turn may still have committed earlier nodes
		if state, stateErr := s.runner.State(ctx, id); stateErr == nil {
			s.registry.touch(id, len(state.Messages))
		}
		return nil, err
	}
	s.registry.touch(id, res.Progress.MessageCount)
	return res, nil
}

// Janitor removes idle sessions every interval until ctx is done.
func (s *Service) Janitor(ctx context.Context, cfg model.SessionConfig) {
	if cfg.CleanupInterval <= 0 || cfg.MaxAge <= 0 {
		logx.Warn().Msg("Session janitor disabled")
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.Cleanup(ctx, cfg.MaxAge)
		}
	}
}
