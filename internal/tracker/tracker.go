// Package tracker implements the parent's actions: browsing the family
// dashboard, scoring a child's tasks for a day and redeeming rewards. It
// combines the API client with the local task-status cache.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/tasksparkle/internal/api"
	"github.com/dukerupert/tasksparkle/internal/model"
)

var (
	ErrBlankName          = errors.New("name must not be blank")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrNotFound           = errors.New("not found")
)

// Backend is the subset of the API client the tracker calls.
type Backend interface {
	ListChildren(ctx context.Context) ([]model.Child, error)
	CreateChild(ctx context.Context, name string) (*model.Child, error)
	ListTasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, name string, pointValue int) (*model.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	ListRewards(ctx context.Context) ([]model.Reward, error)
	CreateReward(ctx context.Context, name string, cost int) (*model.Reward, error)
	DeleteReward(ctx context.Context, id int64) error
	Score(ctx context.Context, childID int64) (int, error)
	AdjustScore(ctx context.Context, childID int64, delta int, description string) (int, error)
	ListRedeemed(ctx context.Context, childID int64) ([]model.RedeemedReward, error)
	Redeem(ctx context.Context, rewardID, childID int64) (*api.RedeemResponse, error)
}

// Config holds the point deltas applied by the scoring actions.
type Config struct {
	DonePoints   int
	MissedPoints int
	IdlePenalty  int
}

func DefaultConfig() Config {
	return Config{
		DonePoints:   1,
		MissedPoints: -2,
		IdlePenalty:  -2,
	}
}

type Service struct {
	backend Backend
	cache   StatusCache
	cfg     Config
	logger  *slog.Logger
}

func New(backend Backend, cache StatusCache, cfg Config, logger *slog.Logger) *Service {
	return &Service{backend: backend, cache: cache, cfg: cfg, logger: logger}
}

func (s *Service) Config() Config {
	return s.cfg
}

// Dashboard is the family overview. Err is set when the children could not
// be fetched; the other lists are best effort and stay empty on failure.
type Dashboard struct {
	Children []model.Child
	Tasks    []model.Task
	Rewards  []model.Reward
	Err      error
}

// LoadDashboard fetches children, tasks and rewards concurrently. It never
// returns an error: failures are reported through Dashboard.Err or logged.
func (s *Service) LoadDashboard(ctx context.Context) *Dashboard {
	d := &Dashboard{}
	var g errgroup.Group

	g.Go(func() error {
		children, err := s.backend.ListChildren(ctx)
		if err != nil {
			s.logger.Error("failed to fetch children", "error", err)
			d.Err = fmt.Errorf("fetch children: %w", err)
			return nil
		}
		d.Children = children
		return nil
	})
	g.Go(func() error {
		tasks, err := s.backend.ListTasks(ctx)
		if err != nil {
			s.logger.Error("failed to fetch tasks", "error", err)
			return nil
		}
		d.Tasks = tasks
		return nil
	})
	g.Go(func() error {
		rewards, err := s.backend.ListRewards(ctx)
		if err != nil {
			s.logger.Error("failed to fetch rewards", "error", err)
			return nil
		}
		d.Rewards = rewards
		return nil
	})
	g.Wait()

	return d
}

func (s *Service) AddChild(ctx context.Context, name string) (*model.Child, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrBlankName
	}
	child, err := s.backend.CreateChild(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("add child: %w", err)
	}
	s.logger.Info("child added", "name", name)
	return child, nil
}

func (s *Service) AddTask(ctx context.Context, name string, pointValue int) (*model.Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrBlankName
	}
	task, err := s.backend.CreateTask(ctx, name, pointValue)
	if err != nil {
		return nil, fmt.Errorf("add task: %w", err)
	}
	s.logger.Info("task added", "name", name, "value", pointValue)
	return task, nil
}

func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	if err := s.backend.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	s.logger.Info("task deleted", "task_id", id)
	return nil
}

func (s *Service) AddReward(ctx context.Context, name string, cost int) (*model.Reward, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrBlankName
	}
	reward, err := s.backend.CreateReward(ctx, name, cost)
	if err != nil {
		return nil, fmt.Errorf("add reward: %w", err)
	}
	s.logger.Info("reward added", "name", name, "cost", cost)
	return reward, nil
}

func (s *Service) DeleteReward(ctx context.Context, id int64) error {
	if err := s.backend.DeleteReward(ctx, id); err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	s.logger.Info("reward deleted", "reward_id", id)
	return nil
}

// FindChild looks a child up by id in the parent's children.
func (s *Service) FindChild(ctx context.Context, id int64) (*model.Child, error) {
	children, err := s.backend.ListChildren(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch children: %w", err)
	}
	for i := range children {
		if children[i].ID == id {
			return &children[i], nil
		}
	}
	return nil, fmt.Errorf("child %d: %w", id, ErrNotFound)
}

func (s *Service) FindTask(ctx context.Context, id int64) (*model.Task, error) {
	tasks, err := s.backend.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i], nil
		}
	}
	return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
}

func (s *Service) FindReward(ctx context.Context, id int64) (*model.Reward, error) {
	rewards, err := s.backend.ListRewards(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch rewards: %w", err)
	}
	for i := range rewards {
		if rewards[i].ID == id {
			return &rewards[i], nil
		}
	}
	return nil, fmt.Errorf("reward %d: %w", id, ErrNotFound)
}

func (s *Service) Tasks(ctx context.Context) ([]model.Task, error) {
	tasks, err := s.backend.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	return tasks, nil
}

func (s *Service) Rewards(ctx context.Context) ([]model.Reward, error) {
	rewards, err := s.backend.ListRewards(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch rewards: %w", err)
	}
	return rewards, nil
}

// History returns the child's redeemed rewards.
func (s *Service) History(ctx context.Context, childID int64) ([]model.RedeemedReward, error) {
	history, err := s.backend.ListRedeemed(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return history, nil
}

// CurrentScore fetches the child's total, falling back to the total
// embedded in child when the score endpoint fails.
func (s *Service) CurrentScore(ctx context.Context, child model.Child) int {
	score, err := s.backend.Score(ctx, child.ID)
	if err != nil {
		s.logger.Warn("failed to fetch score, using listed total", "child_id", child.ID, "error", err)
		return child.TotalOrZero()
	}
	return score
}
