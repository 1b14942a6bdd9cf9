package tracker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/tasksparkle/internal/model"
	"github.com/dukerupert/tasksparkle/internal/taskstatus"
)

// StatusCache is the daily task-status store used to guard scoring.
type StatusCache interface {
	Load(childID int64, day taskstatus.Day) (taskstatus.Map, error)
	Initialize(childID int64, day taskstatus.Day, taskIDs []int64) (taskstatus.Map, error)
	MarkDone(childID int64, day taskstatus.Day, taskID int64) error
	MarkNotDone(childID int64, day taskstatus.Day, taskID int64) error
	Rollback(childID int64, day taskstatus.Day, taskID int64) error
	Reset(childID int64, day taskstatus.Day, taskIDs ...int64) error
}

// ChildDetail is everything shown for one child on one day.
type ChildDetail struct {
	Child    model.Child
	Day      taskstatus.Day
	Tasks    []model.Task
	Rewards  []model.Reward
	History  []model.RedeemedReward
	Score    int
	Statuses taskstatus.Map
}

// OpenChild loads a child's tasks, rewards and redemption history, then
// the current score, then prepares the day's status map. A failed score
// fetch falls back to the total embedded in child.
func (s *Service) OpenChild(ctx context.Context, child model.Child, day taskstatus.Day) (*ChildDetail, error) {
	d := &ChildDetail{Child: child, Day: day}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tasks, err := s.backend.ListTasks(gctx)
		if err != nil {
			return fmt.Errorf("fetch tasks: %w", err)
		}
		d.Tasks = tasks
		return nil
	})
	g.Go(func() error {
		rewards, err := s.backend.ListRewards(gctx)
		if err != nil {
			return fmt.Errorf("fetch rewards: %w", err)
		}
		d.Rewards = rewards
		return nil
	})
	g.Go(func() error {
		history, err := s.backend.ListRedeemed(gctx, child.ID)
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}
		d.History = history
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("failed to load child detail", "child_id", child.ID, "error", err)
		return nil, err
	}

	d.Score = s.CurrentScore(ctx, child)

	statuses, err := s.cache.Initialize(child.ID, day, model.TaskIDs(d.Tasks))
	if err != nil {
		return nil, err
	}
	d.Statuses = statuses
	return d, nil
}

// CompleteTask marks task done for the day and awards DonePoints. The mark
// is written first; if the score update fails it is rolled back so the
// task can be retried. Returns the child's new total.
func (s *Service) CompleteTask(ctx context.Context, child model.Child, task model.Task, day taskstatus.Day) (int, error) {
	if err := s.cache.MarkDone(child.ID, day, task.ID); err != nil {
		return 0, err
	}
	desc := fmt.Sprintf("Tarefa: %s - Data: %s", task.Name, day)
	return s.scoreMarked(ctx, child, task, day, s.cfg.DonePoints, desc)
}

// MissTask marks task not done for the day and applies MissedPoints.
func (s *Service) MissTask(ctx context.Context, child model.Child, task model.Task, day taskstatus.Day) (int, error) {
	if err := s.cache.MarkNotDone(child.ID, day, task.ID); err != nil {
		return 0, err
	}
	desc := fmt.Sprintf("Não fez: %s - Data: %s", task.Name, day)
	return s.scoreMarked(ctx, child, task, day, s.cfg.MissedPoints, desc)
}

func (s *Service) scoreMarked(ctx context.Context, child model.Child, task model.Task, day taskstatus.Day, delta int, desc string) (int, error) {
	total, err := s.backend.AdjustScore(ctx, child.ID, delta, desc)
	if err != nil {
		s.logger.Error("failed to update score, reverting task status",
			"child_id", child.ID, "task_id", task.ID, "day", day, "delta", delta, "error", err)
		if rbErr := s.cache.Rollback(child.ID, day, task.ID); rbErr != nil {
			return 0, errors.Join(err, fmt.Errorf("rollback status: %w", rbErr))
		}
		return 0, err
	}
	s.logger.Info("score updated",
		"child", child.Name, "task", task.Name, "day", day, "delta", delta, "total", total)
	return total, nil
}

// PenalizeIdleDay applies the general penalty for a day with no tasks
// done. It does not touch the status map.
func (s *Service) PenalizeIdleDay(ctx context.Context, child model.Child, day taskstatus.Day) (int, error) {
	desc := fmt.Sprintf("Penalidade geral - não realizou tarefas - Data: %s", day)
	total, err := s.backend.AdjustScore(ctx, child.ID, s.cfg.IdlePenalty, desc)
	if err != nil {
		s.logger.Error("failed to apply idle penalty", "child_id", child.ID, "day", day, "error", err)
		return 0, err
	}
	s.logger.Info("idle penalty applied", "child", child.Name, "day", day, "total", total)
	return total, nil
}

// Redemption is the outcome of a successful Redeem.
type Redemption struct {
	Message   string
	Remaining int
	History   []model.RedeemedReward
}

// Redeem spends currentScore on reward. A balance below the cost is
// rejected locally without calling the backend. A failure to refresh the
// history afterwards is logged and leaves History nil.
func (s *Service) Redeem(ctx context.Context, child model.Child, reward model.Reward, currentScore int) (*Redemption, error) {
	if currentScore < reward.Cost {
		return nil, fmt.Errorf("%s costs %d, %s has %d: %w",
			reward.Name, reward.Cost, child.Name, currentScore, ErrInsufficientPoints)
	}

	resp, err := s.backend.Redeem(ctx, reward.ID, child.ID)
	if err != nil {
		s.logger.Error("failed to redeem reward", "child_id", child.ID, "reward_id", reward.ID, "error", err)
		return nil, err
	}
	r := &Redemption{Message: resp.Message, Remaining: resp.RemainingPoints}
	s.logger.Info("reward redeemed", "child", child.Name, "reward", reward.Name, "remaining", r.Remaining)

	history, err := s.backend.ListRedeemed(ctx, child.ID)
	if err != nil {
		s.logger.Warn("failed to refresh redemption history", "child_id", child.ID, "error", err)
		return r, nil
	}
	r.History = history
	return r, nil
}

// ClearDay resets the day's status map so every task can be scored again.
// taskIDs are included so tasks added since the day was opened are reset
// too.
func (s *Service) ClearDay(childID int64, day taskstatus.Day, taskIDs []int64) error {
	if err := s.cache.Reset(childID, day, taskIDs...); err != nil {
		return fmt.Errorf("clear day: %w", err)
	}
	s.logger.Info("day cleared", "child_id", childID, "day", day)
	return nil
}

// Statuses returns the stored status map for one child's day.
func (s *Service) Statuses(childID int64, day taskstatus.Day) (taskstatus.Map, error) {
	return s.cache.Load(childID, day)
}
