package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukerupert/tasksparkle/internal/model"
)

// LoginResponse is the body of a successful POST /auth/login.
type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	Name    string `json:"nome"`
}

// MessageResponse is the {message} body most mutations return.
type MessageResponse struct {
	Message string `json:"message"`
}

// RedeemResponse is the body of a successful POST /resgatar.
type RedeemResponse struct {
	Message         string `json:"message"`
	RemainingPoints int    `json:"pontosRestantes"`
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*MessageResponse, error) {
	body := map[string]string{"nome": name, "email": email, "senha": password}
	var resp MessageResponse
	if err := c.Request(ctx, http.MethodPost, "/auth/registrar", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	body := map[string]string{"email": email, "senha": password}
	var resp LoginResponse
	if err := c.Request(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListChildren(ctx context.Context) ([]model.Child, error) {
	var children []model.Child
	if err := c.Request(ctx, http.MethodGet, "/filhos", nil, &children); err != nil {
		return nil, err
	}
	return children, nil
}

func (c *Client) CreateChild(ctx context.Context, name string) (*model.Child, error) {
	var resp struct {
		Message string       `json:"message"`
		Child   *model.Child `json:"filho"`
	}
	if err := c.Request(ctx, http.MethodPost, "/filhos", map[string]string{"nome": name}, &resp); err != nil {
		return nil, err
	}
	return resp.Child, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := c.Request(ctx, http.MethodGet, "/tarefas", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) CreateTask(ctx context.Context, name string, pointValue int) (*model.Task, error) {
	body := struct {
		Name  string `json:"nome"`
		Value int    `json:"valor"`
	}{name, pointValue}
	var resp struct {
		Message string      `json:"message"`
		Task    *model.Task `json:"tarefa"`
	}
	if err := c.Request(ctx, http.MethodPost, "/tarefas", body, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.Request(ctx, http.MethodDelete, fmt.Sprintf("/tarefas/%d", id), nil, nil)
}

func (c *Client) ListRewards(ctx context.Context) ([]model.Reward, error) {
	var rewards []model.Reward
	if err := c.Request(ctx, http.MethodGet, "/recompensas", nil, &rewards); err != nil {
		return nil, err
	}
	return rewards, nil
}

func (c *Client) CreateReward(ctx context.Context, name string, cost int) (*model.Reward, error) {
	body := struct {
		Name string `json:"nome"`
		Cost int    `json:"custo"`
	}{name, cost}
	var resp struct {
		Message string        `json:"message"`
		Reward  *model.Reward `json:"recompensa"`
	}
	if err := c.Request(ctx, http.MethodPost, "/recompensas", body, &resp); err != nil {
		return nil, err
	}
	return resp.Reward, nil
}

func (c *Client) DeleteReward(ctx context.Context, id int64) error {
	return c.Request(ctx, http.MethodDelete, fmt.Sprintf("/recompensas/%d", id), nil, nil)
}

// Score returns a child's current point total.
func (c *Client) Score(ctx context.Context, childID int64) (int, error) {
	var s model.Score
	if err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/pontuacao/%d", childID), nil, &s); err != nil {
		return 0, err
	}
	return s.Total, nil
}

// AdjustScore adds delta (negative to deduct) to a child's total and
// returns the new total. description is omitted from the body when empty.
func (c *Client) AdjustScore(ctx context.Context, childID int64, delta int, description string) (int, error) {
	body := struct {
		ChildID     int64  `json:"filho_id"`
		Value       int    `json:"valor"`
		Description string `json:"descricao,omitempty"`
	}{childID, delta, description}
	var s model.Score
	if err := c.Request(ctx, http.MethodPost, "/pontuar", body, &s); err != nil {
		return 0, err
	}
	return s.Total, nil
}

func (c *Client) ListRedeemed(ctx context.Context, childID int64) ([]model.RedeemedReward, error) {
	var history []model.RedeemedReward
	if err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/premios-resgatados/%d", childID), nil, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// Redeem exchanges a child's points for a reward.
func (c *Client) Redeem(ctx context.Context, rewardID, childID int64) (*RedeemResponse, error) {
	body := struct {
		RewardID int64 `json:"id"`
		ChildID  int64 `json:"filho_id"`
	}{rewardID, childID}
	var resp RedeemResponse
	if err := c.Request(ctx, http.MethodPost, "/resgatar", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
