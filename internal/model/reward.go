package model

type Reward struct {
	ID   int64  `json:"id"`
	Name string `json:"nome"`
	Cost int    `json:"custo"`
	Icon string `json:"icone"`
}

// RedeemedReward is one entry of a child's redemption history.
// RedeemedAt is kept as the backend's raw timestamp string.
type RedeemedReward struct {
	ID         int64  `json:"id"`
	RewardID   int64  `json:"recompensa_id"`
	Name       string `json:"nome"`
	Cost       int    `json:"custo"`
	RedeemedAt string `json:"data_resgate"`
	ChildID    int64  `json:"filho_id"`
}

// Score is the server-side running total for a child.
type Score struct {
	Total int `json:"total"`
}
