package model

type Task struct {
	ID         int64  `json:"id"`
	Name       string `json:"nome"`
	PointValue int    `json:"valor"`
	Icon       string `json:"icone"`
}

// TaskIDs returns the ids of tasks in order.
func TaskIDs(tasks []Task) []int64 {
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
