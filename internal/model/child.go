package model

// Child is a tracked kid owned by the authenticated parent account.
// Total is only filled by backends that embed the running score in the
// children listing.
type Child struct {
	ID      int64  `json:"id"`
	Name    string `json:"nome"`
	OwnerID int64  `json:"usuario_id"`
	Total   *int   `json:"total,omitempty"`
}

// TotalOrZero returns the embedded score, or 0 when the backend omitted it.
func (c Child) TotalOrZero() int {
	if c.Total == nil {
		return 0
	}
	return *c.Total
}
