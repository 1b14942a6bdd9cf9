package model

// User is the authenticated parent as the client remembers it. The backend
// only returns a display name on login.
type User struct {
	Name string `json:"nome"`
}
