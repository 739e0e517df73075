package domain

import "time"

// Turn is a single persisted chat message about a user's plan.
type Turn struct {
	UserID    string
	Text      string
	IsUser    bool
	CreatedAt time.Time
}
