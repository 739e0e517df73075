package domain

import "time"

// Plan is a generated career plan. A user may have several; the newest is
// the current one.
type Plan struct {
	UserID    string
	Content   string
	CreatedAt time.Time
}
