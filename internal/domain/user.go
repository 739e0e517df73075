package domain

import "time"

// User is identified by a unique email address. ID is the storage surrogate
// key that every other record references.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}
