package repository

import (
	"context"
	"errors"

	"career-agent/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict is returned when a write would violate a uniqueness
	// constraint (duplicate email, duplicate answer sequence number).
	ErrConflict = errors.New("repository: conflict")
)

// Gateway is the persistence contract for users, questionnaire answers,
// career plans and conversation turns. Every call commits on its own; no
// transaction spans two calls.
type Gateway interface {
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	CreateUser(ctx context.Context, email string) (domain.User, error)

	RecordAnswer(ctx context.Context, userID string, seq int, question, answer string) error
	// ListAnswers returns answers ordered by sequence number ascending.
	ListAnswers(ctx context.Context, userID string) ([]domain.Answer, error)

	RecordPlan(ctx context.Context, userID, content string) (domain.Plan, error)
	// LatestPlan returns the most recently recorded plan or ErrNotFound.
	LatestPlan(ctx context.Context, userID string) (domain.Plan, error)

	AppendTurn(ctx context.Context, userID, text string, isUser bool) error
	// RecentTurns returns at most limit turns, newest first.
	RecentTurns(ctx context.Context, userID string, limit int) ([]domain.Turn, error)
}
