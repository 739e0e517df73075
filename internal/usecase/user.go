package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"career-agent/internal/domain"
	"career-agent/internal/repository"
)

type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	CreateUser(ctx context.Context, email string) (domain.User, error)
}

// resolveUser finds the user for email, creating it on first contact. A
// concurrent create surfaces as ErrConflict and is resolved by one re-read.
func resolveUser(ctx context.Context, store UserStore, logger *slog.Logger, email string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, newErrorf(ErrorInvalidInput, "missing_email", "email is required")
	}

	u, err := store.FindUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		logger.Error("user lookup failed", "err", err)
		return domain.User{}, newError(ErrorInternal, "user_read_error", err)
	}

	u, err = store.CreateUser(ctx, email)
	if errors.Is(err, repository.ErrConflict) {
		u, err = store.FindUserByEmail(ctx, email)
	} else if err == nil {
		logger.Info("user created", "user_id", u.ID)
	}
	if err != nil {
		logger.Error("user create failed", "err", err)
		return domain.User{}, newError(ErrorInternal, "user_write_error", err)
	}
	return u, nil
}
