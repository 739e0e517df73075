package usecase

import (
	"context"
	"errors"
	"log/slog"

	"career-agent/internal/domain"
	"career-agent/internal/questionnaire"
	"career-agent/internal/repository"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

type PlanStore interface {
	RecordPlan(ctx context.Context, userID, content string) (domain.Plan, error)
	LatestPlan(ctx context.Context, userID string) (domain.Plan, error)
}

type TurnStore interface {
	AppendTurn(ctx context.Context, userID, text string, isUser bool) error
	RecentTurns(ctx context.Context, userID string, limit int) ([]domain.Turn, error)
}

type CareerStore interface {
	UserStore
	AnswerStore
	PlanStore
	TurnStore
}

// PlanGenerator never fails; it substitutes fallback text internally.
type PlanGenerator interface {
	Plan(ctx context.Context, answers []domain.Answer) string
	Reply(ctx context.Context, query string, plan *string, history []domain.Turn) string
}

type CareerService struct {
	store        CareerStore
	gen          PlanGenerator
	historyLimit int
	logger       *slog.Logger
}

type ChatInput struct {
	Email   string
	Message string
}

// NewCareerService creates a CareerService. historyLimit bounds the chat
// context passed to the generator. It defaults to 10 and is capped at 100.
func NewCareerService(store CareerStore, gen PlanGenerator, historyLimit int) (*CareerService, error) {
	if store == nil {
		return nil, errors.New("usecase: career store must not be nil")
	}
	if gen == nil {
		return nil, errors.New("usecase: plan generator must not be nil")
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	historyLimit = min(historyLimit, maxHistoryLimit)
	return &CareerService{
		store:        store,
		gen:          gen,
		historyLimit: historyLimit,
		logger:       slog.Default().With("component", "career"),
	}, nil
}

// HistoryLimit is the default number of turns returned by ChatHistory.
func (s *CareerService) HistoryLimit() int {
	return s.historyLimit
}

// GeneratePlan creates and stores a plan from a complete questionnaire.
// Nothing is written when fewer than TotalQuestions answers exist.
func (s *CareerService) GeneratePlan(ctx context.Context, email string) error {
	u, err := resolveUser(ctx, s.store, s.logger, email)
	if err != nil {
		return err
	}
	answers, err := s.store.ListAnswers(ctx, u.ID)
	if err != nil {
		s.logger.Error("list answers failed", "user_id", u.ID, "err", err)
		return newError(ErrorInternal, "answer_read_error", err)
	}
	if !questionnaire.Evaluate(len(answers)).IsComplete() {
		return newErrorf(ErrorQuestionnaireIncomplete, "questionnaire_incomplete",
			"please complete the questionnaire first: %d/%d questions answered", len(answers), questionnaire.TotalQuestions)
	}

	content := s.gen.Plan(ctx, answers)
	if _, err := s.store.RecordPlan(ctx, u.ID, content); err != nil {
		s.logger.Error("record plan failed", "user_id", u.ID, "err", err)
		return newError(ErrorInternal, "plan_write_error", err)
	}
	s.logger.Info("career plan stored", "user_id", u.ID)
	return nil
}

func (s *CareerService) GetPlan(ctx context.Context, email string) (domain.Plan, error) {
	u, err := resolveUser(ctx, s.store, s.logger, email)
	if err != nil {
		return domain.Plan{}, err
	}
	p, err := s.store.LatestPlan(ctx, u.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Plan{}, newErrorf(ErrorNotFound, "plan_not_found", "career plan not found")
	}
	if err != nil {
		s.logger.Error("read plan failed", "user_id", u.ID, "err", err)
		return domain.Plan{}, newError(ErrorInternal, "plan_read_error", err)
	}
	return p, nil
}

// Chat stores the user's message, generates a reply from the latest plan and
// recent history, stores the reply and returns it. The user's message stays
// stored when a later step fails.
func (s *CareerService) Chat(ctx context.Context, in ChatInput) (string, error) {
	message := in.Message
	u, err := resolveUser(ctx, s.store, s.logger, in.Email)
	if err != nil {
		return "", err
	}

	if err := s.store.AppendTurn(ctx, u.ID, message, true); err != nil {
		s.logger.Error("append user turn failed", "user_id", u.ID, "err", err)
		return "", newError(ErrorInternal, "turn_write_error", err)
	}

	var plan *string
	p, err := s.store.LatestPlan(ctx, u.ID)
	switch {
	case err == nil:
		plan = &p.Content
	case errors.Is(err, repository.ErrNotFound):
	default:
		s.logger.Error("read plan failed", "user_id", u.ID, "err", err)
		return "", newError(ErrorInternal, "plan_read_error", err)
	}

	history, err := s.store.RecentTurns(ctx, u.ID, s.historyLimit)
	if err != nil {
		s.logger.Error("read history failed", "user_id", u.ID, "err", err)
		return "", newError(ErrorInternal, "history_read_error", err)
	}

	reply := s.gen.Reply(ctx, message, plan, history)

	if err := s.store.AppendTurn(ctx, u.ID, reply, false); err != nil {
		s.logger.Error("append reply turn failed", "user_id", u.ID, "err", err)
		return "", newError(ErrorInternal, "turn_write_error", err)
	}
	return reply, nil
}

// ChatHistory returns up to limit turns, newest first. Limits above 100
// are clamped.
func (s *CareerService) ChatHistory(ctx context.Context, email string, limit int) ([]domain.Turn, error) {
	if limit < 0 {
		return nil, newErrorf(ErrorInvalidInput, "invalid_limit", "limit must not be negative")
	}
	limit = min(limit, maxHistoryLimit)
	u, err := resolveUser(ctx, s.store, s.logger, email)
	if err != nil {
		return nil, err
	}
	turns, err := s.store.RecentTurns(ctx, u.ID, limit)
	if err != nil {
		s.logger.Error("read history failed", "user_id", u.ID, "err", err)
		return nil, newError(ErrorInternal, "history_read_error", err)
	}
	return turns, nil
}
