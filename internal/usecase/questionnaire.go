package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"career-agent/internal/domain"
	"career-agent/internal/questionnaire"
	"career-agent/internal/repository"
)

type AnswerStore interface {
	RecordAnswer(ctx context.Context, userID string, seq int, question, answer string) error
	ListAnswers(ctx context.Context, userID string) ([]domain.Answer, error)
}

type QuestionnaireStore interface {
	UserStore
	AnswerStore
}

// QuestionGenerator never fails; it substitutes fallback text internally.
type QuestionGenerator interface {
	FirstQuestion(ctx context.Context) string
	NextQuestion(ctx context.Context, prior []domain.Answer) string
}

type QuestionnaireService struct {
	store  QuestionnaireStore
	gen    QuestionGenerator
	logger *slog.Logger
}

type StatusOutput struct {
	IsComplete      bool
	TotalQuestions  int
	CurrentQuestion int
	NextQuestion    string
}

type QuestionOutput struct {
	Question       string
	QuestionNumber int
}

type SubmitAnswerInput struct {
	Email          string
	QuestionNumber int
	Answer         string
}

func NewQuestionnaireService(store QuestionnaireStore, gen QuestionGenerator) (*QuestionnaireService, error) {
	if store == nil {
		return nil, errors.New("usecase: questionnaire store must not be nil")
	}
	if gen == nil {
		return nil, errors.New("usecase: question generator must not be nil")
	}
	return &QuestionnaireService{
		store:  store,
		gen:    gen,
		logger: slog.Default().With("component", "questionnaire"),
	}, nil
}

// Status reports progress and, while incomplete, the question to answer next.
func (s *QuestionnaireService) Status(ctx context.Context, email string) (StatusOutput, error) {
	answers, err := s.answersFor(ctx, email)
	if err != nil {
		return StatusOutput{}, err
	}
	state := questionnaire.Evaluate(len(answers))
	out := StatusOutput{
		IsComplete:      state.IsComplete(),
		TotalQuestions:  questionnaire.TotalQuestions,
		CurrentQuestion: len(answers),
	}
	if !state.IsComplete() {
		out.NextQuestion = s.question(ctx, state, answers)
	}
	return out, nil
}

func (s *QuestionnaireService) NextQuestion(ctx context.Context, email string) (QuestionOutput, error) {
	answers, err := s.answersFor(ctx, email)
	if err != nil {
		return QuestionOutput{}, err
	}
	state := questionnaire.Evaluate(len(answers))
	if state.IsComplete() {
		return QuestionOutput{}, newErrorf(ErrorQuestionnaireComplete, "questionnaire_complete", "questionnaire is already complete")
	}
	return QuestionOutput{
		Question:       s.question(ctx, state, answers),
		QuestionNumber: state.Next(),
	}, nil
}

// SubmitAnswer records the answer for in.QuestionNumber. The question text
// is regenerated from the same prior answers so that the stored pair matches
// what NextQuestion would have returned.
func (s *QuestionnaireService) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) error {
	u, err := resolveUser(ctx, s.store, s.logger, in.Email)
	if err != nil {
		return err
	}
	answers, err := s.listAnswers(ctx, u.ID)
	if err != nil {
		return err
	}

	if err := questionnaire.ValidateSubmission(len(answers), in.QuestionNumber); err != nil {
		var seqErr *questionnaire.SequenceError
		if !errors.As(err, &seqErr) {
			return newError(ErrorInternal, "validation_error", err)
		}
		if seqErr.Expected == 0 {
			return newErrorf(ErrorQuestionnaireComplete, "questionnaire_complete", "questionnaire is already complete")
		}
		return &Error{
			Code:    ErrorSequenceMismatch,
			Reason:  "invalid_question_number",
			Message: fmt.Sprintf("invalid question number: expected %d, got %d", seqErr.Expected, seqErr.Got),
			Err:     err,
		}
	}

	state := questionnaire.Evaluate(len(answers))
	question := s.question(ctx, state, answers)

	if err := s.store.RecordAnswer(ctx, u.ID, in.QuestionNumber, question, in.Answer); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Warn("concurrent answer submission rejected", "user_id", u.ID, "seq", in.QuestionNumber)
			return &Error{
				Code:    ErrorSequenceMismatch,
				Reason:  "answer_conflict",
				Message: fmt.Sprintf("question %d has already been answered", in.QuestionNumber),
				Err:     err,
			}
		}
		s.logger.Error("record answer failed", "user_id", u.ID, "seq", in.QuestionNumber, "err", err)
		return newError(ErrorInternal, "answer_write_error", err)
	}
	s.logger.Info("answer recorded", "user_id", u.ID, "seq", in.QuestionNumber)
	return nil
}

// ListAnswers returns the user's answers ordered by sequence number.
func (s *QuestionnaireService) ListAnswers(ctx context.Context, email string) ([]domain.Answer, error) {
	return s.answersFor(ctx, email)
}

func (s *QuestionnaireService) answersFor(ctx context.Context, email string) ([]domain.Answer, error) {
	u, err := resolveUser(ctx, s.store, s.logger, email)
	if err != nil {
		return nil, err
	}
	return s.listAnswers(ctx, u.ID)
}

func (s *QuestionnaireService) listAnswers(ctx context.Context, userID string) ([]domain.Answer, error) {
	answers, err := s.store.ListAnswers(ctx, userID)
	if err != nil {
		s.logger.Error("list answers failed", "user_id", userID, "err", err)
		return nil, newError(ErrorInternal, "answer_read_error", err)
	}
	return answers, nil
}

func (s *QuestionnaireService) question(ctx context.Context, state questionnaire.State, prior []domain.Answer) string {
	if state.Kind() == questionnaire.AwaitingFirstAnswer {
		return s.gen.FirstQuestion(ctx)
	}
	return s.gen.NextQuestion(ctx, prior)
}
