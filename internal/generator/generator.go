// Package generator turns questionnaire answers and chat history into
// prompts for a text-completion backend. It never fails: when the backend is
// missing or errors, each request kind returns a fixed fallback text.
package generator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"career-agent/internal/domain"
)

// Fallback texts returned when no backend credential is configured or the
// backend call fails.
const (
	FallbackFirstQuestion = "Which fields or industries excite you most on your career journey?"
	FallbackNextQuestion  = "What skills do you think you need to develop to reach your career goals?"

	FallbackPlanUnavailable  = "Standard career plan (API key missing)"
	FallbackPlanError        = "An error occurred while creating the career plan. Please try again later."
	FallbackReplyUnavailable = "A response could not be generated because the API key is missing."
	FallbackReplyError       = "An error occurred while processing your query. Please try again later."

	defaultTimeout = 30 * time.Second
)

// Completer is an opaque text-completion backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Generator produces questions, plans and chat replies.
type Generator struct {
	completer Completer
	timeout   time.Duration
	logger    *slog.Logger
}

type Option func(*Generator)

// WithTimeout bounds every backend call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Generator. A nil completer is the supported degraded mode
// used when no backend credential is configured.
func New(c Completer, opts ...Option) *Generator {
	g := &Generator{
		completer: c,
		timeout:   defaultTimeout,
		logger:    slog.Default().With("component", "generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.completer == nil {
		g.logger.Warn("no generation backend configured; fallback texts will be returned")
	}
	return g
}

// Available reports whether a backend is configured.
func (g *Generator) Available() bool {
	return g.completer != nil
}

func (g *Generator) FirstQuestion(ctx context.Context) string {
	return g.complete(ctx, "first_question", firstQuestionPrompt(), FallbackFirstQuestion, FallbackFirstQuestion)
}

// NextQuestion derives the next question from all prior answers in sequence
// order.
func (g *Generator) NextQuestion(ctx context.Context, prior []domain.Answer) string {
	return g.complete(ctx, "next_question", nextQuestionPrompt(prior), FallbackNextQuestion, FallbackNextQuestion)
}

func (g *Generator) Plan(ctx context.Context, answers []domain.Answer) string {
	return g.complete(ctx, "plan", planPrompt(answers), FallbackPlanUnavailable, FallbackPlanError)
}

// Reply answers query in the context of plan (nil when none exists yet) and
// history, which is given newest first.
func (g *Generator) Reply(ctx context.Context, query string, plan *string, history []domain.Turn) string {
	return g.complete(ctx, "reply", replyPrompt(query, plan, history), FallbackReplyUnavailable, FallbackReplyError)
}

func (g *Generator) complete(ctx context.Context, kind, prompt, unavailable, failed string) string {
	if g.completer == nil {
		g.logger.Warn("generation backend unavailable, returning fallback", "kind", kind)
		return unavailable
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		attrs := []any{"kind", kind, "err", err}
		if status, ok := upstreamStatusCode(err); ok {
			attrs = append(attrs, "upstream_status", status)
		}
		g.logger.Error("generation failed, returning fallback", attrs...)
		return failed
	}
	text = strings.TrimSpace(text)
	if text == "" {
		g.logger.Error("generation returned empty text, returning fallback", "kind", kind)
		return failed
	}
	g.logger.Debug("generation complete", "kind", kind, "duration_ms", time.Since(start).Milliseconds())
	return text
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
