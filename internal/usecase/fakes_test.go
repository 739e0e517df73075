package usecase

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"career-agent/internal/domain"
	"career-agent/internal/repository"
)

type memStore struct {
	mu      sync.Mutex
	users   map[string]domain.User
	answers map[string][]domain.Answer
	plans   map[string][]domain.Plan
	turns   map[string][]domain.Turn

	findErr       error
	createErr     error
	listErr       error
	recordErr     error
	planWriteErr  error
	planReadErr   error
	turnWriteErrs []error
	turnReadErr   error

	lastTurnLimit int

	// createConflict simulates a concurrent create that won the race.
	createConflict bool
	recordCalls    int
	planWrites     int
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]domain.User{},
		answers: map[string][]domain.Answer{},
		plans:   map[string][]domain.Plan{},
		turns:   map[string][]domain.Turn{},
	}
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return domain.User{}, m.findErr
	}
	u, ok := m.users[email]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memStore) CreateUser(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return domain.User{}, m.createErr
	}
	u := domain.User{ID: strconv.Itoa(len(m.users) + 1), Email: email, CreatedAt: time.Now()}
	m.users[email] = u
	if m.createConflict {
		m.createConflict = false
		return domain.User{}, repository.ErrConflict
	}
	return u, nil
}

func (m *memStore) RecordAnswer(_ context.Context, userID string, seq int, question, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordCalls++
	if m.recordErr != nil {
		return m.recordErr
	}
	for _, a := range m.answers[userID] {
		if a.Seq == seq {
			return repository.ErrConflict
		}
	}
	m.answers[userID] = append(m.answers[userID], domain.Answer{
		UserID: userID, Seq: seq, Question: question, Answer: answer, CreatedAt: time.Now(),
	})
	return nil
}

func (m *memStore) ListAnswers(_ context.Context, userID string) ([]domain.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := append([]domain.Answer(nil), m.answers[userID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memStore) RecordPlan(_ context.Context, userID, content string) (domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.planWriteErr != nil {
		return domain.Plan{}, m.planWriteErr
	}
	m.planWrites++
	p := domain.Plan{UserID: userID, Content: content, CreatedAt: time.Now()}
	m.plans[userID] = append(m.plans[userID], p)
	return p, nil
}

func (m *memStore) LatestPlan(_ context.Context, userID string) (domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.planReadErr != nil {
		return domain.Plan{}, m.planReadErr
	}
	ps := m.plans[userID]
	if len(ps) == 0 {
		return domain.Plan{}, repository.ErrNotFound
	}
	return ps[len(ps)-1], nil
}

func (m *memStore) AppendTurn(_ context.Context, userID, text string, isUser bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.turnWriteErrs) > 0 {
		err := m.turnWriteErrs[0]
		m.turnWriteErrs = m.turnWriteErrs[1:]
		if err != nil {
			return err
		}
	}
	m.turns[userID] = append(m.turns[userID], domain.Turn{
		UserID: userID, Text: text, IsUser: isUser, CreatedAt: time.Now(),
	})
	return nil
}

func (m *memStore) RecentTurns(_ context.Context, userID string, limit int) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTurnLimit = limit
	if m.turnReadErr != nil {
		return nil, m.turnReadErr
	}
	all := m.turns[userID]
	out := []domain.Turn{}
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

type mockGenerator struct {
	mu sync.Mutex

	first string
	next  string
	plan  string
	reply string

	firstCalls int
	nextCalls  int
	planCalls  int
	nextPrior  []domain.Answer
	replyQuery string
	replyPlan  *string
	replyHist  []domain.Turn
}

func newMockGenerator() *mockGenerator {
	return &mockGenerator{
		first: "What excites you?",
		next:  "What are you good at?",
		plan:  "Your plan",
		reply: "Keep going",
	}
}

func (g *mockGenerator) FirstQuestion(context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.firstCalls++
	return g.first
}

func (g *mockGenerator) NextQuestion(_ context.Context, prior []domain.Answer) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextCalls++
	g.nextPrior = prior
	return g.next
}

func (g *mockGenerator) Plan(context.Context, []domain.Answer) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.planCalls++
	return g.plan
}

func (g *mockGenerator) Reply(_ context.Context, query string, plan *string, history []domain.Turn) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replyQuery = query
	g.replyPlan = plan
	g.replyHist = history
	return g.reply
}

var errBoom = errors.New("boom")
