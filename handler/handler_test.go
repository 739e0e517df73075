package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"career-agent/internal/domain"
	"career-agent/internal/generator"
	"career-agent/internal/repository"
	"career-agent/internal/usecase"
)

type stubQuestionnaire struct {
	status    usecase.StatusOutput
	question  usecase.QuestionOutput
	answers   []domain.Answer
	err       error
	submitted usecase.SubmitAnswerInput
	email     string
	panicMsg  string
}

func (s *stubQuestionnaire) Status(_ context.Context, email string) (usecase.StatusOutput, error) {
	s.email = email
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.status, s.err
}

func (s *stubQuestionnaire) NextQuestion(_ context.Context, email string) (usecase.QuestionOutput, error) {
	s.email = email
	return s.question, s.err
}

func (s *stubQuestionnaire) SubmitAnswer(_ context.Context, in usecase.SubmitAnswerInput) error {
	s.submitted = in
	return s.err
}

func (s *stubQuestionnaire) ListAnswers(_ context.Context, email string) ([]domain.Answer, error) {
	s.email = email
	return s.answers, s.err
}

type stubCareer struct {
	plan      domain.Plan
	reply     string
	turns     []domain.Turn
	err       error
	email     string
	chatIn    usecase.ChatInput
	limit     int
	generated bool
}

func (s *stubCareer) GeneratePlan(_ context.Context, email string) error {
	s.email = email
	s.generated = true
	return s.err
}

func (s *stubCareer) GetPlan(_ context.Context, email string) (domain.Plan, error) {
	s.email = email
	return s.plan, s.err
}

func (s *stubCareer) Chat(_ context.Context, in usecase.ChatInput) (string, error) {
	s.chatIn = in
	return s.reply, s.err
}

func (s *stubCareer) ChatHistory(_ context.Context, email string, limit int) ([]domain.Turn, error) {
	s.email = email
	s.limit = limit
	return s.turns, s.err
}

func (s *stubCareer) HistoryLimit() int { return 10 }

var testInfo = AppInfo{Name: "AI Career Planning API", Version: "0.1.0", Description: "desc"}

func newTestHandler(t *testing.T) (*Handler, *stubQuestionnaire, *stubCareer) {
	t.Helper()
	q := &stubQuestionnaire{}
	c := &stubCareer{}
	h, err := NewHandler(q, c, testInfo)
	require.NoError(t, err)
	return h, q, c
}

func makeEvent(method, path string, query map[string]string, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod:            method,
		Path:                  path,
		Headers:               map[string]string{"Content-Type": "application/json"},
		QueryStringParameters: query,
		Body:                  body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, &stubCareer{}, testInfo)
	require.Error(t, err)
	_, err = NewHandler(&stubQuestionnaire{}, nil, testInfo)
	require.Error(t, err)
}

func TestHandle_RootAndHealth(t *testing.T) {
	h, _, _ := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	root := parseBody[rootResponse](t, resp.Body)
	require.Equal(t, rootResponse{AppName: "AI Career Planning API", Version: "0.1.0", Description: "desc"}, root)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/health", nil, ""))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"OK","app_version":"0.1.0"}`, resp.Body)
}

func TestHandle_Status(t *testing.T) {
	h, q, _ := newTestHandler(t)
	q.status = usecase.StatusOutput{TotalQuestions: 10, CurrentQuestion: 0, NextQuestion: "What excites you?"}

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/questionnaire/status", map[string]string{"email": "a@x.com"}, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"is_complete":false,"total_questions":10,"current_question":0,"next_question":"What excites you?"}`, resp.Body)
	require.Equal(t, "a@x.com", q.email)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_StatusComplete(t *testing.T) {
	h, q, _ := newTestHandler(t)
	q.status = usecase.StatusOutput{IsComplete: true, TotalQuestions: 10, CurrentQuestion: 10}

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/questionnaire/status", map[string]string{"email": "a@x.com"}, ""))
	require.NoError(t, err)
	require.JSONEq(t, `{"is_complete":true,"total_questions":10,"current_question":10,"next_question":null}`, resp.Body)
}

func TestHandle_NextQuestion(t *testing.T) {
	h, q, _ := newTestHandler(t)
	q.question = usecase.QuestionOutput{Question: "Why?", QuestionNumber: 3}

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/questionnaire/question", map[string]string{"email": "a@x.com"}, ""))
	require.NoError(t, err)
	require.JSONEq(t, `{"question":"Why?","question_number":3}`, resp.Body)
}

func TestHandle_SubmitAnswer(t *testing.T) {
	h, q, _ := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/questionnaire/answer",
		map[string]string{"email": "a@x.com", "question_number": "2"}, `{"answer":"I like robots"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.SubmitAnswerInput{Email: "a@x.com", QuestionNumber: 2, Answer: "I like robots"}, q.submitted)

	out := parseBody[successResponse](t, resp.Body)
	require.True(t, out.Success)
	require.NotEmpty(t, out.Message)
}

func TestHandle_SubmitAnswer_BadInput(t *testing.T) {
	cases := []struct {
		name  string
		query map[string]string
		body  string
	}{
		{name: "missing question number", query: map[string]string{"email": "a@x.com"}, body: `{"answer":"x"}`},
		{name: "non-integer question number", query: map[string]string{"email": "a@x.com", "question_number": "two"}, body: `{"answer":"x"}`},
		{name: "invalid json", query: map[string]string{"email": "a@x.com", "question_number": "1"}, body: `not-json`},
		{name: "empty body", query: map[string]string{"email": "a@x.com", "question_number": "1"}, body: ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, q, _ := newTestHandler(t)
			resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/questionnaire/answer", tc.query, tc.body))
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.False(t, out.Success)
			require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
			require.NotEmpty(t, out.Message)
			require.Equal(t, usecase.SubmitAnswerInput{}, q.submitted)
		})
	}
}

func TestHandle_ListAnswers(t *testing.T) {
	h, q, _ := newTestHandler(t)
	q.answers = []domain.Answer{
		{Seq: 1, Question: "Q1", Answer: "A1"},
		{Seq: 2, Question: "Q2", Answer: "A2"},
	}

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/questionnaire/answers", map[string]string{"email": "a@x.com"}, ""))
	require.NoError(t, err)
	require.JSONEq(t, `[{"question_number":1,"question":"Q1","answer":"A1"},{"question_number":2,"question":"Q2","answer":"A2"}]`, resp.Body)
}

func TestHandle_ListAnswers_EmptyIsArray(t *testing.T) {
	h, _, _ := newTestHandler(t)
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/questionnaire/answers", map[string]string{"email": "a@x.com"}, ""))
	require.NoError(t, err)
	require.Equal(t, "[]", resp.Body)
}

func TestHandle_GeneratePlan(t *testing.T) {
	h, _, c := newTestHandler(t)
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/career-plan/generate", map[string]string{"email": "a@x.com"}, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, c.generated)
	require.True(t, parseBody[successResponse](t, resp.Body).Success)
}

func TestHandle_GetPlan_BothPaths(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, path := range []string{"/career-plan", "/career-plan/"} {
		h, _, c := newTestHandler(t)
		c.plan = domain.Plan{Content: "Become a data engineer.", CreatedAt: created}

		resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, path, map[string]string{"email": "a@x.com"}, ""))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, "path=%s", path)
		require.JSONEq(t, `{"plan_content":"Become a data engineer.","created_at":"2026-03-01T12:00:00Z"}`, resp.Body)
	}
}

func TestHandle_Chat(t *testing.T) {
	h, _, c := newTestHandler(t)
	c.reply = "Learn SQL."

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/career-plan/chat", map[string]string{"email": "a@x.com"}, `{"message":"What next?"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"response":"Learn SQL."}`, resp.Body)
	require.Equal(t, usecase.ChatInput{Email: "a@x.com", Message: "What next?"}, c.chatIn)
}

func TestHandle_Chat_Base64Body(t *testing.T) {
	h, _, c := newTestHandler(t)
	c.reply = "ok"
	event := makeEvent(http.MethodPost, "/career-plan/chat", map[string]string{"email": "a@x.com"},
		base64.StdEncoding.EncodeToString([]byte(`{"message":"hi"}`)))
	event.IsBase64Encoded = true

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hi", c.chatIn.Message)
}

func TestHandle_ChatHistory(t *testing.T) {
	h, _, c := newTestHandler(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.turns = []domain.Turn{
		{Text: "reply", IsUser: false, CreatedAt: at},
		{Text: "question", IsUser: true, CreatedAt: at},
	}

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/career-plan/chat-history", map[string]string{"email": "a@x.com"}, ""))
	require.NoError(t, err)
	require.Equal(t, 10, c.limit)
	out := parseBody[historyResponse](t, resp.Body)
	require.Len(t, out.History, 2)
	require.Equal(t, "reply", out.History[0].Message)
	require.False(t, out.History[0].IsUser)

	_, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/career-plan/chat-history", map[string]string{"email": "a@x.com", "limit": "3"}, ""))
	require.NoError(t, err)
	require.Equal(t, 3, c.limit)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/career-plan/chat-history", map[string]string{"email": "a@x.com", "limit": "x"}, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_email"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "sequence mismatch", err: &usecase.Error{Code: usecase.ErrorSequenceMismatch, Reason: "answer_conflict"}, status: http.StatusBadRequest, code: string(usecase.ErrorSequenceMismatch)},
		{name: "incomplete", err: &usecase.Error{Code: usecase.ErrorQuestionnaireIncomplete, Reason: "questionnaire_incomplete"}, status: http.StatusBadRequest, code: string(usecase.ErrorQuestionnaireIncomplete)},
		{name: "complete", err: &usecase.Error{Code: usecase.ErrorQuestionnaireComplete, Reason: "questionnaire_complete"}, status: http.StatusBadRequest, code: string(usecase.ErrorQuestionnaireComplete)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "plan_not_found"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "plan_write_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _, c := newTestHandler(t)
			c.err = tc.err

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/career-plan", map[string]string{"email": "a@x.com"}, ""))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.False(t, out.Success)
			require.Equal(t, tc.code, out.Error)
			require.NotEmpty(t, out.Message)
			require.NotContains(t, out.Message, "boom")
		})
	}
}

func TestHandle_UsesErrorMessage(t *testing.T) {
	h, _, c := newTestHandler(t)
	c.err = &usecase.Error{Code: usecase.ErrorQuestionnaireIncomplete, Reason: "questionnaire_incomplete", Message: "3/10 answered"}

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/career-plan/generate", map[string]string{"email": "a@x.com"}, ""))
	require.NoError(t, err)
	require.Equal(t, "3/10 answered", parseBody[errorResponse](t, resp.Body).Message)
}

func TestHandle_UnknownRouteAndMethod(t *testing.T) {
	h, _, _ := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/nope", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodDelete, "/questionnaire/status", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandle_OptionsPreflight(t *testing.T) {
	h, _, _ := newTestHandler(t)
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodOptions, "/career-plan/chat", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, resp.Body)
	require.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	require.Contains(t, resp.Headers["Access-Control-Allow-Methods"], "POST")
}

func TestHandle_RecoversFromPanic(t *testing.T) {
	h, q, _ := newTestHandler(t)
	q.panicMsg = "kaboom"

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/questionnaire/status", map[string]string{"email": "a@x.com"}, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInternal), out.Error)
	require.NotContains(t, out.Message, "kaboom")
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, _, _ := newTestHandler(t)

	event := makeEvent(http.MethodGet, "/health", nil, "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestServeHTTP(t *testing.T) {
	h, q, _ := newTestHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/questionnaire/answer?email=a%40x.com&question_number=1", strings.NewReader(`{"answer":"robots"}`))
	require.NoError(t, err)
	req.Header.Set("X-Correlation-Id", "corr-http")
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "corr-http", res.Header.Get("X-Correlation-Id"))
	require.Equal(t, "application/json", res.Header.Get("Content-Type"))
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.True(t, parseBody[successResponse](t, string(raw)).Success)
	require.Equal(t, usecase.SubmitAnswerInput{Email: "a@x.com", QuestionNumber: 1, Answer: "robots"}, q.submitted)
}

func TestServeHTTP_ChatHistoryHugeLimit(t *testing.T) {
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "career.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	gen := generator.New(nil)
	qs, err := usecase.NewQuestionnaireService(store, gen)
	require.NoError(t, err)
	cs, err := usecase.NewCareerService(store, gen, 10)
	require.NoError(t, err)
	h, err := NewHandler(qs, cs, testInfo)
	require.NoError(t, err)

	_, err = cs.Chat(context.Background(), usecase.ChatInput{Email: "a@x.com", Message: "hi"})
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()

	for _, limit := range []string{"9223372036854775807", "1099511627776", "4294967296"} {
		res, err := srv.Client().Get(srv.URL + "/career-plan/chat-history?email=a%40x.com&limit=" + limit)
		require.NoError(t, err)
		raw, err := io.ReadAll(res.Body)
		_ = res.Body.Close()
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode, limit)
		out := parseBody[historyResponse](t, string(raw))
		require.Len(t, out.History, 2)
		require.True(t, out.History[1].IsUser)
	}
}
