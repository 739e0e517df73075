package handler

import (
	"context"
	"net/http"
	"time"

	"career-agent/internal/usecase"
)

type rootResponse struct {
	AppName     string `json:"app_name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

type healthResponse struct {
	Status     string `json:"status"`
	AppVersion string `json:"app_version"`
}

type statusResponse struct {
	IsComplete      bool    `json:"is_complete"`
	TotalQuestions  int     `json:"total_questions"`
	CurrentQuestion int     `json:"current_question"`
	NextQuestion    *string `json:"next_question"`
}

type questionResponse struct {
	Question       string `json:"question"`
	QuestionNumber int    `json:"question_number"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type answerItem struct {
	QuestionNumber int    `json:"question_number"`
	Question       string `json:"question"`
	Answer         string `json:"answer"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type planResponse struct {
	PlanContent string    `json:"plan_content"`
	CreatedAt   time.Time `json:"created_at"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type historyItem struct {
	Message   string    `json:"message"`
	IsUser    bool      `json:"is_user"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResponse struct {
	History []historyItem `json:"history"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) root(context.Context, request) (int, any, error) {
	return http.StatusOK, rootResponse{
		AppName:     h.info.Name,
		Version:     h.info.Version,
		Description: h.info.Description,
	}, nil
}

func (h *Handler) health(context.Context, request) (int, any, error) {
	return http.StatusOK, healthResponse{Status: "OK", AppVersion: h.info.Version}, nil
}

func (h *Handler) status(ctx context.Context, req request) (int, any, error) {
	out, err := h.questionnaire.Status(ctx, req.query.Get("email"))
	if err != nil {
		return 0, nil, err
	}
	resp := statusResponse{
		IsComplete:      out.IsComplete,
		TotalQuestions:  out.TotalQuestions,
		CurrentQuestion: out.CurrentQuestion,
	}
	if !out.IsComplete {
		resp.NextQuestion = &out.NextQuestion
	}
	return http.StatusOK, resp, nil
}

func (h *Handler) nextQuestion(ctx context.Context, req request) (int, any, error) {
	out, err := h.questionnaire.NextQuestion(ctx, req.query.Get("email"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, questionResponse{Question: out.Question, QuestionNumber: out.QuestionNumber}, nil
}

func (h *Handler) submitAnswer(ctx context.Context, req request) (int, any, error) {
	seq, ok, err := intQuery(req.query, "question_number")
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_question_number", Message: "question_number is required"}
	}
	var body answerRequest
	if err := decodeBody(req.body, &body); err != nil {
		return 0, nil, err
	}
	if err := h.questionnaire.SubmitAnswer(ctx, usecase.SubmitAnswerInput{
		Email:          req.query.Get("email"),
		QuestionNumber: seq,
		Answer:         body.Answer,
	}); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, successResponse{Success: true, Message: "Answer saved successfully"}, nil
}

func (h *Handler) listAnswers(ctx context.Context, req request) (int, any, error) {
	answers, err := h.questionnaire.ListAnswers(ctx, req.query.Get("email"))
	if err != nil {
		return 0, nil, err
	}
	items := make([]answerItem, 0, len(answers))
	for _, a := range answers {
		items = append(items, answerItem{QuestionNumber: a.Seq, Question: a.Question, Answer: a.Answer})
	}
	return http.StatusOK, items, nil
}

func (h *Handler) generatePlan(ctx context.Context, req request) (int, any, error) {
	if err := h.career.GeneratePlan(ctx, req.query.Get("email")); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, successResponse{Success: true, Message: "Career plan created and saved successfully"}, nil
}

func (h *Handler) getPlan(ctx context.Context, req request) (int, any, error) {
	p, err := h.career.GetPlan(ctx, req.query.Get("email"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, planResponse{PlanContent: p.Content, CreatedAt: p.CreatedAt}, nil
}

func (h *Handler) chat(ctx context.Context, req request) (int, any, error) {
	var body chatRequest
	if err := decodeBody(req.body, &body); err != nil {
		return 0, nil, err
	}
	reply, err := h.career.Chat(ctx, usecase.ChatInput{Email: req.query.Get("email"), Message: body.Message})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, chatResponse{Response: reply}, nil
}

func (h *Handler) chatHistory(ctx context.Context, req request) (int, any, error) {
	limit, ok, err := intQuery(req.query, "limit")
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		limit = h.career.HistoryLimit()
	}
	turns, err := h.career.ChatHistory(ctx, req.query.Get("email"), limit)
	if err != nil {
		return 0, nil, err
	}
	items := make([]historyItem, 0, len(turns))
	for _, t := range turns {
		items = append(items, historyItem{Message: t.Text, IsUser: t.IsUser, CreatedAt: t.CreatedAt})
	}
	return http.StatusOK, historyResponse{History: items}, nil
}
