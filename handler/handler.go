package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"career-agent/internal/domain"
	"career-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 1 << 20
)

type QuestionnaireUseCase interface {
	Status(ctx context.Context, email string) (usecase.StatusOutput, error)
	NextQuestion(ctx context.Context, email string) (usecase.QuestionOutput, error)
	SubmitAnswer(ctx context.Context, in usecase.SubmitAnswerInput) error
	ListAnswers(ctx context.Context, email string) ([]domain.Answer, error)
}

type CareerUseCase interface {
	GeneratePlan(ctx context.Context, email string) error
	GetPlan(ctx context.Context, email string) (domain.Plan, error)
	Chat(ctx context.Context, in usecase.ChatInput) (string, error)
	ChatHistory(ctx context.Context, email string, limit int) ([]domain.Turn, error)
	HistoryLimit() int
}

// AppInfo is reported by the root and health endpoints.
type AppInfo struct {
	Name        string
	Version     string
	Description string
}

type Handler struct {
	questionnaire QuestionnaireUseCase
	career        CareerUseCase
	info          AppInfo
	routes        map[string]map[string]routeFunc
	logger        *slog.Logger
}

// request is the transport-neutral view of an inbound call.
type request struct {
	method  string
	path    string
	query   url.Values
	headers http.Header
	body    []byte
}

type response struct {
	status  int
	headers map[string]string
	body    []byte
}

type routeFunc func(ctx context.Context, req request) (int, any, error)

func NewHandler(q QuestionnaireUseCase, c CareerUseCase, info AppInfo) (*Handler, error) {
	if q == nil {
		return nil, errors.New("handler: questionnaire usecase must not be nil")
	}
	if c == nil {
		return nil, errors.New("handler: career usecase must not be nil")
	}
	h := &Handler{
		questionnaire: q,
		career:        c,
		info:          info,
		logger:        slog.Default().With("component", "handler"),
	}
	h.routes = map[string]map[string]routeFunc{
		"/":                         {http.MethodGet: h.root},
		"/health":                   {http.MethodGet: h.health},
		"/questionnaire/status":     {http.MethodGet: h.status},
		"/questionnaire/question":   {http.MethodGet: h.nextQuestion},
		"/questionnaire/answer":     {http.MethodPost: h.submitAnswer},
		"/questionnaire/answers":    {http.MethodGet: h.listAnswers},
		"/career-plan/generate":     {http.MethodPost: h.generatePlan},
		"/career-plan":              {http.MethodGet: h.getPlan},
		"/career-plan/chat":         {http.MethodPost: h.chat},
		"/career-plan/chat-history": {http.MethodGet: h.chatHistory},
	}
	return h, nil
}

// Handle serves an API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			body = nil
		} else {
			body = decoded
		}
	}

	headers := http.Header{}
	for k, v := range event.Headers {
		headers.Set(k, v)
	}
	for k, vs := range event.MultiValueHeaders {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	query := url.Values{}
	for k, v := range event.QueryStringParameters {
		query.Set(k, v)
	}
	for k, vs := range event.MultiValueQueryStringParameters {
		query[k] = vs
	}

	resp := h.dispatch(ctx, request{
		method:  event.HTTPMethod,
		path:    event.Path,
		query:   query,
		headers: headers,
		body:    body,
	})
	return events.APIGatewayProxyResponse{
		StatusCode: resp.status,
		Headers:    resp.headers,
		Body:       string(resp.body),
	}, nil
}

// ServeHTTP serves the same routes as Handle over net/http.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		body = nil
	}
	resp := h.dispatch(r.Context(), request{
		method:  r.Method,
		path:    r.URL.Path,
		query:   r.URL.Query(),
		headers: r.Header,
		body:    body,
	})
	for k, v := range resp.headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.status)
	_, _ = w.Write(resp.body)
}

func (h *Handler) dispatch(ctx context.Context, req request) (resp response) {
	correlationID := strings.TrimSpace(req.headers.Get(correlationHeader))
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID, "method", req.method, "path", req.path)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while handling request", "panic", fmt.Sprint(rec))
			resp = jsonResponse(http.StatusInternalServerError, errorResponse{
				Success: false,
				Error:   string(usecase.ErrorInternal),
				Message: "internal server error",
			})
		}
		for k, v := range corsHeaders() {
			resp.headers[k] = v
		}
		resp.headers[correlationHeader] = correlationID
		logger.Info("request handled", "status", resp.status, "duration_ms", time.Since(start).Milliseconds())
	}()

	if req.method == http.MethodOptions {
		return response{status: http.StatusNoContent, headers: map[string]string{}}
	}

	methods, ok := h.routes[normalizePath(req.path)]
	if !ok {
		return jsonResponse(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Message: "route not found"})
	}
	fn, ok := methods[req.method]
	if !ok {
		return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	}

	status, payload, err := fn(ctx, req)
	if err != nil {
		return h.fail(logger, err)
	}
	return jsonResponse(status, payload)
}

func (h *Handler) fail(logger *slog.Logger, err error) response {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		logger.Error("unexpected error", "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{
			Error:   string(usecase.ErrorInternal),
			Message: "internal server error",
		})
	}

	status := statusFor(ucErr.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	} else {
		logger.Warn("request rejected", "code", ucErr.Code, "reason", ucErr.Reason)
	}

	msg := ucErr.Message
	if msg == "" {
		msg = defaultMessage(ucErr.Code)
	}
	return jsonResponse(status, errorResponse{Error: string(ucErr.Code), Message: msg})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput,
		usecase.ErrorSequenceMismatch,
		usecase.ErrorQuestionnaireIncomplete,
		usecase.ErrorQuestionnaireComplete:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func defaultMessage(code usecase.ErrorCode) string {
	switch code {
	case usecase.ErrorInvalidInput:
		return "invalid input"
	case usecase.ErrorNotFound:
		return "not found"
	case usecase.ErrorInternal:
		return "internal server error"
	default:
		return strings.ToLower(strings.ReplaceAll(string(code), "_", " "))
	}
}

func jsonResponse(status int, payload any) response {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"INTERNAL_ERROR","message":"internal server error"}`)
	}
	return response{
		status:  status,
		headers: map[string]string{"Content-Type": "application/json"},
		body:    body,
	}
}

func corsHeaders() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, " + correlationHeader,
	}
}

// normalizePath drops trailing slashes so "/career-plan/" and "/career-plan"
// resolve to the same route.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if trimmed := strings.TrimRight(p, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}

func decodeBody(body []byte, dst any) error {
	if len(body) == 0 {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_body", Message: "request body is required"}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Message: "request body must be valid JSON", Err: err}
	}
	return nil
}

func intQuery(q url.Values, key string) (int, bool, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, &usecase.Error{
			Code:    usecase.ErrorInvalidInput,
			Reason:  "invalid_" + key,
			Message: key + " must be an integer",
			Err:     err,
		}
	}
	return n, true, nil
}
