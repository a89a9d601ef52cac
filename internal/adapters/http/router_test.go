package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
	"github.com/kirillkom/health-ai-service/internal/core/ports"
	"github.com/kirillkom/health-ai-service/internal/core/usecase"
)

type triggerFake struct {
	mu         sync.Mutex
	triggered  []domain.AnalysisRequest
	reprocess  []domain.AnalysisRequest
	triggerErr error
	reprocErr  error
}

func (f *triggerFake) Trigger(_ context.Context, req domain.AnalysisRequest) (domain.AnalysisRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, req)
	if f.triggerErr != nil {
		return domain.AnalysisRequest{}, f.triggerErr
	}
	req.RequestID = "req-1"
	return req, nil
}

func (f *triggerFake) Reprocess(_ context.Context, req domain.AnalysisRequest) (domain.AnalysisRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reprocess = append(f.reprocess, req)
	if f.reprocErr != nil {
		return domain.AnalysisRequest{}, f.reprocErr
	}
	req.RequestID = "req-2"
	return req, nil
}

type assistantFake struct {
	reply       string
	err         error
	backgrounds []string
}

func (f *assistantFake) Chat(_ context.Context, _ string, background string) (string, error) {
	f.backgrounds = append(f.backgrounds, background)
	return f.reply, f.err
}

type readerFake struct {
	listFilter domain.RecommendationFilter
	page       domain.RecommendationPage
	listErr    error
	getErr     error
	deleted    []string
	deleteErr  error
	feedback   []domain.Feedback
	feedbackID string
	userID     string
}

func (f *readerFake) List(_ context.Context, filter domain.RecommendationFilter) (domain.RecommendationPage, error) {
	f.listFilter = filter
	return f.page, f.listErr
}

func (f *readerFake) Get(_ context.Context, userID, id string) (*domain.Recommendation, error) {
	f.userID = userID
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &domain.Recommendation{ID: id, UserID: userID, MedicalRecordID: "rec-1"}, nil
}

func (f *readerFake) Delete(_ context.Context, userID, id string) error {
	f.userID = userID
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *readerFake) SubmitFeedback(_ context.Context, userID, id string, feedback domain.Feedback) error {
	f.userID = userID
	f.feedbackID = id
	f.feedback = append(f.feedback, feedback)
	return nil
}

func newTestHandler(t *testing.T, trigger *triggerFake, reader *readerFake) http.Handler {
	t.Helper()
	return newHandlerWithChat(t, trigger, reader, usecase.NewChatUseCase(&assistantFake{reply: "ok"}, nil))
}

func newHandlerWithChat(t *testing.T, trigger *triggerFake, reader *readerFake, chatter ports.NutritionChat) http.Handler {
	t.Helper()
	router, err := NewRouter(trigger, reader, chatter, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}
	return router.Handler()
}

func bearerFor(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func jsonRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", res.Body.String(), err)
	}
	return payload
}

func TestTriggerAnalysisReturnsAccepted(t *testing.T) {
	trigger := &triggerFake{}
	handler := newTestHandler(t, trigger, &readerFake{})

	credential := bearerFor(t, "user-42")
	req := jsonRequest(http.MethodPost, "/analyze", `{"medicalRecordId":"rec-1","options":{"maxRecommendations":3,"mode":"full_analysis"}}`)
	req.Header.Set("Authorization", credential)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", res.Code, res.Body.String())
	}
	payload := decodeBody(t, res)
	if payload["message"] != analysisStartedMessage || payload["analysisId"] != "rec-1" || payload["status"] != "processing" {
		t.Fatalf("unexpected response: %v", payload)
	}
	if payload["requestId"] != "req-1" {
		t.Fatalf("expected request id in response, got %v", payload["requestId"])
	}

	if len(trigger.triggered) != 1 {
		t.Fatalf("expected one trigger call, got %d", len(trigger.triggered))
	}
	got := trigger.triggered[0]
	if got.RecordID != "rec-1" || got.OwnerID != "user-42" || got.Credential != credential {
		t.Fatalf("unexpected analysis request: %+v", got)
	}
	if got.Options.MaxRecommendations != 3 || got.Options.Mode != "full_analysis" {
		t.Fatalf("unexpected options: %+v", got.Options)
	}
}

func TestTriggerAnalysisAliasPath(t *testing.T) {
	trigger := &triggerFake{}
	handler := newTestHandler(t, trigger, &readerFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, jsonRequest(http.MethodPost, "/ai/analyze", `{"medicalRecordId":"rec-9"}`))
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(trigger.triggered) != 1 || trigger.triggered[0].RecordID != "rec-9" {
		t.Fatalf("unexpected trigger calls: %+v", trigger.triggered)
	}
}

func TestTriggerAnalysisRejectsMissingRecordID(t *testing.T) {
	trigger := &triggerFake{}
	handler := newTestHandler(t, trigger, &readerFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, jsonRequest(http.MethodPost, "/analyze", `{"options":{}}`))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if len(trigger.triggered) != 0 {
		t.Fatalf("expected no trigger call")
	}
	if decodeBody(t, res)["error"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestTriggerAnalysisRejectsNegativeMax(t *testing.T) {
	handler := newTestHandler(t, &triggerFake{}, &readerFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, jsonRequest(http.MethodPost, "/analyze", `{"medicalRecordId":"rec-1","options":{"maxRecommendations":-2}}`))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestTriggerAnalysisMapsBlankRecordIDFromUseCase(t *testing.T) {
	trigger := &triggerFake{triggerErr: domain.WrapError(domain.ErrInvalidInput, "trigger", errors.New("medicalRecordId is required"))}
	handler := newTestHandler(t, trigger, &readerFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, jsonRequest(http.MethodPost, "/analyze", `{"medicalRecordId":"  "}`))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestTriggerAnalysisMapsSchedulerSaturationTo503(t *testing.T) {
	trigger := &triggerFake{triggerErr: domain.WrapError(domain.ErrTemporary, "schedule analysis", errors.New("analysis queue is full"))}
	handler := newTestHandler(t, trigger, &readerFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, jsonRequest(http.MethodPost, "/analyze", `{"medicalRecordId":"rec-1"}`))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	if msg := decodeBody(t, res)["error"]; msg != "service temporarily unavailable" {
		t.Fatalf("unexpected error message: %v", msg)
	}
}

func TestReprocessUsesPathRecordID(t *testing.T) {
	trigger := &triggerFake{}
	handler := newTestHandler(t, trigger, &readerFake{})

	req := jsonRequest(http.MethodPost, "/analyze/rec-5/reprocess", "")
	req.Header.Set("Authorization", "Bearer opaque-token")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", res.Code, res.Body.String())
	}
	if len(trigger.reprocess) != 1 {
		t.Fatalf("expected one reprocess call, got %d", len(trigger.reprocess))
	}
	got := trigger.reprocess[0]
	if got.RecordID != "rec-5" || got.Credential != "Bearer opaque-token" {
		t.Fatalf("unexpected reprocess request: %+v", got)
	}
	if payload := decodeBody(t, res); payload["requestId"] != "req-2" {
		t.Fatalf("unexpected response: %v", payload)
	}
}

func TestReprocessMapsMissingRecordTo404(t *testing.T) {
	trigger := &triggerFake{reprocErr: domain.WrapError(domain.ErrNotFound, "reset record status", errors.New("health service status: 404"))}
	handler := newTestHandler(t, trigger, &readerFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, jsonRequest(http.MethodPost, "/analyze/rec-404/reprocess", `{"options":{"maxRecommendations":2}}`))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if len(trigger.triggered) != 0 {
		t.Fatalf("expected no trigger after failed reset")
	}
}

func TestListRecommendationsPaginates(t *testing.T) {
	reader := &readerFake{page: domain.RecommendationPage{
		Items: []domain.Recommendation{{ID: "a"}, {ID: "b"}},
		Total: 12,
	}}
	handler := newTestHandler(t, &triggerFake{}, reader)

	req := jsonRequest(http.MethodGet, "/ai/recommendations?page=2&limit=5&medicalRecordId=rec-1", "")
	req.Header.Set(userIDHeader, "user-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", res.Code, res.Body.String())
	}
	if reader.listFilter.UserID != "user-1" || reader.listFilter.MedicalRecordID != "rec-1" {
		t.Fatalf("unexpected filter: %+v", reader.listFilter)
	}
	if reader.listFilter.Page != 2 || reader.listFilter.Limit != 5 {
		t.Fatalf("unexpected paging: %+v", reader.listFilter)
	}

	var payload recommendationList
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(payload.Data) != 2 {
		t.Fatalf("expected 2 items, got %d", len(payload.Data))
	}
	want := pagination{CurrentPage: 2, TotalItems: 12, TotalPages: 3, ItemsPerPage: 5}
	if payload.Pagination != want {
		t.Fatalf("unexpected pagination: %+v", payload.Pagination)
	}
}

func TestListRecommendationsDefaultsPaging(t *testing.T) {
	reader := &readerFake{page: domain.RecommendationPage{Items: []domain.Recommendation{}}}
	handler := newTestHandler(t, &triggerFake{}, reader)

	req := jsonRequest(http.MethodGet, "/ai/recommendations", "")
	req.Header.Set(userIDHeader, "user-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if reader.listFilter.Page != 1 || reader.listFilter.Limit != 10 {
		t.Fatalf("unexpected default paging: %+v", reader.listFilter)
	}
}

func TestListRecommendationsRejectsNonIntegerPage(t *testing.T) {
	handler := newTestHandler(t, &triggerFake{}, &readerFake{})

	req := jsonRequest(http.MethodGet, "/ai/recommendations?page=abc", "")
	req.Header.Set(userIDHeader, "user-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestListRecommendationsRequiresOwner(t *testing.T) {
	reader := &readerFake{listErr: domain.ErrUnauthorized}
	handler := newTestHandler(t, &triggerFake{}, reader)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, jsonRequest(http.MethodGet, "/ai/recommendations", ""))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestGetRecommendationUsesCredentialSubject(t *testing.T) {
	reader := &readerFake{}
	handler := newTestHandler(t, &triggerFake{}, reader)

	req := jsonRequest(http.MethodGet, "/ai/recommendations/rec-doc-1", "")
	req.Header.Set("Authorization", bearerFor(t, "user-7"))
	req.Header.Set(userIDHeader, "spoofed")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if reader.userID != "user-7" {
		t.Fatalf("expected owner from credential, got %q", reader.userID)
	}
	if payload := decodeBody(t, res); payload["id"] != "rec-doc-1" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestGetRecommendationNotFound(t *testing.T) {
	reader := &readerFake{getErr: domain.WrapError(domain.ErrNotFound, "get recommendation", errors.New("no rows"))}
	handler := newTestHandler(t, &triggerFake{}, reader)

	req := jsonRequest(http.MethodGet, "/ai/recommendations/missing", "")
	req.Header.Set(userIDHeader, "user-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDeleteRecommendationReturnsNoContent(t *testing.T) {
	reader := &readerFake{}
	handler := newTestHandler(t, &triggerFake{}, reader)

	req := jsonRequest(http.MethodDelete, "/ai/recommendations/rec-doc-2", "")
	req.Header.Set(userIDHeader, "user-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(reader.deleted) != 1 || reader.deleted[0] != "rec-doc-2" {
		t.Fatalf("unexpected deletes: %v", reader.deleted)
	}
}

func TestSubmitFeedbackValidatesRating(t *testing.T) {
	reader := &readerFake{}
	handler := newTestHandler(t, &triggerFake{}, reader)

	req := jsonRequest(http.MethodPost, "/ai/recommendations/rec-doc-3/feedback", `{"rating":7}`)
	req.Header.Set(userIDHeader, "user-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if len(reader.feedback) != 0 {
		t.Fatalf("expected no feedback write")
	}
}

func TestSubmitFeedbackStoresRating(t *testing.T) {
	reader := &readerFake{}
	handler := newTestHandler(t, &triggerFake{}, reader)

	req := jsonRequest(http.MethodPost, "/ai/recommendations/rec-doc-3/feedback", `{"rating":4,"comment":"tasty"}`)
	req.Header.Set(userIDHeader, "user-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", res.Code, res.Body.String())
	}
	if reader.feedbackID != "rec-doc-3" || len(reader.feedback) != 1 {
		t.Fatalf("unexpected feedback calls: id=%q %+v", reader.feedbackID, reader.feedback)
	}
	if reader.feedback[0].Rating != 4 || reader.feedback[0].Comment != "tasty" {
		t.Fatalf("unexpected feedback: %+v", reader.feedback[0])
	}
}

func TestHealthzAndRequestID(t *testing.T) {
	handler := newTestHandler(t, &triggerFake{}, &readerFake{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get(requestIDHeader); got != "trace-123" {
		t.Fatalf("expected request id echo, got %q", got)
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	handler := newTestHandler(t, &triggerFake{}, &readerFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/abc", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if decodeBody(t, res)["error"] != "not found" {
		t.Fatalf("unexpected body: %s", res.Body.String())
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")), http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.WrapError(domain.ErrNotFound, "op", errors.New("x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestChatReturnsAssistantReply(t *testing.T) {
	assistant := &assistantFake{reply: "Choose whole grains."}
	handler := newHandlerWithChat(t, &triggerFake{}, &readerFake{}, usecase.NewChatUseCase(assistant, nil))

	req := jsonRequest(http.MethodPost, "/ai/chat", `{"message":"What should I eat?","context":{"condition": "diabetes"}}`)
	req.Header.Set(userIDHeader, "user-7")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", res.Code, res.Body.String())
	}
	if decodeBody(t, res)["message"] != "Choose whole grains." {
		t.Fatalf("unexpected body: %s", res.Body.String())
	}
	if len(assistant.backgrounds) != 1 || assistant.backgrounds[0] != `{"condition":"diabetes"}` {
		t.Fatalf("expected compacted context, got %v", assistant.backgrounds)
	}
}

func TestChatFallsBackWhenModelFails(t *testing.T) {
	assistant := &assistantFake{reply: "Sorry, the assistant is busy.", err: errors.New("model chat status: 503")}
	handler := newHandlerWithChat(t, &triggerFake{}, &readerFake{}, usecase.NewChatUseCase(assistant, nil))

	req := jsonRequest(http.MethodPost, "/ai/chat", `{"message":"hi","context":"low sodium plan"}`)
	req.Header.Set(userIDHeader, "user-7")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if decodeBody(t, res)["message"] != "Sorry, the assistant is busy." {
		t.Fatalf("expected fallback reply, got %s", res.Body.String())
	}
	if assistant.backgrounds[0] != "low sodium plan" {
		t.Fatalf("expected string context as-is, got %q", assistant.backgrounds[0])
	}
}

func TestChatRejectsMissingMessage(t *testing.T) {
	assistant := &assistantFake{}
	handler := newHandlerWithChat(t, &triggerFake{}, &readerFake{}, usecase.NewChatUseCase(assistant, nil))

	req := jsonRequest(http.MethodPost, "/ai/chat", `{"context":{}}`)
	req.Header.Set(userIDHeader, "user-7")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if len(assistant.backgrounds) != 0 {
		t.Fatalf("assistant must not be called")
	}
}

func TestChatRequiresIdentity(t *testing.T) {
	handler := newTestHandler(t, &triggerFake{}, &readerFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, jsonRequest(http.MethodPost, "/ai/chat", `{"message":"hi"}`))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}
