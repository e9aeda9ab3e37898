package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"harmoni/internal/auth"
	"harmoni/internal/config"
	"harmoni/internal/models"
	"harmoni/internal/observability"
	"harmoni/internal/redis"
	"harmoni/internal/service/ai"
	"harmoni/internal/service/assessment"
	"harmoni/internal/service/conversation"
	"harmoni/internal/storage"
)

const testAdminToken = "admin-secret"

type testServer struct {
	router    *gin.Engine
	generator *stubGenerator
	redis     *miniredis.Miniredis
}

type stubGenerator struct {
	reply       string
	err         error
	calls       int
	instruction string
}

func (g *stubGenerator) Generate(_ context.Context, instruction string, _ []*models.Message) (string, error) {
	g.calls++
	g.instruction = instruction
	return g.reply, g.err
}

func TestScreeningSubmissionAndReview(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/phq9", phq9Body(2, 2, 2, 2, 2, 2, 2, 2, 2), nil)
	assertStatus(t, rec, http.StatusCreated)
	var submitted struct {
		ID               string   `json:"id"`
		TotalScore       int      `json:"totalScore"`
		SeverityLevel    string   `json:"severityLevel"`
		RiskLevel        string   `json:"riskLevel"`
		SuicidalIdeation bool     `json:"suicidalIdeation"`
		FlaggedForReview bool     `json:"flaggedForReview"`
		Interpretation   string   `json:"interpretation"`
		Recommendations  []string `json:"recommendations"`
	}
	decodeJSON(t, rec.Body.Bytes(), &submitted)
	if submitted.TotalScore != 18 || submitted.SeverityLevel != "MODERATELY_SEVERE" || submitted.RiskLevel != "HIGH" {
		t.Fatalf("unexpected scoring: %+v", submitted)
	}
	if !submitted.SuicidalIdeation || !submitted.FlaggedForReview {
		t.Fatalf("expected suicidal ideation and review flag: %+v", submitted)
	}
	if len(submitted.Recommendations) == 0 || !strings.HasPrefix(submitted.Recommendations[0], "🚨") {
		t.Fatalf("expected crisis contacts first, got %v", submitted.Recommendations)
	}
	if !strings.Contains(submitted.Interpretation, "moderately severe") {
		t.Fatalf("unexpected interpretation %q", submitted.Interpretation)
	}

	latest := doJSONRequest(t, srv.router, http.MethodGet, "/api/phq9?latest=true", nil, nil)
	assertStatus(t, latest, http.StatusOK)
	var latestBody struct {
		Response *models.ScreeningResponse `json:"response"`
	}
	decodeJSON(t, latest.Body.Bytes(), &latestBody)
	if latestBody.Response == nil || latestBody.Response.ID != submitted.ID {
		t.Fatalf("expected latest response %s, got %+v", submitted.ID, latestBody.Response)
	}

	admin := map[string]string{"X-Admin-Token": testAdminToken}
	highRisk := doJSONRequest(t, srv.router, http.MethodGet, "/api/admin/phq9/high-risk", nil, admin)
	assertStatus(t, highRisk, http.StatusOK)
	var highRiskBody struct {
		Responses []*models.ScreeningResponse `json:"responses"`
	}
	decodeJSON(t, highRisk.Body.Bytes(), &highRiskBody)
	if len(highRiskBody.Responses) != 1 {
		t.Fatalf("expected one high-risk response, got %d", len(highRiskBody.Responses))
	}

	review := doJSONRequest(t, srv.router, http.MethodPost,
		fmt.Sprintf("/api/admin/phq9/%s/review", submitted.ID),
		map[string]string{"reviewedBy": "dr. lee", "reviewNotes": "called patient"}, admin)
	assertStatus(t, review, http.StatusOK)
	var reviewBody struct {
		Response *models.ScreeningResponse `json:"response"`
	}
	decodeJSON(t, review.Body.Bytes(), &reviewBody)
	if reviewBody.Response.FlaggedForReview || reviewBody.Response.ReviewedBy != "dr. lee" {
		t.Fatalf("review not applied: %+v", reviewBody.Response)
	}

	missing := doJSONRequest(t, srv.router, http.MethodPost, "/api/admin/phq9/nope/review",
		map[string]string{"reviewedBy": "dr. lee"}, admin)
	assertStatus(t, missing, http.StatusNotFound)
}

func TestSubmitPHQ9Validation(t *testing.T) {
	srv := newTestServer(t)

	body := phq9Body(0, 0, 0, 0, 0, 0, 0, 0, 0)
	delete(body, "question9Score")
	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/phq9", body, nil)
	assertStatus(t, rec, http.StatusBadRequest)
	assertErrorContains(t, rec, "question9Score is required")

	rec = doJSONRequest(t, srv.router, http.MethodPost, "/api/phq9", phq9Body(4, 0, 0, 0, 0, 0, 0, 0, 0), nil)
	assertStatus(t, rec, http.StatusBadRequest)
	assertErrorContains(t, rec, "question1Score must be at most 3")

	fractional := phq9Body(0, 0, 0, 0, 0, 0, 0, 0, 0)
	fractional["question2Score"] = 1.5
	rec = doJSONRequest(t, srv.router, http.MethodPost, "/api/phq9", fractional, nil)
	assertStatus(t, rec, http.StatusBadRequest)

	badImpairment := phq9Body(0, 0, 0, 0, 0, 0, 0, 0, 0)
	badImpairment["functionalImpairment"] = "sometimes"
	rec = doJSONRequest(t, srv.router, http.MethodPost, "/api/phq9", badImpairment, nil)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestQuizSubmitFromLabels(t *testing.T) {
	srv := newTestServer(t)

	answers := []string{
		"Several days", "Several days", "Not at all", "More than half the days",
		"Not at all", "Not at all", "Several days", "Not at all", "Not at all",
		"Somewhat difficult",
	}
	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/quiz/submit", map[string]any{"answers": answers}, nil)
	assertStatus(t, rec, http.StatusCreated)
	var body struct {
		TotalScore           int    `json:"totalScore"`
		SeverityLevel        string `json:"severityLevel"`
		FunctionalImpairment string `json:"functionalImpairment"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.TotalScore != 5 || body.SeverityLevel != "MILD" || body.FunctionalImpairment != "SOMEWHAT_DIFFICULT" {
		t.Fatalf("unexpected quiz result: %+v", body)
	}

	rec = doJSONRequest(t, srv.router, http.MethodPost, "/api/quiz/submit",
		map[string]any{"answers": []string{"Not at all", "maybe", "Not at all", "Not at all", "Not at all", "Not at all", "Not at all", "Not at all", "Not at all"}}, nil)
	assertStatus(t, rec, http.StatusBadRequest)

	rec = doJSONRequest(t, srv.router, http.MethodPost, "/api/quiz/submit", map[string]any{"answers": []string{"Not at all"}}, nil)
	assertStatus(t, rec, http.StatusBadRequest)
	assertErrorContains(t, rec, "answers must contain at least 9 items")
}

func TestChatUsesStoredScreeningAndRecordsTurn(t *testing.T) {
	srv := newTestServer(t)
	srv.generator.reply = "That sounds heavy. I'm here with you."

	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/phq9", phq9Body(1, 1, 1, 1, 1, 1, 1, 1, 0), nil)
	assertStatus(t, rec, http.StatusCreated)

	rec = doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{
		"conversationId": "conv-1",
		"messages": []map[string]string{
			{"role": "user", "content": "I have been feeling down lately"},
		},
	}, nil)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Reply    string `json:"reply"`
		IsError  bool   `json:"isError"`
		Degraded bool   `json:"degraded"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Reply != srv.generator.reply || body.IsError || body.Degraded {
		t.Fatalf("unexpected chat body: %+v", body)
	}
	if !strings.Contains(srv.generator.instruction, "score of 8/27") {
		t.Fatalf("instruction missing stored screening: %q", srv.generator.instruction)
	}

	list := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations", nil, nil)
	assertStatus(t, list, http.StatusOK)
	var listBody struct {
		Conversations []*models.Conversation `json:"conversations"`
		Degraded      bool                   `json:"degraded"`
	}
	decodeJSON(t, list.Body.Bytes(), &listBody)
	if len(listBody.Conversations) != 1 || len(listBody.Conversations[0].Messages) != 2 {
		t.Fatalf("expected one conversation with two messages, got %+v", listBody.Conversations)
	}
	if listBody.Conversations[0].Title != "Feeling Down" {
		t.Fatalf("unexpected title %q", listBody.Conversations[0].Title)
	}
}

func TestChatPrefersRequestContext(t *testing.T) {
	srv := newTestServer(t)
	srv.generator.reply = "ok"

	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
		"context":  map[string]any{"phq9Score": 21, "severity": "severe", "hasCompletedPHQ9": true},
	}, nil)
	assertStatus(t, rec, http.StatusOK)
	if !strings.Contains(srv.generator.instruction, "score of 21/27") || !strings.Contains(srv.generator.instruction, "988") {
		t.Fatalf("instruction missing request context: %q", srv.generator.instruction)
	}
}

func TestChatFallbackIsNotPersisted(t *testing.T) {
	srv := newTestServer(t)
	srv.generator.err = errors.New("googleapi: Error 429: Resource has been exhausted (e.g. check quota)")

	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{
		"conversationId": "conv-2",
		"messages":       []map[string]string{{"role": "user", "content": "hi"}},
	}, nil)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Reply     string `json:"reply"`
		IsError   bool   `json:"isError"`
		ErrorType string `json:"errorType"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if !body.IsError || body.ErrorType != ai.ErrorTypeQuota || body.Reply == "" {
		t.Fatalf("unexpected fallback body: %+v", body)
	}

	get := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations/conv-2", nil, nil)
	assertStatus(t, get, http.StatusNotFound)
}

func TestChatCrisisAndValidation(t *testing.T) {
	srv := newTestServer(t)
	srv.generator.reply = "I'm really glad you told me."

	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "Sometimes I want to die"}},
	}, nil)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		CrisisResources []string `json:"crisisResources"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if len(body.CrisisResources) == 0 {
		t.Fatalf("expected crisis resources in reply")
	}

	rec = doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"messages": []any{}}, nil)
	assertStatus(t, rec, http.StatusBadRequest)
	if srv.generator.calls != 1 {
		t.Fatalf("generator should not be called for empty conversation, calls=%d", srv.generator.calls)
	}
}

func TestConversationLifecycle(t *testing.T) {
	srv := newTestServer(t)

	save := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations", map[string]any{
		"conversation": map[string]any{
			"id": "c-life",
			"messages": []map[string]string{
				{"role": "user", "content": "Work has been so stressful"},
				{"role": "assistant", "content": "Tell me more"},
			},
		},
	}, nil)
	assertStatus(t, save, http.StatusOK)
	var saveBody struct {
		Success      bool                 `json:"success"`
		Conversation *models.Conversation `json:"conversation"`
	}
	decodeJSON(t, save.Body.Bytes(), &saveBody)
	if !saveBody.Success || saveBody.Conversation.Title != "Stress & Pressure" {
		t.Fatalf("unexpected save result: %+v", saveBody.Conversation)
	}
	if saveBody.Conversation.Messages[1].Role != models.RoleUser {
		t.Fatalf("unknown roles should normalise to user, got %q", saveBody.Conversation.Messages[1].Role)
	}

	appendResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations/c-life",
		map[string]any{"message": map[string]string{"role": "model", "content": "That sounds hard"}}, nil)
	assertStatus(t, appendResp, http.StatusOK)

	get := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations/c-life", nil, nil)
	assertStatus(t, get, http.StatusOK)
	var getBody struct {
		Conversation *models.Conversation `json:"conversation"`
	}
	decodeJSON(t, get.Body.Bytes(), &getBody)
	if len(getBody.Conversation.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(getBody.Conversation.Messages))
	}

	stranger := map[string]string{"User-Agent": "another-browser"}
	foreign := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations/c-life", nil, stranger)
	assertStatus(t, foreign, http.StatusNotFound)
	foreignDelete := doJSONRequest(t, srv.router, http.MethodDelete, "/api/conversations/c-life", nil, stranger)
	assertStatus(t, foreignDelete, http.StatusNotFound)

	del := doJSONRequest(t, srv.router, http.MethodDelete, "/api/conversations/c-life", nil, nil)
	assertStatus(t, del, http.StatusOK)
	gone := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations/c-life", nil, nil)
	assertStatus(t, gone, http.StatusNotFound)

	invalid := doJSONRequest(t, srv.router, http.MethodPost, "/api/conversations", map[string]any{"conversation": map[string]any{}}, nil)
	assertStatus(t, invalid, http.StatusBadRequest)
}

func TestConversationsDegradeWhenRedisDown(t *testing.T) {
	srv := newTestServer(t)
	srv.redis.Close()

	list := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations", nil, nil)
	assertStatus(t, list, http.StatusOK)
	var body struct {
		Conversations []*models.Conversation `json:"conversations"`
		Degraded      bool                   `json:"degraded"`
	}
	decodeJSON(t, list.Body.Bytes(), &body)
	if !body.Degraded || len(body.Conversations) != 0 {
		t.Fatalf("expected empty degraded listing, got %+v", body)
	}

	health := doJSONRequest(t, srv.router, http.MethodGet, "/api/health/redis", nil, nil)
	assertStatus(t, health, http.StatusServiceUnavailable)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/phq9", phq9Body(0, 0, 0, 0, 0, 0, 0, 0, 0), nil)
	assertStatus(t, rec, http.StatusCreated)

	db := doJSONRequest(t, srv.router, http.MethodGet, "/api/health/database", nil, nil)
	assertStatus(t, db, http.StatusOK)
	var dbBody struct {
		Status   string                  `json:"status"`
		Database assessment.HealthReport `json:"database"`
	}
	decodeJSON(t, db.Body.Bytes(), &dbBody)
	if dbBody.Status != "healthy" || dbBody.Database.UserCount != 1 || dbBody.Database.ResponseCount != 1 {
		t.Fatalf("unexpected database health: %+v", dbBody)
	}

	cache := doJSONRequest(t, srv.router, http.MethodGet, "/api/health/redis", nil, nil)
	assertStatus(t, cache, http.StatusOK)

	metrics := doJSONRequest(t, srv.router, http.MethodGet, "/metrics", nil, nil)
	assertStatus(t, metrics, http.StatusOK)
	if !strings.Contains(metrics.Body.String(), "harmoni_") {
		t.Fatalf("expected harmoni metrics in exposition")
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSONRequest(t, srv.router, http.MethodGet, "/api/admin/phq9/high-risk", nil, nil)
	assertStatus(t, rec, http.StatusUnauthorized)
	rec = doJSONRequest(t, srv.router, http.MethodGet, "/api/admin/phq9/high-risk", nil, map[string]string{"X-Admin-Token": "wrong"})
	assertStatus(t, rec, http.StatusUnauthorized)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.Open(config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })

	metrics := observability.NewCollector("harmoni")
	generator := &stubGenerator{reply: "hello"}
	handler := NewHandler(Dependencies{
		Chat:          ai.NewOrchestrator(generator, nil, ai.WithMetrics(metrics)),
		Assessments:   assessment.NewService(db, "sqlite3", nil, metrics),
		Conversations: conversation.NewService(conversation.NewRedisStore(client, conversation.DefaultTTL), nil, conversation.WithMetrics(metrics)),
		Auth:          auth.NewService("", testAdminToken),
		Memory:        client,
		Metrics:       metrics,
	})
	return &testServer{router: NewRouter(handler), generator: generator, redis: mr}
}

func phq9Body(scores ...int) map[string]any {
	body := make(map[string]any, len(scores))
	for i, s := range scores {
		body[fmt.Sprintf("question%dScore", i+1)] = s
	}
	return body
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func assertErrorContains(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if !strings.Contains(body.Error, want) {
		t.Fatalf("expected error containing %q, got %q", want, body.Error)
	}
}
