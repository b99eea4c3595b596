package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nstogner/coursemate/pkg/domain"
	"github.com/nstogner/coursemate/pkg/rag"
	"github.com/nstogner/coursemate/pkg/store"
)

type fakeAssistant struct {
	queryErr error
	queries  []string
	sessions []string
}

func (f *fakeAssistant) Query(ctx context.Context, query, sessionID string) (*rag.QueryResult, error) {
	f.queries = append(f.queries, query)
	f.sessions = append(f.sessions, sessionID)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if sessionID == "" {
		sessionID = "session-1"
	}
	return &rag.QueryResult{
		Answer:    "answer to " + query,
		Sources:   []domain.Source{{Text: "Course A - Lesson 1", URL: "https://example.com/a/1"}},
		SessionID: sessionID,
	}, nil
}

func (f *fakeAssistant) CourseAnalytics(ctx context.Context) (*rag.Analytics, error) {
	return &rag.Analytics{TotalCourses: 2, CourseTitles: []string{"Course A", "Course B"}}, nil
}

func (f *fakeAssistant) Outline(ctx context.Context, name string) (string, error) {
	return "Course: " + name, nil
}

func (f *fakeAssistant) CreateSession(ctx context.Context) (string, error) {
	return "new-session", nil
}

func (f *fakeAssistant) SessionHistory(ctx context.Context, id string) ([]domain.SessionMessage, error) {
	if id != "known" {
		return nil, fmt.Errorf("session %q: %w", id, store.ErrNotFound)
	}
	return []domain.SessionMessage{
		{SessionID: id, Role: domain.RoleUser, Content: "q"},
		{SessionID: id, Role: domain.RoleAssistant, Content: "a"},
	}, nil
}

func (f *fakeAssistant) Models(ctx context.Context) ([]domain.Model, error) {
	return []domain.Model{{ID: "m1", Provider: "fake"}}, nil
}

func newTestServer(t *testing.T, a *fakeAssistant) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(a, time.Minute).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestRoot(t *testing.T) {
	srv := newTestServer(t, &fakeAssistant{})
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	var body map[string]string
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["message"] == "" {
		t.Errorf("GET / = %d %v", resp.StatusCode, body)
	}
}

func TestQuery(t *testing.T) {
	a := &fakeAssistant{}
	srv := newTestServer(t, a)

	resp, err := http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(`{"query":"What is MCP?","session_id":"s-9"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Answer    string          `json:"answer"`
		Sources   []domain.Source `json:"sources"`
		SessionID string          `json:"session_id"`
	}
	decode(t, resp, &body)
	if body.Answer != "answer to What is MCP?" || body.SessionID != "s-9" {
		t.Errorf("body = %+v", body)
	}
	if len(body.Sources) != 1 || body.Sources[0].URL != "https://example.com/a/1" {
		t.Errorf("sources = %+v", body.Sources)
	}
}

func TestQueryValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing query", `{"session_id":"s"}`, http.StatusUnprocessableEntity},
		{"malformed json", `{"query":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAssistant{}
			srv := newTestServer(t, a)
			resp, err := http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			var body errorBody
			decode(t, resp, &body)
			if resp.StatusCode != tt.status || body.Detail == "" {
				t.Errorf("status = %d, detail = %q; want %d", resp.StatusCode, body.Detail, tt.status)
			}
			if len(a.queries) != 0 {
				t.Errorf("assistant was called")
			}
		})
	}
}

func TestQueryError(t *testing.T) {
	srv := newTestServer(t, &fakeAssistant{queryErr: errors.New("model unavailable")})
	resp, err := http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(`{"query":"q"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var body errorBody
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusInternalServerError || !strings.Contains(body.Detail, "model unavailable") {
		t.Errorf("status = %d, body = %+v", resp.StatusCode, body)
	}
}

func TestCourses(t *testing.T) {
	srv := newTestServer(t, &fakeAssistant{})
	resp, err := http.Get(srv.URL + "/api/courses")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var body struct {
		TotalCourses int      `json:"total_courses"`
		CourseTitles []string `json:"course_titles"`
	}
	decode(t, resp, &body)
	if body.TotalCourses != 2 || len(body.CourseTitles) != 2 {
		t.Errorf("body = %+v", body)
	}

	resp, err = http.Get(srv.URL + "/api/courses/outline?name=MCP")
	if err != nil {
		t.Fatalf("GET outline: %v", err)
	}
	var outline map[string]string
	decode(t, resp, &outline)
	if outline["outline"] != "Course: MCP" {
		t.Errorf("outline = %v", outline)
	}
}

func TestSessions(t *testing.T) {
	srv := newTestServer(t, &fakeAssistant{})

	resp, err := http.Post(srv.URL+"/api/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var created map[string]string
	decode(t, resp, &created)
	if resp.StatusCode != http.StatusCreated || created["session_id"] != "new-session" {
		t.Errorf("create = %d %v", resp.StatusCode, created)
	}

	resp, err = http.Get(srv.URL + "/api/sessions/known/history")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	var history struct {
		SessionID string                  `json:"session_id"`
		History   []domain.SessionMessage `json:"history"`
	}
	decode(t, resp, &history)
	if history.SessionID != "known" || len(history.History) != 2 {
		t.Errorf("history = %+v", history)
	}

	resp, err = http.Get(srv.URL + "/api/sessions/unknown/history")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", resp.StatusCode)
	}
}

func TestModelsAndMetrics(t *testing.T) {
	srv := newTestServer(t, &fakeAssistant{})

	resp, err := http.Get(srv.URL + "/api/models")
	if err != nil {
		t.Fatalf("GET models: %v", err)
	}
	var models []domain.Model
	decode(t, resp, &models)
	if len(models) != 1 || models[0].ID != "m1" {
		t.Errorf("models = %+v", models)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "coursemate_http_requests_total") {
		t.Errorf("metrics output missing request counter")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeAssistant{})
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/query", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d, headers = %v", resp.StatusCode, resp.Header)
	}
}

func TestChatWebSocket(t *testing.T) {
	a := &fakeAssistant{}
	srv := newTestServer(t, a)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]string{"query": "hello"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var res rag.QueryResult
	if err := ws.ReadJSON(&res); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if res.Answer != "answer to hello" || res.SessionID != "session-1" {
		t.Errorf("reply = %+v", res)
	}

	if err := ws.WriteJSON(map[string]string{"session_id": "x"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var errReply errorBody
	if err := ws.ReadJSON(&errReply); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if errReply.Detail == "" {
		t.Error("expected error detail for a message without a query")
	}
}
