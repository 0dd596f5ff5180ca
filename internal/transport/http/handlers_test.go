package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/infra/memory"
)

type testServer struct {
	*httptest.Server
	service *app.GameService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := memory.NewStore()
	notifier := memory.NewNotifier()
	service := app.NewGameService(store, memory.NewQuizRepository(store, time.Minute),
		app.WithNotifier(notifier), app.WithLogger(log))
	server := httptest.NewServer(NewHandler(service, notifier, log).Router())
	t.Cleanup(server.Close)
	return &testServer{Server: server, service: service}
}

// call sends body as JSON and decodes the response into out when given.
func (s *testServer) call(t *testing.T, method, path, hostID string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if hostID != "" {
		req.Header.Set(HostHeader, hostID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

var quizBody = map[string]any{
	"title": "Basics",
	"questions": []map[string]any{
		{"text": "Pick c", "type": "multiple_choice", "options": []string{"a", "b", "c"}, "correctIndex": 2},
	},
}

type sessionResponse struct {
	ID                   string `json:"id"`
	JoinCode             string `json:"joinCode"`
	Status               string `json:"status"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
	AnswerRevealed       bool   `json:"answerRevealed"`
}

type snapshotResponse struct {
	Session   sessionResponse `json:"session"`
	Questions []struct {
		ID           string `json:"id"`
		CorrectIndex int    `json:"correctIndex"`
	} `json:"questions"`
	Roster []struct {
		ID    string `json:"id"`
		Score int    `json:"score"`
	} `json:"roster"`
	AnsweredCount int `json:"answeredCount"`
}

func TestRESTGameFlow(t *testing.T) {
	s := newTestServer(t)

	var quiz struct {
		ID string `json:"id"`
	}
	if code := s.call(t, http.MethodPost, "/api/quizzes", "host-1", quizBody, &quiz); code != http.StatusCreated {
		t.Fatalf("create quiz status %d", code)
	}
	var listed []map[string]any
	if code := s.call(t, http.MethodGet, "/api/quizzes", "host-1", nil, &listed); code != http.StatusOK || len(listed) != 1 {
		t.Fatalf("list quizzes: status %d, %d quizzes", code, len(listed))
	}

	var session sessionResponse
	if code := s.call(t, http.MethodPost, "/api/sessions", "host-1", map[string]string{"quizId": quiz.ID}, &session); code != http.StatusCreated {
		t.Fatalf("create session status %d", code)
	}
	if session.Status != "lobby" || len(session.JoinCode) != 6 {
		t.Fatalf("unexpected session %+v", session)
	}

	var player struct {
		ID string `json:"id"`
	}
	if code := s.call(t, http.MethodPost, "/api/sessions/"+session.JoinCode+"/players", "", map[string]string{"nickname": " Ann "}, &player); code != http.StatusCreated {
		t.Fatalf("join status %d", code)
	}

	base := "/api/sessions/" + session.JoinCode
	if code := s.call(t, http.MethodPost, base+"/start", "host-1", nil, &session); code != http.StatusOK || session.Status != "playing" {
		t.Fatalf("start: status %d session %+v", code, session)
	}

	var snap snapshotResponse
	s.call(t, http.MethodGet, base+"?playerId="+player.ID, "", nil, &snap)
	if snap.Questions[0].CorrectIndex != -1 {
		t.Fatalf("player must not see the answer before reveal, got %d", snap.Questions[0].CorrectIndex)
	}

	answer := map[string]any{"playerId": player.ID, "questionId": snap.Questions[0].ID, "answerIndex": 2}
	var outcome struct {
		Accepted bool `json:"accepted"`
		Points   int  `json:"points"`
	}
	if code := s.call(t, http.MethodPost, base+"/answers", "", answer, &outcome); code != http.StatusOK || !outcome.Accepted || outcome.Points < 100 {
		t.Fatalf("answer: status %d outcome %+v", code, outcome)
	}
	first := outcome.Points
	s.call(t, http.MethodPost, base+"/answers", "", answer, &outcome)
	if outcome.Accepted || outcome.Points != first {
		t.Fatalf("duplicate answer must be a no-op, got %+v", outcome)
	}

	if code := s.call(t, http.MethodPost, base+"/reveal", "host-1", map[string]int{"questionIndex": 0}, &session); code != http.StatusOK || !session.AnswerRevealed {
		t.Fatalf("reveal: status %d session %+v", code, session)
	}
	s.call(t, http.MethodGet, base+"?playerId="+player.ID, "", nil, &snap)
	if snap.Questions[0].CorrectIndex != 2 || snap.AnsweredCount != 1 || snap.Roster[0].Score != first {
		t.Fatalf("unexpected revealed snapshot %+v", snap)
	}

	if code := s.call(t, http.MethodPost, base+"/next", "host-1", map[string]int{"questionIndex": 0}, &session); code != http.StatusOK || session.Status != "finished" {
		t.Fatalf("next on last question: status %d session %+v", code, session)
	}
}

func TestRESTErrors(t *testing.T) {
	s := newTestServer(t)
	var quiz struct {
		ID string `json:"id"`
	}
	s.call(t, http.MethodPost, "/api/quizzes", "host-1", quizBody, &quiz)
	var session sessionResponse
	s.call(t, http.MethodPost, "/api/sessions", "host-1", map[string]string{"quizId": quiz.ID}, &session)
	base := "/api/sessions/" + session.JoinCode

	tests := []struct {
		name   string
		method string
		path   string
		host   string
		body   any
		status int
		code   string
	}{
		{"missing host header", http.MethodGet, "/api/quizzes", "", nil, http.StatusBadRequest, "validation"},
		{"bad quiz body", http.MethodPost, "/api/quizzes", "host-1", map[string]any{"title": ""}, http.StatusBadRequest, "validation"},
		{"foreign quiz", http.MethodGet, "/api/quizzes/" + quiz.ID, "host-2", nil, http.StatusForbidden, "forbidden"},
		{"unknown quiz", http.MethodDelete, "/api/quizzes/nope", "host-1", nil, http.StatusNotFound, "quiz_not_found"},
		{"unknown session", http.MethodGet, "/api/sessions/ZZZ999", "", nil, http.StatusNotFound, "session_not_found"},
		{"empty nickname", http.MethodPost, base + "/players", "", map[string]string{"nickname": "  "}, http.StatusBadRequest, "invalid_nickname"},
		{"foreign host action", http.MethodPost, base + "/start", "host-2", nil, http.StatusForbidden, "forbidden"},
		{"answer without value", http.MethodPost, base + "/answers", "", map[string]string{"playerId": "p", "questionId": "q"}, http.StatusBadRequest, "validation"},
		{"unknown player", http.MethodPost, base + "/answers", "", map[string]any{"playerId": "p", "questionId": "q", "answerIndex": 0}, http.StatusNotFound, "player_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			if got := s.call(t, tt.method, tt.path, tt.host, tt.body, &resp); got != tt.status {
				t.Fatalf("expected status %d, got %d (%+v)", tt.status, got, resp)
			}
			if resp.Code != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, resp.Code)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	var body map[string]string
	if code := s.call(t, http.MethodGet, "/healthz", "", nil, &body); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: status %d body %v", code, body)
	}
}
