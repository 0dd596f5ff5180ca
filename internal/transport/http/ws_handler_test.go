package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/domain"
)

type wsMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func TestWebSocketPushesSnapshotsAndAcceptsAnswers(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	quiz, err := s.service.CreateQuiz(ctx, "host-1", domain.Quiz{
		Title: "Basics",
		Questions: []domain.Question{
			{Text: "2 + 2?", Type: domain.MultipleChoice, Options: []string{"3", "4"}, CorrectIndex: 1},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	session, err := s.service.CreateSession(ctx, "host-1", quiz.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	player, err := s.service.Join(ctx, session.JoinCode, "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/sessions/" + session.JoinCode + "?playerId=" + player.ID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription starts with a pending signal, so the lobby arrives first.
	msg := readUntil(t, conn, func(m wsMessage) bool { return m.Type == "snapshot" })
	if status := sessionStatus(msg); status != "lobby" {
		t.Fatalf("expected lobby snapshot, got %s", status)
	}

	if _, err := s.service.Start(ctx, session.JoinCode, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	msg = readUntil(t, conn, func(m wsMessage) bool { return m.Type == "snapshot" && sessionStatus(m) == "playing" })
	questions, _ := msg.Payload["questions"].([]any)
	if len(questions) != 1 {
		t.Fatalf("expected one question, got %v", msg.Payload["questions"])
	}
	questionID := questions[0].(map[string]any)["id"].(string)

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionId": questionID, "answerIndex": 1},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	msg = readUntil(t, conn, func(m wsMessage) bool { return m.Type == "answerResult" })
	if accepted, _ := msg.Payload["accepted"].(bool); !accepted {
		t.Fatalf("expected accepted answer, got %v", msg.Payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readUntil(t, conn, func(m wsMessage) bool { return m.Type == "error" })
	if msg.Payload["code"] != "validation" {
		t.Fatalf("expected validation error, got %v", msg.Payload)
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	s := newTestServer(t)
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/sessions/ZZZ999"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(wsMessage) bool) wsMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
	t.Fatalf("no matching message before deadline")
	return wsMessage{}
}

func sessionStatus(m wsMessage) string {
	session, _ := m.Payload["session"].(map[string]any)
	status, _ := session["status"].(string)
	return status
}
