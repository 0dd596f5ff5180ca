// Package client talks to the quiz server over its JSON API. It satisfies
// app.HostBackend and app.PlayerBackend, so the sync loops run unchanged
// against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// HostHeader mirrors the header the server reads the host id from.
const HostHeader = "X-Host-ID"

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// APIError is a non-2xx response. It unwraps to the matching domain error so
// callers can keep using errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return domain.ErrorForCode(e.Code)
}

func (c *Client) CreateQuiz(ctx context.Context, hostID string, draft QuizDraft) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := c.do(ctx, http.MethodPost, "/api/quizzes", hostID, draft, &quiz)
	return quiz, err
}

func (c *Client) ListQuizzes(ctx context.Context, hostID string) ([]domain.Quiz, error) {
	var quizzes []domain.Quiz
	err := c.do(ctx, http.MethodGet, "/api/quizzes", hostID, nil, &quizzes)
	return quizzes, err
}

func (c *Client) CreateSession(ctx context.Context, hostID, quizID string) (domain.GameSession, error) {
	var session domain.GameSession
	err := c.do(ctx, http.MethodPost, "/api/sessions", hostID, map[string]string{"quizId": quizID}, &session)
	return session, err
}

func (c *Client) Join(ctx context.Context, code, nickname string) (domain.Player, error) {
	var player domain.Player
	err := c.do(ctx, http.MethodPost, sessionPath(code, "players"), "", map[string]string{"nickname": nickname}, &player)
	return player, err
}

func (c *Client) Snapshot(ctx context.Context, code string, viewer app.Viewer) (app.Snapshot, error) {
	path := sessionPath(code, "")
	if viewer.PlayerID != "" {
		path += "?playerId=" + url.QueryEscape(viewer.PlayerID)
	}
	var snap app.Snapshot
	err := c.do(ctx, http.MethodGet, path, viewer.HostID, nil, &snap)
	return snap, err
}

func (c *Client) Start(ctx context.Context, code, hostID string) (domain.GameSession, error) {
	return c.hostAction(ctx, code, hostID, "start", nil)
}

func (c *Client) Reveal(ctx context.Context, code, hostID string, expectIndex *int) (domain.GameSession, error) {
	return c.hostAction(ctx, code, hostID, "reveal", expectIndex)
}

func (c *Client) Advance(ctx context.Context, code, hostID string, expectIndex *int) (domain.GameSession, error) {
	return c.hostAction(ctx, code, hostID, "advance", expectIndex)
}

func (c *Client) Next(ctx context.Context, code, hostID string, expectIndex *int) (domain.GameSession, error) {
	return c.hostAction(ctx, code, hostID, "next", expectIndex)
}

func (c *Client) End(ctx context.Context, code, hostID string) (domain.GameSession, error) {
	return c.hostAction(ctx, code, hostID, "end", nil)
}

func (c *Client) SubmitAnswer(ctx context.Context, code, playerID, questionID string, sub domain.Submission) (app.AnswerOutcome, error) {
	body := struct {
		PlayerID   string `json:"playerId"`
		QuestionID string `json:"questionId"`
		domain.Submission
	}{playerID, questionID, sub}
	var outcome app.AnswerOutcome
	err := c.do(ctx, http.MethodPost, sessionPath(code, "answers"), "", body, &outcome)
	return outcome, err
}

func (c *Client) hostAction(ctx context.Context, code, hostID, action string, expectIndex *int) (domain.GameSession, error) {
	body := map[string]*int{}
	if expectIndex != nil {
		body["questionIndex"] = expectIndex
	}
	var session domain.GameSession
	err := c.do(ctx, http.MethodPost, sessionPath(code, action), hostID, body, &session)
	return session, err
}

func sessionPath(code, suffix string) string {
	p := "/api/sessions/" + url.PathEscape(domain.NormalizeJoinCode(code))
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path, hostID string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if hostID != "" {
		req.Header.Set(HostHeader, hostID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Code, apiErr.Message = payload.Code, payload.Message
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
