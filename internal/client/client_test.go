package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/client"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	transport "live-quiz-service/internal/transport/http"
)

const quizYAML = `
title: Capitals
questions:
  - text: Capital of France?
    type: multiple_choice
    options: [Paris, Lyon, Nice]
    correct_index: 0
  - text: Height of the Eiffel tower in meters?
    type: estimate
    estimate: {min: "100", max: "500", correct: "330"}
`

func newRemote(t *testing.T) *client.Client {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	store := memory.NewStore()
	notifier := memory.NewNotifier()
	rules := app.DefaultRules()
	rules.RevealDelay = 0
	service := app.NewGameService(store, memory.NewQuizRepository(store, time.Minute),
		app.WithNotifier(notifier), app.WithLogger(log), app.WithRules(rules))
	server := httptest.NewServer(transport.NewHandler(service, notifier, log).Router())
	t.Cleanup(server.Close)
	return client.New(server.URL, server.Client())
}

func writeQuizFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quiz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(quizYAML), 0o600))
	return path
}

func TestLoadQuizDraft(t *testing.T) {
	draft, err := client.LoadQuizDraft(writeQuizFile(t))
	require.NoError(t, err)
	assert.Equal(t, "Capitals", draft.Title)
	require.Len(t, draft.Questions, 2)
	assert.Equal(t, []string{"Paris", "Lyon", "Nice"}, draft.Questions[0].Options)
	require.NotNil(t, draft.Questions[1].Estimate)
	assert.Equal(t, "330", draft.Questions[1].Estimate.Correct)

	_, err = client.LoadQuizDraft(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestClientDrivesAGame(t *testing.T) {
	ctx := context.Background()
	c := newRemote(t)

	draft, err := client.LoadQuizDraft(writeQuizFile(t))
	require.NoError(t, err)
	quiz, err := c.CreateQuiz(ctx, "host-1", draft)
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 2)

	quizzes, err := c.ListQuizzes(ctx, "host-1")
	require.NoError(t, err)
	assert.Len(t, quizzes, 1)

	session, err := c.CreateSession(ctx, "host-1", quiz.ID)
	require.NoError(t, err)
	player, err := c.Join(ctx, session.JoinCode, "Ann")
	require.NoError(t, err)
	_, err = c.Start(ctx, session.JoinCode, "host-1")
	require.NoError(t, err)

	host := app.NewHostDriver(c, session.JoinCode, "host-1", nil)
	pd := app.NewPlayerDriver(c, session.JoinCode, player.ID, nil)

	require.NoError(t, pd.Sync(ctx))
	view := pd.View()
	require.Equal(t, app.PhaseAnswering, view.Phase)
	require.NotNil(t, view.Question)
	assert.Equal(t, -1, view.Question.CorrectIndex, "answer hidden over the wire")

	outcome, err := pd.Answer(ctx, domain.Submission{AnswerIndex: intPtr(0)})
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.GreaterOrEqual(t, outcome.Points, 100)

	// Everyone answered, so the host loop reveals, then advances after the zero delay.
	action, err := host.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, app.ActionReveal, action)
	action, err = host.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, app.ActionAdvance, action)

	require.NoError(t, pd.Sync(ctx))
	view = pd.View()
	require.NotNil(t, view.Question)
	assert.Equal(t, domain.Estimate, view.Question.Type)
	assert.False(t, view.HasAnswered, "per-question state resets on a new index")

	_, err = c.End(ctx, session.JoinCode, "host-1")
	require.NoError(t, err)
	_, err = host.Step(ctx)
	assert.ErrorIs(t, err, app.ErrStop)
}

func TestClientMapsErrorCodes(t *testing.T) {
	ctx := context.Background()
	c := newRemote(t)

	_, err := c.Snapshot(ctx, "ZZZ999", app.Viewer{})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "session_not_found", apiErr.Code)

	draft := client.QuizDraft{Title: "T", Questions: []client.QuestionDraft{{Text: "?", Type: "true_false", CorrectIndex: 1}}}
	quiz, err := c.CreateQuiz(ctx, "host-1", draft)
	require.NoError(t, err)
	session, err := c.CreateSession(ctx, "host-1", quiz.ID)
	require.NoError(t, err)

	_, err = c.Start(ctx, session.JoinCode, "host-2")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = c.Join(ctx, session.JoinCode, "")
	assert.ErrorIs(t, err, domain.ErrInvalidNickname)

	_, err = c.End(ctx, session.JoinCode, "host-1")
	require.NoError(t, err)
	_, err = c.Join(ctx, session.JoinCode, "Late")
	assert.ErrorIs(t, err, domain.ErrSessionFinished)
}

func intPtr(i int) *int { return &i }
