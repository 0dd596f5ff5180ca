package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	ctx     context.Context
	clock   *fakeClock
	store   *memory.Store
	service *app.GameService
}

func newFixture(t *testing.T, opts ...app.Option) *fixture {
	t.Helper()
	clock := newFakeClock()
	store := memory.NewStore()
	codes := []string{"ABC123", "XYZ789", "QQQ111"}
	next := 0
	opts = append([]app.Option{
		app.WithClock(clock.Now),
		app.WithCodeGenerator(func() (string, error) {
			code := codes[next%len(codes)]
			next++
			return code, nil
		}),
	}, opts...)
	service := app.NewGameService(store, memory.NewQuizRepository(store, time.Minute), opts...)
	return &fixture{ctx: context.Background(), clock: clock, store: store, service: service}
}

func intPtr(i int) *int { return &i }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func mcDraft() domain.Quiz {
	return domain.Quiz{
		Title: "Basics",
		Questions: []domain.Question{
			{Text: "Pick c", Type: domain.MultipleChoice, Options: []string{"a", "b", "c", "d"}, CorrectIndex: 2},
		},
	}
}

func (f *fixture) lobby(t *testing.T, draft domain.Quiz, nicknames ...string) (domain.GameSession, []domain.Player) {
	t.Helper()
	quiz, err := f.service.CreateQuiz(f.ctx, "host-1", draft)
	require.NoError(t, err)
	session, err := f.service.CreateSession(f.ctx, "host-1", quiz.ID)
	require.NoError(t, err)
	players := make([]domain.Player, 0, len(nicknames))
	for _, nick := range nicknames {
		p, err := f.service.Join(f.ctx, session.JoinCode, nick)
		require.NoError(t, err)
		players = append(players, p)
		f.clock.Advance(time.Millisecond)
	}
	return session, players
}

func TestCreateQuizValidatesAndAssignsIDs(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateQuiz(f.ctx, "host-1", domain.Quiz{Title: "Empty"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	draft := mcDraft()
	draft.Questions = append(draft.Questions, domain.Question{Text: "Sky is blue", Type: domain.TrueFalse, CorrectIndex: 0})
	quiz, err := f.service.CreateQuiz(f.ctx, "host-1", draft)
	require.NoError(t, err)
	assert.NotEmpty(t, quiz.ID)
	require.Len(t, quiz.Questions, 2)
	assert.Equal(t, 1, quiz.Questions[1].OrderIndex)
	assert.Equal(t, domain.TrueFalseOptions, quiz.Questions[1].Options)

	_, err = f.service.GetQuiz(f.ctx, "host-2", quiz.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, f.service.DeleteQuiz(f.ctx, "host-2", quiz.ID), domain.ErrForbidden)

	require.NoError(t, f.service.DeleteQuiz(f.ctx, "host-1", quiz.ID))
	_, err = f.service.GetQuiz(f.ctx, "host-1", quiz.ID)
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
}

func TestCreateSessionRetriesTakenCodes(t *testing.T) {
	f := newFixture(t)
	first, _ := f.lobby(t, mcDraft())

	codes := []string{first.JoinCode, first.JoinCode, "NEW001"}
	calls := 0
	f.service = app.NewGameService(f.store, memory.NewQuizRepository(f.store, time.Minute),
		app.WithClock(f.clock.Now),
		app.WithCodeGenerator(func() (string, error) {
			code := codes[calls]
			calls++
			return code, nil
		}))

	second, err := f.service.CreateSession(f.ctx, "host-1", first.QuizID)
	require.NoError(t, err)
	assert.Equal(t, "NEW001", second.JoinCode)
	assert.Equal(t, 3, calls)
}

func TestJoinRules(t *testing.T) {
	f := newFixture(t)
	session, _ := f.lobby(t, mcDraft())

	_, err := f.service.Join(f.ctx, session.JoinCode, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidNickname)
	_, err = f.service.Join(f.ctx, session.JoinCode, "abcdefghijklmnopqrstu")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.service.Join(f.ctx, "NOPE00", "Ann")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	p, err := f.service.Join(f.ctx, "abc123", "  Ann ")
	require.NoError(t, err)
	assert.Equal(t, "Ann", p.Nickname)

	_, err = f.service.End(f.ctx, session.JoinCode, "host-1")
	require.NoError(t, err)
	_, err = f.service.Join(f.ctx, session.JoinCode, "Bob")
	assert.ErrorIs(t, err, domain.ErrSessionFinished)
}

func TestStartIsNoOpWithEmptyRoster(t *testing.T) {
	f := newFixture(t)
	session, _ := f.lobby(t, mcDraft())

	got, err := f.service.Start(f.ctx, session.JoinCode, "host-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLobby, got.Status)

	_, err = f.service.Start(f.ctx, session.JoinCode, "someone-else")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestEndToEndMultipleChoice(t *testing.T) {
	f := newFixture(t)
	session, players := f.lobby(t, mcDraft(), "A", "B")
	a, b := players[0], players[1]

	started, err := f.service.Start(f.ctx, session.JoinCode, "host-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPlaying, started.Status)

	snap, err := f.service.Snapshot(f.ctx, session.JoinCode, app.Viewer{PlayerID: a.ID})
	require.NoError(t, err)
	q, ok := snap.CurrentQuestion()
	require.True(t, ok)
	assert.Equal(t, -1, q.CorrectIndex, "players must not see the answer before the reveal")

	f.clock.Advance(3 * time.Second)
	outA, err := f.service.SubmitAnswer(f.ctx, session.JoinCode, a.ID, q.ID, domain.Submission{AnswerIndex: intPtr(2)})
	require.NoError(t, err)
	assert.True(t, outA.Accepted)
	assert.Equal(t, 800, outA.Points)

	outB, err := f.service.SubmitAnswer(f.ctx, session.JoinCode, b.ID, q.ID, domain.Submission{AnswerIndex: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, outB.Points)

	snap, err = f.service.Snapshot(f.ctx, session.JoinCode, app.Viewer{HostID: "host-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.AnsweredCount)
	assert.Equal(t, app.ActionReveal, app.DecideHostAction(snap, f.clock.Now()), "everyone answered")

	idx := 0
	revealed, err := f.service.Reveal(f.ctx, session.JoinCode, "host-1", &idx)
	require.NoError(t, err)
	assert.True(t, revealed.AnswerRevealed)

	snap, err = f.service.Snapshot(f.ctx, session.JoinCode, app.Viewer{PlayerID: b.ID})
	require.NoError(t, err)
	require.Len(t, snap.Roster, 2)
	assert.Equal(t, a.ID, snap.Roster[0].ID)
	assert.Equal(t, 800, snap.Roster[0].Score)
	assert.Equal(t, b.ID, snap.Roster[1].ID)
	assert.Equal(t, 0, snap.Roster[1].Score)
	assert.Equal(t, 2, snap.Questions[0].CorrectIndex)
	require.NotNil(t, snap.OwnAnswer)
	assert.Equal(t, 0, *snap.OwnAnswer.AnswerIndex)
}

func TestEndToEndEstimate(t *testing.T) {
	f := newFixture(t)
	draft := domain.Quiz{Title: "Guess", Questions: []domain.Question{{
		Text: "Half of 100", Type: domain.Estimate,
		Estimate: &domain.EstimateRange{Min: decimal.NewFromInt(0), Max: decimal.NewFromInt(100), Correct: decimal.NewFromInt(50)},
	}}}
	session, players := f.lobby(t, draft, "A", "B")
	_, err := f.service.Start(f.ctx, session.JoinCode, "host-1")
	require.NoError(t, err)

	snap, err := f.service.Snapshot(f.ctx, session.JoinCode, app.Viewer{PlayerID: players[0].ID})
	require.NoError(t, err)
	q, _ := snap.CurrentQuestion()
	require.NotNil(t, q.Estimate)
	assert.True(t, q.Estimate.Correct.IsZero(), "correct value hidden before reveal")

	exact, err := f.service.SubmitAnswer(f.ctx, session.JoinCode, players[0].ID, q.ID, domain.Submission{Estimate: decPtr(50)})
	require.NoError(t, err)
	assert.Equal(t, 1000, exact.Points)

	miss, err := f.service.SubmitAnswer(f.ctx, session.JoinCode, players[1].ID, q.ID, domain.Submission{Estimate: decPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, miss.Points)

	_, err = f.service.SubmitAnswer(f.ctx, session.JoinCode, players[1].ID, q.ID, domain.Submission{AnswerIndex: intPtr(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidAnswer)
}

func TestDuplicateSubmitScoresOnce(t *testing.T) {
	f := newFixture(t)
	session, players := f.lobby(t, mcDraft(), "A")
	_, err := f.service.Start(f.ctx, session.JoinCode, "host-1")
	require.NoError(t, err)
	snap, _ := f.service.Snapshot(f.ctx, session.JoinCode, app.Viewer{})
	q, _ := snap.CurrentQuestion()

	var wg sync.WaitGroup
	accepted := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.service.SubmitAnswer(f.ctx, session.JoinCode, players[0].ID, q.ID, domain.Submission{AnswerIndex: intPtr(2)})
			if assert.NoError(t, err) {
				accepted <- out.Accepted
			}
		}()
	}
	wg.Wait()
	close(accepted)

	n := 0
	for ok := range accepted {
		if ok {
			n++
		}
	}
	assert.Equal(t, 1, n)

	player, err := f.store.GetPlayer(f.ctx, players[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1000, player.Score)

	again, err := f.service.SubmitAnswer(f.ctx, session.JoinCode, players[0].ID, q.ID, domain.Submission{AnswerIndex: intPtr(0)})
	require.NoError(t, err)
	assert.False(t, again.Accepted)
	assert.Equal(t, 1000, again.Points, "the first answer stays authoritative")
}

func TestSubmitRejections(t *testing.T) {
	f := newFixture(t)
	draft := mcDraft()
	draft.Questions = append(draft.Questions, domain.Question{Text: "Second", Type: domain.TrueFalse, CorrectIndex: 1})
	session, players := f.lobby(t, draft, "A", "B")
	_, otherPlayers := f.lobby(t, mcDraft(), "C")

	snap, _ := f.service.Snapshot(f.ctx, session.JoinCode, app.Viewer{})
	first, second := snap.Questions[0], snap.Questions[1]

	_, err := f.service.SubmitAnswer(f.ctx, session.JoinCode, players[0].ID, first.ID, domain.Submission{AnswerIndex: intPtr(2)})
	assert.ErrorIs(t, err, domain.ErrQuestionNotActive, "lobby")

	_, err = f.service.Start(f.ctx, session.JoinCode, "host-1")
	require.NoError(t, err)

	_, err = f.service.SubmitAnswer(f.ctx, session.JoinCode, otherPlayers[0].ID, first.ID, domain.Submission{AnswerIndex: intPtr(2)})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)

	_, err = f.service.SubmitAnswer(f.ctx, session.JoinCode, players[0].ID, second.ID, domain.Submission{AnswerIndex: intPtr(1)})
	assert.ErrorIs(t, err, domain.ErrQuestionNotActive)

	_, err = f.service.SubmitAnswer(f.ctx, session.JoinCode, players[0].ID, first.ID, domain.Submission{AnswerIndex: intPtr(7)})
	assert.ErrorIs(t, err, domain.ErrInvalidAnswer)

	_, err = f.service.Reveal(f.ctx, session.JoinCode, "host-1", nil)
	require.NoError(t, err)
	_, err = f.service.SubmitAnswer(f.ctx, session.JoinCode, players[1].ID, first.ID, domain.Submission{AnswerIndex: intPtr(2)})
	assert.ErrorIs(t, err, domain.ErrAnswerWindowClosed)

	_, err = f.service.End(f.ctx, session.JoinCode, "host-1")
	require.NoError(t, err)
	_, err = f.service.SubmitAnswer(f.ctx, session.JoinCode, players[1].ID, first.ID, domain.Submission{AnswerIndex: intPtr(2)})
	assert.ErrorIs(t, err, domain.ErrSessionFinished)
}

func TestStaleHostActionsAreNoOps(t *testing.T) {
	f := newFixture(t)
	draft := mcDraft()
	draft.Questions = append(draft.Questions, domain.Question{Text: "Second", Type: domain.TrueFalse, CorrectIndex: 1})
	session, _ := f.lobby(t, draft, "A")
	_, err := f.service.Start(f.ctx, session.JoinCode, "host-1")
	require.NoError(t, err)

	zero := 0
	_, err = f.service.Next(f.ctx, session.JoinCode, "host-1", &zero)
	require.NoError(t, err)
	moved, err := f.service.Next(f.ctx, session.JoinCode, "host-1", &zero)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.CurrentQuestionIndex)
	assert.False(t, moved.AnswerRevealed, "next never skips the reveal")

	// A second driver still looking at question 0 must not touch question 1.
	again, err := f.service.Reveal(f.ctx, session.JoinCode, "host-1", &zero)
	require.NoError(t, err)
	assert.False(t, again.AnswerRevealed)
	again, err = f.service.Advance(f.ctx, session.JoinCode, "host-1", &zero)
	require.NoError(t, err)
	assert.Equal(t, 1, again.CurrentQuestionIndex)

	one := 1
	_, err = f.service.Reveal(f.ctx, session.JoinCode, "host-1", &one)
	require.NoError(t, err)
	done, err := f.service.Advance(f.ctx, session.JoinCode, "host-1", &one)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, done.Status)
	assert.Equal(t, 1, done.CurrentQuestionIndex)
}

func TestNotifierSeesMutations(t *testing.T) {
	notifier := memory.NewNotifier()
	f := newFixture(t, app.WithNotifier(notifier))
	session, _ := f.lobby(t, mcDraft())

	ch, cancel, err := notifier.Subscribe(f.ctx, session.ID)
	require.NoError(t, err)
	defer cancel()
	<-ch

	_, err = f.service.Join(f.ctx, session.JoinCode, "Late")
	require.NoError(t, err)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal after join")
	}
}
