package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/domain"
)

// Viewer identifies who is reading a snapshot. Either field may be empty.
type Viewer struct {
	HostID   string
	PlayerID string
}

// Snapshot is everything one poll needs: the session row, the ordered
// questions, the roster and the answer counts for the current question.
type Snapshot struct {
	Session        domain.GameSession   `json:"session"`
	Questions      []domain.Question    `json:"questions"`
	Roster         []domain.Player      `json:"roster"`
	AnsweredCount  int                  `json:"answeredCount"`
	OwnAnswer      *domain.PlayerAnswer `json:"ownAnswer,omitempty"`
	AnswerWindowMs int64                `json:"answerWindowMs"`
	RevealDelayMs  int64                `json:"revealDelayMs"`
	ServerTime     time.Time            `json:"serverTime"`
}

// Rules rebuilds the timing rules the server reported.
func (s Snapshot) Rules() Rules {
	r := DefaultRules()
	if s.AnswerWindowMs > 0 {
		r.AnswerWindow = time.Duration(s.AnswerWindowMs) * time.Millisecond
	}
	if s.RevealDelayMs >= 0 {
		r.RevealDelay = time.Duration(s.RevealDelayMs) * time.Millisecond
	}
	return r
}

// CurrentQuestion returns the question at the session's current index.
func (s Snapshot) CurrentQuestion() (domain.Question, bool) {
	i := s.Session.CurrentQuestionIndex
	if i < 0 || i >= len(s.Questions) {
		return domain.Question{}, false
	}
	return s.Questions[i], true
}

// CreateSession opens a lobby for one of the host's quizzes under a fresh join code.
func (s *GameService) CreateSession(ctx context.Context, hostID, quizID string) (domain.GameSession, error) {
	quiz, err := s.GetQuiz(ctx, hostID, quizID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.GameSession{}, fmt.Errorf("%w: quiz has no questions", domain.ErrValidation)
	}

	session := domain.GameSession{
		ID:        uuid.NewString(),
		QuizID:    quiz.ID,
		HostID:    hostID,
		Status:    domain.StatusLobby,
		CreatedAt: s.now().UTC(),
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes()
		if err != nil {
			return domain.GameSession{}, fmt.Errorf("generate join code: %w", err)
		}
		session.JoinCode = code
		err = s.store.CreateSession(ctx, session)
		if errors.Is(err, domain.ErrJoinCodeTaken) {
			s.log.WithField("code", code).Debug("join code collision, retrying")
			continue
		}
		if err != nil {
			return domain.GameSession{}, fmt.Errorf("create session: %w", err)
		}
		s.log.WithFields(logrus.Fields{"session": session.ID, "code": code, "quiz": quiz.ID}).Info("session created")
		return session, nil
	}
	return domain.GameSession{}, fmt.Errorf("create session: %w", domain.ErrJoinCodeTaken)
}

// LookupSession resolves a join code typed by a user.
func (s *GameService) LookupSession(ctx context.Context, code string) (domain.GameSession, error) {
	code = domain.NormalizeJoinCode(code)
	if !domain.ValidJoinCode(code) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return s.store.GetSessionByCode(ctx, code)
}

// Join adds a player to the roster of the session behind code.
func (s *GameService) Join(ctx context.Context, code, nickname string) (domain.Player, error) {
	nickname, err := domain.NormalizeNickname(nickname)
	if err != nil {
		return domain.Player{}, err
	}
	session, err := s.LookupSession(ctx, code)
	if err != nil {
		return domain.Player{}, err
	}
	if session.Status == domain.StatusFinished {
		return domain.Player{}, domain.ErrSessionFinished
	}

	player := domain.Player{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Nickname:  nickname,
		JoinedAt:  s.now().UTC(),
	}
	if err := s.store.AddPlayer(ctx, player); err != nil {
		return domain.Player{}, fmt.Errorf("add player: %w", err)
	}
	s.log.WithFields(logrus.Fields{"session": session.ID, "player": player.ID, "nickname": nickname}).Info("player joined")
	s.publish(ctx, session.ID)
	return player, nil
}

// Snapshot reads the current view of a session. Players only see the correct
// answer of a question once it has been revealed; the host always does.
func (s *GameService) Snapshot(ctx context.Context, code string, viewer Viewer) (Snapshot, error) {
	session, err := s.LookupSession(ctx, code)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(ctx, session, viewer)
}

func (s *GameService) snapshot(ctx context.Context, session domain.GameSession, viewer Viewer) (Snapshot, error) {
	snap := Snapshot{
		Session:        session,
		AnswerWindowMs: s.rules.AnswerWindow.Milliseconds(),
		RevealDelayMs:  s.rules.RevealDelay.Milliseconds(),
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load quiz: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		roster, err := s.store.ListPlayers(gctx, session.ID)
		if err != nil {
			return fmt.Errorf("list players: %w", err)
		}
		snap.Roster = roster
		return nil
	})

	var current *domain.Question
	if session.Status == domain.StatusPlaying && session.CurrentQuestionIndex < len(quiz.Questions) {
		current = &quiz.Questions[session.CurrentQuestionIndex]
	}
	if current != nil {
		questionID := current.ID
		g.Go(func() error {
			n, err := s.store.CountAnswers(gctx, session.ID, questionID)
			if err != nil {
				return fmt.Errorf("count answers: %w", err)
			}
			snap.AnsweredCount = n
			return nil
		})
		if viewer.PlayerID != "" {
			g.Go(func() error {
				answer, ok, err := s.store.GetAnswer(gctx, viewer.PlayerID, questionID)
				if err != nil {
					return fmt.Errorf("get own answer: %w", err)
				}
				if ok {
					snap.OwnAnswer = &answer
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	isHost := viewer.HostID != "" && viewer.HostID == session.HostID
	snap.Questions = make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		if isHost || questionRevealed(session, i) {
			snap.Questions[i] = q
		} else {
			snap.Questions[i] = q.Redacted()
		}
	}
	snap.ServerTime = s.now().UTC()
	return snap, nil
}

func questionRevealed(session domain.GameSession, index int) bool {
	switch session.Status {
	case domain.StatusFinished:
		return true
	case domain.StatusPlaying:
		if index < session.CurrentQuestionIndex {
			return true
		}
		return index == session.CurrentQuestionIndex && session.AnswerRevealed
	}
	return false
}
