package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"live-quiz-service/internal/domain"
)

// Host actions take the question index the caller is looking at. A nil index
// means "whatever is current". When the index is stale the action is a no-op,
// which is what makes the automatic and manual paths safe to race.

// Start moves a lobby with at least one player into the first question.
func (s *GameService) Start(ctx context.Context, code, hostID string) (domain.GameSession, error) {
	session, err := s.hostSession(ctx, code, hostID)
	if err != nil {
		return domain.GameSession{}, err
	}
	roster, err := s.store.ListPlayers(ctx, session.ID)
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("list players: %w", err)
	}
	next, changed := startTransition(session, len(roster), s.now().UTC())
	return s.apply(ctx, session, next, changed, "start")
}

// Reveal closes answering for the current question. Revealing twice is harmless.
func (s *GameService) Reveal(ctx context.Context, code, hostID string, expectIndex *int) (domain.GameSession, error) {
	session, err := s.hostSession(ctx, code, hostID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if stale(session, expectIndex) {
		return session, nil
	}
	next, changed := revealTransition(session, s.now().UTC())
	return s.apply(ctx, session, next, changed, "reveal")
}

// Advance moves a revealed question on to the next one, or finishes the game
// after the last question.
func (s *GameService) Advance(ctx context.Context, code, hostID string, expectIndex *int) (domain.GameSession, error) {
	session, err := s.hostSession(ctx, code, hostID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if stale(session, expectIndex) {
		return session, nil
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("load quiz: %w", err)
	}
	next, changed := advanceTransition(session, len(quiz.Questions), s.now().UTC())
	return s.apply(ctx, session, next, changed, "advance")
}

// Next is the host's manual button: it reveals an unrevealed question and
// advances a revealed one, so the reveal step is never skipped.
func (s *GameService) Next(ctx context.Context, code, hostID string, expectIndex *int) (domain.GameSession, error) {
	session, err := s.hostSession(ctx, code, hostID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if session.Status == domain.StatusPlaying && !session.AnswerRevealed {
		return s.Reveal(ctx, code, hostID, expectIndex)
	}
	return s.Advance(ctx, code, hostID, expectIndex)
}

// End finishes the session from any state.
func (s *GameService) End(ctx context.Context, code, hostID string) (domain.GameSession, error) {
	session, err := s.hostSession(ctx, code, hostID)
	if err != nil {
		return domain.GameSession{}, err
	}
	// End is always permitted, so a lost race with another transition is
	// retried against the fresh row instead of being dropped.
	for attempt := 0; attempt < 3; attempt++ {
		next, changed := endTransition(session)
		if !changed {
			return session, nil
		}
		ok, err := s.store.UpdateSession(ctx, next, session.State())
		if err != nil {
			return domain.GameSession{}, fmt.Errorf("end session: %w", err)
		}
		if ok {
			s.logTransition(next, "end")
			s.publish(ctx, next.ID)
			return next, nil
		}
		if session, err = s.store.GetSession(ctx, session.ID); err != nil {
			return domain.GameSession{}, err
		}
	}
	return session, nil
}

func (s *GameService) hostSession(ctx context.Context, code, hostID string) (domain.GameSession, error) {
	session, err := s.LookupSession(ctx, code)
	if err != nil {
		return domain.GameSession{}, err
	}
	if hostID == "" || session.HostID != hostID {
		return domain.GameSession{}, domain.ErrForbidden
	}
	return session, nil
}

// apply persists a transition guarded on the state it was computed from. If
// another writer won, the fresh row is returned and nothing else happens.
func (s *GameService) apply(ctx context.Context, current, next domain.GameSession, changed bool, action string) (domain.GameSession, error) {
	entry := s.log.WithFields(logrus.Fields{"session": current.ID, "action": action})
	if !changed {
		entry.Debug("transition not applicable")
		return current, nil
	}
	ok, err := s.store.UpdateSession(ctx, next, current.State())
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("%s session: %w", action, err)
	}
	if !ok {
		entry.Debug("transition lost to concurrent writer")
		return s.store.GetSession(ctx, current.ID)
	}
	s.logTransition(next, action)
	s.publish(ctx, next.ID)
	return next, nil
}

func (s *GameService) logTransition(session domain.GameSession, action string) {
	s.log.WithFields(logrus.Fields{
		"session":  session.ID,
		"action":   action,
		"status":   session.Status,
		"question": session.CurrentQuestionIndex,
		"revealed": session.AnswerRevealed,
	}).Info("session transition")
}

func stale(session domain.GameSession, expectIndex *int) bool {
	return expectIndex != nil && *expectIndex != session.CurrentQuestionIndex
}
