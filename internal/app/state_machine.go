package app

import (
	"time"

	"live-quiz-service/internal/domain"
)

// The transition functions below are pure: they return the next session and
// whether anything changed. An unmet precondition is a no-op, never an error.

func startTransition(s domain.GameSession, rosterSize int, now time.Time) (domain.GameSession, bool) {
	if s.Status != domain.StatusLobby || rosterSize == 0 {
		return s, false
	}
	s.Status = domain.StatusPlaying
	s.CurrentQuestionIndex = 0
	s.QuestionStartTime = timePtr(now)
	s.AnswerRevealed = false
	s.RevealedAt = nil
	return s, true
}

func revealTransition(s domain.GameSession, now time.Time) (domain.GameSession, bool) {
	if s.Status != domain.StatusPlaying || s.AnswerRevealed {
		return s, false
	}
	s.AnswerRevealed = true
	s.RevealedAt = timePtr(now)
	return s, true
}

func advanceTransition(s domain.GameSession, questionCount int, now time.Time) (domain.GameSession, bool) {
	if s.Status != domain.StatusPlaying || !s.AnswerRevealed {
		return s, false
	}
	if s.CurrentQuestionIndex+1 >= questionCount {
		s.Status = domain.StatusFinished
		return s, true
	}
	s.CurrentQuestionIndex++
	s.QuestionStartTime = timePtr(now)
	s.AnswerRevealed = false
	s.RevealedAt = nil
	return s, true
}

func endTransition(s domain.GameSession) (domain.GameSession, bool) {
	if s.Status == domain.StatusFinished {
		return s, false
	}
	s.Status = domain.StatusFinished
	return s, true
}

func timePtr(t time.Time) *time.Time {
	return &t
}
