package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"live-quiz-service/internal/domain"
)

// AnswerOutcome reports what a submission did. Accepted is false when the
// player had already answered; Answer then holds the earlier record and
// Points its points, and no score changed.
type AnswerOutcome struct {
	Accepted bool                `json:"accepted"`
	Points   int                 `json:"points"`
	Answer   domain.PlayerAnswer `json:"answer"`
}

// SubmitAnswer records a player's answer to the current question and adds its
// points to the player's score, at most once per (player, question).
func (s *GameService) SubmitAnswer(ctx context.Context, code, playerID, questionID string, sub domain.Submission) (AnswerOutcome, error) {
	session, err := s.LookupSession(ctx, code)
	if err != nil {
		return AnswerOutcome{}, err
	}
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if player.SessionID != session.ID {
		return AnswerOutcome{}, domain.ErrPlayerNotFound
	}
	switch session.Status {
	case domain.StatusFinished:
		return AnswerOutcome{}, domain.ErrSessionFinished
	case domain.StatusLobby:
		return AnswerOutcome{}, domain.ErrQuestionNotActive
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return AnswerOutcome{}, fmt.Errorf("load quiz: %w", err)
	}
	if session.CurrentQuestionIndex >= len(quiz.Questions) {
		return AnswerOutcome{}, domain.ErrQuestionNotActive
	}
	question := quiz.Questions[session.CurrentQuestionIndex]
	if questionID != question.ID {
		return AnswerOutcome{}, domain.ErrQuestionNotActive
	}
	if err := domain.ValidateSubmission(question, sub); err != nil {
		return AnswerOutcome{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	entry := s.log.WithFields(logrus.Fields{"session": session.ID, "player": playerID, "question": question.ID})

	// The store enforces uniqueness; this read only saves scoring work and
	// lets a reloaded client recover its outcome after the reveal.
	if existing, ok, err := s.store.GetAnswer(ctx, playerID, question.ID); err != nil {
		return AnswerOutcome{}, fmt.Errorf("check answer: %w", err)
	} else if ok {
		entry.Debug("duplicate answer ignored")
		return AnswerOutcome{Accepted: false, Points: existing.Points, Answer: existing}, nil
	}
	if session.AnswerRevealed {
		return AnswerOutcome{}, domain.ErrAnswerWindowClosed
	}

	now := s.now().UTC()
	latency := s.rules.Latency(session.QuestionStartTime, now)
	answer := domain.PlayerAnswer{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		PlayerID:    playerID,
		QuestionID:  question.ID,
		AnswerIndex: sub.AnswerIndex,
		Estimate:    sub.Estimate,
		LatencyMs:   latency,
		Points:      Score(question, sub, latency, s.rules),
		CreatedAt:   now,
	}

	recorded, inserted, err := s.store.RecordAnswer(ctx, answer)
	if err != nil {
		return AnswerOutcome{}, fmt.Errorf("record answer: %w", err)
	}
	if !inserted {
		entry.Debug("concurrent duplicate answer ignored")
		return AnswerOutcome{Accepted: false, Points: recorded.Points, Answer: recorded}, nil
	}
	entry.WithFields(logrus.Fields{"points": recorded.Points, "latency_ms": latency}).Info("answer recorded")
	s.publish(ctx, session.ID)
	return AnswerOutcome{Accepted: true, Points: recorded.Points, Answer: recorded}, nil
}
