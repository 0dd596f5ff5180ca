package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"live-quiz-service/internal/domain"
)

// GameService contains the quiz and game session use cases. It is the only
// writer of session state; players write only their own ledger entries.
type GameService struct {
	store    Store
	quizzes  QuizRepository
	notifier Notifier
	rules    Rules
	codes    CodeGenerator
	now      func() time.Time
	log      logrus.FieldLogger
}

// Option customizes a GameService.
type Option func(*GameService)

// WithClock replaces time.Now, mostly for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(s *GameService) { s.notifier = n }
}

func WithRules(r Rules) Option {
	return func(s *GameService) { s.rules = r }
}

func WithCodeGenerator(g CodeGenerator) Option {
	return func(s *GameService) { s.codes = g }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *GameService) { s.log = l }
}

func NewGameService(store Store, quizzes QuizRepository, opts ...Option) *GameService {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &GameService{
		store:    store,
		quizzes:  quizzes,
		notifier: nopNotifier{},
		rules:    DefaultRules(),
		codes:    RandomJoinCode,
		now:      time.Now,
		log:      discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the timings and scoring rules the service plays with.
func (s *GameService) Rules() Rules {
	return s.rules
}

// CreateQuiz validates a draft and stores it with fresh ids.
func (s *GameService) CreateQuiz(ctx context.Context, ownerID string, draft domain.Quiz) (domain.Quiz, error) {
	if ownerID == "" {
		return domain.Quiz{}, domain.ErrForbidden
	}
	for i := range draft.Questions {
		if draft.Questions[i].Type == domain.TrueFalse {
			draft.Questions[i].Options = append([]string(nil), domain.TrueFalseOptions...)
		}
	}
	if err := domain.ValidateQuiz(draft); err != nil {
		return domain.Quiz{}, err
	}

	quiz := domain.Quiz{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     draft.Title,
		Gamified:  draft.Gamified,
		CreatedAt: s.now().UTC(),
		Questions: make([]domain.Question, len(draft.Questions)),
	}
	for i, q := range draft.Questions {
		q.ID = uuid.NewString()
		q.QuizID = quiz.ID
		q.OrderIndex = i
		if q.Type != domain.Estimate {
			q.Estimate = nil
		} else {
			q.Options = nil
			q.CorrectIndex = 0
		}
		quiz.Questions[i] = q
	}

	if err := s.store.SaveQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	s.log.WithFields(logrus.Fields{"quiz": quiz.ID, "owner": ownerID, "questions": len(quiz.Questions)}).Info("quiz created")
	return quiz, nil
}

// ListQuizzes returns the owner's quizzes for the dashboard.
func (s *GameService) ListQuizzes(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	return s.store.ListQuizzes(ctx, ownerID)
}

// GetQuiz returns a quiz with its questions if ownerID owns it.
func (s *GameService) GetQuiz(ctx context.Context, ownerID, quizID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.OwnerID != ownerID {
		return domain.Quiz{}, domain.ErrForbidden
	}
	return quiz, nil
}

// DeleteQuiz removes a quiz, its questions and its sessions.
func (s *GameService) DeleteQuiz(ctx context.Context, ownerID, quizID string) error {
	if _, err := s.GetQuiz(ctx, ownerID, quizID); err != nil {
		return err
	}
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if err := s.quizzes.Invalidate(ctx, quizID); err != nil {
		s.log.WithError(err).WithField("quiz", quizID).Warn("quiz cache invalidation failed")
	}
	s.log.WithField("quiz", quizID).Info("quiz deleted")
	return nil
}

func (s *GameService) publish(ctx context.Context, sessionID string) {
	s.notifier.Publish(ctx, sessionID)
}
