package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// QuizLoader fetches a quiz with its questions ordered by OrderIndex.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository serves quiz content for sessions, usually from a cache in
// front of a QuizLoader. Quizzes are immutable while played, so entries only
// need invalidating on delete.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID string) error
}

// Store persists quizzes, sessions, rosters and the answer ledger.
//
// Implementations must enforce two uniqueness rules themselves rather than
// relying on callers: one active session per join code, and one answer per
// (player, question) pair.
type Store interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
	// ListQuizzes returns the owner's quizzes newest first, without questions.
	ListQuizzes(ctx context.Context, ownerID string) ([]domain.Quiz, error)
	// DeleteQuiz removes the quiz, its questions and every session playing it.
	DeleteQuiz(ctx context.Context, quizID string) error

	// CreateSession returns domain.ErrJoinCodeTaken when an active session holds the code.
	CreateSession(ctx context.Context, session domain.GameSession) error
	GetSession(ctx context.Context, sessionID string) (domain.GameSession, error)
	// GetSessionByCode prefers the active session holding the code, else the latest one.
	GetSessionByCode(ctx context.Context, code string) (domain.GameSession, error)
	// UpdateSession writes next only if the stored session still matches expect.
	// It reports false, without error, when another writer got there first.
	UpdateSession(ctx context.Context, next domain.GameSession, expect domain.SessionState) (bool, error)

	AddPlayer(ctx context.Context, player domain.Player) error
	GetPlayer(ctx context.Context, playerID string) (domain.Player, error)
	// ListPlayers returns the roster ordered by domain.SortRoster.
	ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error)

	GetAnswer(ctx context.Context, playerID, questionID string) (domain.PlayerAnswer, bool, error)
	// RecordAnswer inserts the answer and increments the player's score by its
	// points as one atomic step. When the pair already exists nothing changes
	// and the stored answer is returned with inserted=false.
	RecordAnswer(ctx context.Context, answer domain.PlayerAnswer) (recorded domain.PlayerAnswer, inserted bool, err error)
	CountAnswers(ctx context.Context, sessionID, questionID string) (int, error)
}

// Notifier fans out "session changed" signals so push clients re-read state.
type Notifier interface {
	Publish(ctx context.Context, sessionID string)
	// Subscribe returns a signal channel; the caller must call cancel.
	Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, func(), error)
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, string) {}

func (nopNotifier) Subscribe(context.Context, string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{})
	return ch, func() {}, nil
}
