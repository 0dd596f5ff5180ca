package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// QuestionType selects how a question is answered and scored.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	Estimate       QuestionType = "estimate"
)

// SessionStatus only ever moves forward: lobby, playing, finished.
type SessionStatus string

const (
	StatusLobby    SessionStatus = "lobby"
	StatusPlaying  SessionStatus = "playing"
	StatusFinished SessionStatus = "finished"
)

// TrueFalseOptions is the fixed option set of a true_false question.
var TrueFalseOptions = []string{"True", "False"}

// Quiz is authored by a host and read-only while a session plays it.
type Quiz struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"ownerId"`
	Title     string     `json:"title"`
	Gamified  bool       `json:"gamified"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
}

// EstimateRange is the answer payload of an estimate question.
type EstimateRange struct {
	Min     decimal.Decimal `json:"min"`
	Max     decimal.Decimal `json:"max"`
	Correct decimal.Decimal `json:"correct"`
}

// Question belongs to exactly one quiz; OrderIndex defines play order.
type Question struct {
	ID           string         `json:"id"`
	QuizID       string         `json:"quizId"`
	OrderIndex   int            `json:"orderIndex"`
	Text         string         `json:"text"`
	Type         QuestionType   `json:"type"`
	Options      []string       `json:"options,omitempty"`
	CorrectIndex int            `json:"correctIndex"`
	Estimate     *EstimateRange `json:"estimate,omitempty"`
}

// Redacted returns a copy without the correct answer, for players who have
// not seen the reveal yet.
func (q Question) Redacted() Question {
	out := q
	out.CorrectIndex = -1
	if q.Estimate != nil {
		out.Estimate = &EstimateRange{Min: q.Estimate.Min, Max: q.Estimate.Max}
	}
	return out
}

// SessionState is the part of a GameSession that transitions guard on.
type SessionState struct {
	Status        SessionStatus
	QuestionIndex int
	Revealed      bool
}

// GameSession is the durable record of one play-through of a quiz.
type GameSession struct {
	ID                   string        `json:"id"`
	QuizID               string        `json:"quizId"`
	HostID               string        `json:"hostId"`
	JoinCode             string        `json:"joinCode"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	QuestionStartTime    *time.Time    `json:"questionStartTime,omitempty"`
	AnswerRevealed       bool          `json:"answerRevealed"`
	RevealedAt           *time.Time    `json:"revealedAt,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
}

// State extracts the guard fields of the session.
func (s GameSession) State() SessionState {
	return SessionState{
		Status:        s.Status,
		QuestionIndex: s.CurrentQuestionIndex,
		Revealed:      s.AnswerRevealed,
	}
}

// Active reports whether the session still holds its join code.
func (s GameSession) Active() bool {
	return s.Status != StatusFinished
}

// Player is scoped to one session; rejoining another session creates a new Player.
type Player struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Nickname  string    `json:"nickname"`
	Score     int       `json:"score"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Submission is the value a player sends for a question: an option index for
// multiple_choice/true_false, a number for estimate.
type Submission struct {
	AnswerIndex *int             `json:"answerIndex,omitempty"`
	Estimate    *decimal.Decimal `json:"estimate,omitempty"`
}

// PlayerAnswer is a ledger entry; at most one exists per (PlayerID, QuestionID).
type PlayerAnswer struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"sessionId"`
	PlayerID    string           `json:"playerId"`
	QuestionID  string           `json:"questionId"`
	AnswerIndex *int             `json:"answerIndex,omitempty"`
	Estimate    *decimal.Decimal `json:"estimate,omitempty"`
	LatencyMs   int64            `json:"latencyMs"`
	Points      int              `json:"points"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Submission returns the value recorded in the ledger entry.
func (a PlayerAnswer) Submission() Submission {
	return Submission{AnswerIndex: a.AnswerIndex, Estimate: a.Estimate}
}

// SortRoster orders players by score descending. Ties go to whoever joined
// first, then by id so every store returns the same order.
func SortRoster(players []Player) {
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
}
