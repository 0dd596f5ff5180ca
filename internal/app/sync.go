package app

import (
	"time"

	"live-quiz-service/internal/domain"
)

// Client views are projections of the latest Snapshot. The fetched record
// wins on every poll; the only local state is per-question UI state, and it is
// reset only when the current question index changes.

// Phase is what a client should be showing.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseAnswering Phase = "answering"
	PhaseWaiting   Phase = "waiting"
	PhaseRevealed  Phase = "revealed"
	PhaseFinished  Phase = "finished"
)

// Movement is the cosmetic rank change since the previous poll.
type Movement string

const (
	MovedUp   Movement = "up"
	MovedDown Movement = "down"
	Unchanged Movement = "same"
	NewEntry  Movement = "new"
)

// Standing is one leaderboard row.
type Standing struct {
	Player   domain.Player `json:"player"`
	Rank     int           `json:"rank"`
	Movement Movement      `json:"movement"`
}

// RankTracker remembers ranks between polls to derive movements.
type RankTracker struct {
	prev map[string]int
}

// Update ranks an already sorted roster and records the ranks for next time.
func (t *RankTracker) Update(roster []domain.Player) []Standing {
	standings := make([]Standing, len(roster))
	next := make(map[string]int, len(roster))
	for i, p := range roster {
		rank := i + 1
		move := NewEntry
		if before, ok := t.prev[p.ID]; ok {
			switch {
			case rank < before:
				move = MovedUp
			case rank > before:
				move = MovedDown
			default:
				move = Unchanged
			}
		}
		standings[i] = Standing{Player: p, Rank: rank, Movement: move}
		next[p.ID] = rank
	}
	t.prev = next
	return standings
}

// TimeLeft returns whole seconds remaining in the answer window, clamped to
// [0, window]. Different clients may disagree by a second; the reveal is
// driven by session state, not by this number.
func TimeLeft(start *time.Time, now time.Time, window time.Duration) int {
	total := int(window / time.Second)
	if start == nil {
		return total
	}
	elapsed := int(now.Sub(*start) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	if left := total - elapsed; left > 0 {
		return left
	}
	return 0
}

// PlayerView is a player's client-side projection of the session.
type PlayerView struct {
	PlayerID      string
	Phase         Phase
	Session       domain.GameSession
	Question      *domain.Question
	QuestionCount int
	Selected      *domain.Submission
	HasAnswered   bool
	LastPoints    *int
	Score         int
	Rank          int
	Standings     []Standing
	TimeLeft      int

	lastIndex int
	ranks     RankTracker
}

func NewPlayerView(playerID string) *PlayerView {
	return &PlayerView{PlayerID: playerID, lastIndex: -1, Phase: PhaseLobby}
}

// Apply reconciles the view against a freshly fetched snapshot.
func (v *PlayerView) Apply(snap Snapshot, now time.Time) {
	session := snap.Session
	if session.CurrentQuestionIndex != v.lastIndex {
		v.Selected = nil
		v.HasAnswered = false
		v.LastPoints = nil
		v.lastIndex = session.CurrentQuestionIndex
	}
	// A stored answer covers page reloads: never show the answering UI again.
	if snap.OwnAnswer != nil {
		sub := snap.OwnAnswer.Submission()
		points := snap.OwnAnswer.Points
		v.Selected = &sub
		v.HasAnswered = true
		v.LastPoints = &points
	}

	v.Session = session
	v.QuestionCount = len(snap.Questions)
	v.Question = nil
	if q, ok := snap.CurrentQuestion(); ok {
		v.Question = &q
	}
	v.Standings = v.ranks.Update(snap.Roster)
	v.Rank = 0
	for _, st := range v.Standings {
		if st.Player.ID == v.PlayerID {
			v.Score = st.Player.Score
			v.Rank = st.Rank
			break
		}
	}
	v.TimeLeft = TimeLeft(session.QuestionStartTime, now, snap.Rules().AnswerWindow)
	v.Phase = v.phase()
}

func (v *PlayerView) phase() Phase {
	switch v.Session.Status {
	case domain.StatusLobby:
		return PhaseLobby
	case domain.StatusFinished:
		return PhaseFinished
	}
	switch {
	case v.Session.AnswerRevealed:
		return PhaseRevealed
	case v.HasAnswered:
		return PhaseWaiting
	default:
		return PhaseAnswering
	}
}

// CanAnswer reports whether the answering UI is live.
func (v PlayerView) CanAnswer() bool {
	return v.Phase == PhaseAnswering && !v.HasAnswered && v.Question != nil
}

// MarkAnswered optimistically records a local submission before the server confirms it.
func (v *PlayerView) MarkAnswered(sub domain.Submission) {
	v.Selected = &sub
	v.HasAnswered = true
	if v.Phase == PhaseAnswering {
		v.Phase = PhaseWaiting
	}
}

// ApplyOutcome folds the server's answer outcome into the view until the next poll.
func (v *PlayerView) ApplyOutcome(o AnswerOutcome) {
	points := o.Points
	v.LastPoints = &points
	sub := o.Answer.Submission()
	v.Selected = &sub
	v.HasAnswered = true
	if o.Accepted {
		v.Score += o.Points
	}
	if v.Phase == PhaseAnswering {
		v.Phase = PhaseWaiting
	}
}

// RollbackAnswer undoes MarkAnswered after a failed request so the player can
// retry; the server's duplicate guard makes the retry safe.
func (v *PlayerView) RollbackAnswer() {
	v.Selected = nil
	v.HasAnswered = false
	if v.Phase == PhaseWaiting {
		v.Phase = PhaseAnswering
	}
}

// Correct reports whether the selected answer matched, once the question
// carries its answer (after the reveal).
func (v PlayerView) Correct() (correct bool, known bool) {
	if v.Question == nil || v.Selected == nil {
		return false, false
	}
	q := *v.Question
	switch q.Type {
	case domain.MultipleChoice, domain.TrueFalse:
		if q.CorrectIndex < 0 || v.Selected.AnswerIndex == nil {
			return false, false
		}
		return *v.Selected.AnswerIndex == q.CorrectIndex, true
	case domain.Estimate:
		if v.LastPoints == nil {
			return false, false
		}
		return *v.LastPoints > 0, true
	}
	return false, false
}

// HostView is the host's client-side projection of the session.
type HostView struct {
	Phase         Phase
	Session       domain.GameSession
	Question      *domain.Question
	QuestionCount int
	AnsweredCount int
	RosterSize    int
	Standings     []Standing
	TimeLeft      int

	ranks RankTracker
}

func NewHostView() *HostView {
	return &HostView{Phase: PhaseLobby}
}

// Apply reconciles the host view against a freshly fetched snapshot.
func (v *HostView) Apply(snap Snapshot, now time.Time) {
	v.Session = snap.Session
	v.QuestionCount = len(snap.Questions)
	v.Question = nil
	if q, ok := snap.CurrentQuestion(); ok {
		v.Question = &q
	}
	v.AnsweredCount = snap.AnsweredCount
	v.RosterSize = len(snap.Roster)
	v.Standings = v.ranks.Update(snap.Roster)
	v.TimeLeft = TimeLeft(snap.Session.QuestionStartTime, now, snap.Rules().AnswerWindow)

	switch {
	case snap.Session.Status == domain.StatusLobby:
		v.Phase = PhaseLobby
	case snap.Session.Status == domain.StatusFinished:
		v.Phase = PhaseFinished
	case snap.Session.AnswerRevealed:
		v.Phase = PhaseRevealed
	default:
		v.Phase = PhaseAnswering
	}
}

// HostAction is an automatic decision derived from a snapshot.
type HostAction string

const (
	ActionNone    HostAction = ""
	ActionReveal  HostAction = "reveal"
	ActionAdvance HostAction = "advance"
)

// DecideHostAction reveals once the window has elapsed or every rostered
// player has answered, and advances once the reveal delay has passed.
func DecideHostAction(snap Snapshot, now time.Time) HostAction {
	session := snap.Session
	if session.Status != domain.StatusPlaying {
		return ActionNone
	}
	rules := snap.Rules()
	if !session.AnswerRevealed {
		if session.QuestionStartTime == nil || now.Sub(*session.QuestionStartTime) >= rules.AnswerWindow {
			return ActionReveal
		}
		if n := len(snap.Roster); n > 0 && snap.AnsweredCount >= n {
			return ActionReveal
		}
		return ActionNone
	}
	if session.RevealedAt == nil || now.Sub(*session.RevealedAt) >= rules.RevealDelay {
		return ActionAdvance
	}
	return ActionNone
}
