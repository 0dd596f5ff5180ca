package app

import (
	"fmt"
	"math"
	"time"

	"live-quiz-service/internal/domain"
)

// NegativeEstimatePolicy decides what happens to estimate guesses outside the
// range. AllowNegative keeps the raw, possibly negative, score; ClampToZero
// floors it at zero so a player's total never drops.
type NegativeEstimatePolicy string

const (
	AllowNegative NegativeEstimatePolicy = "allow"
	ClampToZero   NegativeEstimatePolicy = "clamp"
)

// EstimateSpan selects the error a guess is measured against.
//
// SpanSide divides by the distance from the correct value to the bound on the
// guess's side, so a guess on either bound scores zero. SpanRange divides by
// the whole range.
type EstimateSpan string

const (
	SpanSide  EstimateSpan = "side"
	SpanRange EstimateSpan = "range"
)

const (
	maxPoints = 1000
	minPoints = 100
)

// Rules are the fixed timings and scoring knobs of a game.
type Rules struct {
	AnswerWindow      time.Duration
	RevealDelay       time.Duration
	NegativeEstimates NegativeEstimatePolicy
	EstimateSpan      EstimateSpan
}

func DefaultRules() Rules {
	return Rules{
		AnswerWindow:      15 * time.Second,
		RevealDelay:       5 * time.Second,
		NegativeEstimates: ClampToZero,
		EstimateSpan:      SpanSide,
	}
}

func (r Rules) Validate() error {
	if r.AnswerWindow <= 0 || r.RevealDelay < 0 {
		return fmt.Errorf("answer window must be positive and reveal delay non-negative")
	}
	switch r.NegativeEstimates {
	case AllowNegative, ClampToZero:
	default:
		return fmt.Errorf("unknown negative estimate policy %q", r.NegativeEstimates)
	}
	switch r.EstimateSpan {
	case SpanSide, SpanRange:
	default:
		return fmt.Errorf("unknown estimate span %q", r.EstimateSpan)
	}
	return nil
}

func (r Rules) windowMs() int64 {
	return r.AnswerWindow.Milliseconds()
}

// Latency returns the response time for an answer given at now. A missing
// start time counts as the full answer window.
func (r Rules) Latency(start *time.Time, now time.Time) int64 {
	if start == nil {
		return r.windowMs()
	}
	ms := now.Sub(*start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// Score returns the points for sub. Submissions are assumed to have passed
// domain.ValidateSubmission; anything else scores zero.
func Score(q domain.Question, sub domain.Submission, latencyMs int64, r Rules) int {
	switch q.Type {
	case domain.MultipleChoice, domain.TrueFalse:
		if sub.AnswerIndex == nil || *sub.AnswerIndex != q.CorrectIndex {
			return 0
		}
		return int(math.Max(minPoints, jsRound(speedPoints(latencyMs, r))))
	case domain.Estimate:
		if sub.Estimate == nil || q.Estimate == nil {
			return 0
		}
		bonus := math.Max(minPoints, speedPoints(latencyMs, r))
		points := int(jsRound(estimateAccuracy(*q.Estimate, sub, r.EstimateSpan) * bonus))
		if points < 0 && r.NegativeEstimates == ClampToZero {
			return 0
		}
		return points
	}
	return 0
}

// speedPoints decays linearly from 1000 at zero latency to 0 at the window end.
func speedPoints(latencyMs int64, r Rules) float64 {
	if latencyMs < 0 {
		latencyMs = 0
	}
	window := r.windowMs()
	if window <= 0 {
		window = DefaultRules().windowMs()
	}
	return maxPoints - float64(latencyMs)*maxPoints/float64(window)
}

func estimateAccuracy(e domain.EstimateRange, sub domain.Submission, span EstimateSpan) float64 {
	diff := sub.Estimate.Sub(e.Correct)
	if diff.IsZero() {
		return 1
	}
	width := e.Max.Sub(e.Min)
	if span == SpanSide {
		if diff.IsNegative() {
			width = e.Correct.Sub(e.Min)
		} else {
			width = e.Max.Sub(e.Correct)
		}
		if !width.IsPositive() {
			width = e.Max.Sub(e.Min)
		}
	}
	if !width.IsPositive() {
		return 0
	}
	ratio, _ := diff.Abs().Div(width).Float64()
	return 1 - ratio
}

// jsRound rounds halves toward +Inf, unlike math.Round.
func jsRound(x float64) float64 {
	return math.Floor(x + 0.5)
}
