package app

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"live-quiz-service/internal/domain"
)

// HostBackend is what the host sync loop needs from the server. GameService
// satisfies it in-process; internal/client satisfies it over HTTP.
type HostBackend interface {
	Snapshot(ctx context.Context, code string, viewer Viewer) (Snapshot, error)
	Reveal(ctx context.Context, code, hostID string, expectIndex *int) (domain.GameSession, error)
	Advance(ctx context.Context, code, hostID string, expectIndex *int) (domain.GameSession, error)
}

// PlayerBackend is what a player client needs from the server.
type PlayerBackend interface {
	Snapshot(ctx context.Context, code string, viewer Viewer) (Snapshot, error)
	SubmitAnswer(ctx context.Context, code, playerID, questionID string, sub domain.Submission) (AnswerOutcome, error)
}

// HostDriver is the host's sync loop: every tick it re-reads the session,
// refreshes the host view and fires the automatic reveal or advance. Several
// drivers (or a driver and a manual click) may run against the same session;
// the expected question index makes the duplicates no-ops.
type HostDriver struct {
	backend HostBackend
	code    string
	hostID  string
	view    *HostView
	now     func() time.Time
	log     logrus.FieldLogger

	// OnUpdate, when set, is called with the view after every successful step.
	OnUpdate func(*HostView)
}

func NewHostDriver(backend HostBackend, code, hostID string, log logrus.FieldLogger) *HostDriver {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &HostDriver{
		backend: backend,
		code:    code,
		hostID:  hostID,
		view:    NewHostView(),
		now:     time.Now,
		log:     log.WithField("code", code),
	}
}

// SetClock replaces time.Now for tests.
func (d *HostDriver) SetClock(now func() time.Time) {
	d.now = now
}

func (d *HostDriver) View() *HostView {
	return d.view
}

// Step performs one poll. It returns the action it fired and ErrStop once
// the session is finished.
func (d *HostDriver) Step(ctx context.Context) (HostAction, error) {
	snap, err := d.backend.Snapshot(ctx, d.code, Viewer{HostID: d.hostID})
	if err != nil {
		return ActionNone, err
	}
	now := d.now()
	d.view.Apply(snap, now)
	if d.OnUpdate != nil {
		d.OnUpdate(d.view)
	}
	if snap.Session.Status == domain.StatusFinished {
		return ActionNone, ErrStop
	}

	action := DecideHostAction(snap, now)
	index := snap.Session.CurrentQuestionIndex
	switch action {
	case ActionReveal:
		_, err = d.backend.Reveal(ctx, d.code, d.hostID, &index)
	case ActionAdvance:
		_, err = d.backend.Advance(ctx, d.code, d.hostID, &index)
	default:
		return ActionNone, nil
	}
	if err != nil {
		return action, err
	}
	d.log.WithFields(logrus.Fields{"action": action, "question": index}).Debug("automatic host action")
	return action, nil
}

// Run polls every interval until the session finishes or ctx is cancelled.
func (d *HostDriver) Run(ctx context.Context, interval time.Duration) error {
	return Poll(ctx, interval, func(ctx context.Context) error {
		_, err := d.Step(ctx)
		return err
	}, func(err error) {
		d.log.WithError(err).Warn("host poll failed")
	})
}

// PlayerDriver keeps a PlayerView in sync and submits answers for it. Sync
// and Answer may be called from different goroutines.
type PlayerDriver struct {
	mu       sync.Mutex
	backend  PlayerBackend
	code     string
	playerID string
	view     *PlayerView
	now      func() time.Time
	log      logrus.FieldLogger

	// OnUpdate, when set, is called with the view after every successful
	// sync, while the view is locked.
	OnUpdate func(*PlayerView)
}

func NewPlayerDriver(backend PlayerBackend, code, playerID string, log logrus.FieldLogger) *PlayerDriver {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &PlayerDriver{
		backend:  backend,
		code:     code,
		playerID: playerID,
		view:     NewPlayerView(playerID),
		now:      time.Now,
		log:      log.WithFields(logrus.Fields{"code": code, "player": playerID}),
	}
}

// SetClock replaces time.Now for tests.
func (d *PlayerDriver) SetClock(now func() time.Time) {
	d.now = now
}

// View returns a copy of the current view.
func (d *PlayerDriver) View() PlayerView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.view
}

// Sync performs one poll and returns ErrStop once the session is finished.
func (d *PlayerDriver) Sync(ctx context.Context) error {
	snap, err := d.backend.Snapshot(ctx, d.code, Viewer{PlayerID: d.playerID})
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.view.Apply(snap, d.now())
	if d.OnUpdate != nil {
		d.OnUpdate(d.view)
	}
	d.mu.Unlock()
	if snap.Session.Status == domain.StatusFinished {
		return ErrStop
	}
	return nil
}

// Answer submits sub for the question currently shown. The view is marked
// answered before the request and rolled back if the request fails.
func (d *PlayerDriver) Answer(ctx context.Context, sub domain.Submission) (AnswerOutcome, error) {
	d.mu.Lock()
	if !d.view.CanAnswer() {
		d.mu.Unlock()
		return AnswerOutcome{}, domain.ErrQuestionNotActive
	}
	questionID := d.view.Question.ID
	d.view.MarkAnswered(sub)
	d.mu.Unlock()

	outcome, err := d.backend.SubmitAnswer(ctx, d.code, d.playerID, questionID, sub)

	d.mu.Lock()
	defer d.mu.Unlock()
	// A poll may have moved the view on while the request was in flight.
	current := d.view.Question != nil && d.view.Question.ID == questionID
	if err != nil {
		if current {
			d.view.RollbackAnswer()
		}
		return AnswerOutcome{}, err
	}
	if current {
		d.view.ApplyOutcome(outcome)
	}
	return outcome, nil
}

// Run polls every interval until the session finishes or ctx is cancelled.
func (d *PlayerDriver) Run(ctx context.Context, interval time.Duration) error {
	return Poll(ctx, interval, d.Sync, func(err error) {
		d.log.WithError(err).Warn("player poll failed")
	})
}
