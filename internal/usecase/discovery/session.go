package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/gesture"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/swipe"
)

// SessionClosed is reported by snapshots of a closed session.
const SessionClosed QueueState = "closed"

const (
	FetchFailedMessage  = "We couldn't load new profiles. Check your connection and try again."
	ExhaustedMessage    = "You've seen everyone who fits your filters. Try widening them or come back later."
	RecordFailedMessage = "We couldn't save one of your choices. It stays on your screen as made."
)

// DecisionRecorder persists decisions off the interaction path.
type DecisionRecorder interface {
	RecordAsync(actorID, targetID int, kind domain.DecisionKind, done func(*swipe.Outcome, error)) error
}

type NoticeKind string

const (
	NoticeMatch        NoticeKind = "match"
	NoticeRecordFailed NoticeKind = "record_failed"
)

// Notice is a non-blocking message for the viewer.
type Notice struct {
	Kind     NoticeKind      `json:"kind"`
	Message  string          `json:"message,omitempty"`
	TargetID int             `json:"target_id"`
	Match    *domain.Match   `json:"match,omitempty"`
	Profile  *domain.Profile `json:"profile,omitempty"`
	At       time.Time       `json:"at"`
}

type Card struct {
	Candidate
	PhotoIndex int    `json:"photo_index"`
	Photo      string `json:"photo,omitempty"`
}

type Snapshot struct {
	SessionID string        `json:"session_id"`
	State     QueueState    `json:"state"`
	Card      *Card         `json:"card,omitempty"`
	Gesture   string        `json:"gesture"`
	Remaining int           `json:"remaining"`
	Fallback  bool          `json:"fallback"`
	Message   string        `json:"message,omitempty"`
	Filter    domain.Filter `json:"filter"`
	Notices   []Notice      `json:"notices"`
}

type CommitResult struct {
	Outcome *swipe.Outcome
	Err     error
}

// Commit is a decision that has left the screen. Done yields exactly one
// result once the write finished or was given up.
type Commit struct {
	TargetID int
	Kind     domain.DecisionKind
	Done     <-chan CommitResult
}

// Session owns one viewer's queue, gesture state and photo cursor. All
// methods are safe for concurrent use.
type Session struct {
	id       string
	viewer   *domain.Profile
	filter   domain.Filter
	queue    *Queue
	recorder DecisionRecorder
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	gesture *gesture.Interpreter
	photos  *gesture.PhotoCursor
	notices []Notice
	changed chan struct{}
	closed  bool
}

func newSession(id string, viewer *domain.Profile, filter domain.Filter, queue *Queue, recorder DecisionRecorder, gcfg gesture.Config, logger *zap.Logger) *Session {
	return &Session{
		id:       id,
		viewer:   viewer,
		filter:   filter,
		queue:    queue,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		gesture:  gesture.NewInterpreter(gcfg),
		photos:   gesture.NewPhotoCursor(0),
		changed:  make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) ViewerID() int { return s.viewer.UserID }

func (s *Session) Filter() domain.Filter { return s.filter }

func (s *Session) Queue() *Queue { return s.queue }

// Changed is closed on the next state change visible in a snapshot.
func (s *Session) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Snapshot describes the session and drains pending notices.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := s.queue.View()
	snap := Snapshot{
		SessionID: s.id,
		State:     view.State,
		Gesture:   s.gesture.State().String(),
		Remaining: view.Remaining,
		Fallback:  view.Fallback,
		Filter:    s.filter,
		Notices:   s.notices,
	}
	s.notices = nil
	if snap.Notices == nil {
		snap.Notices = []Notice{}
	}

	if s.closed {
		snap.State = SessionClosed
		snap.Remaining = 0
		return snap
	}

	switch snap.State {
	case QueueFetchFailed:
		snap.Message = FetchFailedMessage
	case QueueExhausted:
		snap.Message = ExhaustedMessage
	}

	if cur := view.Current; cur != nil {
		card := &Card{Candidate: *cur, PhotoIndex: s.photos.Index()}
		if card.PhotoIndex < len(cur.Profile.Photos) {
			card.Photo = cur.Profile.Photos[card.PhotoIndex]
		}
		snap.Card = card
	}
	return snap
}

func (s *Session) PointerDown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	if err := s.gesture.PointerDown(s.queue.IsExhausted()); err != nil {
		return gestureError(err)
	}
	return nil
}

// PointerMove returns live overlay feedback. It never decides.
func (s *Session) PointerMove(dx, dy float64) (gesture.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gesture.Feedback{}, domain.ErrSessionClosed
	}
	fb, err := s.gesture.PointerMove(dx, dy)
	if err != nil {
		return gesture.Feedback{}, gestureError(err)
	}
	return fb, nil
}

// PointerUp resolves the drag. A decisive release commits the card and
// returns the commit; otherwise the card springs back and commit is nil.
func (s *Session) PointerUp(dx, dy, vx, vy float64) (gesture.Resolution, *Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gesture.Resolution{}, nil, domain.ErrSessionClosed
	}
	res, err := s.gesture.PointerUp(dx, dy, vx, vy)
	if err != nil {
		return gesture.Resolution{}, nil, gestureError(err)
	}
	if res.Decision == gesture.DecisionNone {
		s.notifyLocked()
		return res, nil, nil
	}
	commit, err := s.commitLocked(decisionKind(res.Decision))
	if err != nil {
		s.gesture.AnimationDone()
		return res, nil, err
	}
	return res, commit, nil
}

// AnimationDone ends the off-screen or spring-back animation.
func (s *Session) AnimationDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.gesture.AnimationDone()
	s.notifyLocked()
}

// Decide commits the current card from a button press.
func (s *Session) Decide(kind domain.DecisionKind) (*Commit, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidDecisionKind
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSessionClosed
	}
	if s.queue.IsExhausted() {
		return nil, domain.ErrQueueEmpty
	}
	if err := s.gesture.Press(gestureDecision(kind)); err != nil {
		return nil, gestureError(err)
	}
	return s.commitLocked(kind)
}

// TapPhoto moves through the current card's photos.
func (s *Session) TapPhoto(zone gesture.Zone) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, domain.ErrSessionClosed
	}
	if s.queue.IsExhausted() {
		return 0, domain.ErrQueueEmpty
	}
	idx := s.photos.Tap(zone)
	s.notifyLocked()
	return idx, nil
}

// Replenish refetches once the queue has run out. It is a no-op while
// candidates remain.
func (s *Session) Replenish(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if !s.queue.IsExhausted() {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	err := s.queue.Replenish(ctx)
	s.afterReplenish(err)
	return err
}

// Close discards any gesture in progress and cancels an in-flight fetch.
// Decisions already committed keep being written.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	if s.gesture.Teardown() {
		s.logger.Debug("gesture discarded on close", zap.String("session_id", s.id))
	}
	s.queue.Close()
	s.notifyLocked()
	return true
}

func (s *Session) commitLocked(kind domain.DecisionKind) (*Commit, error) {
	cur, ok := s.queue.Current()
	if !ok {
		return nil, domain.ErrQueueEmpty
	}
	target := cur.Profile

	s.queue.RecordExclusion(target.UserID)
	s.queue.Advance()
	s.resetPhotosLocked()

	done := make(chan CommitResult, 1)
	commit := &Commit{TargetID: target.UserID, Kind: kind, Done: done}

	if IsSample(target.UserID) {
		done <- CommitResult{Outcome: &swipe.Outcome{Decision: &domain.Decision{
			ActorID:   s.viewer.UserID,
			TargetID:  target.UserID,
			Kind:      kind,
			DecidedAt: s.now().UTC(),
		}}}
	} else {
		err := s.recorder.RecordAsync(s.viewer.UserID, target.UserID, kind, func(o *swipe.Outcome, err error) {
			s.onRecorded(target, o, err)
			done <- CommitResult{Outcome: o, Err: err}
		})
		if err != nil {
			done <- CommitResult{Err: err}
		}
	}

	if s.queue.IsExhausted() {
		s.queue.markLoading()
		go s.replenishInBackground()
	}
	s.notifyLocked()
	return commit, nil
}

func (s *Session) onRecorded(target *domain.Profile, o *swipe.Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	switch {
	case err != nil:
		s.notices = append(s.notices, Notice{
			Kind:     NoticeRecordFailed,
			Message:  RecordFailedMessage,
			TargetID: target.UserID,
			At:       s.now(),
		})
	case o != nil && o.NewMatch:
		s.notices = append(s.notices, Notice{
			Kind:     NoticeMatch,
			Message:  "It's a match with " + target.FirstName + "!",
			TargetID: target.UserID,
			Match:    o.Match,
			Profile:  target,
			At:       s.now(),
		})
	default:
		return
	}
	s.notifyLocked()
}

func (s *Session) replenishInBackground() {
	err := s.queue.Replenish(context.Background())
	s.afterReplenish(err)
}

func (s *Session) afterReplenish(err error) {
	if err != nil && !errors.Is(err, domain.ErrSessionClosed) {
		s.logger.Warn("replenish failed",
			zap.String("session_id", s.id),
			zap.Int("viewer_id", s.viewer.UserID),
			zap.Error(err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.resetPhotosLocked()
	s.notifyLocked()
}

func (s *Session) resetPhotosLocked() {
	if cur, ok := s.queue.Current(); ok {
		s.photos.Reset(len(cur.Profile.Photos))
		return
	}
	s.photos.Reset(0)
}

func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func gestureError(err error) error {
	switch {
	case errors.Is(err, gesture.ErrBusy):
		return domain.ErrGestureBusy
	case errors.Is(err, gesture.ErrEmpty):
		return domain.ErrQueueEmpty
	case errors.Is(err, gesture.ErrTornDown):
		return domain.ErrSessionClosed
	case errors.Is(err, gesture.ErrNotDrag):
		return domain.ErrNoDrag
	}
	return err
}

func decisionKind(d gesture.Decision) domain.DecisionKind {
	switch d {
	case gesture.DecisionLike:
		return domain.DecisionLike
	case gesture.DecisionSuperLike:
		return domain.DecisionSuperLike
	}
	return domain.DecisionPass
}

func gestureDecision(k domain.DecisionKind) gesture.Decision {
	switch k {
	case domain.DecisionLike:
		return gesture.DecisionLike
	case domain.DecisionSuperLike:
		return gesture.DecisionSuperLike
	}
	return gesture.DecisionPass
}
