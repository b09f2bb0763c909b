// Package gesture turns a continuous drag on a discovery card into a
// discrete decision. It has no I/O: callers feed pointer events in and
// act on the returned resolution.
package gesture

import (
	"errors"
	"math"
)

var (
	ErrBusy     = errors.New("gesture: card is busy")
	ErrEmpty    = errors.New("gesture: no card to drag")
	ErrTornDown = errors.New("gesture: interpreter torn down")
	ErrNotDrag  = errors.New("gesture: no drag in progress")
)

type State int

const (
	StateIdle State = iota
	StateDragging
	StateResolving
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateResolving:
		return "resolving"
	case StateCommitting:
		return "committing"
	}
	return "unknown"
}

type Decision int

const (
	DecisionNone Decision = iota
	DecisionLike
	DecisionPass
	// DecisionSuperLike is only produced by a button press, never by Decide.
	DecisionSuperLike
)

func (d Decision) String() string {
	switch d {
	case DecisionLike:
		return "like"
	case DecisionPass:
		return "pass"
	case DecisionSuperLike:
		return "super_like"
	}
	return "none"
}

type Config struct {
	// ScreenWidth in points; the distance threshold is a fraction of it.
	ScreenWidth float64
	// DistanceFraction of ScreenWidth a drag must pass to commit on its own.
	DistanceFraction float64
	// VelocityThreshold in points per second for a flick.
	VelocityThreshold float64
	// FlickMinRatio of the distance threshold a flick must still travel.
	FlickMinRatio float64
}

func DefaultConfig() Config {
	return Config{
		ScreenWidth:       390,
		DistanceFraction:  0.25,
		VelocityThreshold: 800,
		FlickMinRatio:     0.35,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.ScreenWidth <= 0 {
		c.ScreenWidth = def.ScreenWidth
	}
	if c.DistanceFraction <= 0 || c.DistanceFraction >= 1 {
		c.DistanceFraction = def.DistanceFraction
	}
	if c.VelocityThreshold <= 0 {
		c.VelocityThreshold = def.VelocityThreshold
	}
	if c.FlickMinRatio <= 0 || c.FlickMinRatio > 1 {
		c.FlickMinRatio = def.FlickMinRatio
	}
	return c
}

// Threshold is the horizontal distance T, in points.
func (c Config) Threshold() float64 {
	c = c.normalized()
	return c.ScreenWidth * c.DistanceFraction
}

// WithScreenWidth returns a copy sized for a particular device.
func (c Config) WithScreenWidth(width float64) Config {
	if width > 0 {
		c.ScreenWidth = width
	}
	return c
}

// Decide applies the release rule: a drag past T commits, and so does a
// fast flick in the drag direction that travelled at least FlickMinRatio*T.
func Decide(dx, vx float64, cfg Config) Decision {
	cfg = cfg.normalized()
	t := cfg.Threshold()
	minFlick := t * cfg.FlickMinRatio

	if dx > t || (vx > cfg.VelocityThreshold && dx > minFlick) {
		return DecisionLike
	}
	if dx < -t || (vx < -cfg.VelocityThreshold && dx < -minFlick) {
		return DecisionPass
	}
	return DecisionNone
}

// Feedback is the live visual state of the card while dragging.
type Feedback struct {
	DX          float64 `json:"dx"`
	DY          float64 `json:"dy"`
	Rotation    float64 `json:"rotation"`
	LikeOpacity float64 `json:"like_opacity"`
	PassOpacity float64 `json:"pass_opacity"`
	NextScale   float64 `json:"next_scale"`
}

const (
	maxRotationDeg = 12.0
	nextCardScale  = 0.92
)

// FeedbackFor interpolates overlay opacity, card rotation and the scale of
// the card underneath from the displacement. It never decides anything.
func FeedbackFor(dx, dy float64, cfg Config) Feedback {
	cfg = cfg.normalized()
	t := cfg.Threshold()
	progress := clamp(math.Abs(dx)/t, 0, 1)

	return Feedback{
		DX:          dx,
		DY:          dy,
		Rotation:    clamp(dx/(cfg.ScreenWidth/2), -1, 1) * maxRotationDeg,
		LikeOpacity: clamp(dx/t, 0, 1),
		PassOpacity: clamp(-dx/t, 0, 1),
		NextScale:   nextCardScale + (1-nextCardScale)*progress,
	}
}

// Resolution is what happened on release.
type Resolution struct {
	Decision Decision `json:"-"`
	DX       float64  `json:"dx"`
	DY       float64  `json:"dy"`
	VX       float64  `json:"vx"`
	VY       float64  `json:"vy"`
	// Next is the state after resolving: Committing or back to Idle.
	Next State `json:"-"`
}

// Interpreter is the per-card state machine
// Idle -> Dragging -> Resolving -> Committing|Idle. It is not safe for
// concurrent use; the owning session serialises calls.
type Interpreter struct {
	cfg      Config
	state    State
	dx, dy   float64
	tornDown bool
}

func NewInterpreter(cfg Config) *Interpreter {
	return &Interpreter{cfg: cfg.normalized()}
}

func (i *Interpreter) State() State { return i.state }

func (i *Interpreter) Config() Config { return i.cfg }

// PointerDown starts a drag. It is refused while the queue is empty or a
// commit animation is still running.
func (i *Interpreter) PointerDown(queueEmpty bool) error {
	if i.tornDown {
		return ErrTornDown
	}
	if queueEmpty {
		return ErrEmpty
	}
	if i.state != StateIdle {
		return ErrBusy
	}
	i.state = StateDragging
	i.dx, i.dy = 0, 0
	return nil
}

// PointerMove records the displacement since pointer-down.
func (i *Interpreter) PointerMove(dx, dy float64) (Feedback, error) {
	if i.state != StateDragging {
		return Feedback{}, ErrNotDrag
	}
	i.dx, i.dy = dx, dy
	return FeedbackFor(dx, dy, i.cfg), nil
}

// PointerUp captures the release and resolves it. A decisive release moves
// to Committing; anything else snaps back to Idle with DecisionNone.
func (i *Interpreter) PointerUp(dx, dy, vx, vy float64) (Resolution, error) {
	if i.state != StateDragging {
		return Resolution{}, ErrNotDrag
	}
	i.state = StateResolving
	i.dx, i.dy = dx, dy

	res := Resolution{
		Decision: Decide(dx, vx, i.cfg),
		DX:       dx,
		DY:       dy,
		VX:       vx,
		VY:       vy,
	}
	if res.Decision == DecisionNone {
		i.reset()
	} else {
		i.state = StateCommitting
	}
	res.Next = i.state
	return res, nil
}

// Press commits a button decision. A button press while the previous card
// is still animating out finishes that animation first.
func (i *Interpreter) Press(d Decision) error {
	if i.tornDown {
		return ErrTornDown
	}
	if d == DecisionNone {
		return nil
	}
	switch i.state {
	case StateIdle, StateCommitting:
		i.state = StateCommitting
		return nil
	}
	return ErrBusy
}

// AnimationDone ends a commit animation (or a snap-back) and returns to Idle.
func (i *Interpreter) AnimationDone() {
	if i.state == StateCommitting {
		i.reset()
	}
}

// Teardown discards any unresolved gesture. It reports whether a drag was
// dropped; a dropped drag never produces a decision.
func (i *Interpreter) Teardown() bool {
	dropped := i.state == StateDragging || i.state == StateResolving
	i.reset()
	i.tornDown = true
	return dropped
}

func (i *Interpreter) reset() {
	i.state = StateIdle
	i.dx, i.dy = 0, 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
