package swipe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/infrastructure/metrics"
	"github.com/gdugdh24/mpit2026-discovery/internal/infrastructure/retry"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
)

// MatchPublisher fans a new match out to the messaging subsystems.
type MatchPublisher interface {
	PublishMatch(ctx context.Context, match *domain.Match) error
}

type IcebreakerGenerator interface {
	GenerateIcebreakers(ctx context.Context, user1Interests, user2Interests []string) []string
}

type Config struct {
	// Attempts bounds background retries of one decision write.
	Attempts int
	Backoff  time.Duration
	// Timeout applies to each remote call made on behalf of a decision.
	Timeout time.Duration
}

func (c Config) normalized() Config {
	if c.Attempts < 1 {
		c.Attempts = 1
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = 12 * time.Second
	}
	return c
}

// Outcome is what the UI learns about a recorded decision.
type Outcome struct {
	Decision *domain.Decision `json:"decision"`
	// Matched is true while both users hold a positive decision.
	Matched bool `json:"matched"`
	// NewMatch is true only for the write that made the pair mutual.
	NewMatch bool          `json:"new_match"`
	Match    *domain.Match `json:"match,omitempty"`
	// Stale marks a write skipped because a later decision for the same
	// pair had already been saved.
	Stale bool `json:"stale,omitempty"`
}

// pairKey is unordered so both directions of a pair share one lock and
// a simultaneous reciprocal like is announced once.
type pairKey struct {
	low, high int
}

func keyFor(actorID, targetID int) (pairKey, int) {
	if actorID < targetID {
		return pairKey{actorID, targetID}, 0
	}
	return pairKey{targetID, actorID}, 1
}

// pairState orders writes per direction by issuance.
type pairState struct {
	mu      sync.Mutex
	issued  [2]uint64
	written [2]uint64
	pending int
}

// Recorder persists decisions and detects mutual likes.
type Recorder struct {
	decisions   repository.DecisionRepository
	profiles    repository.ProfileRepository
	cache       repository.ExclusionCache
	publisher   MatchPublisher
	icebreakers IcebreakerGenerator
	cfg         Config
	logger      *zap.Logger
	metrics     *metrics.Metrics

	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	pairs map[pairKey]*pairState
	wg    sync.WaitGroup
}

type Option func(*Recorder)

func WithExclusionCache(cache repository.ExclusionCache) Option {
	return func(r *Recorder) { r.cache = cache }
}

func WithPublisher(p MatchPublisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

func WithIcebreakers(g IcebreakerGenerator) Option {
	return func(r *Recorder) { r.icebreakers = g }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

func NewRecorder(
	decisions repository.DecisionRepository,
	profiles repository.ProfileRepository,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		decisions: decisions,
		profiles:  profiles,
		cfg:       cfg.normalized(),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		pairs:     make(map[pairKey]*pairState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record saves one decision with a single attempt and reports whether it
// completed a match.
func (r *Recorder) Record(ctx context.Context, actorID, targetID int, kind domain.DecisionKind) (*Outcome, error) {
	if err := validate(actorID, targetID, kind); err != nil {
		return nil, err
	}

	key, seq := r.issue(actorID, targetID)
	defer r.release(key)

	d := r.newDecision(actorID, targetID, kind)
	return r.write(ctx, seq, d, &progress{})
}

// RecordAsync saves the decision in the background, retrying transient
// failures. Issuance order is fixed when RecordAsync returns, so a later
// call for the same pair always wins. done, if set, runs once with the
// final outcome or an error wrapping domain.ErrRecordFailed.
func (r *Recorder) RecordAsync(actorID, targetID int, kind domain.DecisionKind, done func(*Outcome, error)) error {
	if err := validate(actorID, targetID, kind); err != nil {
		return err
	}

	key, seq := r.issue(actorID, targetID)
	d := r.newDecision(actorID, targetID, kind)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(key)

		outcome, err := r.retry(seq, d)
		if done != nil {
			done(outcome, err)
		}
	}()
	return nil
}

// Wait blocks until background writes and match announcements finish.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) retry(seq uint64, d *domain.Decision) (*Outcome, error) {
	var (
		p       progress
		attempt int
	)
	outcome, err := backoff.RetryWithData(func() (*Outcome, error) {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
		defer cancel()

		outcome, err := r.write(ctx, seq, d, &p)
		if err != nil {
			r.logger.Warn("decision write failed",
				zap.Int("actor_id", d.ActorID),
				zap.Int("target_id", d.TargetID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return outcome, err
	}, retry.Policy(context.Background(), r.cfg.Backoff, r.cfg.Attempts))
	if err == nil {
		return outcome, nil
	}

	r.metrics.RecordFailed()
	r.logger.Error("decision not saved",
		zap.Int("actor_id", d.ActorID),
		zap.Int("target_id", d.TargetID),
		zap.String("kind", string(d.Kind)),
		zap.Error(err))
	return nil, fmt.Errorf("%w: %v", domain.ErrRecordFailed, err)
}

// progress survives retries so a write that was saved but failed the
// reciprocal check still knows what it replaced.
type progress struct {
	persisted bool
	prev      *domain.DecisionKind
}

func (r *Recorder) write(ctx context.Context, seq uint64, d *domain.Decision, p *progress) (*Outcome, error) {
	key, dir := keyFor(d.ActorID, d.TargetID)
	state := r.pair(key)
	state.mu.Lock()

	if seq < state.written[dir] {
		state.mu.Unlock()
		r.logger.Debug("stale decision skipped",
			zap.Int("actor_id", d.ActorID),
			zap.Int("target_id", d.TargetID))
		return &Outcome{Decision: d, Stale: true}, nil
	}

	if !p.persisted {
		prev, err := r.decisions.Upsert(ctx, d)
		if err != nil {
			state.mu.Unlock()
			return nil, fmt.Errorf("failed to save decision: %w", err)
		}
		p.persisted, p.prev = true, prev
		state.written[dir] = seq
		r.metrics.DecisionRecorded(string(d.Kind))
		r.remember(ctx, d)
	}

	outcome := &Outcome{Decision: d}
	if d.Kind.IsPositive() {
		mutual, err := r.decisions.HasPositive(ctx, d.TargetID, d.ActorID)
		if err != nil {
			state.mu.Unlock()
			return nil, fmt.Errorf("failed to check reciprocal decision: %w", err)
		}
		outcome.Matched = mutual
		outcome.NewMatch = mutual && (p.prev == nil || !p.prev.IsPositive())
	}
	state.mu.Unlock()

	if outcome.Matched {
		outcome.Match = domain.NewMatch(d.ActorID, d.TargetID, d.DecidedAt)
	}
	if outcome.NewMatch {
		r.metrics.MatchCreated()
		r.logger.Info("match detected",
			zap.Int("user1_id", outcome.Match.User1ID),
			zap.Int("user2_id", outcome.Match.User2ID))
		outcome.Match.Icebreakers = r.generateIcebreakers(ctx, d.ActorID, d.TargetID)
		r.announce(outcome.Match)
	}
	return outcome, nil
}

// remember mirrors the decision into the cross-session exclusion cache.
func (r *Recorder) remember(ctx context.Context, d *domain.Decision) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Add(ctx, d.ActorID, d.TargetID); err != nil {
		r.logger.Warn("exclusion cache update failed",
			zap.Int("actor_id", d.ActorID),
			zap.Error(err))
	}
}

func (r *Recorder) generateIcebreakers(ctx context.Context, actorID, targetID int) []string {
	if r.icebreakers == nil || r.profiles == nil {
		return nil
	}
	actor, err := r.profiles.GetByUserID(ctx, actorID)
	if err != nil {
		r.logger.Warn("icebreakers skipped", zap.Int("user_id", actorID), zap.Error(err))
		return nil
	}
	target, err := r.profiles.GetByUserID(ctx, targetID)
	if err != nil {
		r.logger.Warn("icebreakers skipped", zap.Int("user_id", targetID), zap.Error(err))
		return nil
	}
	return r.icebreakers.GenerateIcebreakers(ctx, actor.Interests, target.Interests)
}

func (r *Recorder) announce(match *domain.Match) {
	if r.publisher == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
		defer cancel()
		if err := r.publisher.PublishMatch(ctx, match); err != nil {
			r.logger.Error("match announcement failed",
				zap.Int("user1_id", match.User1ID),
				zap.Int("user2_id", match.User2ID),
				zap.Error(err))
		}
	}()
}

func (r *Recorder) newDecision(actorID, targetID int, kind domain.DecisionKind) *domain.Decision {
	return &domain.Decision{
		ID:        r.newID(),
		ActorID:   actorID,
		TargetID:  targetID,
		Kind:      kind,
		DecidedAt: r.now().UTC(),
	}
}

func (r *Recorder) issue(actorID, targetID int) (pairKey, uint64) {
	key, dir := keyFor(actorID, targetID)
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.pairs[key]
	if !ok {
		state = &pairState{}
		r.pairs[key] = state
	}
	state.issued[dir]++
	state.pending++
	return key, state.issued[dir]
}

func (r *Recorder) pair(key pairKey) *pairState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pairs[key]
}

func (r *Recorder) release(key pairKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.pairs[key]
	state.pending--
	if state.pending == 0 {
		delete(r.pairs, key)
	}
}

func validate(actorID, targetID int, kind domain.DecisionKind) error {
	if actorID == targetID {
		return domain.ErrCannotDecideSelf
	}
	if !kind.Valid() {
		return domain.ErrInvalidDecisionKind
	}
	return nil
}
