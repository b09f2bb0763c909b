package swipe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
)

var errRemote = errors.New("remote unavailable")

type memDecisions struct {
	mu          sync.Mutex
	rows        map[[2]int]domain.Decision
	upserts     int
	failUpserts int
	failChecks  int
}

func newMemDecisions() *memDecisions {
	return &memDecisions{rows: make(map[[2]int]domain.Decision)}
}

func (m *memDecisions) Upsert(_ context.Context, d *domain.Decision) (*domain.DecisionKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpserts > 0 {
		m.failUpserts--
		return nil, errRemote
	}
	m.upserts++
	key := [2]int{d.ActorID, d.TargetID}
	var prev *domain.DecisionKind
	if old, ok := m.rows[key]; ok {
		kind := old.Kind
		prev = &kind
	}
	m.rows[key] = *d
	return prev, nil
}

func (m *memDecisions) get(actorID, targetID int) (domain.Decision, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[[2]int{actorID, targetID}]
	return d, ok
}

func (m *memDecisions) HasPositive(_ context.Context, actorID, targetID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChecks > 0 {
		m.failChecks--
		return false, errRemote
	}
	d, ok := m.rows[[2]int{actorID, targetID}]
	return ok && d.Kind.IsPositive(), nil
}

func (m *memDecisions) ListTargets(_ context.Context, actorID int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for key := range m.rows {
		if key[0] == actorID {
			out = append(out, key[1])
		}
	}
	return out, nil
}

func (m *memDecisions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memProfiles struct {
	byUser map[int]*domain.Profile
}

func (m *memProfiles) Create(context.Context, *domain.Profile) error { return nil }

func (m *memProfiles) GetByUserID(_ context.Context, userID int) (*domain.Profile, error) {
	p, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p, nil
}

func (m *memProfiles) UpdatePreferences(context.Context, *domain.Profile) error { return nil }

func (m *memProfiles) SearchCandidates(context.Context, repository.CandidateQuery) ([]repository.ProfileRecord, error) {
	return nil, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	matches []*domain.Match
}

func (p *recordingPublisher) PublishMatch(_ context.Context, match *domain.Match) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matches = append(p.matches, match)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.matches)
}

type staticIcebreakers []string

func (s staticIcebreakers) GenerateIcebreakers(context.Context, []string, []string) []string {
	return s
}

type memCache struct {
	mu    sync.Mutex
	added map[int][]int
}

func (c *memCache) Add(_ context.Context, viewerID int, targetIDs ...int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.added == nil {
		c.added = make(map[int][]int)
	}
	c.added[viewerID] = append(c.added[viewerID], targetIDs...)
	return nil
}

func (c *memCache) Members(_ context.Context, viewerID int) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.added[viewerID], nil
}

func newTestRecorder(decisions *memDecisions, opts ...Option) *Recorder {
	return NewRecorder(decisions, nil, Config{Attempts: 3, Backoff: time.Millisecond, Timeout: time.Second}, nil, opts...)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	r := newTestRecorder(newMemDecisions())

	_, err := r.Record(context.Background(), 1, 1, domain.DecisionLike)
	assert.ErrorIs(t, err, domain.ErrCannotDecideSelf)

	_, err = r.Record(context.Background(), 1, 2, domain.DecisionKind("maybe"))
	assert.ErrorIs(t, err, domain.ErrInvalidDecisionKind)

	assert.ErrorIs(t, r.RecordAsync(3, 3, domain.DecisionPass, nil), domain.ErrCannotDecideSelf)
}

func TestRecordIsIdempotent(t *testing.T) {
	decisions := newMemDecisions()
	r := newTestRecorder(decisions)
	ctx := context.Background()

	_, err := r.Record(ctx, 1, 2, domain.DecisionLike)
	require.NoError(t, err)
	_, err = r.Record(ctx, 1, 2, domain.DecisionLike)
	require.NoError(t, err)

	assert.Equal(t, 1, decisions.count())
	stored, ok := decisions.get(1, 2)
	require.True(t, ok)
	assert.Equal(t, domain.DecisionLike, stored.Kind)
}

func TestReciprocalLikeReportsMatchOnce(t *testing.T) {
	decisions := newMemDecisions()
	publisher := &recordingPublisher{}
	r := newTestRecorder(decisions, WithPublisher(publisher))
	ctx := context.Background()

	first, err := r.Record(ctx, 1, 2, domain.DecisionLike)
	require.NoError(t, err)
	assert.False(t, first.Matched)
	assert.Nil(t, first.Match)

	second, err := r.Record(ctx, 2, 1, domain.DecisionLike)
	require.NoError(t, err)
	assert.True(t, second.Matched)
	assert.True(t, second.NewMatch)
	require.NotNil(t, second.Match)
	assert.Equal(t, 1, second.Match.User1ID)
	assert.Equal(t, 2, second.Match.User2ID)

	again, err := r.Record(ctx, 2, 1, domain.DecisionLike)
	require.NoError(t, err)
	assert.True(t, again.Matched)
	assert.False(t, again.NewMatch)

	r.Wait()
	assert.Equal(t, 1, publisher.count())
}

func TestReciprocalPassIsNoMatch(t *testing.T) {
	r := newTestRecorder(newMemDecisions())
	ctx := context.Background()

	_, err := r.Record(ctx, 1, 2, domain.DecisionLike)
	require.NoError(t, err)

	outcome, err := r.Record(ctx, 2, 1, domain.DecisionPass)
	require.NoError(t, err)
	assert.False(t, outcome.Matched)
	assert.False(t, outcome.NewMatch)
}

func TestSuperLikeCountsAsLike(t *testing.T) {
	r := newTestRecorder(newMemDecisions())
	ctx := context.Background()

	_, err := r.Record(ctx, 1, 2, domain.DecisionSuperLike)
	require.NoError(t, err)

	outcome, err := r.Record(ctx, 2, 1, domain.DecisionLike)
	require.NoError(t, err)
	assert.True(t, outcome.NewMatch)
}

func TestMatchCarriesIcebreakers(t *testing.T) {
	profiles := &memProfiles{byUser: map[int]*domain.Profile{
		1: {UserID: 1, Interests: []string{"jazz"}},
		2: {UserID: 2, Interests: []string{"jazz"}},
	}}
	r := NewRecorder(newMemDecisions(), profiles, Config{}, nil, WithIcebreakers(staticIcebreakers{"hey"}))
	ctx := context.Background()

	_, err := r.Record(ctx, 1, 2, domain.DecisionLike)
	require.NoError(t, err)
	outcome, err := r.Record(ctx, 2, 1, domain.DecisionLike)
	require.NoError(t, err)
	require.NotNil(t, outcome.Match)
	assert.Equal(t, []string{"hey"}, outcome.Match.Icebreakers)
}

func TestRecordUpdatesExclusionCache(t *testing.T) {
	cache := &memCache{}
	r := newTestRecorder(newMemDecisions(), WithExclusionCache(cache))

	_, err := r.Record(context.Background(), 1, 2, domain.DecisionPass)
	require.NoError(t, err)

	members, err := cache.Members(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, members)
}

func TestRecordAsyncRetriesTransientFailures(t *testing.T) {
	decisions := newMemDecisions()
	decisions.failUpserts = 2
	r := newTestRecorder(decisions)

	var (
		got    *Outcome
		gotErr error
	)
	require.NoError(t, r.RecordAsync(1, 2, domain.DecisionLike, func(o *Outcome, err error) {
		got, gotErr = o, err
	}))
	r.Wait()

	require.NoError(t, gotErr)
	require.NotNil(t, got)
	assert.Equal(t, domain.DecisionLike, got.Decision.Kind)
	assert.Equal(t, 1, decisions.count())
}

func TestRecordAsyncGivesUpAfterAttempts(t *testing.T) {
	decisions := newMemDecisions()
	decisions.failUpserts = 10
	r := newTestRecorder(decisions)

	var gotErr error
	require.NoError(t, r.RecordAsync(1, 2, domain.DecisionLike, func(_ *Outcome, err error) {
		gotErr = err
	}))
	r.Wait()

	assert.ErrorIs(t, gotErr, domain.ErrRecordFailed)
	assert.Equal(t, 0, decisions.count())
	assert.Equal(t, 7, decisions.failUpserts)
}

func TestRetryAfterFailedReciprocalCheckStillAnnounces(t *testing.T) {
	decisions := newMemDecisions()
	publisher := &recordingPublisher{}
	r := newTestRecorder(decisions, WithPublisher(publisher))

	_, err := r.Record(context.Background(), 2, 1, domain.DecisionLike)
	require.NoError(t, err)

	decisions.failChecks = 1
	var (
		got    *Outcome
		gotErr error
	)
	require.NoError(t, r.RecordAsync(1, 2, domain.DecisionLike, func(o *Outcome, err error) {
		got, gotErr = o, err
	}))
	r.Wait()

	require.NoError(t, gotErr)
	require.NotNil(t, got)
	assert.True(t, got.NewMatch)
	assert.Equal(t, 2, decisions.upserts)
	assert.Equal(t, 1, publisher.count())
}

func TestLastIssuedDecisionWins(t *testing.T) {
	for i := 0; i < 50; i++ {
		decisions := newMemDecisions()
		r := newTestRecorder(decisions)

		require.NoError(t, r.RecordAsync(1, 2, domain.DecisionLike, nil))
		require.NoError(t, r.RecordAsync(1, 2, domain.DecisionPass, nil))
		r.Wait()

		stored, ok := decisions.get(1, 2)
		require.True(t, ok)
		assert.Equal(t, domain.DecisionPass, stored.Kind)
	}
}

func TestPairStateIsReleased(t *testing.T) {
	r := newTestRecorder(newMemDecisions())

	require.NoError(t, r.RecordAsync(1, 2, domain.DecisionLike, nil))
	_, err := r.Record(context.Background(), 2, 1, domain.DecisionPass)
	require.NoError(t, err)
	r.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Empty(t, r.pairs)
}
