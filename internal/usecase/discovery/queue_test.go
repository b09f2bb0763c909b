package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
)

func TestQueueConsumesUntilExhausted(t *testing.T) {
	source := &scriptedSource{batches: [][]Candidate{candidates(2, 3, 4)}}
	q := NewQueue(source, viewerProfile(), openFilter(), 20)
	assert.Equal(t, QueueLoading, q.State())

	require.NoError(t, q.Replenish(context.Background()))
	assert.Equal(t, QueueReady, q.State())

	for _, want := range []int{2, 3, 4} {
		cur, ok := q.Current()
		require.True(t, ok)
		assert.Equal(t, want, cur.Profile.UserID)
		assert.False(t, q.IsExhausted())
		q.Advance()
	}

	assert.True(t, q.IsExhausted())
	_, ok := q.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Remaining())

	q.Advance()
	assert.True(t, q.IsExhausted())
}

func TestQueueEmptyReplenishReportsNoMore(t *testing.T) {
	source := &scriptedSource{}
	q := NewQueue(source, viewerProfile(), openFilter(), 20)

	require.NoError(t, q.Replenish(context.Background()))

	assert.True(t, q.NoMore())
	assert.True(t, q.IsExhausted())
	assert.Equal(t, QueueExhausted, q.State())
	assert.Equal(t, 1, source.callCount())
}

func TestQueueFetchFailure(t *testing.T) {
	source := &scriptedSource{err: domain.ErrFetchFailed}
	q := NewQueue(source, viewerProfile(), openFilter(), 20)

	err := q.Replenish(context.Background())
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.Equal(t, QueueFetchFailed, q.State())
	assert.ErrorIs(t, q.Err(), domain.ErrFetchFailed)
}

func TestQueuePassesExclusions(t *testing.T) {
	source := &scriptedSource{batches: [][]Candidate{candidates(2, 7, 3)}}
	q := NewQueue(source, viewerProfile(), openFilter(), 5)
	q.RecordExclusion(9, 7)

	require.NoError(t, q.Replenish(context.Background()))

	req := source.lastRequest()
	assert.Equal(t, []int{7, 9}, req.Exclude)
	assert.Equal(t, 5, req.BatchSize)
	assert.Equal(t, []int{7, 9}, q.Excluded())
	assert.Equal(t, 2, q.Remaining())
}

func TestQueueReplenishIsSerialized(t *testing.T) {
	source := &scriptedSource{
		batches: [][]Candidate{candidates(2), candidates(3)},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	q := NewQueue(source, viewerProfile(), openFilter(), 20)

	first := make(chan error, 1)
	go func() { first <- q.Replenish(context.Background()) }()
	<-source.started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Replenish(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, source.callCount())
	assert.Equal(t, QueueLoading, q.State())

	close(source.release)
	require.NoError(t, <-first)
	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, 2, cur.Profile.UserID)

	source.mu.Lock()
	source.started = nil
	source.mu.Unlock()
	require.NoError(t, q.Replenish(context.Background()))
	assert.Equal(t, 2, source.callCount())
}

func TestQueueCloseDiscardsLateResult(t *testing.T) {
	source := &scriptedSource{
		batches: [][]Candidate{candidates(2, 3)},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	q := NewQueue(source, viewerProfile(), openFilter(), 20)

	done := make(chan error, 1)
	go func() { done <- q.Replenish(context.Background()) }()
	<-source.started

	q.Close()
	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return source.canceled
	}, time.Second, 5*time.Millisecond)
	close(source.release)

	err := <-done
	assert.True(t, errors.Is(err, domain.ErrSessionClosed))
	_, ok := q.Current()
	assert.False(t, ok)

	assert.ErrorIs(t, q.Replenish(context.Background()), domain.ErrSessionClosed)
}

func TestQueueSkipsCandidatesDecidedDuringFetch(t *testing.T) {
	source := &scriptedSource{
		batches: [][]Candidate{candidates(2, 3, 4)},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	q := NewQueue(source, viewerProfile(), openFilter(), 20)

	done := make(chan error, 1)
	go func() { done <- q.Replenish(context.Background()) }()
	<-source.started
	q.RecordExclusion(3)
	close(source.release)
	require.NoError(t, <-done)

	var got []int
	for !q.IsExhausted() {
		cur, _ := q.Current()
		got = append(got, cur.Profile.UserID)
		q.Advance()
	}
	assert.Equal(t, []int{2, 4}, got)
}

func TestQueueViewIsConsistent(t *testing.T) {
	source := &scriptedSource{}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			source.batches = append(source.batches, candidates(2, 3))
		} else {
			source.batches = append(source.batches, nil)
		}
	}
	q := NewQueue(source, viewerProfile(), openFilter(), 20)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = q.Replenish(context.Background())
			q.Advance()
		}
	}()

	for {
		v := q.View()
		assert.Equal(t, v.State == QueueReady, v.Current != nil, "state %s", v.State)
		assert.Equal(t, v.Current != nil, v.Remaining > 0)
		select {
		case <-done:
			return
		default:
		}
	}
}
