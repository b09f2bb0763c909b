package discovery

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
)

type QueueState string

const (
	QueueReady       QueueState = "ready"
	QueueLoading     QueueState = "loading"
	QueueExhausted   QueueState = "exhausted"
	QueueFetchFailed QueueState = "fetch_failed"
)

// Queue serves one viewer's candidates one at a time. Replenish calls are
// serialized: a call made while a fetch is in flight joins that fetch.
type Queue struct {
	source    CandidateSource
	viewer    *domain.Profile
	filter    domain.Filter
	batchSize int

	// ctx bounds every fetch; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu       sync.Mutex
	items    []Candidate
	index    int
	excluded map[int]struct{}
	fetched  bool
	loading  bool
	noMore   bool
	fallback bool
	lastErr  error
	closed   bool
}

func NewQueue(source CandidateSource, viewer *domain.Profile, filter domain.Filter, batchSize int) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		source:    source,
		viewer:    viewer,
		filter:    filter,
		batchSize: batchSize,
		ctx:       ctx,
		cancel:    cancel,
		excluded:  make(map[int]struct{}),
	}
}

// Current returns the candidate on screen, or false once exhausted.
func (q *Queue) Current() (Candidate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index >= len(q.items) {
		return Candidate{}, false
	}
	return q.items[q.index], true
}

func (q *Queue) Advance() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index < len(q.items) {
		q.index++
	}
}

func (q *Queue) IsExhausted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index >= len(q.items)
}

// Remaining counts candidates not yet shown, the current one included.
func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.index
}

// NoMore is true after a replenish produced nothing new to show.
func (q *Queue) NoMore() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.noMore
}

func (q *Queue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stateLocked()
}

func (q *Queue) stateLocked() QueueState {
	switch {
	case q.index < len(q.items):
		return QueueReady
	case q.loading || !q.fetched:
		return QueueLoading
	case q.lastErr != nil:
		return QueueFetchFailed
	default:
		return QueueExhausted
	}
}

// QueueView is a consistent read of the queue taken under one lock.
type QueueView struct {
	State     QueueState
	Remaining int
	Fallback  bool
	Current   *Candidate
}

func (q *Queue) View() QueueView {
	q.mu.Lock()
	defer q.mu.Unlock()
	v := QueueView{
		State:     q.stateLocked(),
		Remaining: len(q.items) - q.index,
		Fallback:  q.fallback,
	}
	if q.index < len(q.items) {
		cur := q.items[q.index]
		v.Current = &cur
	}
	return v
}

// Err is the error of the last failed replenish, if it was not followed by
// a successful one.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

// Fallback reports whether the current list is the sample dataset.
func (q *Queue) Fallback() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fallback
}

func (q *Queue) RecordExclusion(targetIDs ...int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range targetIDs {
		q.excluded[id] = struct{}{}
	}
}

// Excluded returns the accumulated exclusion set in ascending order.
func (q *Queue) Excluded() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.excludedLocked()
}

func (q *Queue) excludedLocked() []int {
	ids := make([]int, 0, len(q.excluded))
	for id := range q.excluded {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Replenish fetches a new batch with the accumulated exclusions, replaces
// the list and rewinds to its start. ctx only bounds how long the caller
// waits; the fetch itself lives until it completes or the queue is closed.
func (q *Queue) Replenish(ctx context.Context) error {
	ch := q.group.DoChan("replenish", func() (any, error) {
		return nil, q.replenish()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markLoading makes the queue report loading until the next replenish
// finishes, covering the gap before a background replenish starts.
func (q *Queue) markLoading() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.loading = true
	}
}

func (q *Queue) replenish() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrSessionClosed
	}
	req := FetchRequest{
		Viewer:    q.viewer,
		Filter:    q.filter,
		Exclude:   q.excludedLocked(),
		BatchSize: q.batchSize,
	}
	q.loading = true
	q.mu.Unlock()

	res, err := q.source.Fetch(q.ctx, req)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.loading = false
	if q.closed {
		return domain.ErrSessionClosed
	}
	q.fetched = true
	if err != nil {
		q.lastErr = err
		return err
	}

	// Decisions made while the fetch was in flight are not re-served.
	items := make([]Candidate, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		if _, skip := q.excluded[c.Profile.UserID]; !skip {
			items = append(items, c)
		}
	}
	q.items = items
	q.index = 0
	q.lastErr = nil
	q.fallback = res.Fallback
	q.noMore = len(items) == 0
	return nil
}

// Close cancels an in-flight fetch; its result will be discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cancel()
	q.items = nil
	q.index = 0
}
