package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
)

func newTestFetcher(store *storeProfiles, cfg FetcherConfig) *Fetcher {
	f := NewFetcher(store, cfg, nil, nil)
	f.now = func() time.Time { return testNow }
	f.mapper.now = f.now
	return f
}

func fetchRequest(viewer *domain.Profile, exclude ...int) FetchRequest {
	return FetchRequest{Viewer: viewer, Filter: openFilter(), Exclude: exclude, BatchSize: 20}
}

func TestFetchNeverReturnsSelfOrExcluded(t *testing.T) {
	store := &storeProfiles{rows: []repository.ProfileRecord{
		record(1, 27, domain.GenderFemale),
		record(2, 25, domain.GenderMale),
		record(3, 25, domain.GenderMale),
		record(4, 25, domain.GenderMale),
		record(5, 25, domain.GenderMale),
		record(6, 25, domain.GenderMale),
	}}
	f := newTestFetcher(store, FetcherConfig{})

	res, err := f.Fetch(context.Background(), fetchRequest(viewerProfile(), 3, 5))
	require.NoError(t, err)

	got := ids(res.Candidates)
	assert.ElementsMatch(t, []int{2, 4, 6}, got)
	assert.NotContains(t, got, 1)
	assert.False(t, res.Fallback)

	require.Len(t, store.queries, 1)
	assert.Equal(t, []int{3, 5}, store.queries[0].ExcludeIDs)
	assert.Equal(t, 60, store.queries[0].Limit)
}

func TestFetchRespectsMaxDistance(t *testing.T) {
	store := &storeProfiles{rows: []repository.ProfileRecord{
		located(record(2, 25, domain.GenderMale), 55.7600, 37.6200),
		located(record(3, 25, domain.GenderMale), 59.9343, 30.3351),
		record(4, 25, domain.GenderMale),
	}}
	f := newTestFetcher(store, FetcherConfig{})
	viewer := viewerProfile()

	res, err := f.Fetch(context.Background(), fetchRequest(viewer))
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{2, 4}, ids(res.Candidates))
	for _, c := range res.Candidates {
		if c.Profile.HasLocation() {
			require.NotNil(t, c.DistanceKm)
			assert.LessOrEqual(t, *c.DistanceKm, 50.0)
		} else {
			assert.Nil(t, c.DistanceKm)
		}
	}
}

func TestFetchWithoutViewerLocationSkipsDistance(t *testing.T) {
	store := &storeProfiles{rows: []repository.ProfileRecord{
		located(record(3, 25, domain.GenderMale), 59.9343, 30.3351),
	}}
	f := newTestFetcher(store, FetcherConfig{})
	viewer := viewerProfile()
	viewer.LocationLat, viewer.LocationLon = nil, nil

	res, err := f.Fetch(context.Background(), fetchRequest(viewer))
	require.NoError(t, err)
	assert.Equal(t, []int{3}, ids(res.Candidates))
}

func TestFetchRanksByCompatibilityKeepingStoreOrderOnTies(t *testing.T) {
	store := &storeProfiles{rows: []repository.ProfileRecord{
		record(2, 25, domain.GenderMale),
		record(3, 25, domain.GenderMale, "art"),
		record(4, 25, domain.GenderMale, "art", "jazz", "chess"),
		record(5, 25, domain.GenderMale, "Art"),
	}}
	f := newTestFetcher(store, FetcherConfig{ShuffleWindow: 1})

	res, err := f.Fetch(context.Background(), fetchRequest(viewerProfile("art", "jazz", "chess")))
	require.NoError(t, err)

	assert.Equal(t, []int{4, 3, 5, 2}, ids(res.Candidates))
	assert.Equal(t, 100.0, res.Candidates[0].Compatibility)
	assert.Equal(t, 0.0, res.Candidates[3].Compatibility)
}

func TestFetchShufflesWithinWindows(t *testing.T) {
	store := &storeProfiles{rows: []repository.ProfileRecord{
		record(2, 25, domain.GenderMale, "a", "b", "c", "d", "e"),
		record(3, 25, domain.GenderMale, "a", "b", "c", "d"),
		record(4, 25, domain.GenderMale, "a", "b", "c"),
		record(5, 25, domain.GenderMale, "a", "b"),
		record(6, 25, domain.GenderMale, "a"),
	}}
	f := newTestFetcher(store, FetcherConfig{ShuffleWindow: 2})
	f.shuffle = func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}

	req := fetchRequest(viewerProfile("a", "b", "c", "d", "e"))
	req.BatchSize = 3
	res, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 2, 5}, ids(res.Candidates))
}

func TestFetchDropsMalformedRows(t *testing.T) {
	noBirth := record(3, 25, domain.GenderMale)
	noBirth.BirthDate = nil
	halfLocated := record(5, 25, domain.GenderMale)
	halfLocated.LocationLon = ptr(30.0)

	store := &storeProfiles{rows: []repository.ProfileRecord{
		record(2, 25, domain.GenderMale),
		noBirth,
		record(4, 16, domain.GenderMale),
		halfLocated,
	}}
	f := newTestFetcher(store, FetcherConfig{})

	res, err := f.Fetch(context.Background(), fetchRequest(viewerProfile()))
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{2, 5}, ids(res.Candidates))
}

func TestFetchAppliesClientSideFilter(t *testing.T) {
	store := &storeProfiles{rows: []repository.ProfileRecord{
		record(2, 25, domain.GenderMale, "chess"),
		record(2, 25, domain.GenderMale, "chess"),
		record(3, 25, domain.GenderFemale, "chess"),
		record(4, 45, domain.GenderMale, "chess"),
		record(5, 25, domain.GenderMale, "golf"),
	}}
	f := newTestFetcher(store, FetcherConfig{})

	req := fetchRequest(viewerProfile())
	req.Filter.Genders = []domain.Gender{domain.GenderMale}
	req.Filter.MaxAge = 40
	req.Filter.Interests = []string{"chess"}

	res, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ids(res.Candidates))
	assert.Equal(t, []string{"male"}, store.queries[0].Genders)
}

func TestFetchTruncatesToBatchSize(t *testing.T) {
	store := &storeProfiles{}
	for id := 2; id < 12; id++ {
		store.rows = append(store.rows, record(id, 25, domain.GenderMale))
	}
	f := newTestFetcher(store, FetcherConfig{ShuffleWindow: 1})

	req := fetchRequest(viewerProfile())
	req.BatchSize = 3
	res, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, ids(res.Candidates))
}

func TestFetchPagesPastFilteredRows(t *testing.T) {
	store := &storeProfiles{}
	for id := 2; id < 8; id++ {
		store.rows = append(store.rows, located(record(id, 25, domain.GenderMale), 59.9343, 30.3351))
	}
	store.rows = append(store.rows, located(record(99, 25, domain.GenderMale), 55.7600, 37.6200))
	f := newTestFetcher(store, FetcherConfig{})

	req := fetchRequest(viewerProfile())
	req.BatchSize = 2
	res, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []int{99}, ids(res.Candidates))
	require.Len(t, store.queries, 2)
	assert.Equal(t, 6, store.queries[0].Limit)
	assert.Equal(t, 0, store.queries[0].Offset)
	assert.Equal(t, 6, store.queries[1].Offset)
}

func TestFetchStopsPagingOnceBatchIsFull(t *testing.T) {
	store := &storeProfiles{}
	for id := 2; id < 20; id++ {
		store.rows = append(store.rows, record(id, 25, domain.GenderMale))
	}
	f := newTestFetcher(store, FetcherConfig{ShuffleWindow: 1})

	req := fetchRequest(viewerProfile())
	req.BatchSize = 2
	res, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, ids(res.Candidates))
	assert.Equal(t, 1, store.callCount())
}

func TestQueueServesCandidateBeyondFirstPage(t *testing.T) {
	store := &storeProfiles{}
	for id := 2; id < 8; id++ {
		store.rows = append(store.rows, located(record(id, 25, domain.GenderMale), 59.9343, 30.3351))
	}
	store.rows = append(store.rows, located(record(99, 25, domain.GenderMale), 55.7600, 37.6200))
	f := newTestFetcher(store, FetcherConfig{})

	q := NewQueue(f, viewerProfile(), openFilter(), 2)
	require.NoError(t, q.Replenish(context.Background()))

	current, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, 99, current.Profile.UserID)
	assert.Equal(t, QueueReady, q.State())
	assert.False(t, q.NoMore())
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	store := &storeProfiles{failures: 2, rows: []repository.ProfileRecord{record(2, 25, domain.GenderMale)}}
	f := newTestFetcher(store, FetcherConfig{Attempts: 3})

	res, err := f.Fetch(context.Background(), fetchRequest(viewerProfile()))
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, []int{2}, ids(res.Candidates))
	assert.Equal(t, 3, store.callCount())
}

func TestFetchFallsBackToSamples(t *testing.T) {
	store := &storeProfiles{failures: 10}
	f := newTestFetcher(store, FetcherConfig{Attempts: 2, SampleFallback: true})
	viewer := viewerProfile()
	viewer.LocationLat, viewer.LocationLon = nil, nil

	res, err := f.Fetch(context.Background(), fetchRequest(viewer))
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, 2, store.callCount())
	require.NotEmpty(t, res.Candidates)
	for _, c := range res.Candidates {
		assert.True(t, c.Sample)
		assert.True(t, IsSample(c.Profile.UserID))
		require.NotNil(t, c.Profile.Bio)
		assert.Contains(t, *c.Profile.Bio, SampleLabel)
	}
}

func TestFetchFailsWithoutFallback(t *testing.T) {
	store := &storeProfiles{failures: 10}
	f := newTestFetcher(store, FetcherConfig{Attempts: 2})

	_, err := f.Fetch(context.Background(), fetchRequest(viewerProfile()))
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
}

func TestFetchEmptyStore(t *testing.T) {
	f := newTestFetcher(&storeProfiles{}, FetcherConfig{})
	res, err := f.Fetch(context.Background(), fetchRequest(viewerProfile()))
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.False(t, res.Fallback)

	f = newTestFetcher(&storeProfiles{}, FetcherConfig{SampleFallback: true})
	viewer := viewerProfile()
	res, err = f.Fetch(context.Background(), fetchRequest(viewer))
	require.NoError(t, err)
	assert.True(t, res.Fallback)
}

func TestFetchSampleFallbackHonoursExclusions(t *testing.T) {
	f := newTestFetcher(&storeProfiles{}, FetcherConfig{SampleFallback: true})
	viewer := viewerProfile()
	viewer.LocationLat, viewer.LocationLon = nil, nil

	var all []int
	for _, p := range SampleProfiles(testNow) {
		all = append(all, p.UserID)
	}

	res, err := f.Fetch(context.Background(), fetchRequest(viewer, all...))
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Empty(t, storeOf(f).queries[0].ExcludeIDs)
}

func storeOf(f *Fetcher) *storeProfiles {
	return f.profiles.(*storeProfiles)
}

func TestFetchTimesOutAndStopsOnCancel(t *testing.T) {
	blocking := &storeProfiles{block: true}
	f := newTestFetcher(blocking, FetcherConfig{Timeout: 20 * time.Millisecond, Attempts: 2})

	_, err := f.Fetch(context.Background(), fetchRequest(viewerProfile()))
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.Equal(t, 2, blocking.callCount())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, fetchRequest(viewerProfile()))
	assert.ErrorIs(t, err, context.Canceled)
}
