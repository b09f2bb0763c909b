package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/infrastructure/metrics"
	"github.com/gdugdh24/mpit2026-discovery/internal/infrastructure/retry"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/scoring"
)

// Candidate is a profile prepared for display to one viewer.
type Candidate struct {
	Profile       *domain.Profile `json:"profile"`
	Age           int             `json:"age"`
	DistanceKm    *float64        `json:"distance_km,omitempty"`
	Compatibility float64         `json:"compatibility_score"`
	Sample        bool            `json:"sample,omitempty"`
}

type FetchRequest struct {
	Viewer    *domain.Profile
	Filter    domain.Filter
	Exclude   []int
	BatchSize int
}

type FetchResult struct {
	Candidates []Candidate
	// Fallback is set when the list comes from the sample dataset.
	Fallback bool
}

// CandidateSource produces one batch of candidates.
type CandidateSource interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}

type FetcherConfig struct {
	BatchSize      int
	ShuffleWindow  int
	Timeout        time.Duration
	Attempts       int
	Backoff        time.Duration
	SampleFallback bool
	// OverFetch multiplies the batch size for the store query so client
	// side filtering still leaves a full batch.
	OverFetch int
}

func (c FetcherConfig) normalized() FetcherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 12 * time.Second
	}
	if c.Attempts < 1 {
		c.Attempts = 1
	}
	if c.OverFetch < 1 {
		c.OverFetch = 3
	}
	return c
}

type Fetcher struct {
	profiles repository.ProfileRepository
	mapper   *RowMapper
	cfg      FetcherConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics

	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

func NewFetcher(profiles repository.ProfileRepository, cfg FetcherConfig, logger *zap.Logger, m *metrics.Metrics) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		profiles: profiles,
		mapper:   NewRowMapper(),
		cfg:      cfg.normalized(),
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		shuffle:  rand.Shuffle,
	}
}

// Fetch returns at most BatchSize candidates ranked by compatibility.
// Store failures are retried; once retries are spent, or the store has no
// usable rows, the sample dataset is served if enabled. Otherwise a failure
// is reported as domain.ErrFetchFailed and an empty store as an empty list.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if req.Viewer == nil {
		return nil, domain.ErrProfileNotFound
	}
	n := req.BatchSize
	if n <= 0 {
		n = f.cfg.BatchSize
	}
	started := time.Now()

	candidates, scanned, err := f.collect(ctx, req, n)
	if err != nil {
		if ctx.Err() != nil {
			f.metrics.ObserveFetch("cancelled", time.Since(started))
			return nil, ctx.Err()
		}
		if !f.cfg.SampleFallback {
			f.metrics.ObserveFetch("error", time.Since(started))
			return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
		}
		f.logger.Warn("candidate store unavailable, serving sample profiles",
			zap.Int("viewer_id", req.Viewer.UserID),
			zap.Error(err))
		return f.fallback(req, n, started), nil
	}

	if len(candidates) == 0 && f.cfg.SampleFallback {
		f.logger.Warn("no usable candidates, serving sample profiles",
			zap.Int("viewer_id", req.Viewer.UserID),
			zap.Int("rows", scanned))
		return f.fallback(req, n, started), nil
	}

	f.metrics.ObserveFetch("ok", time.Since(started))
	return &FetchResult{Candidates: f.rank(candidates, n)}, nil
}

// collect pages through the store until n candidates pass the client side
// filter or the store has no more rows. It returns the survivors and the
// number of rows read.
func (f *Fetcher) collect(ctx context.Context, req FetchRequest, n int) ([]Candidate, int, error) {
	bornFrom, bornTo := req.Filter.BirthDateRange(f.now())
	q := repository.CandidateQuery{
		ViewerID:   req.Viewer.UserID,
		Genders:    repository.GenderStrings(req.Filter.Genders),
		BornFrom:   bornFrom,
		BornTo:     bornTo,
		ExcludeIDs: lo.Filter(req.Exclude, func(id int, _ int) bool { return id > 0 }),
		Limit:      n * f.cfg.OverFetch,
	}

	var (
		candidates []Candidate
		scanned    int
	)
	seen := make(map[int]struct{})
	for {
		rows, err := f.search(ctx, q)
		if err != nil {
			if len(candidates) > 0 && ctx.Err() == nil {
				f.logger.Warn("candidate paging stopped early",
					zap.Int("viewer_id", req.Viewer.UserID),
					zap.Int("offset", q.Offset),
					zap.Error(err))
				return candidates, scanned, nil
			}
			return nil, scanned, err
		}
		scanned += len(rows)

		for _, c := range f.eligible(req, f.mapRows(rows)) {
			if _, dup := seen[c.Profile.UserID]; dup {
				continue
			}
			seen[c.Profile.UserID] = struct{}{}
			candidates = append(candidates, c)
		}
		if len(candidates) >= n || len(rows) < q.Limit {
			return candidates, scanned, nil
		}

		q.Offset += len(rows)
		f.logger.Debug("candidate page filtered short, reading next page",
			zap.Int("viewer_id", req.Viewer.UserID),
			zap.Int("kept", len(candidates)),
			zap.Int("offset", q.Offset))
	}
}

// search runs one page query, retrying transient failures.
func (f *Fetcher) search(ctx context.Context, q repository.CandidateQuery) ([]repository.ProfileRecord, error) {
	attempt := 0
	return backoff.RetryWithData(func() ([]repository.ProfileRecord, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()

		rows, err := f.profiles.SearchCandidates(attemptCtx, q)
		if err == nil {
			return rows, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("candidate query timed out after %s: %w", f.cfg.Timeout, err)
		}
		f.metrics.FetchAttemptFailed()
		f.logger.Warn("candidate query failed",
			zap.Int("viewer_id", q.ViewerID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return nil, err
	}, retry.Policy(ctx, f.cfg.Backoff, f.cfg.Attempts))
}

func (f *Fetcher) mapRows(rows []repository.ProfileRecord) []*domain.Profile {
	profiles := make([]*domain.Profile, 0, len(rows))
	for _, rec := range rows {
		p, err := f.mapper.Map(rec)
		if err != nil {
			reason := "invalid"
			var rowErr *RowError
			if errors.As(err, &rowErr) {
				reason = rowErr.Reason
			}
			f.metrics.RowDropped(reason)
			f.logger.Warn("candidate row dropped",
				zap.Int("user_id", rec.UserID),
				zap.String("reason", reason))
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles
}

func (f *Fetcher) fallback(req FetchRequest, n int, started time.Time) *FetchResult {
	candidates := f.rank(f.eligible(req, SampleProfiles(f.now())), n)
	for i := range candidates {
		candidates[i].Sample = true
	}
	f.metrics.ObserveFetch("fallback", time.Since(started))
	return &FetchResult{Candidates: candidates, Fallback: true}
}

// eligible applies the client side part of the filter and scores what
// survives.
func (f *Fetcher) eligible(req FetchRequest, profiles []*domain.Profile) []Candidate {
	viewer := req.Viewer
	filter := req.Filter
	now := f.now()
	excluded := lo.SliceToMap(req.Exclude, func(id int) (int, struct{}) { return id, struct{}{} })
	wanted := scoring.InterestSet(filter.Interests)

	profiles = lo.UniqBy(profiles, func(p *domain.Profile) int { return p.UserID })

	candidates := make([]Candidate, 0, len(profiles))
	for _, p := range profiles {
		if p.UserID == viewer.UserID {
			continue
		}
		if _, skip := excluded[p.UserID]; skip {
			continue
		}
		if !filter.AcceptsGender(p.Gender) {
			continue
		}
		age := p.Age(now)
		if !filter.AcceptsAge(age) {
			continue
		}
		if len(wanted) > 0 && !sharesAny(wanted, p.Interests) {
			continue
		}

		c := Candidate{
			Profile:       p,
			Age:           age,
			Compatibility: scoring.ProfileCompatibility(viewer, p),
		}
		if d, ok := scoring.ProfileDistance(viewer, p); ok {
			if d > filter.MaxDistanceKm {
				continue
			}
			c.DistanceKm = &d
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// rank orders by compatibility, shuffles within windows and keeps the
// first n. Ties keep store order.
func (f *Fetcher) rank(candidates []Candidate, n int) []Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Compatibility > candidates[j].Compatibility
	})
	f.shuffleWindows(candidates, n)

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// shuffleWindows shuffles each window of ShuffleWindow entries that
// overlaps the first n.
func (f *Fetcher) shuffleWindows(candidates []Candidate, n int) {
	w := f.cfg.ShuffleWindow
	if w <= 1 || f.shuffle == nil {
		return
	}
	for start := 0; start < len(candidates) && start < n; start += w {
		window := candidates[start:min(start+w, len(candidates))]
		f.shuffle(len(window), func(i, j int) {
			window[i], window[j] = window[j], window[i]
		})
	}
}

func sharesAny(wanted map[string]struct{}, interests []string) bool {
	for _, tag := range interests {
		if _, ok := wanted[scoring.NormalizeInterest(tag)]; ok {
			return true
		}
	}
	return false
}
