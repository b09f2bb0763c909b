package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/swipe"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func record(userID, age int, gender domain.Gender, interests ...string) repository.ProfileRecord {
	return repository.ProfileRecord{
		ID:        userID,
		UserID:    userID,
		FirstName: ptr(fmt.Sprintf("User%d", userID)),
		BirthDate: ptr(testNow.AddDate(-age, 0, -1)),
		Gender:    ptr(string(gender)),
		Photos:    pq.StringArray{fmt.Sprintf("https://cdn.example/%d/0.jpg", userID)},
		Interests: pq.StringArray(interests),
	}
}

func located(rec repository.ProfileRecord, lat, lon float64) repository.ProfileRecord {
	rec.LocationLat = ptr(lat)
	rec.LocationLon = ptr(lon)
	return rec
}

func viewerProfile(interests ...string) *domain.Profile {
	return &domain.Profile{
		ID:          1,
		UserID:      1,
		FirstName:   "Viewer",
		BirthDate:   testNow.AddDate(-27, 0, 0),
		Gender:      domain.GenderFemale,
		Interests:   interests,
		LocationLat: ptr(55.7558),
		LocationLon: ptr(37.6173),
	}
}

func openFilter() domain.Filter {
	return domain.Filter{
		MinAge:        18,
		MaxAge:        100,
		MaxDistanceKm: 50,
		Genders:       domain.AllGenders,
	}
}

// storeProfiles is an in-memory ProfileRepository.
type storeProfiles struct {
	mu       sync.Mutex
	byUser   map[int]*domain.Profile
	rows     []repository.ProfileRecord
	failures int
	calls    int
	queries  []repository.CandidateQuery
	block    bool
}

func (s *storeProfiles) Create(_ context.Context, p *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byUser == nil {
		s.byUser = make(map[int]*domain.Profile)
	}
	s.byUser[p.UserID] = p
	return nil
}

func (s *storeProfiles) GetByUserID(_ context.Context, userID int) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byUser[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p, nil
}

func (s *storeProfiles) UpdatePreferences(context.Context, *domain.Profile) error { return nil }

func (s *storeProfiles) SearchCandidates(ctx context.Context, q repository.CandidateQuery) ([]repository.ProfileRecord, error) {
	s.mu.Lock()
	s.calls++
	s.queries = append(s.queries, q)
	block := s.block
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	rows := page(s.rows, q.Offset, q.Limit)
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, fmt.Errorf("connection refused")
	}
	return rows, nil
}

// page mirrors LIMIT/OFFSET; a zero limit returns everything after offset.
func page(rows []repository.ProfileRecord, offset, limit int) []repository.ProfileRecord {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return append([]repository.ProfileRecord(nil), rows...)
}

func (s *storeProfiles) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// storeDecisions is a DecisionRepository that only answers ListTargets.
type storeDecisions struct {
	targets map[int][]int
	err     error
}

func (d *storeDecisions) Upsert(context.Context, *domain.Decision) (*domain.DecisionKind, error) {
	return nil, nil
}

func (d *storeDecisions) HasPositive(context.Context, int, int) (bool, error) { return false, nil }

func (d *storeDecisions) ListTargets(_ context.Context, actorID int) ([]int, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.targets[actorID], nil
}

// scriptedSource hands out prepared batches and can hold a fetch open.
type scriptedSource struct {
	mu       sync.Mutex
	batches  [][]Candidate
	err      error
	calls    int
	requests []FetchRequest
	started  chan struct{}
	release  chan struct{}
	canceled bool
}

func (s *scriptedSource) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	s.mu.Lock()
	s.calls++
	s.requests = append(s.requests, req)
	started, release := s.started, s.release
	var batch []Candidate
	if len(s.batches) > 0 {
		batch = s.batches[0]
		s.batches = s.batches[1:]
	}
	err := s.err
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			s.mu.Lock()
			s.canceled = true
			s.mu.Unlock()
			<-release
		}
	}
	if err != nil {
		return nil, err
	}
	return &FetchResult{Candidates: batch}, nil
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedSource) lastRequest() FetchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func candidates(ids ...int) []Candidate {
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, Candidate{Profile: &domain.Profile{
			UserID:    id,
			FirstName: fmt.Sprintf("User%d", id),
			Photos: []string{
				fmt.Sprintf("https://cdn.example/%d/0.jpg", id),
				fmt.Sprintf("https://cdn.example/%d/1.jpg", id),
				fmt.Sprintf("https://cdn.example/%d/2.jpg", id),
			},
		}})
	}
	return out
}

type recordedCall struct {
	actorID, targetID int
	kind              domain.DecisionKind
	done              func(*swipe.Outcome, error)
}

// manualRecorder keeps RecordAsync calls so tests decide when they finish.
type manualRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *manualRecorder) RecordAsync(actorID, targetID int, kind domain.DecisionKind, done func(*swipe.Outcome, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{actorID, targetID, kind, done})
	return nil
}

func (r *manualRecorder) snapshot() []recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedCall(nil), r.calls...)
}

func ids(cs []Candidate) []int {
	out := make([]int, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Profile.UserID)
	}
	return out
}
