package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/gdugdh24/mpit2026-discovery/internal/delivery/http/middleware"
	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/discovery"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/gesture"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/profile"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/swipe"
)

const testSecret = "handler-test-secret-handler-test-secret"

type memProfiles struct {
	mu     sync.Mutex
	byUser map[int]*domain.Profile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{byUser: make(map[int]*domain.Profile)}
}

func (m *memProfiles) Create(_ context.Context, p *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUser[p.UserID]; ok {
		return domain.ErrProfileAlreadyExists
	}
	p.ID = len(m.byUser) + 1
	m.byUser[p.UserID] = p
	return nil
}

func (m *memProfiles) GetByUserID(_ context.Context, userID int) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) UpdatePreferences(_ context.Context, p *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byUser[p.UserID] = &cp
	return nil
}

func (m *memProfiles) SearchCandidates(context.Context, repository.CandidateQuery) ([]repository.ProfileRecord, error) {
	return nil, nil
}

// stubSource serves a fixed candidate list minus the excluded ids.
type stubSource struct {
	candidates []discovery.Candidate
	err        error
}

func (s *stubSource) Fetch(_ context.Context, req discovery.FetchRequest) (*discovery.FetchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	excluded := make(map[int]bool, len(req.Exclude))
	for _, id := range req.Exclude {
		excluded[id] = true
	}
	var out []discovery.Candidate
	for _, c := range s.candidates {
		if !excluded[c.Profile.UserID] && len(out) < req.BatchSize {
			out = append(out, c)
		}
	}
	return &discovery.FetchResult{Candidates: out}, nil
}

// asyncRecorder reports every decision as saved from another goroutine.
type asyncRecorder struct {
	mu    sync.Mutex
	calls []domain.DecisionKind
	fail  bool
}

func (r *asyncRecorder) RecordAsync(actorID, targetID int, kind domain.DecisionKind, done func(*swipe.Outcome, error)) error {
	r.mu.Lock()
	r.calls = append(r.calls, kind)
	fail := r.fail
	r.mu.Unlock()

	go func() {
		if fail {
			done(nil, domain.ErrRecordFailed)
			return
		}
		done(&swipe.Outcome{Decision: &domain.Decision{
			ActorID:   actorID,
			TargetID:  targetID,
			Kind:      kind,
			DecidedAt: time.Now().UTC(),
		}}, nil)
	}()
	return nil
}

func (r *asyncRecorder) kinds() []domain.DecisionKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DecisionKind(nil), r.calls...)
}

func candidate(userID int, name string) discovery.Candidate {
	return discovery.Candidate{
		Profile: &domain.Profile{
			UserID:    userID,
			FirstName: name,
			BirthDate: time.Date(1995, 5, 5, 0, 0, 0, 0, time.UTC),
			Gender:    domain.GenderFemale,
			Photos:    []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"},
			Interests: []string{"jazz"},
		},
		Age: 31,
	}
}

type testEnv struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	profiles *memProfiles
	source   *stubSource
	recorder *asyncRecorder
	sessions *discovery.SessionManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		auth:     middleware.NewAuthMiddleware(testSecret),
		profiles: newMemProfiles(),
		source: &stubSource{candidates: []discovery.Candidate{
			candidate(101, "Alice"),
			candidate(102, "Bella"),
			candidate(103, "Clara"),
		}},
		recorder: &asyncRecorder{},
	}
	env.sessions = discovery.NewSessionManager(env.profiles, nil, nil, env.source, env.recorder, discovery.ManagerConfig{
		BatchSize: 10,
		Filter:    discovery.FilterDefaults{MaxDistanceKm: 50, MaxDistanceCapKm: 500},
		Gesture:   gesture.DefaultConfig(),
	}, nil, nil)
	t.Cleanup(env.sessions.CloseAll)

	profileHandler := NewProfileHandler(profile.NewProfileUseCase(env.profiles, 500, nil), nil)
	discoveryHandler := NewDiscoveryHandler(env.sessions, nil)
	streamHandler := NewStreamHandler(env.sessions, nil)

	r := gin.New()
	api := r.Group("/api/v1", env.auth.RequireAuth())
	api.POST("/profile", profileHandler.CreateProfile)
	api.GET("/profile/me", profileHandler.GetMyProfile)
	api.PUT("/profile/me/preferences", profileHandler.UpdatePreferences)
	api.GET("/profile/:user_id", profileHandler.GetProfileByUserID)
	session := api.Group("/discovery/session")
	session.POST("", discoveryHandler.OpenSession)
	session.GET("", discoveryHandler.GetSession)
	session.DELETE("", discoveryHandler.CloseSession)
	session.POST("/gesture", discoveryHandler.Gesture)
	session.POST("/animation-done", discoveryHandler.AnimationDone)
	session.POST("/decision", discoveryHandler.Decision)
	session.POST("/photo", discoveryHandler.Photo)
	session.POST("/replenish", discoveryHandler.Replenish)
	session.GET("/stream", streamHandler.Stream)
	env.engine = r
	return env
}

func (env *testEnv) token(t *testing.T, userID int) string {
	t.Helper()
	token, err := env.auth.IssueToken(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (env *testEnv) addViewer(userID int) {
	lat, lon := 55.75, 37.61
	env.profiles.byUser[userID] = &domain.Profile{
		UserID:      userID,
		FirstName:   "Viewer",
		BirthDate:   time.Date(1994, 1, 1, 0, 0, 0, 0, time.UTC),
		Gender:      domain.GenderMale,
		Interests:   []string{"jazz"},
		LocationLat: &lat,
		LocationLon: &lon,
		LookingFor:  []domain.Gender{domain.GenderFemale},
	}
}

func (env *testEnv) do(t *testing.T, userID int, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+env.token(t, userID))
	}
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
