package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/infrastructure/metrics"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/gesture"
)

type ManagerConfig struct {
	BatchSize int
	Filter    FilterDefaults
	Gesture   gesture.Config
}

type OpenOptions struct {
	Overrides Overrides
	// ScreenWidth of the client in points; zero keeps the configured width.
	ScreenWidth float64
}

// SessionManager keeps at most one live session per viewer.
type SessionManager struct {
	profiles  repository.ProfileRepository
	cache     repository.ExclusionCache
	decisions repository.DecisionRepository
	source    CandidateSource
	recorder  DecisionRecorder
	cfg       ManagerConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	sessions map[int]*Session
}

func NewSessionManager(
	profiles repository.ProfileRepository,
	cache repository.ExclusionCache,
	decisions repository.DecisionRepository,
	source CandidateSource,
	recorder DecisionRecorder,
	cfg ManagerConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		profiles:  profiles,
		cache:     cache,
		decisions: decisions,
		source:    source,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		sessions:  make(map[int]*Session),
	}
}

// Open starts a fresh session for the viewer and loads the first batch.
// A session the viewer already had is closed. A failed first fetch still
// returns the session; its snapshot reports the failure. If ctx ends before
// the first batch arrives the new session is closed and ctx.Err returned.
func (m *SessionManager) Open(ctx context.Context, viewerID int, opts OpenOptions) (*Session, error) {
	viewer, err := m.profiles.GetByUserID(ctx, viewerID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load viewer profile: %w", err)
	}

	filter := BuildFilter(viewer, opts.Overrides, m.cfg.Filter)
	queue := NewQueue(m.source, viewer, filter, m.cfg.BatchSize)
	m.seedExclusions(ctx, queue, viewerID)

	gcfg := m.cfg.Gesture
	if opts.ScreenWidth > 0 {
		gcfg = gcfg.WithScreenWidth(opts.ScreenWidth)
	}
	s := newSession(uuid.NewString(), viewer, filter, queue, m.recorder, gcfg, m.logger)

	m.mu.Lock()
	prev := m.sessions[viewerID]
	m.sessions[viewerID] = s
	m.mu.Unlock()

	if prev != nil && prev.Close() {
		m.metrics.SessionClosed()
	}
	m.metrics.SessionOpened()
	m.logger.Debug("discovery session opened",
		zap.String("session_id", s.ID()),
		zap.Int("viewer_id", viewerID),
		zap.Any("filter", filter))

	if err := s.Replenish(ctx); err != nil && ctx.Err() != nil {
		m.discard(viewerID, s)
		return nil, ctx.Err()
	}
	return s, nil
}

// discard closes s and unmaps it unless a newer session replaced it.
func (m *SessionManager) discard(viewerID int, s *Session) {
	m.mu.Lock()
	if m.sessions[viewerID] == s {
		delete(m.sessions, viewerID)
	}
	m.mu.Unlock()

	if s.Close() {
		m.metrics.SessionClosed()
		m.logger.Debug("discovery session abandoned",
			zap.String("session_id", s.ID()),
			zap.Int("viewer_id", viewerID))
	}
}

// seedExclusions reads the viewer's decided targets from the cache. On a
// cache miss or outage the decision store is read instead and the cache
// is warmed from it.
func (m *SessionManager) seedExclusions(ctx context.Context, queue *Queue, viewerID int) {
	cacheUp := false
	if m.cache != nil {
		ids, err := m.cache.Members(ctx, viewerID)
		if err == nil && len(ids) > 0 {
			queue.RecordExclusion(ids...)
			return
		}
		cacheUp = err == nil
		if err != nil {
			m.logger.Warn("exclusion cache unavailable",
				zap.Int("viewer_id", viewerID),
				zap.Error(err))
		}
	}
	if m.decisions == nil {
		return
	}

	ids, err := m.decisions.ListTargets(ctx, viewerID)
	if err != nil {
		m.logger.Warn("decided targets unavailable",
			zap.Int("viewer_id", viewerID),
			zap.Error(err))
		return
	}
	queue.RecordExclusion(ids...)
	if cacheUp && len(ids) > 0 {
		if err := m.cache.Add(ctx, viewerID, ids...); err != nil {
			m.logger.Warn("exclusion cache warm-up failed",
				zap.Int("viewer_id", viewerID),
				zap.Error(err))
		}
	}
}

func (m *SessionManager) Get(viewerID int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[viewerID]
	if !ok {
		return nil, domain.ErrNoSession
	}
	return s, nil
}

func (m *SessionManager) Close(viewerID int) error {
	m.mu.Lock()
	s, ok := m.sessions[viewerID]
	delete(m.sessions, viewerID)
	m.mu.Unlock()

	if !ok {
		return domain.ErrNoSession
	}
	if s.Close() {
		m.metrics.SessionClosed()
		m.logger.Debug("discovery session closed",
			zap.String("session_id", s.ID()),
			zap.Int("viewer_id", viewerID))
	}
	return nil
}

// CloseAll is used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[int]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		if s.Close() {
			m.metrics.SessionClosed()
		}
	}
}
