package session

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/agent/hierarchical"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults.
const (
	DefaultDirPrefix    = "agent_session_"
	DefaultMaxAge       = 24 * time.Hour
	DefaultReapInterval = time.Hour
)

// StoreConfig configures a Store.
type StoreConfig struct {
	BaseDir      string        `json:"base_dir" yaml:"base_dir"` // empty uses os.TempDir
	DirPrefix    string        `json:"dir_prefix" yaml:"dir_prefix"`
	MaxAge       time.Duration `json:"max_age" yaml:"max_age"`
	ReapInterval time.Duration `json:"reap_interval" yaml:"reap_interval"`
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DirPrefix:    DefaultDirPrefix,
		MaxAge:       DefaultMaxAge,
		ReapInterval: DefaultReapInterval,
	}
}

// SharedFunc builds the dependencies every session shares. The first
// successful result is kept; after an error the next Create calls it again.
type SharedFunc func(ctx context.Context) (hierarchical.Collaborators, error)

// TeamFunc compiles a session's team tree from the shared dependencies with
// WorkDir set to the session directory.
type TeamFunc func(c hierarchical.Collaborators) (*hierarchical.Team, error)

// Metrics receives store and pipeline telemetry.
type Metrics interface {
	SetActiveSessions(n int)
	RecordSessionsReaped(n int)
	RecordRun(status string, steps int, duration time.Duration)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTeamFunc replaces the default super team builder.
func WithTeamFunc(fn TeamFunc) StoreOption {
	return func(s *Store) { s.buildTeam = fn }
}

// WithStoreMetrics reports session counts to m.
func WithStoreMetrics(m Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Store owns all live sessions. It is safe for concurrent use.
type Store struct {
	cfg       StoreConfig
	shared    SharedFunc
	buildTeam TeamFunc
	metrics   Metrics
	now       func() time.Time
	logger    *zap.Logger

	sharedMu   sync.Mutex
	sharedDone bool // 仅在成功后置位, 失败时下一次 Create 重试
	collab     hierarchical.Collaborators

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewStore creates a store. shared may be nil, in which case every session
// gets a nil team.
func NewStore(cfg StoreConfig, shared SharedFunc, logger *zap.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DirPrefix == "" {
		cfg.DirPrefix = DefaultDirPrefix
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}
	s := &Store{
		cfg:       cfg,
		shared:    shared,
		buildTeam: hierarchical.BuildSuperTeam,
		now:       time.Now,
		logger:    logger.With(zap.String("component", "session_store")),
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) sharedCollaborators(ctx context.Context) (hierarchical.Collaborators, error) {
	if s.shared == nil {
		return hierarchical.Collaborators{}, types.NewOrchestratorUnavailableError()
	}
	s.sharedMu.Lock()
	defer s.sharedMu.Unlock()
	if s.sharedDone {
		return s.collab, nil
	}
	collab, err := s.shared(ctx)
	if err != nil {
		s.logger.Error("shared dependencies failed to initialize", zap.Error(err))
		return hierarchical.Collaborators{}, err
	}
	s.collab, s.sharedDone = collab, true
	return collab, nil
}

// Create registers a new session with a fresh working directory. A team
// that fails to build leaves the session registered with a nil team.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, types.NewError(types.ErrSessionClosed, "session store is closed")
	}

	dir, err := os.MkdirTemp(s.cfg.BaseDir, s.cfg.DirPrefix)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to create session directory").WithCause(err)
	}
	id := uuid.NewString()
	logger := s.logger.With(zap.String("session_id", id))

	var team *hierarchical.Team
	collab, err := s.sharedCollaborators(ctx)
	if err == nil {
		collab.WorkDir = dir
		collab.Logger = logger
		team, err = s.buildTeam(collab)
	}
	if err != nil {
		logger.Error("team build failed, session has no orchestrator", zap.Error(err))
		team = nil
	}

	sess := newSession(id, dir, team, s.now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = os.RemoveAll(dir)
		return nil, types.NewError(types.ErrSessionClosed, "session store is closed")
	}
	s.sessions[id] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	s.reportActive(n)
	logger.Info("session created", zap.String("work_dir", dir), zap.Bool("has_team", team != nil))
	return sess, nil
}

// Get returns a session and refreshes its last-used time.
func (s *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	sess.touch(s.now())
	return sess, true
}

// GetOrCreate returns the session for id, or a new one when id is empty or unknown.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*Session, bool, error) {
	if sess, ok := s.Get(id); ok {
		return sess, false, nil
	}
	sess, err := s.Create(ctx)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Remove drops a session and deletes its working directory.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.reportActive(n)
	s.cleanup(sess)
	return true
}

// ReapExpired removes sessions idle for longer than maxAge and returns how
// many were removed. Sessions with a run in flight are skipped; a reaped
// session stays claimed so a late run on it is rejected as busy.
func (s *Store) ReapExpired(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = s.cfg.MaxAge
	}
	now := s.now()

	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.idleSince(now) <= maxAge || !sess.TryAcquire() {
			continue
		}
		expired = append(expired, sess)
		delete(s.sessions, id)
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range expired {
		s.cleanup(sess)
	}
	if len(expired) > 0 {
		s.reportActive(n)
		if s.metrics != nil {
			s.metrics.RecordSessionsReaped(len(expired))
		}
		s.logger.Info("expired sessions reaped", zap.Int("count", len(expired)), zap.Int("remaining", n))
	}
	return len(expired)
}

// RunReaper calls ReapExpired every interval until ctx is done.
func (s *Store) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.ReapExpired(s.cfg.MaxAge)
		}
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns a snapshot of all sessions ordered by creation time.
func (s *Store) List() []Info {
	s.mu.RLock()
	out := make([]Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Close removes every session. Further Create calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range all {
		s.cleanup(sess)
	}
	s.reportActive(0)
	s.logger.Info("session store closed", zap.Int("sessions", len(all)))
	return nil
}

func (s *Store) cleanup(sess *Session) {
	if err := os.RemoveAll(sess.WorkDir()); err != nil {
		s.logger.Warn("failed to remove session directory",
			zap.String("session_id", sess.ID()),
			zap.String("work_dir", sess.WorkDir()),
			zap.Error(err),
		)
	}
}

func (s *Store) reportActive(n int) {
	if s.metrics != nil {
		s.metrics.SetActiveSessions(n)
	}
}
