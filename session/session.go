package session

import (
	"sync/atomic"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/agent/hierarchical"
)

// Session is one client's isolated workspace: a working directory and the
// team tree bound to it. A nil Team means the orchestrator could not be built.
type Session struct {
	id        string
	workDir   string
	team      *hierarchical.Team
	createdAt time.Time
	lastUsed  atomic.Int64
	busy      atomic.Bool
}

func newSession(id, workDir string, team *hierarchical.Team, now time.Time) *Session {
	s := &Session{id: id, workDir: workDir, team: team, createdAt: now}
	s.lastUsed.Store(now.UnixNano())
	return s
}

func (s *Session) ID() string               { return s.id }
func (s *Session) WorkDir() string          { return s.workDir }
func (s *Session) Team() *hierarchical.Team { return s.team }
func (s *Session) CreatedAt() time.Time     { return s.createdAt }
func (s *Session) LastUsedAt() time.Time    { return time.Unix(0, s.lastUsed.Load()) }

func (s *Session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(s.LastUsedAt())
}

// TryAcquire claims the session for one run. It returns false while another
// run holds it.
func (s *Session) TryAcquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

// Release ends the current run's claim.
func (s *Session) Release() {
	s.busy.Store(false)
}

// Busy reports whether a run currently holds the session.
func (s *Session) Busy() bool { return s.busy.Load() }

// Info is the client-facing view of a session.
type Info struct {
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	Busy       bool      `json:"busy"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	return Info{
		SessionID:  s.id,
		CreatedAt:  s.createdAt,
		LastUsedAt: s.LastUsedAt(),
		Busy:       s.Busy(),
	}
}
