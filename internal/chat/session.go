package chat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/source"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("session limit reached")
)

// Session binds one database source to one conversation. The mutex
// serializes asks so concurrent questions on the same session cannot
// interleave their history writes.
type Session struct {
	ID         string
	Source     source.Source
	Schema     schema.Description
	CreatedAt  time.Time
	LastActive time.Time

	conversation Conversation
	mu           sync.Mutex
}

type ManagerConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxSessions   int
}

// Manager owns the live session set. Cleanup, when set, runs for every
// session leaving the set, including TTL expiry; it is where uploaded
// files get removed.
type Manager struct {
	Config  ManagerConfig
	Logger  *slog.Logger
	Cleanup func(*Session)
	Clock   func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg ManagerConfig, logger *slog.Logger, cleanup func(*Session)) *Manager {
	return &Manager{
		Config:   cfg,
		Logger:   logger,
		Cleanup:  cleanup,
		Clock:    time.Now,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Create(src source.Source, desc schema.Description) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Config.MaxSessions > 0 && len(m.sessions) >= m.Config.MaxSessions {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, m.Config.MaxSessions)
	}

	now := m.Clock()
	session := &Session{
		ID:         newSessionID(),
		Source:     src,
		Schema:     desc,
		CreatedAt:  now,
		LastActive: now,
	}
	m.sessions[session.ID] = session
	observability.SetLiveSessions(len(m.sessions))
	return session, nil
}

// Get returns the session and refreshes its activity timestamp.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.LastActive = m.Clock()
	return session, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		observability.SetLiveSessions(len(m.sessions))
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	if m.Cleanup != nil {
		m.Cleanup(session)
	}
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes every session idle longer than the TTL and returns how
// many were dropped. TTL <= 0 disables expiry.
func (m *Manager) Sweep() int {
	if m.Config.TTL <= 0 {
		return 0
	}

	cutoff := m.Clock().Add(-m.Config.TTL)

	m.mu.Lock()
	var expired []*Session
	for id, session := range m.sessions {
		if session.LastActive.Before(cutoff) {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	observability.SetLiveSessions(len(m.sessions))
	m.mu.Unlock()

	for _, session := range expired {
		if m.Logger != nil {
			m.Logger.Info("session expired",
				slog.String("session_id", session.ID),
				slog.Time("last_active", session.LastActive),
			)
		}
		if m.Cleanup != nil {
			m.Cleanup(session)
		}
	}
	return len(expired)
}

// Run sweeps on the configured interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.Config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
