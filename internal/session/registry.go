// Package session tracks session-mode isolation keys and their expiry.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// Session is one session-mode isolation record.
type Session struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Registry owns the set of live sessions.
//
// The in-memory map is authoritative at runtime. Each session is mirrored to
// {path}/{id}/session.json so sessions survive a daemon restart; persistence
// failures are logged, never fatal to the request that triggered them.
//
// The registry holds no reference to a session's vector store or uploads.
// Purging those on expiry is the caller's job (see Sweeper).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	path   string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRegistry creates a registry persisting under path, expiring sessions
// after ttl of inactivity. Existing session records are loaded from disk.
func NewRegistry(path string, ttl time.Duration, logger *zap.Logger) (*Registry, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session TTL must be positive, got %s", ttl)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("creating sessions directory %s: %w", path, err)
	}

	r := &Registry{
		sessions: make(map[string]*Session),
		path:     path,
		ttl:      ttl,
		logger:   logger,
	}

	if err := r.load(); err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}

	return r, nil
}

// load restores session records from disk, skipping unreadable entries.
func (r *Registry) load() error {
	entries, err := os.ReadDir(r.path)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		file := filepath.Join(r.path, entry.Name(), "session.json")
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil || s.ID == "" {
			r.logger.Warn("skipping corrupt session record", zap.String("dir", entry.Name()))
			continue
		}
		r.sessions[s.ID] = &s
	}

	if len(r.sessions) > 0 {
		r.logger.Info("restored sessions from disk", zap.Int("count", len(r.sessions)))
	}
	return nil
}

// Track records or refreshes a session.
//
// Track is idempotent: an existing session only gets its LastAccessedAt
// updated; CreatedAt is preserved.
func (r *Registry) Track(id string) error {
	now := timeNow()

	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		s.LastAccessedAt = now
	} else {
		s = &Session{ID: id, CreatedAt: now, LastAccessedAt: now}
		r.sessions[id] = s
	}
	snapshot := *s
	r.mu.Unlock()

	if err := r.persist(&snapshot); err != nil {
		r.logger.Warn("failed to persist session record",
			zap.String("session_id", id),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// persist writes the session record outside the registry lock.
func (r *Registry) persist(s *Session) error {
	dir := filepath.Join(r.path, s.ID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "session.json"), data, 0600)
}

// Get returns a copy of the session record, if present.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions whose LastAccessedAt is older than the TTL relative
// to the single now snapshot, and returns the removed keys.
//
// A session refreshed by Track after now was captured has a LastAccessedAt
// newer than now and is never removed by this sweep. On-disk session
// directories are removed outside the lock so request traffic is not blocked.
func (r *Registry) Sweep(now time.Time) []string {
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	var removed []string
	for id, s := range r.sessions {
		if s.LastAccessedAt.Before(cutoff) {
			delete(r.sessions, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()

	for _, id := range removed {
		if err := os.RemoveAll(filepath.Join(r.path, id)); err != nil {
			r.logger.Warn("failed to remove session directory",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
	}

	if len(removed) > 0 {
		r.logger.Info("swept expired sessions", zap.Int("count", len(removed)))
	}
	return removed
}
