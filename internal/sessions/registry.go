// Package sessions tracks live voice sessions and enforces the global
// concurrency cap.
package sessions

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/a7isss/hana-voice-saas/pkg/models"
)

// ErrCapacityExceeded is returned when registering beyond the cap.
var ErrCapacityExceeded = errors.New("sessions: capacity exceeded")

// record is the lightweight accounting entry the registry keeps per
// session. The full session state stays with the connection goroutine.
type record struct {
	ID         string
	Transport  models.TransportKind
	ClientAddr string
	CreatedAt  time.Time
	EndedAt    time.Time
	Active     bool
}

// Stats summarizes registry state for the admin surface.
type Stats struct {
	ActiveCount int `json:"active_sessions"`
	TotalCount  int `json:"total_sessions"`
	MaxSessions int `json:"max_sessions"`
}

// Registry tracks sessions and enforces the concurrency cap. It is safe
// for concurrent use by all connection goroutines.
type Registry struct {
	mu        sync.RWMutex
	records   map[string]*record
	active    int
	max       int
	logger    *slog.Logger
	sweeper   *cron.Cron
	retainFor time.Duration
}

// NewRegistry creates a registry enforcing the given cap.
func NewRegistry(maxSessions int, logger *slog.Logger) *Registry {
	if maxSessions <= 0 {
		maxSessions = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		records:   make(map[string]*record),
		max:       maxSessions,
		logger:    logger.With("component", "sessions"),
		retainFor: time.Hour,
	}
}

// NewSession creates a session owned by the caller. The session is not
// registered yet; admission happens in Register.
func NewSession(transport models.TransportKind, clientAddr string, authenticated bool) *models.Session {
	return &models.Session{
		ID:            uuid.New().String(),
		Transport:     transport,
		ClientAddr:    clientAddr,
		CreatedAt:     time.Now(),
		State:         models.StateCreated,
		Authenticated: authenticated,
	}
}

// Register admits a session, transitioning it to Active. Returns
// ErrCapacityExceeded when the active count has reached the cap; the
// check and the increment are atomic, so the cap is never overshot.
func (r *Registry) Register(s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active >= r.max {
		return ErrCapacityExceeded
	}

	r.records[s.ID] = &record{
		ID:         s.ID,
		Transport:  s.Transport,
		ClientAddr: s.ClientAddr,
		CreatedAt:  s.CreatedAt,
		Active:     true,
	}
	r.active++
	s.State = models.StateActive

	r.logger.Info("session registered",
		"session_id", s.ID,
		"transport", string(s.Transport),
		"client", s.ClientAddr,
		"active", r.active)
	return nil
}

// Unregister marks a session inactive. The record is retained for
// stats; calling Unregister twice is a no-op.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[sessionID]
	if !ok || !rec.Active {
		return
	}
	rec.Active = false
	rec.EndedAt = time.Now()
	r.active--

	r.logger.Info("session unregistered", "session_id", sessionID, "active", r.active)
}

// SetMaxSessions replaces the cap, e.g. after a config reload. Already
// admitted sessions are unaffected.
func (r *Registry) SetMaxSessions(max int) {
	if max <= 0 {
		return
	}
	r.mu.Lock()
	r.max = max
	r.mu.Unlock()
}

// Stats reports active and total session counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		ActiveCount: r.active,
		TotalCount:  len(r.records),
		MaxSessions: r.max,
	}
}

// Sweep removes inactive records that ended before the retention
// cutoff and returns how many were removed.
func (r *Registry) Sweep(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.records {
		if !rec.Active && !rec.EndedAt.IsZero() && rec.EndedAt.Before(cutoff) {
			delete(r.records, id)
			removed++
		}
	}
	return removed
}

// StartSweeper schedules a periodic Sweep. Stop with StopSweeper.
func (r *Registry) StartSweeper() {
	c := cron.New()
	_, err := c.AddFunc("@every 10m", func() {
		if n := r.Sweep(r.retainFor); n > 0 {
			r.logger.Debug("swept stale session records", "removed", n)
		}
	})
	if err != nil {
		r.logger.Warn("failed to schedule session sweeper", "error", err)
		return
	}
	c.Start()
	r.mu.Lock()
	r.sweeper = c
	r.mu.Unlock()
}

// StopSweeper halts the periodic sweep.
func (r *Registry) StopSweeper() {
	r.mu.Lock()
	c := r.sweeper
	r.sweeper = nil
	r.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}
