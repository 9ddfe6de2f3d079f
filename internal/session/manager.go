// Package session manages the portal's single authenticated session slot:
// creation, expiry-checked reads, activity tracking and the inactivity
// watchdog that tears down stale sessions.
package session

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"bank-portal/internal/auth"
	"bank-portal/internal/models"
	"bank-portal/internal/storage"
)

// SessionKey is the storage key for the session slot.
const SessionKey = "portal_session"

// DefaultCheckInterval is how often the inactivity watchdog wakes up.
const DefaultCheckInterval = time.Minute

// Config holds configuration for the session manager.
type Config struct {
	// Timeout is both the absolute session lifetime and the inactivity
	// limit (default: 30 minutes).
	Timeout time.Duration

	// CheckInterval is the watchdog tick interval (default: 1 minute).
	CheckInterval time.Duration

	// OnExpired is called when the watchdog destroys an inactive session.
	// The caller uses it to force navigation back to the login screen.
	OnExpired func()

	// Now reports the current time. Defaults to time.Now.
	Now func() time.Time
}

// Manager owns the session slot. All state lives in the injected
// session-scoped store; the manager itself only holds the watchdog.
type Manager struct {
	store         storage.KV
	timeout       time.Duration
	checkInterval time.Duration
	onExpired     func()
	now           func() time.Time

	mu   sync.Mutex
	stop chan struct{} // non-nil while a watchdog is running
}

// New creates a session manager over the given session-scoped store.
func New(store storage.KV, cfg Config) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:         store,
		timeout:       cfg.Timeout,
		checkInterval: cfg.CheckInterval,
		onExpired:     cfg.OnExpired,
		now:           cfg.Now,
	}
}

// Create generates a fresh session for the given user payload, persists it
// and starts the inactivity watchdog. It fails only if the random source
// for the token is unavailable.
func (m *Manager) Create(user map[string]string) (*models.Session, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := &models.Session{
		Token:        token,
		User:         user,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.timeout),
		LastActivity: now,
	}

	if err := m.persist(s); err != nil {
		return nil, err
	}

	m.startWatchdog()
	return s, nil
}

// Get returns the current session, or nil if none exists. An expired
// session is destroyed as a side effect; a valid one gets its
// last-activity refreshed.
func (m *Manager) Get() *models.Session {
	s := m.load()
	if s == nil {
		return nil
	}

	if m.now().After(s.ExpiresAt) {
		m.Destroy()
		return nil
	}

	s.LastActivity = m.now()
	if err := m.persist(s); err != nil {
		log.Printf("Session activity refresh failed: %v", err)
	}
	return s
}

// Update shallow-merges the given fields into the session's user payload.
// It is a no-op if no valid session exists.
func (m *Manager) Update(updates map[string]string) {
	s := m.Get()
	if s == nil {
		return
	}

	if s.User == nil {
		s.User = make(map[string]string)
	}
	for k, v := range updates {
		s.User[k] = v
	}
	s.LastActivity = m.now()

	if err := m.persist(s); err != nil {
		log.Printf("Session update failed: %v", err)
	}
}

// Touch refreshes last-activity without the full validity round trip.
// This is the low-latency path driven by user-interaction signals; both it
// and Get write the same field, and last writer wins.
func (m *Manager) Touch() {
	s := m.load()
	if s == nil {
		return
	}
	s.LastActivity = m.now()
	if err := m.persist(s); err != nil {
		log.Printf("Session touch failed: %v", err)
	}
}

// Destroy removes the session slot and stops the watchdog. Idempotent.
func (m *Manager) Destroy() {
	if err := m.store.Remove(SessionKey); err != nil {
		log.Printf("Session remove failed: %v", err)
	}
	m.stopWatchdog()
}

// IsAuthenticated reports whether a valid session exists.
func (m *Manager) IsAuthenticated() bool {
	return m.Get() != nil
}

// Valid reports whether a live session exists without refreshing its
// last-activity. Status polls use this so that polling never counts as
// user activity.
func (m *Manager) Valid() bool {
	s := m.load()
	return s != nil && !m.now().After(s.ExpiresAt)
}

// CurrentUser returns the user payload of the current session, or nil.
func (m *Manager) CurrentUser() map[string]string {
	s := m.Get()
	if s == nil {
		return nil
	}
	return s.User
}

// load reads and parses the stored session. Corrupt data is treated as
// absent and purged so the slot self-heals.
func (m *Manager) load() *models.Session {
	data, ok, err := m.store.Get(SessionKey)
	if err != nil || !ok {
		return nil
	}

	var s models.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		log.Printf("Error parsing session, purging: %v", err)
		m.Destroy()
		return nil
	}
	return &s
}

func (m *Manager) persist(s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.store.Set(SessionKey, string(data))
}

// startWatchdog starts the inactivity check loop, stopping any previous
// one first so repeated Create calls never leak timers.
func (m *Manager) startWatchdog() {
	m.stopWatchdog()

	m.mu.Lock()
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !m.checkInactivity() {
					return
				}
			}
		}
	}()
}

func (m *Manager) stopWatchdog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

// checkInactivity is one watchdog tick. It returns false when the loop
// should stop: either the session is already gone or it just got
// destroyed for inactivity.
func (m *Manager) checkInactivity() bool {
	s := m.load()
	if s == nil {
		return false
	}

	if m.now().Sub(s.LastActivity) > m.timeout {
		if err := m.store.Remove(SessionKey); err != nil {
			log.Printf("Session remove failed: %v", err)
		}
		if m.onExpired != nil {
			m.onExpired()
		}
		return false
	}
	return true
}
