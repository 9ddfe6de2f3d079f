// Package attempts tracks failed login attempts per account and escalates
// to a timed lockout once the configured maximum is reached. Lockouts
// expire passively: the next read past the deadline resets the record.
package attempts

import (
	"encoding/json"
	"log"
	"time"

	"bank-portal/internal/models"
	"bank-portal/internal/storage"
)

const keyPrefix = "login_attempts_"

// Defaults match the portal's lockout policy.
const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 5 * time.Minute
)

// Config holds configuration for the tracker.
type Config struct {
	// MaxAttempts is the failure count that triggers a lockout. The
	// MaxAttempts-th failure is the one that locks, not the one after.
	MaxAttempts int

	// LockoutDuration is how long a lockout lasts.
	LockoutDuration time.Duration

	// Now reports the current time. Defaults to time.Now.
	Now func() time.Time
}

// Tracker records failed logins in the durable store.
type Tracker struct {
	store           storage.KV
	maxAttempts     int
	lockoutDuration time.Duration
	now             func() time.Time
}

// New creates a tracker over the given durable store.
func New(store storage.KV, cfg Config) *Tracker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = DefaultLockoutDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		store:           store,
		maxAttempts:     cfg.MaxAttempts,
		lockoutDuration: cfg.LockoutDuration,
		now:             cfg.Now,
	}
}

// Get returns the attempt record for an account. An expired lockout is
// reset on read; missing or corrupt data yields a zero record.
func (t *Tracker) Get(accountID string) models.AttemptRecord {
	data, ok, err := t.store.Get(keyPrefix + accountID)
	if err != nil || !ok {
		return models.AttemptRecord{}
	}

	var rec models.AttemptRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		log.Printf("Error parsing login attempts for %s, purging: %v", accountID, err)
		if err := t.Reset(accountID); err != nil {
			log.Printf("Failed to purge login attempts for %s: %v", accountID, err)
		}
		return models.AttemptRecord{}
	}

	// Lockout expiry check is strict: the deadline millisecond itself
	// still counts as locked.
	if !rec.LockedUntil.IsZero() && t.now().After(rec.LockedUntil) {
		if err := t.Reset(accountID); err != nil {
			log.Printf("Failed to reset login attempts for %s: %v", accountID, err)
		}
		return models.AttemptRecord{}
	}

	return rec
}

// RecordFailure increments the failure count for an account, locking it
// once the count reaches the configured maximum.
func (t *Tracker) RecordFailure(accountID string) error {
	rec := t.Get(accountID)
	rec.Count++
	rec.LastAttempt = t.now()

	if rec.Count >= t.maxAttempts {
		rec.LockedUntil = t.now().Add(t.lockoutDuration)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return t.store.Set(keyPrefix+accountID, string(data))
}

// Reset deletes the attempt record. Callers must invoke this on
// successful authentication.
func (t *Tracker) Reset(accountID string) error {
	return t.store.Remove(keyPrefix + accountID)
}

// IsLocked reports whether the account is locked and, if so, the lockout
// time remaining rounded up to whole seconds.
func (t *Tracker) IsLocked(accountID string) (bool, int) {
	rec := t.Get(accountID)

	if !rec.LockedUntil.IsZero() && t.now().Before(rec.LockedUntil) {
		remaining := rec.LockedUntil.Sub(t.now())
		return true, int((remaining + time.Second - 1) / time.Second)
	}
	return false, 0
}

// Remaining returns how many attempts are left before lockout.
func (t *Tracker) Remaining(accountID string) int {
	rec := t.Get(accountID)
	if left := t.maxAttempts - rec.Count; left > 0 {
		return left
	}
	return 0
}
