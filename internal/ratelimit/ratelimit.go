// Package ratelimit implements the per-identity daily message-send
// allowance: a small persisted counter reset at the UTC day boundary,
// with an idempotent unlock triggered by a submitted transaction.
package ratelimit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/store"
)

// DefaultDailyLimit is how many sends are allowed per UTC day before
// unlock_today is called.
const DefaultDailyLimit = 3

// Status reports the current allowance state.
type Status struct {
	Remaining int       `json:"remaining"`
	Unlocked  bool      `json:"unlocked"`
	ResetsAt  time.Time `json:"resets_at"`
}

type record struct {
	Day       string `json:"day"` // YYYY-MM-DD in UTC
	SentCount int    `json:"sent_count"`
	Unlocked  bool   `json:"unlocked"`
}

// Store tracks the daily send allowance for one identity, persisted via
// the secure-store KV contract under store.RateLimitKeyPrefix+identity.
type Store struct {
	kv    store.KV
	clk   clock.Clock
	limit int

	mu  sync.Mutex
	key string
}

// New constructs a rate-limit store for identity (typically the local
// PeerID's hex string), backed by kv.
func New(kv store.KV, clk clock.Clock, identity string) *Store {
	return &Store{
		kv:    kv,
		clk:   clk,
		limit: DefaultDailyLimit,
		key:   store.RateLimitKeyPrefix + identity,
	}
}

func dayString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (s *Store) load(ctx context.Context) (record, error) {
	raw, err := s.kv.Get(ctx, s.key)
	today := dayString(s.clk.Now())
	if err == store.ErrNotFound {
		return record{Day: today}, nil
	}
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, store.ErrCorrupt
	}
	if rec.Day != today {
		// Day boundary crossed at midnight UTC: the counter (and
		// unlock) resets. Only one record is kept per identity, so the
		// next save overwrites the previous day's record.
		rec = record{Day: today}
	}
	return rec, nil
}

func (s *Store) save(ctx context.Context, rec record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.key, raw)
}

// CanSend reports whether another send is currently allowed.
func (s *Store) CanSend(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	return rec.Unlocked || rec.SentCount < s.limit, nil
}

// RecordSend records a send attempt, returning whether it was allowed.
// Every allowed send increments the day's count, including sends made
// after the day was unlocked.
func (s *Store) RecordSend(ctx context.Context) (allowed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if !rec.Unlocked && rec.SentCount >= s.limit {
		return false, nil
	}
	rec.SentCount++
	if err := s.save(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// UnlockToday marks the current UTC day as unlocked, called when a
// Solana transaction has been submitted today. Idempotent within a day.
func (s *Store) UnlockToday(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(ctx)
	if err != nil {
		return err
	}
	if rec.Unlocked {
		return nil
	}
	rec.Unlocked = true
	return s.save(ctx, rec)
}

// Status returns the current remaining-sends count, unlock state, and
// the next UTC midnight reset time.
func (s *Store) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(ctx)
	if err != nil {
		return Status{}, err
	}

	remaining := s.limit - rec.SentCount
	if remaining < 0 {
		remaining = 0
	}
	if rec.Unlocked {
		remaining = s.limit
	}

	now := s.clk.Now().UTC()
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	return Status{
		Remaining: remaining,
		Unlocked:  rec.Unlocked,
		ResetsAt:  tomorrow,
	}, nil
}
