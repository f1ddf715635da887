// Package pebblestore implements the store.KV contract on top of
// CockroachDB's Pebble, an embedded LSM key-value store. It backs the
// core's secure-store dependency on non-mobile hosts (the relay daemon,
// tests); a mobile build instead injects its platform keychain.
package pebblestore

import (
	"context"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"

	"github.com/Magicred-1/anon0mesh-sub003/internal/store"
)

// Store wraps a *pebble.DB behind the store.KV contract. Writes are
// serialized through writeMu; Pebble itself serves concurrent reads.
type Store struct {
	db      *pebble.DB
	writeMu sync.Mutex
}

// Open opens (creating if absent) a Pebble database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("dir", dir).Msg("[pebblestore] opened")
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements store.KV.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set implements store.KV.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Set([]byte(key), value, pebble.Sync)
}

// Delete implements store.KV.
func (s *Store) Delete(_ context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Delete([]byte(key), pebble.Sync)
}

var _ store.KV = (*Store)(nil)
