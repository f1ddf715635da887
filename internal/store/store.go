// Package store defines the secure-store contract the core depends on
// (get/set/delete). A concrete on-disk implementation for hosts that
// don't supply their own keychain lives in the pebblestore subpackage.
// Mobile hosts inject their platform
// keychain instead of pebblestore.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("store: key not found")
	ErrCorrupt  = errors.New("store: stored value is corrupt")
	ErrLocked   = errors.New("store: store is locked by another writer")
)

// Well-known keys persisted across restarts.
const (
	KeyNoiseStaticKeypair = "noise_static_keypair"
	KeyDurableNonceAccount = "durable_nonce_account"
	RateLimitKeyPrefix     = "rate_limit_"
)

// KV is the minimal secure-store contract the core depends on. Reads may
// be concurrent; writes to a given key are serialized by the
// implementation.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
