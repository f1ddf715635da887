// Package nostr implements the internet-side fallback transport: a
// relay-pool client over WebSocket, publishing kind-1 broadcast notes and
// NIP-04-style encrypted direct messages. Canonical NIP-04 derives its
// shared secret via secp256k1 ECDH; nothing in this tree carries a
// secp256k1 implementation, so direct-message encryption here instead
// derives its shared secret from the same X25519 static key Noise
// sessions already use.
package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Kind identifies a Nostr event's semantics.
type Kind int

const (
	KindBroadcastNote Kind = 1
	KindEncryptedDM   Kind = 4
	KindReceipt       Kind = 9735 // out-of-band "delivery confirmed" custom kind
)

// Event is the subset of the Nostr event envelope this client needs.
type Event struct {
	ID        string   `json:"id"`
	PubKey    string   `json:"pubkey"`
	CreatedAt int64    `json:"created_at"`
	Kind      Kind     `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string   `json:"content"`
	Sig       string   `json:"sig"`
}

// id computes the NIP-01 event id: sha256 of the serialized
// [0,pubkey,created_at,kind,tags,content] array.
func (e *Event) id() (string, error) {
	arr := []any{0, e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content}
	b, err := json.Marshal(arr)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
