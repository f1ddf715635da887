package solana

import (
	"context"
	"crypto/ed25519"
	"errors"

	"github.com/mr-tron/base58"
)

// Signature is a base58-displayable transaction signature (the first 64
// bytes of a SignedEnvelope, kept distinct for readability at call sites).
type Signature [64]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

// ErrKind classifies a submit failure so the caller knows whether to
// retry, rebuild, or give up.
type ErrKind int

const (
	ErrKindUnknown ErrKind = iota
	ErrKindBlockhashExpired
	ErrKindInsufficientFunds
	ErrKindRpcUnavailable
	ErrKindNonceAlreadyUsed
)

// ClassifiedError wraps an RPC error with its retry classification.
type ClassifiedError struct {
	Kind ErrKind
	Err  error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

var (
	ErrBlockhashExpired   = errors.New("solana: blockhash expired")
	ErrInsufficientFunds  = errors.New("solana: insufficient funds")
	ErrRpcUnavailable     = errors.New("solana: rpc unavailable")
	ErrNonceAlreadyUsed   = errors.New("solana: nonce already used")
)

// RPC is the minimal JSON-RPC surface the durable-nonce flow depends on.
// A concrete implementation talks to a real Solana cluster endpoint;
// tests inject a fake.
type RPC interface {
	RequestAirdrop(ctx context.Context, to PubKey, lamports uint64) (Signature, error)
	// CreateAccount funds and creates newAccount, which must co-sign
	// since a brand new account authorizes its own creation.
	CreateAccount(ctx context.Context, funder, newAccount ed25519.PrivateKey, lamports uint64) (PubKey, error)
	InitializeNonceAccount(ctx context.Context, funder ed25519.PrivateKey, nonceAccount, authority PubKey) error
	FetchNonceValue(ctx context.Context, nonceAccount PubKey) ([32]byte, error)
	SendRawTransaction(ctx context.Context, env SignedEnvelope) (Signature, error)
	ConfirmTransaction(ctx context.Context, sig Signature) error
	CloseNonceAccount(ctx context.Context, authority ed25519.PrivateKey, nonceAccount, to PubKey) (Signature, error)
}
