package solana

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/store"
)

// CreateNonceAccountFunding is the lamport amount (~0.002 SOL) used to
// fund a fresh nonce account.
const CreateNonceAccountFunding uint64 = 2_000_000 // lamports, ~0.002 SOL at 1e9 lamports/SOL

const (
	submitMaxAttempts  = 3
	submitBackoffCap   = 5 * time.Second
	submitOverallBudget = 30 * time.Second
)

var ErrInFlightEnvelopeExists = errors.New("solana: an envelope is already in flight for this nonce account")

// Envelope coordinates the durable-nonce transaction lifecycle: exactly
// one in-flight envelope per nonce account at a time, since the nonce
// value is single-use.
type Envelope struct {
	rpc   RPC
	kv    store.KV
	clk   clock.Clock

	nonceAccount PubKey
	authority    ed25519.PrivateKey

	inFlight bool
}

// NewEnvelope constructs a durable-nonce coordinator for one nonce
// account. It does not persist the address; CreateNonceAccount writes it
// under store.KeyDurableNonceAccount.
func NewEnvelope(rpc RPC, kv store.KV, clk clock.Clock, nonceAccount PubKey, authority ed25519.PrivateKey) *Envelope {
	return &Envelope{rpc: rpc, kv: kv, clk: clk, nonceAccount: nonceAccount, authority: authority}
}

// CreateNonceAccount generates a fresh account keypair, funds and
// initializes it as a durable-nonce account under funder's authority, and
// persists its address in the secure store. The new account's private key
// is discarded once creation succeeds: nothing but its address is needed
// again, since funder remains the nonce authority for advance/close.
func CreateNonceAccount(ctx context.Context, rpc RPC, kv store.KV, funder ed25519.PrivateKey) (PubKey, error) {
	_, newPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PubKey{}, fmt.Errorf("solana: generating nonce account keypair: %w", err)
	}

	account, err := rpc.CreateAccount(ctx, funder, newPriv, CreateNonceAccountFunding)
	if err != nil {
		return PubKey{}, classify(err)
	}
	owner := PubKeyFromEd25519(funder.Public().(ed25519.PublicKey))
	if err := rpc.InitializeNonceAccount(ctx, funder, account, owner); err != nil {
		return PubKey{}, classify(err)
	}
	if err := kv.Set(ctx, store.KeyDurableNonceAccount, []byte(account.String())); err != nil {
		return PubKey{}, err
	}
	return account, nil
}

// BuildAndSign fetches the current nonce value, builds a durable
// transfer, and signs it, refusing if an envelope is already in flight.
func (e *Envelope) BuildAndSign(ctx context.Context, to PubKey, lamports uint64, memo string) (SignedEnvelope, error) {
	if e.inFlight {
		return nil, ErrInFlightEnvelopeExists
	}

	nonceValue, err := e.rpc.FetchNonceValue(ctx, e.nonceAccount)
	if err != nil {
		return nil, classify(err)
	}

	from := PubKeyFromEd25519(e.authority.Public().(ed25519.PublicKey))
	tx := BuildDurableTransfer(BuildDurableTransferRequest{
		From:         from,
		To:           to,
		Lamports:     lamports,
		Memo:         memo,
		NonceAccount: e.nonceAccount,
		Authority:    from,
		NonceValue:   nonceValue,
	})

	env := Sign(tx, e.authority)
	e.inFlight = true
	return env, nil
}

// Submit sends env via sendRawTransaction and confirms it at "confirmed"
// commitment, retrying with exponential backoff up to 3 attempts for
// RpcUnavailable. BlockhashExpired is not retried (rebuilding is
// unnecessary since the nonce persists) but is surfaced so the caller can
// decide whether to rebuild anyway; InsufficientFunds is terminal.
func (e *Envelope) Submit(ctx context.Context, env SignedEnvelope) (Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, submitOverallBudget)
	defer cancel()

	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 1; attempt <= submitMaxAttempts; attempt++ {
		sig, err := e.rpc.SendRawTransaction(ctx, env)
		if err == nil {
			if err := e.rpc.ConfirmTransaction(ctx, sig); err != nil {
				lastErr = classify(err)
			} else {
				e.inFlight = false
				return sig, nil
			}
		} else {
			lastErr = classify(err)
		}

		var ce *ClassifiedError
		if errors.As(lastErr, &ce) {
			switch ce.Kind {
			case ErrKindRpcUnavailable:
				log.Debug().Int("attempt", attempt).Msg("[solana] rpc unavailable, retrying")
			case ErrKindInsufficientFunds:
				return Signature{}, lastErr // terminal
			case ErrKindNonceAlreadyUsed:
				e.inFlight = false
				return Signature{}, lastErr // caller must re-read nonce and rebuild
			case ErrKindBlockhashExpired:
				return Signature{}, lastErr // nonce is persistent; rebuild is the caller's choice
			}
		}

		if attempt == submitMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Signature{}, ctx.Err()
		case <-e.clk.After(min(backoff, submitBackoffCap)):
		}
		backoff *= 2
	}
	return Signature{}, lastErr
}

// AdvanceNonce forces a new nonce value, invalidating any outstanding
// envelope built against the previous value.
func (e *Envelope) AdvanceNonce(ctx context.Context) (Signature, error) {
	advanceIx := AdvanceNonceInstruction(e.nonceAccount, PubKeyFromEd25519(e.authority.Public().(ed25519.PublicKey)))
	tx := &Transaction{
		FeePayer:     PubKeyFromEd25519(e.authority.Public().(ed25519.PublicKey)),
		Instructions: []Instruction{advanceIx},
	}
	nonceValue, err := e.rpc.FetchNonceValue(ctx, e.nonceAccount)
	if err != nil {
		return Signature{}, classify(err)
	}
	tx.RecentBlockhash = nonceValue

	env := Sign(tx, e.authority)
	sig, err := e.rpc.SendRawTransaction(ctx, env)
	if err != nil {
		return Signature{}, classify(err)
	}
	e.inFlight = false
	return sig, e.rpc.ConfirmTransaction(ctx, sig)
}

// CloseNonceAccount reclaims the nonce account's rent to `to`.
func (e *Envelope) CloseNonceAccount(ctx context.Context, to PubKey) (Signature, error) {
	sig, err := e.rpc.CloseNonceAccount(ctx, e.authority, e.nonceAccount, to)
	if err != nil {
		return Signature{}, classify(err)
	}
	return sig, nil
}

// classify maps a raw RPC error onto the sentinel error it matches, or
// returns ErrKindUnknown if nothing matches.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrBlockhashExpired):
		return &ClassifiedError{Kind: ErrKindBlockhashExpired, Err: err}
	case errors.Is(err, ErrInsufficientFunds):
		return &ClassifiedError{Kind: ErrKindInsufficientFunds, Err: err}
	case errors.Is(err, ErrRpcUnavailable):
		return &ClassifiedError{Kind: ErrKindRpcUnavailable, Err: err}
	case errors.Is(err, ErrNonceAlreadyUsed):
		return &ClassifiedError{Kind: ErrKindNonceAlreadyUsed, Err: err}
	default:
		return &ClassifiedError{Kind: ErrKindUnknown, Err: fmt.Errorf("solana: %w", err)}
	}
}
