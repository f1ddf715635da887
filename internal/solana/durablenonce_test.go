package solana

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/store"
)

type memKV struct{ m map[string][]byte }

func newMemKV() *memKV { return &memKV{m: make(map[string][]byte)} }

func (k *memKV) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := k.m[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}
func (k *memKV) Set(_ context.Context, key string, v []byte) error { k.m[key] = v; return nil }
func (k *memKV) Delete(_ context.Context, key string) error        { delete(k.m, key); return nil }

type fakeRPC struct {
	nonceValue       [32]byte
	sendFailTimes    int
	sendErr          error
	confirmErr       error
	sentSignatures   int
}

func (f *fakeRPC) RequestAirdrop(context.Context, PubKey, uint64) (Signature, error) { return Signature{}, nil }
func (f *fakeRPC) CreateAccount(_ context.Context, _, newAccount ed25519.PrivateKey, _ uint64) (PubKey, error) {
	return PubKeyFromEd25519(newAccount.Public().(ed25519.PublicKey)), nil
}
func (f *fakeRPC) InitializeNonceAccount(context.Context, ed25519.PrivateKey, PubKey, PubKey) error {
	return nil
}
func (f *fakeRPC) FetchNonceValue(context.Context, PubKey) ([32]byte, error) { return f.nonceValue, nil }
func (f *fakeRPC) SendRawTransaction(context.Context, SignedEnvelope) (Signature, error) {
	f.sentSignatures++
	if f.sendFailTimes > 0 {
		f.sendFailTimes--
		return Signature{}, f.sendErr
	}
	return Signature{1}, nil
}
func (f *fakeRPC) ConfirmTransaction(context.Context, Signature) error { return f.confirmErr }
func (f *fakeRPC) CloseNonceAccount(context.Context, ed25519.PrivateKey, PubKey, PubKey) (Signature, error) {
	return Signature{2}, nil
}

func newTestAuthority(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return priv
}

func TestBuildAndSignRefusesSecondEnvelopeWhileInFlight(t *testing.T) {
	rpc := &fakeRPC{}
	kv := newMemKV()
	authority := newTestAuthority(t)
	env := NewEnvelope(rpc, kv, clock.NewMock(), PubKey{9}, authority)

	var to PubKey
	copy(to[:], []byte("recipient-address-000000000000!"))

	if _, err := env.BuildAndSign(context.Background(), to, 1000, ""); err != nil {
		t.Fatalf("first BuildAndSign: %v", err)
	}
	if _, err := env.BuildAndSign(context.Background(), to, 1000, ""); err != ErrInFlightEnvelopeExists {
		t.Fatalf("expected ErrInFlightEnvelopeExists, got %v", err)
	}
}

func TestSubmitSucceedsAfterTransientRpcFailure(t *testing.T) {
	rpc := &fakeRPC{sendFailTimes: 1, sendErr: ErrRpcUnavailable}
	kv := newMemKV()
	authority := newTestAuthority(t)
	c := clock.NewMock()
	env := NewEnvelope(rpc, kv, c, PubKey{9}, authority)

	var to PubKey
	copy(to[:], []byte("recipient-address-000000000000!"))
	signed, err := env.BuildAndSign(context.Background(), to, 1000, "")
	if err != nil {
		t.Fatalf("BuildAndSign: %v", err)
	}

	done := make(chan struct{})
	var sig Signature
	var submitErr error
	go func() {
		sig, submitErr = env.Submit(context.Background(), signed)
		close(done)
	}()

	c.WaitForAllTimers()
	c.Add(time.Second)
	<-done

	if submitErr != nil {
		t.Fatalf("Submit: %v", submitErr)
	}
	if sig == (Signature{}) {
		t.Fatal("expected a non-zero signature")
	}
	if rpc.sentSignatures != 2 {
		t.Fatalf("expected 2 send attempts, got %d", rpc.sentSignatures)
	}
}

func TestSubmitFailsFastOnInsufficientFunds(t *testing.T) {
	rpc := &fakeRPC{sendFailTimes: 3, sendErr: ErrInsufficientFunds}
	kv := newMemKV()
	authority := newTestAuthority(t)
	env := NewEnvelope(rpc, kv, clock.NewMock(), PubKey{9}, authority)

	var to PubKey
	copy(to[:], []byte("recipient-address-000000000000!"))
	signed, _ := env.BuildAndSign(context.Background(), to, 1000, "")

	_, err := env.Submit(context.Background(), signed)
	var ce *ClassifiedError
	if !errors.As(err, &ce) || ce.Kind != ErrKindInsufficientFunds {
		t.Fatalf("expected ErrKindInsufficientFunds, got %v", err)
	}
	if rpc.sentSignatures != 1 {
		t.Fatalf("expected fail-fast after 1 attempt, got %d", rpc.sentSignatures)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	authority := newTestAuthority(t)
	var to PubKey
	copy(to[:], []byte("recipient-address-000000000000!"))

	tx := BuildDurableTransfer(BuildDurableTransferRequest{
		From:         PubKeyFromEd25519(authority.Public().(ed25519.PublicKey)),
		To:           to,
		Lamports:     5000,
		NonceAccount: PubKey{7},
		Authority:    PubKeyFromEd25519(authority.Public().(ed25519.PublicKey)),
	})
	env := Sign(tx, authority)
	if !Verify(env, authority.Public().(ed25519.PublicKey)) {
		t.Fatal("expected signature to verify")
	}
}
