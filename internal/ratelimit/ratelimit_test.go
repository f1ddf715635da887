package ratelimit

import (
	"context"
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

func TestRecordSendConsumesDailyAllowance(t *testing.T) {
	ctx := context.Background()
	s := New(newMemKV(), clock.New(), "peer-1")

	for i := 0; i < DefaultDailyLimit; i++ {
		allowed, err := s.RecordSend(ctx)
		if err != nil {
			t.Fatalf("RecordSend: %v", err)
		}
		if !allowed {
			t.Fatalf("expected send %d to be allowed", i)
		}
	}

	allowed, err := s.RecordSend(ctx)
	if err != nil {
		t.Fatalf("RecordSend: %v", err)
	}
	if allowed {
		t.Fatal("expected send past the daily limit to be disallowed")
	}
}

func TestUnlockTodayBypassesLimit(t *testing.T) {
	ctx := context.Background()
	s := New(newMemKV(), clock.New(), "peer-1")

	for i := 0; i < DefaultDailyLimit; i++ {
		s.RecordSend(ctx)
	}
	if err := s.UnlockToday(ctx); err != nil {
		t.Fatalf("UnlockToday: %v", err)
	}

	allowed, err := s.RecordSend(ctx)
	if err != nil {
		t.Fatalf("RecordSend: %v", err)
	}
	if !allowed {
		t.Fatal("expected send to be allowed after unlock")
	}
}

func TestUnlockTodayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(newMemKV(), clock.New(), "peer-1")

	if err := s.UnlockToday(ctx); err != nil {
		t.Fatalf("UnlockToday: %v", err)
	}
	if err := s.UnlockToday(ctx); err != nil {
		t.Fatalf("second UnlockToday: %v", err)
	}

	status, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Unlocked || status.Remaining != DefaultDailyLimit {
		t.Fatalf("unexpected status after idempotent unlock: %+v", status)
	}
}

func TestDayBoundaryResetsCounter(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()
	kv := newMemKV()
	s := New(kv, c, "peer-1")

	for i := 0; i < DefaultDailyLimit; i++ {
		s.RecordSend(ctx)
	}
	if allowed, _ := s.RecordSend(ctx); allowed {
		t.Fatal("expected limit to be reached before day boundary")
	}

	c.Add(24 * time.Hour)

	allowed, err := s.RecordSend(ctx)
	if err != nil {
		t.Fatalf("RecordSend after day boundary: %v", err)
	}
	if !allowed {
		t.Fatal("expected a fresh allowance after crossing the UTC day boundary")
	}
}

func TestStatusReportsResetsAtNextUTCMidnight(t *testing.T) {
	ctx := context.Background()
	s := New(newMemKV(), clock.New(), "peer-1")

	status, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Remaining != DefaultDailyLimit {
		t.Fatalf("expected full remaining allowance, got %d", status.Remaining)
	}
	if status.ResetsAt.Hour() != 0 || status.ResetsAt.Minute() != 0 {
		t.Fatalf("expected ResetsAt to land on UTC midnight, got %v", status.ResetsAt)
	}
}
