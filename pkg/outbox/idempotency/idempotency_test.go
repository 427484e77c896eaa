package idempotency

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	value string
	ttl   time.Duration
}

type memoryStore struct {
	data   map[string]entry
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]entry{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = entry{value: fmt.Sprint(value), ttl: ttl}
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.data[key] = entry{value: fmt.Sprint(value), ttl: ttl}
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "rst:idempotency:" + scope + ":" + id
}

func TestGuardLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	guard, err := NewGuard(store, "analytics", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	eventID := uuid.New()
	key := "rst:idempotency:evt:analytics:" + eventID.String()

	claimed, err := guard.Claim(ctx, eventID)
	if err != nil || !claimed {
		t.Fatalf("first claim: %v %v", claimed, err)
	}
	if got := store.data[key]; got.value != stateProcessing || got.ttl != defaultLease {
		t.Fatalf("claim should be a short lease, got %+v", got)
	}
	if again, _ := guard.Claim(ctx, eventID); again {
		t.Fatal("a leased event must not be claimed twice")
	}

	if err := guard.Complete(ctx, eventID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := store.data[key]; got.value != stateDone || got.ttl != 7*24*time.Hour {
		t.Fatalf("completed marker should use retention, got %+v", got)
	}
	if again, _ := guard.Claim(ctx, eventID); again {
		t.Fatal("a completed event must not be claimed")
	}
}

func TestGuardReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	guard, _ := NewGuard(newMemoryStore(), "analytics", time.Hour)
	eventID := uuid.New()

	if ok, _ := guard.Claim(ctx, eventID); !ok {
		t.Fatal("expected claim")
	}
	if err := guard.Release(ctx, eventID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := guard.Claim(ctx, eventID); !ok {
		t.Fatal("released event should be claimable again")
	}
}

func TestGuardShortRetentionCapsLease(t *testing.T) {
	store := newMemoryStore()
	guard, _ := NewGuard(store, "analytics", 30*time.Second)
	eventID := uuid.New()
	if _, err := guard.Claim(context.Background(), eventID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got := store.data["rst:idempotency:evt:analytics:"+eventID.String()].ttl; got != 30*time.Second {
		t.Fatalf("lease should not outlive retention, got %s", got)
	}
}

func TestGuardErrors(t *testing.T) {
	store := newMemoryStore()
	if _, err := NewGuard(nil, "analytics", time.Hour); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewGuard(store, "", time.Hour); err == nil {
		t.Fatal("expected error for empty consumer")
	}
	if _, err := NewGuard(store, "analytics", 0); err == nil {
		t.Fatal("expected error for zero retention")
	}

	guard, _ := NewGuard(store, "analytics", time.Hour)
	if _, err := guard.Claim(context.Background(), uuid.Nil); err == nil {
		t.Fatal("expected error for nil event id")
	}
	store.setErr = errors.New("redis down")
	if _, err := guard.Claim(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected store error to propagate")
	}
}
