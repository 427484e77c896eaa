// Package idempotency lets an outbox consumer handle each event id once.
//
// A claim is a short lease ("processing") so a worker that dies mid-event
// lets the broker redeliver it; Complete swaps the lease for a long-lived
// "done" marker.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	stateProcessing = "processing"
	stateDone       = "done"

	defaultLease = 2 * time.Minute
)

// Store is satisfied by *redis.Client.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard tracks one consumer's events under rst:idempotency:evt:<consumer>:<id>.
type Guard struct {
	store     Store
	scope     string
	lease     time.Duration
	retention time.Duration
}

func NewGuard(store Store, consumer string, retention time.Duration) (*Guard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case consumer == "":
		return nil, errors.New("consumer name is required")
	case retention <= 0:
		return nil, errors.New("retention must be positive")
	}
	lease := defaultLease
	if retention < lease {
		lease = retention
	}
	return &Guard{store: store, scope: "evt:" + consumer, lease: lease, retention: retention}, nil
}

// Claim reports whether the caller now owns eventID. False means the event is
// done or another worker holds a live lease.
func (g *Guard) Claim(ctx context.Context, eventID uuid.UUID) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, stateProcessing, g.lease)
}

func (g *Guard) Complete(ctx context.Context, eventID uuid.UUID) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, key, stateDone, g.retention)
}

// Release drops a claim after a failed attempt so a redelivery can retry.
func (g *Guard) Release(ctx context.Context, eventID uuid.UUID) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(eventID uuid.UUID) (string, error) {
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID.String()), nil
}
