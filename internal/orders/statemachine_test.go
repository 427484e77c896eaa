package orders

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
)

func orderAt(status enums.OrderStatus) *models.Order {
	id := uuid.New()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	order := &models.Order{ID: id, Status: enums.OrderStatusPending, StatusHistory: newHistory(id, nil, now)}
	order.Status = status
	return order
}

func TestApplyRejectsIllegalMovesWithoutSideEffects(t *testing.T) {
	order := orderAt(enums.OrderStatusDelivered)
	before := len(order.StatusHistory)

	_, err := Apply(order, enums.OrderStatusPreparing, "", nil, time.Now())
	if !pkgerrors.Is(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if order.Status != enums.OrderStatusDelivered {
		t.Fatalf("status changed to %s", order.Status)
	}
	if len(order.StatusHistory) != before {
		t.Fatalf("history grew on a rejected move")
	}
}

func TestApplyAppendsHistory(t *testing.T) {
	order := orderAt(enums.OrderStatusPending)
	actor := uuid.New()
	now := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)

	entry, err := Apply(order, enums.OrderStatusConfirmed, "accepted", &actor, now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if order.Status != enums.OrderStatusConfirmed {
		t.Fatalf("status = %s", order.Status)
	}
	if entry.Seq != 2 || entry.Note != "accepted" || !entry.Timestamp.Equal(now) {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.ActorID == nil || *entry.ActorID != actor {
		t.Fatalf("actor not recorded")
	}
	if len(order.StatusHistory) != 2 {
		t.Fatalf("history length = %d", len(order.StatusHistory))
	}
	if order.DeliveredAt != nil {
		t.Fatalf("delivered_at set early")
	}
}

func TestApplyStampsDeliveredOnce(t *testing.T) {
	order := orderAt(enums.OrderStatusReady)
	earlier := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	order.DeliveredAt = &earlier

	if _, err := Apply(order, enums.OrderStatusDelivered, "", nil, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !order.DeliveredAt.Equal(earlier) {
		t.Fatalf("delivered_at overwritten")
	}

	fresh := orderAt(enums.OrderStatusOutForDelivery)
	now := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	if _, err := Apply(fresh, enums.OrderStatusDelivered, "", nil, now); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if fresh.DeliveredAt == nil || !fresh.DeliveredAt.Equal(now) {
		t.Fatalf("delivered_at = %v", fresh.DeliveredAt)
	}
}

func TestApplyMatchesTransitionTable(t *testing.T) {
	statuses := []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusConfirmed,
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusPickedUp,
		enums.OrderStatusCancelled,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			_, err := Apply(orderAt(from), to, "", nil, time.Now())
			if want := enums.CanTransition(from, to); want != (err == nil) {
				t.Fatalf("%s -> %s: err=%v, allowed=%v", from, to, err, want)
			}
		}
	}
}

func TestApplyErrorListsAllowedStatuses(t *testing.T) {
	_, err := Apply(orderAt(enums.OrderStatusOutForDelivery), enums.OrderStatusCancelled, "", nil, time.Now())
	appErr := pkgerrors.As(err)
	if appErr == nil {
		t.Fatalf("expected app error, got %v", err)
	}
	details, ok := appErr.Details().(map[string]any)
	if !ok {
		t.Fatalf("details = %#v", appErr.Details())
	}
	allowed, _ := details["allowed"].([]enums.OrderStatus)
	if len(allowed) != 1 || allowed[0] != enums.OrderStatusDelivered {
		t.Fatalf("allowed = %v", allowed)
	}
}
