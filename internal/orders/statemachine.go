package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
)

// Apply moves order to status `to` in memory. An illegal move returns
// CodeInvalidTransition and leaves the order untouched.
func Apply(order *models.Order, to enums.OrderStatus, note string, actorID *uuid.UUID, now time.Time) (*models.OrderStatusHistory, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !enums.CanTransition(order.Status, to) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, to)).
			WithDetails(map[string]any{
				"from":    order.Status,
				"to":      to,
				"allowed": order.Status.AllowedNext(),
			})
	}

	entry := models.OrderStatusHistory{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Seq:       nextSeq(order.StatusHistory),
		Status:    to,
		Note:      note,
		ActorID:   actorID,
		Timestamp: now,
	}
	order.StatusHistory = append(order.StatusHistory, entry)
	order.Status = to
	if to == enums.OrderStatusDelivered && order.DeliveredAt == nil {
		stamp := now
		order.DeliveredAt = &stamp
	}
	return &order.StatusHistory[len(order.StatusHistory)-1], nil
}

func nextSeq(history []models.OrderStatusHistory) int {
	seq := 0
	for _, h := range history {
		if h.Seq > seq {
			seq = h.Seq
		}
	}
	return seq + 1
}

// newHistory starts every order at pending.
func newHistory(orderID uuid.UUID, actorID *uuid.UUID, now time.Time) []models.OrderStatusHistory {
	return []models.OrderStatusHistory{{
		ID:        uuid.New(),
		OrderID:   orderID,
		Seq:       1,
		Status:    enums.OrderStatusPending,
		Note:      "تم إنشاء الطلب",
		ActorID:   actorID,
		Timestamp: now,
	}}
}
