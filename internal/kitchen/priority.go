package kitchen

import (
	"sort"
	"time"

	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

// QueueEntry pairs an active order with its owner's membership level.
type QueueEntry struct {
	Order      models.Order
	Membership enums.MembershipLevel
}

// ScoredOrder is a queue entry with its advisory priority.
type ScoredOrder struct {
	Order          models.Order          `json:"order"`
	Membership     enums.MembershipLevel `json:"membership_level"`
	Score          int                   `json:"score"`
	WaitingMinutes int                   `json:"waiting_minutes"`
	ItemCount      int                   `json:"item_count"`
}

var membershipBonus = map[enums.MembershipLevel]int{
	enums.MembershipSilver:   5,
	enums.MembershipGold:     10,
	enums.MembershipPlatinum: 15,
}

// Score rates one order. Waiting time counts in whole five-minute steps.
func Score(entry QueueEntry, now time.Time) (score, waiting, items int) {
	waiting = int(now.Sub(entry.Order.CreatedAt) / time.Minute)
	if waiting < 0 {
		waiting = 0
	}
	for _, item := range entry.Order.Items {
		items += item.Quantity
	}

	score = waiting / 5 * 5
	switch entry.Order.Status {
	case enums.OrderStatusConfirmed:
		score += 10
	case enums.OrderStatusPreparing:
		score += 5
	}
	if entry.Order.DeliveryMethod == enums.DeliveryMethodPickup {
		score += 15
	}
	score -= items
	score += membershipBonus[entry.Membership]
	return score, waiting, items
}

// Prioritize orders the queue by descending score. Entries are expected
// oldest first and equal scores keep that order. Nothing is mutated.
func Prioritize(entries []QueueEntry, now time.Time) []ScoredOrder {
	out := make([]ScoredOrder, 0, len(entries))
	for _, entry := range entries {
		score, waiting, items := Score(entry, now)
		out = append(out, ScoredOrder{
			Order:          entry.Order,
			Membership:     entry.Membership,
			Score:          score,
			WaitingMinutes: waiting,
			ItemCount:      items,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
