// Package loyalty keeps the point balance and membership tier of customers.
package loyalty

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

// Lifetime-point thresholds; each is the inclusive lower bound of its level.
const (
	SilverThreshold   = 2000
	GoldThreshold     = 5000
	PlatinumThreshold = 10000
)

var (
	ten         = decimal.NewFromInt(10)
	multipliers = map[enums.MembershipLevel]decimal.Decimal{
		enums.MembershipBronze:   decimal.NewFromInt(1),
		enums.MembershipSilver:   decimal.RequireFromString("1.2"),
		enums.MembershipGold:     decimal.RequireFromString("1.5"),
		enums.MembershipPlatinum: decimal.NewFromInt(2),
	}
)

// LevelFor maps lifetime points to a membership level.
func LevelFor(totalEarned int) enums.MembershipLevel {
	switch {
	case totalEarned >= PlatinumThreshold:
		return enums.MembershipPlatinum
	case totalEarned >= GoldThreshold:
		return enums.MembershipGold
	case totalEarned >= SilverThreshold:
		return enums.MembershipSilver
	default:
		return enums.MembershipBronze
	}
}

// Multiplier returns the earn multiplier; unknown levels earn like bronze.
func Multiplier(level enums.MembershipLevel) decimal.Decimal {
	if m, ok := multipliers[level]; ok {
		return m
	}
	return multipliers[enums.MembershipBronze]
}

// PointsFor is floor(floor(amount/10) * multiplier). Negative amounts earn nothing.
func PointsFor(amount decimal.Decimal, level enums.MembershipLevel) int {
	if !amount.IsPositive() {
		return 0
	}
	base := amount.Div(ten).Floor()
	return int(base.Mul(Multiplier(level)).Floor().IntPart())
}

// DiscountFor converts redeemed points to currency: one unit per ten points.
func DiscountFor(points int) decimal.Decimal {
	if points <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(points / 10))
}

// NextLevel returns the level after current and the lifetime points it needs.
// Platinum has no next level.
func NextLevel(current enums.MembershipLevel) (enums.MembershipLevel, int, bool) {
	switch current {
	case enums.MembershipBronze:
		return enums.MembershipSilver, SilverThreshold, true
	case enums.MembershipSilver:
		return enums.MembershipGold, GoldThreshold, true
	case enums.MembershipGold:
		return enums.MembershipPlatinum, PlatinumThreshold, true
	default:
		return "", 0, false
	}
}

var benefits = map[enums.MembershipLevel][]string{
	enums.MembershipBronze: {
		"نقطة واحدة لكل 10 ريال",
		"تراكم النقاط واستبدالها",
	},
	enums.MembershipSilver: {
		"1.2 نقطة لكل 10 ريال",
		"خصم 5% على طلبات التوصيل",
		"كوبون شهري بخصم 15%",
	},
	enums.MembershipGold: {
		"1.5 نقطة لكل 10 ريال",
		"خصم 10% على طلبات التوصيل",
		"كوبون شهري بخصم 20%",
		"أولوية في تحضير الطلبات",
	},
	enums.MembershipPlatinum: {
		"ضعف النقاط لكل طلب",
		"توصيل مجاني دائمًا",
		"كوبون شهري بخصم 25%",
		"أولوية قصوى في تحضير الطلبات",
		"خدمة عملاء VIP",
	},
}

// Benefits returns a copy of the perks listed for level.
func Benefits(level enums.MembershipLevel) []string {
	list := benefits[level]
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// Coupon is a promotional code offered to a membership level.
type Coupon struct {
	Code        string    `json:"code"`
	Discount    string    `json:"discount"`
	ExpiresAt   time.Time `json:"expiry"`
	Description string    `json:"description"`
	Percent     int       `json:"-"`
}

type couponRule struct {
	code        string
	percent     int
	validFor    time.Duration
	description string
	minLevel    int
}

var levelRank = map[enums.MembershipLevel]int{
	enums.MembershipBronze:   0,
	enums.MembershipSilver:   1,
	enums.MembershipGold:     2,
	enums.MembershipPlatinum: 3,
}

var couponRules = []couponRule{
	{code: "WELCOME10", percent: 10, validFor: 30 * 24 * time.Hour, description: "خصم 10% على طلبك الأول", minLevel: 0},
	{code: "SILVER15", percent: 15, validFor: 15 * 24 * time.Hour, description: "خصم 15% على طلبك التالي", minLevel: 1},
	{code: "GOLD20", percent: 20, validFor: 15 * 24 * time.Hour, description: "خصم 20% على طلبك التالي", minLevel: 2},
	{code: "PLATINUM25", percent: 25, validFor: 15 * 24 * time.Hour, description: "خصم 25% على طلبك التالي", minLevel: 3},
}

// CouponsFor lists the coupons level qualifies for, expiring relative to now.
func CouponsFor(level enums.MembershipLevel, now time.Time) []Coupon {
	rank := levelRank[level]
	var out []Coupon
	for _, rule := range couponRules {
		if rank < rule.minLevel {
			continue
		}
		out = append(out, Coupon{
			Code:        rule.code,
			Discount:    fmt.Sprintf("%d%%", rule.percent),
			ExpiresAt:   now.Add(rule.validFor),
			Description: rule.description,
			Percent:     rule.percent,
		})
	}
	return out
}

// FindCoupon looks up code among the coupons level qualifies for.
func FindCoupon(level enums.MembershipLevel, code string, now time.Time) (Coupon, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range CouponsFor(level, now) {
		if c.Code == code {
			return c, true
		}
	}
	return Coupon{}, false
}
