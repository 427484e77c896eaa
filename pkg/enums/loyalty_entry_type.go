package enums

import "fmt"

// LoyaltyEntryType classifies loyalty ledger rows.
type LoyaltyEntryType string

const (
	LoyaltyEntryEarned   LoyaltyEntryType = "earned"
	LoyaltyEntryRedeemed LoyaltyEntryType = "redeemed"
)

var validLoyaltyEntryTypes = []LoyaltyEntryType{
	LoyaltyEntryEarned,
	LoyaltyEntryRedeemed,
}

func (l LoyaltyEntryType) String() string {
	return string(l)
}

func (l LoyaltyEntryType) IsValid() bool {
	for _, candidate := range validLoyaltyEntryTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

func ParseLoyaltyEntryType(value string) (LoyaltyEntryType, error) {
	for _, candidate := range validLoyaltyEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loyalty entry type %q", value)
}
