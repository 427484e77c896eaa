package enums

import "fmt"

// MembershipLevel is the loyalty tier derived from lifetime points.
type MembershipLevel string

const (
	MembershipBronze   MembershipLevel = "bronze"
	MembershipSilver   MembershipLevel = "silver"
	MembershipGold     MembershipLevel = "gold"
	MembershipPlatinum MembershipLevel = "platinum"
)

var validMembershipLevels = []MembershipLevel{
	MembershipBronze,
	MembershipSilver,
	MembershipGold,
	MembershipPlatinum,
}

// String implements fmt.Stringer.
func (m MembershipLevel) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MembershipLevel.
func (m MembershipLevel) IsValid() bool {
	for _, candidate := range validMembershipLevels {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMembershipLevel converts raw input into a MembershipLevel.
func ParseMembershipLevel(value string) (MembershipLevel, error) {
	for _, candidate := range validMembershipLevels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid membership level %q", value)
}
