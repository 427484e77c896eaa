package enums

import (
	"fmt"
	"slices"
)

// parse matches value exactly against the known members of an enum.
func parse[T ~string](value, kind string, known []T) (T, error) {
	if v := T(value); slices.Contains(known, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
