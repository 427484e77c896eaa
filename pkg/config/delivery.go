package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DistanceBand charges Fee for deliveries up to MaxKm from the restaurant.
type DistanceBand struct {
	MaxKm float64
	Fee   decimal.Decimal
}

// Flat returns the configured flat delivery fee.
func (d DeliveryConfig) Flat() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(strings.TrimSpace(d.FlatFee))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", EnvDeliveryFlatFee, err)
	}
	if fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvDeliveryFlatFee)
	}
	return fee, nil
}

// Bands parses DistanceBands sorted by distance ascending.
func (d DeliveryConfig) Bands() ([]DistanceBand, error) {
	raw := strings.TrimSpace(d.DistanceBands)
	if raw == "" {
		return nil, nil
	}
	var bands []DistanceBand
	for _, part := range strings.Split(raw, ",") {
		pieces := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(pieces) != 2 {
			return nil, fmt.Errorf("%s: malformed band %q", EnvDeliveryDistanceBands, part)
		}
		km, err := decimal.NewFromString(strings.TrimSpace(pieces[0]))
		if err != nil || !km.IsPositive() {
			return nil, fmt.Errorf("%s: invalid distance in %q", EnvDeliveryDistanceBands, part)
		}
		fee, err := decimal.NewFromString(strings.TrimSpace(pieces[1]))
		if err != nil || fee.IsNegative() {
			return nil, fmt.Errorf("%s: invalid fee in %q", EnvDeliveryDistanceBands, part)
		}
		bands = append(bands, DistanceBand{MaxKm: km.InexactFloat64(), Fee: fee})
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].MaxKm < bands[j].MaxKm })
	return bands, nil
}
