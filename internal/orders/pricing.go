package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/maps"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

// FeeSchedule prices delivery from the restaurant's location.
type FeeSchedule struct {
	flat   decimal.Decimal
	origin *types.LatLng
	bands  []config.DistanceBand
}

// NewFeeSchedule validates the delivery settings once at startup.
func NewFeeSchedule(cfg config.DeliveryConfig) (FeeSchedule, error) {
	flat, err := cfg.Flat()
	if err != nil {
		return FeeSchedule{}, err
	}
	bands, err := cfg.Bands()
	if err != nil {
		return FeeSchedule{}, err
	}
	schedule := FeeSchedule{flat: flat, bands: bands}
	if cfg.RestaurantLat != 0 || cfg.RestaurantLng != 0 {
		schedule.origin = &types.LatLng{Lat: cfg.RestaurantLat, Lng: cfg.RestaurantLng}
	}
	return schedule, nil
}

// Fee returns zero for pickup. Delivery uses the first distance band that
// covers the address, or the flat fee when either end has no coordinates or
// no bands are configured.
func (f FeeSchedule) Fee(method enums.DeliveryMethod, address *types.DeliveryAddress) (decimal.Decimal, error) {
	if method != enums.DeliveryMethodDelivery {
		return decimal.Zero, nil
	}
	if len(f.bands) == 0 || f.origin == nil || address == nil || address.Coordinates == nil {
		return f.flat, nil
	}
	km := maps.DistanceKm(*f.origin, *address.Coordinates)
	for _, band := range f.bands {
		if km <= band.MaxKm {
			return band.Fee, nil
		}
	}
	return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "delivery address is outside the delivery area").
		WithDetails(map[string]string{"distance_km": fmt.Sprintf("%.1f", km)})
}

// priceLine snapshots the menu item and its chosen options into an order line.
func priceLine(item *models.MenuItem, input CreateOrderItem, position int) (models.OrderItem, error) {
	unit := item.Price
	selected := make([]types.SelectedOption, 0, len(input.Options))
	for _, opt := range input.Options {
		choice, ok := types.FindChoice(item.Options, opt.Name, opt.Choice)
		if !ok {
			return models.OrderItem{}, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("unknown option %s/%s for %s", opt.Name, opt.Choice, item.Name))
		}
		unit = unit.Add(choice.Price)
		selected = append(selected, types.SelectedOption{Name: opt.Name, Choice: choice.Name, Price: choice.Price})
	}
	for _, opt := range item.Options {
		if opt.Required && !hasOption(input.Options, opt.Name) {
			return models.OrderItem{}, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("option %s is required for %s", opt.Name, item.Name))
		}
	}
	return models.OrderItem{
		Position:            position,
		MenuItemID:          item.ID,
		Name:                item.Name,
		Quantity:            input.Quantity,
		UnitPrice:           unit,
		TotalPrice:          unit.Mul(decimal.NewFromInt(int64(input.Quantity))),
		Options:             selected,
		SpecialInstructions: input.SpecialInstructions,
	}, nil
}

func hasOption(selected []CreateOrderOption, name string) bool {
	for _, s := range selected {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Totals recomputes subtotal and total from the lines. Total never drops
// below zero.
func Totals(items []models.OrderItem, fee, discount decimal.Decimal) (subtotal, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.TotalPrice)
	}
	total = subtotal.Add(fee).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return subtotal, total
}
