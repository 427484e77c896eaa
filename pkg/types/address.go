package types

import (
	"strings"

	"github.com/google/uuid"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DeliveryAddress is the drop-off location snapshotted onto an order.
type DeliveryAddress struct {
	Address         string  `json:"address"`
	Coordinates     *LatLng `json:"coordinates,omitempty"`
	BuildingNumber  string  `json:"building_number,omitempty"`
	FloorNumber     string  `json:"floor_number,omitempty"`
	ApartmentNumber string  `json:"apartment_number,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

// IsZero reports whether no street address was provided.
func (a DeliveryAddress) IsZero() bool {
	return strings.TrimSpace(a.Address) == ""
}

// SavedAddress is an entry in a user's address book.
type SavedAddress struct {
	ID              uuid.UUID `json:"id"`
	Label           string    `json:"label"`
	Address         string    `json:"address"`
	Coordinates     *LatLng   `json:"coordinates,omitempty"`
	BuildingNumber  string    `json:"building_number,omitempty"`
	FloorNumber     string    `json:"floor_number,omitempty"`
	ApartmentNumber string    `json:"apartment_number,omitempty"`
	IsDefault       bool      `json:"is_default"`
}

// ToDelivery snapshots the saved address for an order.
func (a SavedAddress) ToDelivery() DeliveryAddress {
	return DeliveryAddress{
		Address:         a.Address,
		Coordinates:     a.Coordinates,
		BuildingNumber:  a.BuildingNumber,
		FloorNumber:     a.FloorNumber,
		ApartmentNumber: a.ApartmentNumber,
	}
}
