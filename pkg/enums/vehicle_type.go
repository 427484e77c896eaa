package enums

import "fmt"

// VehicleType is the delivery agent's means of transport.
type VehicleType string

const (
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleCar        VehicleType = "car"
	VehicleBicycle    VehicleType = "bicycle"
	VehicleOnFoot     VehicleType = "on-foot"
)

var validVehicleTypes = []VehicleType{
	VehicleMotorcycle,
	VehicleCar,
	VehicleBicycle,
	VehicleOnFoot,
}

func (v VehicleType) String() string {
	return string(v)
}

func (v VehicleType) IsValid() bool {
	for _, candidate := range validVehicleTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

func ParseVehicleType(value string) (VehicleType, error) {
	for _, candidate := range validVehicleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vehicle type %q", value)
}
