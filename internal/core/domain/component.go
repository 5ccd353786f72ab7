package domain

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	StateId           string // state topic id, empty for the bridge state
	AvailabilityId    string // per entry availability, empty when only the bridge matters
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing
	DeviceClass       string // power, energy, gas
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
	Precision         *uint
}

type GenericButton struct {
	Device         Device
	Id             string
	AvailabilityId string
	Name           string
	UniqueId       string
	Icon           string
}
