package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	BUTTON_ID_REFRESH            = "refresh"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_GAS             = "gas"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
	AURUM_MANUFACTURER           = "Aurum Europe"
	AURUM_MODEL                  = "Meetstekker"
	AURUM_DEFAULT_TITLE          = "Aurum"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("aurum2mqtt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Aurum2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Aurum2MQTT %s", md5HashShort(baseTopic)),
	}
}

// AurumDevice is the device every sensor of an entry is attached to.
func AurumDevice(entry ConfigEntry, viaDevice string) Device {
	name := entry.Title
	if name == "" {
		name = AURUM_DEFAULT_TITLE
	}
	return Device{
		Id:           entry.DeviceId(),
		Manufacturer: AURUM_MANUFACTURER,
		Model:        AURUM_MODEL,
		Name:         name,
		ViaDevice:    viaDevice,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

// CatalogSensor describes the discovery definition of a metric of an entry.
func CatalogSensor(device Device, entry CatalogEntry) GenericSensor {
	sensor := GenericSensor{
		Device:            device,
		Id:                entry.Key,
		StateId:           SensorStateId(device.Id, entry.Key),
		AvailabilityId:    device.Id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              EntityName(entry),
		UniqueId:          uniqueId(device.Id, entry.Key),
		UnitOfMeasurement: entry.Unit,
		StateClass:        entry.StateClass,
		DeviceClass:       entry.DeviceClass,
		Icon:              entry.Icon,
	}
	if entry.Unit != "" {
		sensor.Precision = optionalUint(entry.Precision)
	}
	return sensor
}

// RefreshButton requests an immediate refresh of an entry.
func RefreshButton(device Device) GenericButton {
	return GenericButton{
		Device:         device,
		Id:             BUTTON_ID_REFRESH,
		AvailabilityId: device.Id,
		Name:           fmt.Sprintf("%s Refresh", AURUM_DEFAULT_TITLE),
		UniqueId:       uniqueId(device.Id, BUTTON_ID_REFRESH),
		Icon:           "mdi:refresh",
	}
}

func EntityName(entry CatalogEntry) string {
	return fmt.Sprintf("%s %s", AURUM_DEFAULT_TITLE, entry.Label)
}

func EntityUniqueId(deviceId, key string) string {
	return uniqueId(deviceId, key)
}

// SensorStateId is the id used in the state topic of an entry metric.
func SensorStateId(deviceId, key string) string {
	return fmt.Sprintf("%s_%s", deviceId, key)
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("%s-%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalUint(value uint) *uint {
	return &value
}
