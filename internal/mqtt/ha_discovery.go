package mqtt

import (
	"fmt"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"
)

const (
	AVAILABILITY_MODE_ALL = "all"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice         `json:"device"`
	StateTopic        string                    `json:"state_topic,omitempty"`
	CommandTopic      string                    `json:"command_topic,omitempty"`
	StateClass        string                    `json:"state_class,omitempty"`
	DeviceClass       string                    `json:"device_class,omitempty"`
	UnitOfMeasurement string                    `json:"unit_of_measurement,omitempty"`
	AvTopic           string                    `json:"availability_topic,omitempty"`
	Availability      []HADiscoveryAvailability `json:"availability,omitempty"`
	AvailabilityMode  string                    `json:"availability_mode,omitempty"`
	EntityCategory    string                    `json:"entity_category,omitempty"`
	Name              string                    `json:"name"`
	UniqueId          string                    `json:"unique_id"`
	Platform          string                    `json:"platform"`
	EnabledByDefault  *bool                     `json:"enabled_by_default,omitempty"`
	PayloadOn         string                    `json:"payload_on,omitempty"`
	PayloadOff        string                    `json:"payload_off,omitempty"`
	PayloadPress      string                    `json:"payload_press,omitempty"`
	Icon              string                    `json:"icon,omitempty"`
	DisplayPrecision  *uint                     `json:"suggested_display_precision,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type HADiscoveryAvailability struct {
	Topic string `json:"topic"`
}

func HADiscoverySensorTopic(client *MQTTClient, sensor domain.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", client.DiscoveryTopic(), sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func HADiscoveryButtonTopic(client *MQTTClient, button domain.GenericButton) string {
	return fmt.Sprintf("%s/button/%s/%s/config", client.DiscoveryTopic(), button.Device.Id, button.Id)
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	dev := device(sensor.Device)
	var topic string
	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		topic = client.BridgeStateTopic()
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		topic = client.BinarySensorStateTopic(sensor.StateId)
	default:
		topic = client.SensorStateTopic(sensor.StateId)
	}
	disConfig := HADiscoveryConfig{
		Device:            dev,
		StateTopic:        topic,
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		DisplayPrecision:  sensor.Precision,
		Platform:          "mqtt",
	}
	setAvailability(client, &disConfig, sensor.AvailabilityId)
	if sensor.Id == domain.SENSOR_ID_BRIDGE_STATE {
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
	} else if sensor.SensorType == domain.SENSOR_TYPE_BINARY {
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	}
	return disConfig
}

func GenericButtonToHADiscoveryMessage(client *MQTTClient, button domain.GenericButton) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:       device(button.Device),
		CommandTopic: client.RefreshCommandTopic(button.Device.Id),
		Name:         button.Name,
		UniqueId:     button.UniqueId,
		Icon:         button.Icon,
		Platform:     "mqtt",
		PayloadPress: MQTT_PAYLOAD_PRESS,
	}
	setAvailability(client, &disConfig, button.AvailabilityId)
	return disConfig
}

// entities of an entry are available only while both the bridge and the entry are online
func setAvailability(client *MQTTClient, disConfig *HADiscoveryConfig, availabilityId string) {
	if availabilityId == "" {
		disConfig.AvTopic = client.BridgeStateTopic()
		return
	}
	disConfig.Availability = []HADiscoveryAvailability{
		{Topic: client.BridgeStateTopic()},
		{Topic: client.AvailabilityTopic(availabilityId)},
	}
	disConfig.AvailabilityMode = AVAILABILITY_MODE_ALL
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
