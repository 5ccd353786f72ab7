package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/aurum2mqtt/internal/config"
	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/util"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient() *MQTTClient {
	cfg := util.LoadTestConfig()
	return CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
}

func TestTopics(t *testing.T) {

	assert := assert.New(t)

	c := testClient()
	assert.Equal("aurum2mqtt/bridge/state", c.BridgeStateTopic())
	assert.Equal("aurum2mqtt/aurum_0123abcd/availability", c.AvailabilityTopic("aurum_0123abcd"))
	assert.Equal("aurum2mqtt/sensor/aurum_0123abcd_powerSolar/state", c.SensorStateTopic("aurum_0123abcd_powerSolar"))
	assert.Equal("aurum2mqtt/button/aurum_0123abcd/refresh", c.RefreshCommandTopic("aurum_0123abcd"))
}

func TestRefreshCommandParse(t *testing.T) {

	assert := assert.New(t)

	c := testClient()
	cmd, err := c.parseRefreshCommand("aurum2mqtt/button/aurum_0123abcd/refresh", MQTT_PAYLOAD_PRESS)
	assert.NoError(err)
	assert.Equal("aurum_0123abcd", cmd.DeviceId, "device extract")
	assert.Equal("refresh", cmd.Command)
}

func TestRefreshCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	c := testClient()
	_, err := c.parseRefreshCommand("aurum2mqtt/sensor/aurum_0123abcd/state", MQTT_PAYLOAD_PRESS)
	assert.ErrorIs(err, ErrInvalidCommand)

	_, err = c.parseRefreshCommand("other/button/aurum_0123abcd/refresh", MQTT_PAYLOAD_PRESS)
	assert.ErrorIs(err, ErrInvalidCommand)

	_, err = c.parseRefreshCommand("aurum2mqtt/button/aurum_0123abcd/refresh", "on")
	assert.ErrorIs(err, ErrInvalidCommand)
}

func TestSensorDiscoveryMessage(t *testing.T) {

	assert := assert.New(t)

	c := testClient()
	entry := domain.NewConfigEntry("Garage", "meter.local", "", domain.EntryOptions{})
	device := domain.AurumDevice(entry, "")
	cat, _ := domain.Catalog(domain.METRIC_COUNTER_GAS)
	sensor := domain.CatalogSensor(device, cat)

	assert.Equal("homeassistant/sensor/"+device.Id+"/counterGas/config", HADiscoverySensorTopic(c, sensor))

	msg := GenericSensorToHADiscoveryMessage(c, sensor)
	assert.Equal("aurum2mqtt/sensor/"+device.Id+"_counterGas/state", msg.StateTopic)
	assert.Empty(msg.AvTopic)
	assert.Equal(AVAILABILITY_MODE_ALL, msg.AvailabilityMode)
	assert.Equal([]HADiscoveryAvailability{
		{Topic: "aurum2mqtt/bridge/state"},
		{Topic: "aurum2mqtt/" + device.Id + "/availability"},
	}, msg.Availability)
	assert.Equal("Aurum Europe", msg.Device.Manufacturer)
	assert.Equal("Meetstekker", msg.Device.Model)
	assert.Equal("Garage", msg.Device.Name)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal("m³", decoded["unit_of_measurement"])
	assert.Equal("gas", decoded["device_class"])
	assert.Equal("total_increasing", decoded["state_class"])
	assert.Equal("mdi:fire", decoded["icon"])
	assert.EqualValues(3, decoded["suggested_display_precision"])
	assert.NotContains(decoded, "availability_topic")
}

func TestBridgeDiscoveryMessage(t *testing.T) {

	c := testClient()
	bridge := domain.BridgeDevice("aurum2mqtt")
	sensor := domain.BridgeSensors(bridge)[0]

	msg := GenericSensorToHADiscoveryMessage(c, sensor)
	assert.Equal(t, c.BridgeStateTopic(), msg.StateTopic)
	assert.Equal(t, c.BridgeStateTopic(), msg.AvTopic)
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	assert.Equal(t, "homeassistant/binary_sensor/"+bridge.Id+"/bridge/config", HADiscoverySensorTopic(c, sensor))
}

func TestButtonDiscoveryMessage(t *testing.T) {

	c := testClient()
	entry := domain.NewConfigEntry("", "meter.local", "", domain.EntryOptions{})
	button := domain.RefreshButton(domain.AurumDevice(entry, ""))

	msg := GenericButtonToHADiscoveryMessage(c, button)
	assert.Equal(t, c.RefreshCommandTopic(entry.DeviceId()), msg.CommandTopic)
	assert.Equal(t, MQTT_PAYLOAD_PRESS, msg.PayloadPress)
	assert.Len(t, msg.Availability, 2)
}

func TestClientAgainstEmbeddedBroker(t *testing.T) {

	require := require.New(t)

	broker, err := StartBroker(config.EmbeddedBrokerConfig{Address: "127.0.0.1:18830"}, zap.NewNop())
	require.NoError(err)
	defer broker.Close()

	var mu sync.Mutex
	received := map[string]string{}
	require.NoError(broker.Subscribe("aurum2mqtt/#", func(topic string, payload []byte, retain bool) {
		mu.Lock()
		defer mu.Unlock()
		received[topic] = string(payload)
	}))

	cfg := util.LoadTestConfig()
	cfg.MQTT.Host = "127.0.0.1"
	cfg.MQTT.Port = 18830
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	connected := make(chan error, 1)
	client.Connect(func(err error) { connected <- err }, 2*time.Second)
	require.NoError(<-connected)
	defer client.Disconnect(100 * time.Millisecond)

	published := make(chan error, 1)
	client.Publish(client.SensorStateTopic("aurum_x_powerSolar"), "120.0", 1, false, func(err error) { published <- err }, 2*time.Second)
	require.NoError(<-published)

	require.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received["aurum2mqtt/sensor/aurum_x_powerSolar/state"] == "120.0"
	}, 2*time.Second, 20*time.Millisecond)

	commands := make(chan *ParsedMQTTCommand, 1)
	subscribed := make(chan error, 1)
	client.SubscribeToCommandTopic(func(_ paho.Client, m paho.Message) {
		cmd, err := client.ParseMQTTCommand(m)
		if err == nil {
			commands <- cmd
		}
	}, func(err error) { subscribed <- err }, 2*time.Second)
	require.NoError(<-subscribed)

	require.NoError(broker.Publish(client.RefreshCommandTopic("aurum_x"), []byte(MQTT_PAYLOAD_PRESS), false))

	select {
	case cmd := <-commands:
		assert.Equal(t, "aurum_x", cmd.DeviceId)
	case <-time.After(2 * time.Second):
		t.Fatal("command not received")
	}
}
