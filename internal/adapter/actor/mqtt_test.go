package actor

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/aurum2mqtt/internal/config"
	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/mqtt"
	"github.com/berfenger/aurum2mqtt/internal/util"
	"github.com/berfenger/aurum2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokerInbox struct {
	mu       sync.Mutex
	messages map[string]string
}

func (b *brokerInbox) get(topic string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.messages[topic]
	return v, ok
}

// commandSink spawns the actor under test and exposes what it routes to its parent.
type commandSink struct {
	props    *actor.Props
	child    *actor.PID
	commands chan ParsedCommand
	ready    chan struct{}
}

func (s *commandSink) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		s.child = ctx.Spawn(s.props)
	case MQTTReady:
		select {
		case s.ready <- struct{}{}:
		default:
		}
	case ParsedCommand:
		s.commands <- msg
	case domain.ActorHealthRequest:
		ctx.Forward(s.child)
	case domain.PublishSensorUpdateRequest, domain.PublishDiscoveryRequest, domain.RemoveDiscoveryRequest:
		ctx.Forward(s.child)
	}
}

func TestMQTTActor(t *testing.T) {

	require := require.New(t)

	broker, err := mqtt.StartBroker(config.EmbeddedBrokerConfig{Address: "127.0.0.1:18831"}, zap.NewNop())
	require.NoError(err)
	defer broker.Close()

	inbox := &brokerInbox{messages: map[string]string{}}
	require.NoError(broker.Subscribe("#", func(topic string, payload []byte, retain bool) {
		inbox.mu.Lock()
		defer inbox.mu.Unlock()
		inbox.messages[topic] = string(payload)
	}))

	cfg := util.LoadTestConfig()
	cfg.MQTT.Host = "127.0.0.1"
	cfg.MQTT.Port = 18831

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root
	defer as.Shutdown()

	sink := &commandSink{
		props:    actor.PropsFromProducer(func() actor.Actor { return NewMQTTActor(&cfg, logger) }),
		commands: make(chan ParsedCommand, 1),
		ready:    make(chan struct{}, 1),
	}
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return sink }))
	defer context.Stop(pid)

	select {
	case <-sink.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("mqtt actor not ready")
	}

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(err)
	health, ok := result.(domain.ActorHealthResponse)
	require.True(ok)
	assert.True(t, health.Healthy)

	assert.Eventually(t, func() bool {
		v, _ := inbox.get("aurum2mqtt/bridge/state")
		return v == mqtt.MQTT_PAYLOAD_ONLINE
	}, 2*time.Second, 20*time.Millisecond)

	// state update
	result, err = context.RequestFuture(pid, domain.PublishSensorUpdateRequest{
		Event: domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "aurum_1_powerSolar"},
			Value:                  245.26,
			Decimals:               1,
		},
	}, 2*time.Second).Result()
	require.NoError(err)
	_, ok = result.(domain.PublishSensorUpdateResponse)
	require.True(ok)

	// availability update
	_, err = context.RequestFuture(pid, domain.PublishSensorUpdateRequest{
		Event: domain.AvailabilityUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "aurum_1"},
			Value:                  true,
		},
	}, 2*time.Second).Result()
	require.NoError(err)

	assert.Eventually(t, func() bool {
		solar, _ := inbox.get("aurum2mqtt/sensor/aurum_1_powerSolar/state")
		av, _ := inbox.get("aurum2mqtt/aurum_1/availability")
		return solar == "245.3" && av == mqtt.MQTT_PAYLOAD_ONLINE
	}, 2*time.Second, 20*time.Millisecond)

	// discovery
	entry := domain.NewConfigEntry("", "meter.local", "", domain.EntryOptions{})
	device := domain.AurumDevice(entry, "")
	cat, _ := domain.Catalog(domain.METRIC_POWER_SOLAR)
	sensor := domain.CatalogSensor(device, cat)
	button := domain.RefreshButton(device)
	_, err = context.RequestFuture(pid, domain.PublishDiscoveryRequest{
		Sensors: []domain.GenericSensor{sensor},
		Buttons: []domain.GenericButton{button},
	}, 2*time.Second).Result()
	require.NoError(err)

	sensorTopic := "homeassistant/sensor/" + device.Id + "/powerSolar/config"
	buttonTopic := "homeassistant/button/" + device.Id + "/refresh/config"
	assert.Eventually(t, func() bool {
		_, s := inbox.get(sensorTopic)
		_, b := inbox.get(buttonTopic)
		return s && b
	}, 2*time.Second, 20*time.Millisecond)

	raw, _ := inbox.get(sensorTopic)
	var disc map[string]any
	require.NoError(json.Unmarshal([]byte(raw), &disc))
	assert.Equal(t, "Aurum Solar Power", disc["name"])
	assert.Equal(t, device.Id+"-powerSolar", disc["unique_id"])

	// refresh button press is routed to the parent
	require.NoError(broker.Publish("aurum2mqtt/button/"+device.Id+"/refresh", []byte(mqtt.MQTT_PAYLOAD_PRESS), false))
	select {
	case cmd := <-sink.commands:
		assert.Equal(t, device.Id, cmd.Command.DeviceId)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh command not routed")
	}

	// removal clears the retained configs
	context.Send(pid, domain.RemoveDiscoveryRequest{
		Sensors: []domain.GenericSensor{sensor},
		Buttons: []domain.GenericButton{button},
	})
	assert.Eventually(t, func() bool {
		s, _ := inbox.get(sensorTopic)
		b, _ := inbox.get(buttonTopic)
		return s == "" && b == ""
	}, 2*time.Second, 20*time.Millisecond)
}

func TestTestMQTTActorRecords(t *testing.T) {

	cfg := util.LoadTestConfig()
	as := actor.NewActorSystem()
	context := as.Root
	defer as.Shutdown()

	recorder := &PublishRecorder{}
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, recorder, zap.NewNop()) }))

	_, err := context.RequestFuture(pid, domain.PublishSensorUpdateRequest{
		Event: domain.TextSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "aurum_1_smartMeterTimestamp"},
			Value:                  "231018120000S",
		},
	}, time.Second).Result()
	require.NoError(t, err)

	evs := recorder.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "aurum_1_smartMeterTimestamp", evs[0].SensorId())
}
