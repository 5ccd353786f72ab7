package actor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/aurum2mqtt/internal/config"
	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/mqtt"
	"github.com/berfenger/aurum2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   *mqtt.MQTTClient
	recorder *PublishRecorder
	logger   *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

// MQTTReady is sent to the parent every time the actor (re)connects, retained state may need a republish.
type MQTTReady struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to refresh buttons
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		if ctx.Parent() != nil {
			ctx.Send(ctx.Parent(), MQTTReady{})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
			State:   "starting",
		})
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: state.client.IsConnected(),
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishSensorUpdateRequest:
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishSensorValue(ctx, msg.Event, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery", zap.Int("sensors", len(msg.Sensors)), zap.Int("buttons", len(msg.Buttons)))
		err := state.PublishHomeAssistantDiscovery(msg.Sensors, msg.Buttons)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
		}
	case domain.RemoveDiscoveryRequest:
		state.logger.Debug("mqtt@default RemoveHADiscovery", zap.Int("sensors", len(msg.Sensors)), zap.Int("buttons", len(msg.Buttons)))
		state.RemoveHomeAssistantDiscovery(msg.Sensors, msg.Buttons)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
		}
	case domain.AvailabilityUpdateEvent:
		return &rawMessage{
			topic:   state.client.AvailabilityTopic(msg.Id),
			message: bool2Availability(msg.Value),
			retain:  true,
		}
	case domain.BridgeStateUpdateEvent:
		return &rawMessage{
			topic:   state.client.BridgeStateTopic(),
			message: bool2Availability(msg.Value),
			retain:  true,
		}
	default:
		return nil
	}
}

func (state *MQTTActor) publishSensorValue(ctx actor.Context, event domain.SensorUpdateEvent, retain bool, replyTo *actor.PID) {
	msg := state.event2MQTTMessage(event)
	if msg == nil {
		state.logger.Warn("mqtt@publish: unknown event", zap.String("type", fmt.Sprintf("%T", event)))
		if replyTo != nil {
			ctx.Send(replyTo, domain.PublishSensorUpdateResponse{})
		}
		return
	}
	state.logger.Sugar().Debugf("mqtt@publish: sensor publish %s => %s", msg.topic, msg.message)
	state.client.Publish(msg.topic, msg.message, 1, msg.retain || retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.EventPublishResultReceive)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishSensorUpdateResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(sensors []domain.GenericSensor, buttons []domain.GenericButton) error {
	for i := range sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(state.client, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoverySensorTopic(state.client, sensors[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	for i := range buttons {
		msg := mqtt.GenericButtonToHADiscoveryMessage(state.client, buttons[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoveryButtonTopic(state.client, buttons[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	return nil
}

// RemoveHomeAssistantDiscovery clears the retained discovery configs, Home Assistant drops the entities.
func (state *MQTTActor) RemoveHomeAssistantDiscovery(sensors []domain.GenericSensor, buttons []domain.GenericButton) {
	for i := range sensors {
		state.client.Publish(mqtt.HADiscoverySensorTopic(state.client, sensors[i]), "", 0, true, func(error) {}, 1*time.Second)
	}
	for i := range buttons {
		state.client.Publish(mqtt.HADiscoveryButtonTopic(state.client, buttons[i]), "", 0, true, func(error) {}, 1*time.Second)
	}
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func bool2Availability(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ONLINE
	}
	return mqtt.MQTT_PAYLOAD_OFFLINE
}

// PublishRecorder keeps what a test MQTT actor was asked to publish.
type PublishRecorder struct {
	mu        sync.Mutex
	events    []domain.SensorUpdateEvent
	discovery []domain.PublishDiscoveryRequest
	removals  []domain.RemoveDiscoveryRequest
	messages  []domain.PublishMessageRequest
}

func (r *PublishRecorder) Events() []domain.SensorUpdateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SensorUpdateEvent(nil), r.events...)
}

func (r *PublishRecorder) Discoveries() []domain.PublishDiscoveryRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PublishDiscoveryRequest(nil), r.discovery...)
}

func (r *PublishRecorder) Removals() []domain.RemoveDiscoveryRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RemoveDiscoveryRequest(nil), r.removals...)
}

func (r *PublishRecorder) Messages() []domain.PublishMessageRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PublishMessageRequest(nil), r.messages...)
}

func (r *PublishRecorder) record(msg any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch m := msg.(type) {
	case domain.PublishSensorUpdateRequest:
		r.events = append(r.events, m.Event)
	case domain.PublishDiscoveryRequest:
		r.discovery = append(r.discovery, m)
	case domain.RemoveDiscoveryRequest:
		r.removals = append(r.removals, m)
	case domain.PublishMessageRequest:
		r.messages = append(r.messages, m)
	}
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, recorder *PublishRecorder, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		recorder: recorder,
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		if ctx.Parent() != nil {
			ctx.Send(ctx.Parent(), MQTTReady{})
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishSensorUpdateRequest:
		state.recorder.record(msg)
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishSensorUpdateResponse{})
		}
	case domain.PublishMessageRequest:
		state.recorder.record(msg)
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishMessageResponse{})
		}
	case domain.PublishDiscoveryRequest:
		state.recorder.record(msg)
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishDiscoveryResponse{})
		}
	case domain.RemoveDiscoveryRequest:
		state.recorder.record(msg)
	}
}
