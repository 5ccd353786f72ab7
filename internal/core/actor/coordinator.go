package actor

import (
	"fmt"
	"math"
	"time"

	adactor "github.com/berfenger/aurum2mqtt/internal/adapter/actor"
	"github.com/berfenger/aurum2mqtt/internal/config"
	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/core/events"
	"github.com/berfenger/aurum2mqtt/internal/core/service"
	"github.com/berfenger/aurum2mqtt/internal/metrics"
	. "github.com/berfenger/aurum2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	COORDINATOR_STATE_STARTING   = "starting"
	COORDINATOR_STATE_SETTING_UP = "setting_up"
	COORDINATOR_STATE_NOT_READY  = "not_ready"
	COORDINATOR_STATE_DEFAULT    = "default"

	// extra time on top of the device timeout before a request future gives up
	DEVICE_FUTURE_MARGIN = 2 * time.Second
	// setup retries stop growing after base * 2^SETUP_RETRY_MAX_EXPONENT
	SETUP_RETRY_MAX_EXPONENT = 4
	MIN_SETUP_RETRY_BASE     = time.Second
)

type AurumActorProvider func(host string) *adactor.AurumActor

// CoordinatorActor owns the entities of one config entry and refreshes them
// from the device at the configured interval.
type CoordinatorActor struct {
	ActorWithStates
	config             *config.Config
	entry              domain.ConfigEntry
	selection          domain.Selection
	device             domain.Device
	scheduler          *scheduler.TimerScheduler
	stash              *Stash
	aurumActor         *actor.PID
	mqttActor          *actor.PID
	aurumActorProvider AurumActorProvider

	entities          []*service.SensorEntity
	ignoredKeys       map[string]struct{}
	interval          time.Duration
	cancelTick        scheduler.CancelFunc
	setupTries        int
	refreshing        bool
	waiters           []*actor.PID
	setupDone         bool
	lastUpdateSuccess bool
	lastUpdate        time.Time
	available         *bool
	stateName         string

	logger *zap.Logger
}

type coordinatorTick struct {
}

type setupRetryTick struct {
}

func NewCoordinatorActor(config *config.Config, entry domain.ConfigEntry, mqttActor *actor.PID, aurumActorProvider AurumActorProvider, logger *zap.Logger) *CoordinatorActor {
	selection, err := entry.ParsedSelection()
	if err != nil {
		// entries are validated before they are stored
		selection = domain.DefaultSelection()
	}
	act := &CoordinatorActor{
		config:             config,
		entry:              entry,
		selection:          selection,
		device:             domain.AurumDevice(entry, domain.BridgeDevice(config.MQTT.BaseTopic).Id),
		mqttActor:          mqttActor,
		aurumActorProvider: aurumActorProvider,
		stash:              &Stash{},
		ignoredKeys:        map[string]struct{}{},
		interval:           entry.UpdateInterval(),
		logger:             ActorLogger(fmt.Sprintf("%s_%s", domain.ACTOR_ID_COORDINATOR, entry.Id), logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.become(CoordinatorStartingState{
		actor: act,
	})
	return act
}

func (state *CoordinatorActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (state *CoordinatorActor) become(s ActorState) {
	state.stateName = s.Name()
	state.Become(s)
}

// Starting state

type CoordinatorStartingState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CoordinatorStartingState) Name() string {
	return COORDINATOR_STATE_STARTING
}

func (state CoordinatorStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("coordinator@starting started", zap.String("host", state.actor.entry.Host))
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)

		props := actor.PropsFromProducer(func() actor.Actor {
			return state.actor.aurumActorProvider(state.actor.entry.Host)
		})
		pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_AURUM)
		if err != nil {
			panic(err)
		}
		state.actor.aurumActor = pid

		state.actor.become(CoordinatorSettingUpState{
			actor: state.actor,
		}.OnEnter(ctx))
	default:
		if !state.actor.commonReceive(ctx, state.Name()) {
			state.actor.logger.Debug("coordinator@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
			state.actor.stash.Stash(ctx, msg)
		}
	}
}

// Setting up state: connect, then the first refresh

type CoordinatorSettingUpState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CoordinatorSettingUpState) Name() string {
	return COORDINATOR_STATE_SETTING_UP
}

func (state CoordinatorSettingUpState) OnEnter(ctx actor.Context) CoordinatorSettingUpState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.aurumActor, domain.ConnectRequest{}, state.actor.futureTimeout()), func(err error) any {
		return domain.ConnectResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
	return state
}

func (state CoordinatorSettingUpState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ConnectResponse:
		if msg.HasResponseError() {
			state.actor.logger.Warn("coordinator@setting_up could not connect", zap.String("host", state.actor.entry.Host), zap.Error(msg.GetResponseError()))
			state.actor.become(CoordinatorNotReadyState{actor: state.actor}.OnEnter(ctx))
			return
		}
		if !msg.Connected {
			state.actor.logger.Warn("coordinator@setting_up device returned no data", zap.String("host", state.actor.entry.Host))
			state.actor.become(CoordinatorNotReadyState{actor: state.actor}.OnEnter(ctx))
			return
		}
		state.actor.logger.Debug("coordinator@setting_up connected")
		state.actor.requestRefresh(ctx)
	case domain.RefreshResponse:
		state.actor.refreshing = false
		state.actor.lastUpdate = time.Now()
		if msg.HasResponseError() {
			state.actor.lastUpdateSuccess = false
			metrics.ObserveRefresh(state.actor.entry.Id, false, 0)
			state.actor.logger.Warn("coordinator@setting_up first refresh failed", zap.Error(msg.GetResponseError()))
			state.actor.become(CoordinatorNotReadyState{actor: state.actor}.OnEnter(ctx))
			return
		}
		metrics.ObserveRefresh(state.actor.entry.Id, true, msg.Duration)
		state.actor.completeSetup(ctx, msg.Payload)
		state.actor.become(CoordinatorDefaultState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case adactor.MQTTReady:
		// discovery is published once setup completes
	default:
		if !state.actor.commonReceive(ctx, state.Name()) {
			state.actor.logger.Debug("coordinator@setting_up stash", zap.String("type", fmt.Sprintf("%T", msg)))
			state.actor.stash.Stash(ctx, msg)
		}
	}
}

// Not ready state: setup is retried with an exponential backoff

type CoordinatorNotReadyState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CoordinatorNotReadyState) Name() string {
	return COORDINATOR_STATE_NOT_READY
}

func (state CoordinatorNotReadyState) OnEnter(ctx actor.Context) CoordinatorNotReadyState {
	delay := SetupRetryDelay(state.actor.setupRetryBase(), state.actor.setupTries)
	state.actor.setupTries++
	state.actor.setAvailable(ctx, false)
	state.actor.logger.Info("coordinator@not_ready retrying setup", zap.Duration("in", delay), zap.Int("tries", state.actor.setupTries))
	state.actor.cancelPendingTick()
	state.actor.cancelTick = state.actor.scheduler.RequestOnce(delay, ctx.Self(), setupRetryTick{})
	return state
}

func (state CoordinatorNotReadyState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case setupRetryTick:
		state.actor.cancelTick = nil
		state.actor.logger.Debug("coordinator@not_ready setupRetryTick")
		state.actor.become(CoordinatorSettingUpState{
			actor: state.actor,
		}.OnEnter(ctx))
	case adactor.MQTTReady:
		state.actor.publishAvailability(ctx)
	default:
		if !state.actor.commonReceive(ctx, state.Name()) {
			state.actor.logger.Debug("coordinator@not_ready recv", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// Default state: periodic refresh

type CoordinatorDefaultState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CoordinatorDefaultState) Name() string {
	return COORDINATOR_STATE_DEFAULT
}

func (state CoordinatorDefaultState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case coordinatorTick:
		state.actor.cancelTick = nil
		state.actor.logger.Debug("coordinator@default coordinatorTick")
		state.actor.requestRefresh(ctx)
	case domain.RefreshEntryRequest:
		state.actor.logger.Debug("coordinator@default RefreshEntryRequest")
		if replyTo := ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			state.actor.waiters = append(state.actor.waiters, replyTo)
		}
		state.actor.requestRefresh(ctx)
	case domain.RefreshResponse:
		state.actor.handleRefresh(ctx, msg)
	case domain.SetUpdateIntervalRequest:
		state.actor.logger.Info("coordinator@default update interval changed", zap.Duration("interval", msg.Interval))
		state.actor.interval = msg.Interval
		if !state.actor.refreshing {
			state.actor.scheduleTick(ctx)
		}
	case adactor.MQTTReady:
		state.actor.logger.Debug("coordinator@default MQTTReady republish")
		state.actor.publishDiscovery(ctx)
		state.actor.publishAvailability(ctx)
		state.actor.publishStates(ctx)
	default:
		if !state.actor.commonReceive(ctx, state.Name()) {
			state.actor.logger.Debug("coordinator@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// commonReceive answers the messages every state handles the same way.
func (state *CoordinatorActor) commonReceive(ctx actor.Context, stateName string) bool {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug(fmt.Sprintf("coordinator@%s ActorHealthRequest", stateName))
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.entry.Id,
			Healthy: state.setupDone && state.lastUpdateSuccess,
			State:   stateName,
		})
	case domain.GetEntityStatesRequest:
		ForRequest(msg).Respond(ctx, domain.GetEntityStatesResponse{
			EntryId:           state.entry.Id,
			State:             stateName,
			LastUpdateSuccess: state.lastUpdateSuccess,
			LastUpdate:        state.lastUpdate,
			Entities:          state.entityStates(),
		})
	case domain.RefreshEntryRequest:
		ForRequest(msg).Respond(ctx, domain.RefreshEntryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: domain.ErrEntryNotReady,
			},
		})
	case domain.SetUpdateIntervalRequest:
		// picked up by the first tick after setup
		state.interval = msg.Interval
	case domain.RemoveEntryRequest:
		state.logger.Info(fmt.Sprintf("coordinator@%s removing entry", stateName))
		state.removeDiscovery(ctx)
	case *actor.Stopping:
		state.logger.Debug(fmt.Sprintf("coordinator@%s stopping", stateName))
		state.cancelPendingTick()
		state.setAvailable(ctx, false)
		state.respondWaiters(ctx, false, domain.ErrEntryNotReady)
	case *actor.Stopped:
		state.logger.Debug(fmt.Sprintf("coordinator@%s stopped", stateName))
	default:
		return false
	}
	return true
}

func (state *CoordinatorActor) completeSetup(ctx actor.Context, payload domain.NumberedPayload) {
	state.entities = service.BuildEntities(state.device.Id, payload, state.selection, state.logger)
	state.logIgnoredKeys(payload)
	state.setupDone = true
	state.setupTries = 0
	state.lastUpdateSuccess = true
	metrics.SetEntities(state.entry.Id, len(state.entities))

	state.logger.Info("coordinator@setting_up ready", zap.Int("entities", len(state.entities)), zap.Stringer("selection", state.selection))

	state.publishDiscovery(ctx)
	state.publishStates(ctx)
	state.setAvailable(ctx, true)
	state.respondWaiters(ctx, true, nil)
	state.scheduleTick(ctx)
}

func (state *CoordinatorActor) handleRefresh(ctx actor.Context, msg domain.RefreshResponse) {
	state.refreshing = false
	state.lastUpdate = time.Now()
	if msg.HasResponseError() {
		state.logger.Warn("coordinator@default refresh failed", zap.Error(msg.GetResponseError()))
		state.lastUpdateSuccess = false
		metrics.ObserveRefresh(state.entry.Id, false, 0)
		state.setAvailable(ctx, false)
		state.respondWaiters(ctx, false, nil)
		state.scheduleTick(ctx)
		return
	}

	state.lastUpdateSuccess = true
	metrics.ObserveRefresh(state.entry.Id, true, msg.Duration)
	state.setAvailable(ctx, true)
	if len(service.FilterPayload(msg.Payload, state.selection)) == 0 {
		// entities keep their last value
		state.logger.Warn("coordinator@default received no data", zap.String("host", state.entry.Host), zap.Stringer("selection", state.selection))
	}
	state.logIgnoredKeys(msg.Payload)
	for _, entity := range state.entities {
		st := entity.HandleCoordinatorUpdate(msg.Payload)
		state.publishState(ctx, st)
	}
	state.respondWaiters(ctx, true, nil)
	state.scheduleTick(ctx)
}

func (state *CoordinatorActor) requestRefresh(ctx actor.Context) {
	if state.refreshing {
		state.logger.Debug("coordinator: refresh already in flight")
		return
	}
	state.refreshing = true
	state.cancelPendingTick()
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.aurumActor, domain.RefreshRequest{}, state.futureTimeout()), func(err error) any {
		return domain.RefreshResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
}

func (state *CoordinatorActor) scheduleTick(ctx actor.Context) {
	state.cancelPendingTick()
	state.cancelTick = state.scheduler.RequestOnce(state.interval, ctx.Self(), coordinatorTick{})
}

func (state *CoordinatorActor) cancelPendingTick() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}

func (state *CoordinatorActor) respondWaiters(ctx actor.Context, success bool, err error) {
	for _, w := range state.waiters {
		ctx.Send(w, domain.RefreshEntryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			LastUpdateSuccess: success,
		})
	}
	state.waiters = nil
}

// logIgnoredKeys reports, once per key, metrics that showed up after setup.
func (state *CoordinatorActor) logIgnoredKeys(payload domain.NumberedPayload) {
	for _, key := range service.UnboundKeys(state.entities, service.FilterPayload(payload, state.selection)) {
		if _, seen := state.ignoredKeys[key]; seen {
			continue
		}
		state.ignoredKeys[key] = struct{}{}
		state.logger.Debug("coordinator: metric has no entity, ignored", zap.String("key", key))
	}
}

func (state *CoordinatorActor) setAvailable(ctx actor.Context, available bool) {
	if state.available != nil && *state.available == available {
		return
	}
	state.available = &available
	metrics.SetAvailable(state.entry.Id, available)
	state.publishAvailability(ctx)
}

func (state *CoordinatorActor) publishAvailability(ctx actor.Context) {
	if state.available == nil || state.mqttActor == nil {
		return
	}
	ctx.Send(state.mqttActor, domain.PublishSensorUpdateRequest{
		Retain: true,
		Event:  events.EntryAvailabilityUpdateEvent(state.device.Id, *state.available),
	})
}

func (state *CoordinatorActor) publishStates(ctx actor.Context) {
	if state.mqttActor == nil {
		return
	}
	for _, ev := range events.EntityStatesToUpdateEvents(state.entityStates()) {
		ctx.Send(state.mqttActor, domain.PublishSensorUpdateRequest{
			Event: ev,
		})
	}
}

func (state *CoordinatorActor) publishState(ctx actor.Context, st domain.EntityState) {
	if !st.HasValue || state.mqttActor == nil {
		return
	}
	if ev := events.EntityStateToUpdateEvent(st); ev != nil {
		ctx.Send(state.mqttActor, domain.PublishSensorUpdateRequest{
			Event: ev,
		})
	}
}

func (state *CoordinatorActor) discoveryConfig() ([]domain.GenericSensor, []domain.GenericButton) {
	var sensors []domain.GenericSensor
	for i, entity := range state.entities {
		device := state.device
		if i > 0 {
			device = domain.IdDevice(state.device)
		}
		sensors = append(sensors, entity.Sensor(device))
	}
	buttons := []domain.GenericButton{domain.RefreshButton(domain.IdDevice(state.device))}
	if len(sensors) == 0 {
		buttons[0].Device = state.device
	}
	return sensors, buttons
}

func (state *CoordinatorActor) publishDiscovery(ctx actor.Context) {
	if !state.config.MQTT.HADiscoveryEnable || state.mqttActor == nil || !state.setupDone {
		return
	}
	sensors, buttons := state.discoveryConfig()
	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors: sensors,
		Buttons: buttons,
	})
}

func (state *CoordinatorActor) removeDiscovery(ctx actor.Context) {
	if !state.config.MQTT.HADiscoveryEnable || state.mqttActor == nil || !state.setupDone {
		return
	}
	sensors, buttons := state.discoveryConfig()
	ctx.Send(state.mqttActor, domain.RemoveDiscoveryRequest{
		Sensors: sensors,
		Buttons: buttons,
	})
}

func (state *CoordinatorActor) entityStates() []domain.EntityState {
	states := make([]domain.EntityState, 0, len(state.entities))
	for _, entity := range state.entities {
		states = append(states, entity.State())
	}
	return states
}

func (state *CoordinatorActor) futureTimeout() time.Duration {
	return state.requestTimeout() + DEVICE_FUTURE_MARGIN
}

func (state *CoordinatorActor) requestTimeout() time.Duration {
	return time.Duration(state.config.Aurum.RequestTimeoutMillis) * time.Millisecond
}

// setupRetryBase never goes below MIN_SETUP_RETRY_BASE, a zero base would retry setup in a tight loop.
func (state *CoordinatorActor) setupRetryBase() time.Duration {
	return max(time.Duration(state.config.Aurum.SetupRetryBaseSeconds)*time.Second, MIN_SETUP_RETRY_BASE)
}

// SetupRetryDelay is base * 2^min(tries, 4).
func SetupRetryDelay(base time.Duration, tries int) time.Duration {
	exp := math.Min(float64(tries), SETUP_RETRY_MAX_EXPONENT)
	return base * time.Duration(math.Pow(2, exp))
}
