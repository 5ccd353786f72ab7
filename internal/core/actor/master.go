package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/aurum2mqtt/internal/adapter/actor"
	"github.com/berfenger/aurum2mqtt/internal/config"
	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/core/port"
	"github.com/berfenger/aurum2mqtt/internal/core/service"
	"github.com/berfenger/aurum2mqtt/internal/metrics"
	. "github.com/berfenger/aurum2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	CONFIG_FLOW_TIMEOUT = 30 * time.Second
	STORE_TIMEOUT       = 5 * time.Second
	HEALTH_TIMEOUT      = 500 * time.Millisecond
)

type MQTTActorProvider func() *adactor.MQTTActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	store              port.EntryStore
	clientFactory      port.AurumClientFactory
	mqttActor          *actor.PID
	mqttActorProvider  MQTTActorProvider
	entries            map[string]domain.ConfigEntry
	coordinators       map[string]*actor.PID
	pendingHosts       map[string]struct{}
	logger             *zap.Logger
}

type healthCheckResult struct {
	expected  int
	received  int
	healthy   int
	mqtt      bool
	respondTo *actor.PID
}

// entryValidated carries the outcome of the config flow validation back to the master.
type entryValidated struct {
	request   domain.CreateEntryRequest
	replyTo   *actor.PID
	validated *service.ValidatedInput
	err       error
}

func NewMasterOfPuppetsActor(config config.Config, store port.EntryStore, clientFactory port.AurumClientFactory, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
		store:             store,
		clientFactory:     clientFactory,
		mqttActorProvider: mqttActorProvider,
		entries:           map[string]domain.ConfigEntry{},
		coordinators:      map[string]*actor.PID{},
		pendingHosts:      map[string]struct{}{},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		entries, err := state.loadEntries()
		if err != nil {
			panic(err)
		}
		for _, entry := range entries {
			if _, err := state.startCoordinator(ctx, entry); err != nil {
				panic(err)
			}
		}
		state.logger.Info("master@starting entries loaded", zap.Int("entries", len(entries)))

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck = healthCheckResult{
			expected:  1 + len(state.coordinators),
			respondTo: ctx.Sender(),
		}
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, HEALTH_TIMEOUT), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// Coordinator Requests
		for entryId, pid := range state.coordinators {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, HEALTH_TIMEOUT), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      entryId,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.MQTTReady:
		state.logger.Debug("master@default MQTTReady")
		if state.config.MQTT.HADiscoveryEnable {
			ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
				Sensors: domain.BridgeSensors(domain.BridgeDevice(state.config.MQTT.BaseTopic)),
			})
		}
		for _, pid := range state.coordinators {
			ctx.Send(pid, msg)
		}
	case adactor.ParsedCommand:
		// refresh button pressed
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command == nil {
			return
		}
		for id, entry := range state.entries {
			if entry.DeviceId() == msg.Command.DeviceId {
				ctx.Send(state.coordinators[id], domain.RefreshEntryRequest{EntryId: id})
			}
		}
	case domain.CreateEntryRequest:
		state.logger.Debug("master@default CreateEntryRequest", zap.String("host", msg.Host))
		state.createEntry(ctx, msg)
	case entryValidated:
		state.completeCreateEntry(ctx, msg)
	case domain.RemoveEntryRequest:
		state.logger.Debug("master@default RemoveEntryRequest", zap.String("entry", msg.EntryId))
		ForRequest(msg).Respond(ctx, domain.RemoveEntryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: state.removeEntry(ctx, msg.EntryId),
			},
		})
	case domain.GetEntryRequest:
		entry, err := state.getEntry(msg.EntryId)
		ForRequest(msg).Respond(ctx, domain.GetEntryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Entry:              entry,
		})
	case domain.ListEntriesRequest:
		entries, err := state.listEntries()
		ForRequest(msg).Respond(ctx, domain.ListEntriesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Entries:            entries,
		})
	case domain.UpdateEntryOptionsRequest:
		state.logger.Debug("master@default UpdateEntryOptionsRequest", zap.String("entry", msg.EntryId))
		entry, err := state.updateEntryOptions(ctx, msg.EntryId, msg.Options)
		ForRequest(msg).Respond(ctx, domain.UpdateEntryOptionsResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Entry:              entry,
		})
	case domain.GetEntityStatesRequest:
		if pid, ok := state.coordinators[msg.EntryId]; ok {
			ctx.Forward(pid)
			return
		}
		ForRequest(msg).Respond(ctx, domain.GetEntityStatesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrUnknownEntry},
			EntryId:            msg.EntryId,
		})
	case domain.RefreshEntryRequest:
		if pid, ok := state.coordinators[msg.EntryId]; ok {
			ctx.Forward(pid)
			return
		}
		ForRequest(msg).Respond(ctx, domain.RefreshEntryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrUnknownEntry},
		})
	case *actor.Terminated:
		state.logger.Debug("master@default terminated", zap.String("who", msg.Who.Id))
		if msg.Who.Equal(state.mqttActor) {
			state.logger.Error("master@default mqtt terminated")
			panic(errors.New("mqtt terminated"))
		}
	case domain.ActorHealthResponse:
		// late health response
	default:
		state.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.received++
		if msg.Healthy {
			if msg.Id == domain.ACTOR_ID_MQTT {
				state.currentHealthCheck.mqtt = true
			} else {
				state.currentHealthCheck.healthy++
			}
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) createEntry(ctx actor.Context, msg domain.CreateEntryRequest) {
	replyTo := ForRequest(msg).ReplyTo(ctx)
	host := domain.NormalizeHost(msg.Host)
	if _, pending := state.pendingHosts[host]; pending || service.AlreadyConfigured(state.entryList(), msg.Host) {
		state.logger.Info("master@default entry already configured", zap.String("host", msg.Host))
		if replyTo != nil {
			ctx.Send(replyTo, domain.CreateEntryResponse{
				AbortReason: service.ABORT_ALREADY_CONFIGURED,
			})
		}
		return
	}
	state.pendingHosts[host] = struct{}{}

	clientFactory := state.clientFactory
	NewBackgroundTaskNoError(ctx, func() *entryValidated {
		c, cancel := context.WithTimeout(context.Background(), CONFIG_FLOW_TIMEOUT)
		defer cancel()
		validated, err := service.ValidateInput(c, service.EntryInput{
			Title:     msg.Title,
			Host:      msg.Host,
			Selection: msg.Selection,
		}, clientFactory)
		return &entryValidated{request: msg, replyTo: replyTo, validated: validated, err: err}
	}).Recover(func(err error) entryValidated {
		return entryValidated{request: msg, replyTo: replyTo, err: err}
	}).WithTimeout(CONFIG_FLOW_TIMEOUT + time.Second).PipeTo(ctx.Self())
}

func (state *MasterOfPuppetsActor) completeCreateEntry(ctx actor.Context, msg entryValidated) {
	delete(state.pendingHosts, domain.NormalizeHost(msg.request.Host))
	respond := func(resp domain.CreateEntryResponse) {
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, resp)
		}
	}
	if msg.err != nil {
		state.logger.Info("master@default config flow failed", zap.String("host", msg.request.Host), zap.Error(msg.err))
		respond(domain.CreateEntryResponse{
			Errors: service.FormErrors(msg.err),
		})
		return
	}

	entry := domain.NewConfigEntry(msg.validated.Title, msg.request.Host, msg.request.Selection, msg.request.Options)
	if err := state.saveEntry(entry); err != nil {
		state.logger.Error("master@default could not save entry", zap.Error(err))
		respond(domain.CreateEntryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Errors:             service.FormErrors(err),
		})
		return
	}
	if _, err := state.startCoordinator(ctx, entry); err != nil {
		state.logger.Error("master@default could not start coordinator", zap.Error(err))
		respond(domain.CreateEntryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}
	state.logger.Info("master@default entry created", zap.String("entry", entry.Id), zap.String("host", entry.Host))
	respond(domain.CreateEntryResponse{Entry: &entry})
}

func (state *MasterOfPuppetsActor) removeEntry(ctx actor.Context, entryId string) error {
	if _, ok := state.entries[entryId]; !ok {
		return domain.ErrUnknownEntry
	}
	c, cancel := context.WithTimeout(context.Background(), STORE_TIMEOUT)
	defer cancel()
	if err := state.store.Delete(c, entryId); err != nil {
		return err
	}
	if pid, ok := state.coordinators[entryId]; ok {
		// poison is queued after the removal, discovery is cleared before the coordinator stops
		ctx.Send(pid, domain.RemoveEntryRequest{EntryId: entryId})
		ctx.Poison(pid)
	}
	delete(state.coordinators, entryId)
	delete(state.entries, entryId)
	metrics.Forget(entryId)
	state.logger.Info("master@default entry removed", zap.String("entry", entryId))
	return nil
}

func (state *MasterOfPuppetsActor) updateEntryOptions(ctx actor.Context, entryId string, options domain.EntryOptions) (*domain.ConfigEntry, error) {
	entry, ok := state.entries[entryId]
	if !ok {
		return nil, domain.ErrUnknownEntry
	}
	if options.ScanInterval < 1 {
		return nil, fmt.Errorf("%w: scan_interval must be at least 1", service.ErrInvalidInput)
	}
	entry.Options = options
	if err := state.saveEntry(entry); err != nil {
		return nil, err
	}
	if pid, ok := state.coordinators[entryId]; ok {
		ctx.Send(pid, domain.SetUpdateIntervalRequest{Interval: entry.UpdateInterval()})
	}
	return &entry, nil
}

// loadEntries reads the stored entries and adds the entry configured at startup, if new.
func (state *MasterOfPuppetsActor) loadEntries() ([]domain.ConfigEntry, error) {
	c, cancel := context.WithTimeout(context.Background(), STORE_TIMEOUT)
	defer cancel()
	entries, err := state.store.List(c)
	if err != nil {
		return nil, err
	}
	seed := state.config.Aurum
	if seed.HasSeedEntry() && !service.AlreadyConfigured(entries, seed.Host) {
		entry := domain.NewConfigEntry(seed.Title, seed.Host, seed.Selection, domain.EntryOptions{
			ScanInterval: seed.ScanInterval,
		})
		if err := state.store.Save(c, entry); err != nil {
			return nil, err
		}
		state.logger.Info("master@starting seed entry created", zap.String("host", entry.Host))
		entries = append(entries, entry)
	}
	return entries, nil
}

func (state *MasterOfPuppetsActor) saveEntry(entry domain.ConfigEntry) error {
	c, cancel := context.WithTimeout(context.Background(), STORE_TIMEOUT)
	defer cancel()
	if err := state.store.Save(c, entry); err != nil {
		return err
	}
	state.entries[entry.Id] = entry
	return nil
}

// getEntry reads the persisted entry, store errors for missing ids wrap domain.ErrUnknownEntry.
func (state *MasterOfPuppetsActor) getEntry(entryId string) (*domain.ConfigEntry, error) {
	c, cancel := context.WithTimeout(context.Background(), STORE_TIMEOUT)
	defer cancel()
	return state.store.Get(c, entryId)
}

func (state *MasterOfPuppetsActor) listEntries() ([]domain.ConfigEntry, error) {
	c, cancel := context.WithTimeout(context.Background(), STORE_TIMEOUT)
	defer cancel()
	return state.store.List(c)
}

func (state *MasterOfPuppetsActor) entryList() []domain.ConfigEntry {
	entries := make([]domain.ConfigEntry, 0, len(state.entries))
	for _, e := range state.entries {
		entries = append(entries, e)
	}
	return entries
}

func (state *MasterOfPuppetsActor) startCoordinator(ctx actor.Context, entry domain.ConfigEntry) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		state.logger.Warn("master: coordinator failure, restarting", zap.String("entry", entry.Id), zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 1*time.Minute, decider)

	requestTimeout := time.Duration(state.config.Aurum.RequestTimeoutMillis) * time.Millisecond
	clientFactory := state.clientFactory
	logger := state.logger
	coordinatorProps := actor.PropsFromProducer(func() actor.Actor {
		return NewCoordinatorActor(&state.config, entry, state.mqttActor, func(host string) *adactor.AurumActor {
			return adactor.NewAurumActor(clientFactory(host), requestTimeout, logger)
		}, logger)
	}, actor.WithSupervisor(supervisor))
	pid, err := ctx.SpawnNamed(coordinatorProps, fmt.Sprintf("%s_%s", domain.ACTOR_ID_COORDINATOR, entry.Id))
	if err != nil {
		return nil, err
	}
	state.entries[entry.Id] = entry
	state.coordinators[entry.Id] = pid
	return pid, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider()
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.received >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	return state.mqtt && state.healthy == state.expected-1
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   fmt.Sprintf("%d/%d entries healthy", state.healthy, state.expected-1),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
