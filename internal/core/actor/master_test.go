package actor

import (
	"context"
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/aurum2mqtt/internal/adapter/actor"
	"github.com/berfenger/aurum2mqtt/internal/config"
	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/core/port"
	"github.com/berfenger/aurum2mqtt/internal/core/service"
	"github.com/berfenger/aurum2mqtt/internal/mqtt"
	"github.com/berfenger/aurum2mqtt/internal/store"
	"github.com/berfenger/aurum2mqtt/internal/util"
	"github.com/berfenger/aurum2mqtt/pkg/aurum"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testDevices hands out one TestClient per host.
type testDevices struct {
	mu      sync.Mutex
	clients map[string]*aurum.TestClient
}

func (d *testDevices) client(host string) *aurum.TestClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[host]; ok {
		return c
	}
	c := aurum.NewTestClient(aurum.TestResult{Data: aurum.NumberedData{
		7:  {domain.METRIC_POWER_SOLAR: aurum.NumberValue(100)},
		23: {domain.METRIC_COUNTER_GAS: aurum.NumberValue(1234.567)},
	}})
	d.clients[host] = c
	return c
}

func (d *testDevices) factory() port.AurumClientFactory {
	return func(host string) port.AurumClient {
		return d.client(host)
	}
}

type masterFixture struct {
	root     *actor.RootContext
	pid      *actor.PID
	devices  *testDevices
	store    port.EntryStore
	recorder *adactor.PublishRecorder
}

func startMaster(t *testing.T, cfg config.Config) *masterFixture {
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)

	f := &masterFixture{
		root:     as.Root,
		devices:  &testDevices{clients: map[string]*aurum.TestClient{}},
		store:    store.NewMemoryStore(),
		recorder: &adactor.PublishRecorder{},
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, f.store, f.devices.factory(), func() *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, f.recorder, logger)
		}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	f.pid = pid
	return f
}

func (f *masterFixture) request(t *testing.T, msg any) any {
	res, err := f.root.RequestFuture(f.pid, msg, 5*time.Second).Result()
	require.NoError(t, err)
	return res
}

func (f *masterFixture) create(t *testing.T, host, selection string) domain.CreateEntryResponse {
	res, ok := f.request(t, domain.CreateEntryRequest{Title: "Home", Host: host, Selection: selection}).(domain.CreateEntryResponse)
	require.True(t, ok)
	return res
}

func (f *masterFixture) waitReady(t *testing.T, entryId string) {
	require.Eventually(t, func() bool {
		res, err := f.root.RequestFuture(f.pid, domain.GetEntityStatesRequest{EntryId: entryId}, time.Second).Result()
		if err != nil {
			return false
		}
		resp, ok := res.(domain.GetEntityStatesResponse)
		return ok && resp.State == COORDINATOR_STATE_DEFAULT
	}, 3*time.Second, 20*time.Millisecond)
}

func TestMasterActor(t *testing.T) {

	cfg := util.LoadTestConfig()
	f := startMaster(t, cfg)

	resp := f.create(t, "meter.local", "7,23")
	require.NotNil(t, resp.Entry)
	assert.Empty(t, resp.Errors)
	f.waitReady(t, resp.Entry.Id)

	health, ok := f.request(t, domain.ActorHealthRequest{}).(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.True(t, health.Healthy, "healthy is true")

	states := f.request(t, domain.GetEntityStatesRequest{EntryId: resp.Entry.Id}).(domain.GetEntityStatesResponse)
	require.Len(t, states.Entities, 2)
	assert.Equal(t, domain.METRIC_POWER_SOLAR, states.Entities[0].Key)
	assert.Equal(t, domain.METRIC_COUNTER_GAS, states.Entities[1].Key)

	// bridge and entry discovery
	require.Eventually(t, func() bool {
		return len(f.recorder.Discoveries()) == 2
	}, time.Second, 20*time.Millisecond)

	list := f.request(t, domain.ListEntriesRequest{}).(domain.ListEntriesResponse)
	assert.Len(t, list.Entries, 1)
}

func TestMasterCreateEntryErrors(t *testing.T) {

	assert := assert.New(t)

	f := startMaster(t, util.LoadTestConfig())

	resp := f.create(t, "meter.local", "")
	require.NotNil(t, resp.Entry)

	dup := f.create(t, "METER.local/", "")
	assert.Nil(dup.Entry)
	assert.Equal(service.ABORT_ALREADY_CONFIGURED, dup.AbortReason)

	invalid := f.create(t, "other.local", "1,2,x")
	assert.Nil(invalid.Entry)
	assert.Equal(map[string]string{service.FORM_FIELD_BASE: service.FORM_ERROR_INVALID_INPUT}, invalid.Errors)
	assert.Equal(0, f.devices.client("other.local").Connects())

	f.devices.client("down.local").SetUnreachable(true)
	down := f.create(t, "down.local", "")
	assert.Nil(down.Entry)
	assert.Equal(map[string]string{service.FORM_FIELD_BASE: service.FORM_ERROR_CANNOT_CONNECT}, down.Errors)

	list := f.request(t, domain.ListEntriesRequest{}).(domain.ListEntriesResponse)
	assert.Len(list.Entries, 1)
}

func TestMasterRemoveEntry(t *testing.T) {

	f := startMaster(t, util.LoadTestConfig())
	resp := f.create(t, "meter.local", "")
	require.NotNil(t, resp.Entry)
	f.waitReady(t, resp.Entry.Id)

	removed := f.request(t, domain.RemoveEntryRequest{EntryId: resp.Entry.Id}).(domain.RemoveEntryResponse)
	assert.NoError(t, removed.GetResponseError())

	states := f.request(t, domain.GetEntityStatesRequest{EntryId: resp.Entry.Id}).(domain.GetEntityStatesResponse)
	assert.ErrorIs(t, states.GetResponseError(), domain.ErrUnknownEntry)

	again := f.request(t, domain.RemoveEntryRequest{EntryId: resp.Entry.Id}).(domain.RemoveEntryResponse)
	assert.ErrorIs(t, again.GetResponseError(), domain.ErrUnknownEntry)

	require.Eventually(t, func() bool {
		return len(f.recorder.Removals()) == 1
	}, time.Second, 20*time.Millisecond)

	list := f.request(t, domain.ListEntriesRequest{}).(domain.ListEntriesResponse)
	assert.Empty(t, list.Entries)
}

func TestMasterUpdateOptions(t *testing.T) {

	f := startMaster(t, util.LoadTestConfig())
	resp := f.create(t, "meter.local", "")
	require.NotNil(t, resp.Entry)
	f.waitReady(t, resp.Entry.Id)

	bad := f.request(t, domain.UpdateEntryOptionsRequest{EntryId: resp.Entry.Id}).(domain.UpdateEntryOptionsResponse)
	assert.ErrorIs(t, bad.GetResponseError(), service.ErrInvalidInput)

	updated := f.request(t, domain.UpdateEntryOptionsRequest{
		EntryId: resp.Entry.Id,
		Options: domain.EntryOptions{ScanInterval: 1},
	}).(domain.UpdateEntryOptionsResponse)
	require.NoError(t, updated.GetResponseError())
	assert.EqualValues(t, 1, updated.Entry.Options.ScanInterval)

	entry := f.request(t, domain.GetEntryRequest{EntryId: resp.Entry.Id}).(domain.GetEntryResponse)
	require.NoError(t, entry.GetResponseError())
	assert.EqualValues(t, 1, entry.Entry.Options.ScanInterval)

	stored, err := f.store.Get(context.Background(), resp.Entry.Id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.Options.ScanInterval, "options are persisted")

	unknown := f.request(t, domain.GetEntryRequest{EntryId: "missing"}).(domain.GetEntryResponse)
	assert.ErrorIs(t, unknown.GetResponseError(), domain.ErrUnknownEntry)
	assert.Nil(t, unknown.Entry)

	// the coordinator now refreshes every second
	client := f.devices.client("meter.local")
	before := client.Updates()
	assert.Eventually(t, func() bool {
		return client.Updates() >= before+2
	}, 4*time.Second, 50*time.Millisecond)
}

func TestMasterSeedEntryAndRefreshButton(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.Aurum.Host = "seed.local"
	cfg.Aurum.Title = "Seed"
	cfg.Aurum.ScanInterval = 60
	f := startMaster(t, cfg)

	list := f.request(t, domain.ListEntriesRequest{}).(domain.ListEntriesResponse)
	require.Len(t, list.Entries, 1)
	entry := list.Entries[0]
	assert.Equal(t, "Seed", entry.Title)
	f.waitReady(t, entry.Id)

	client := f.devices.client("seed.local")
	before := client.Updates()
	f.root.Send(f.pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: entry.DeviceId(),
		Command:  "refresh",
		Payload:  mqtt.MQTT_PAYLOAD_PRESS,
	}})
	assert.Eventually(t, func() bool {
		return client.Updates() == before+1
	}, 2*time.Second, 20*time.Millisecond)
}
