package domain

import "time"

const (
	ACTOR_ID_MASTER      = "master"
	ACTOR_ID_MQTT        = "mqtt"
	ACTOR_ID_AURUM       = "aurum"
	ACTOR_ID_COORDINATOR = "coordinator"
)

// EntityState is a snapshot of one sensor entity.
type EntityState struct {
	DeviceId    string `json:"device_id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	UniqueId    string `json:"unique_id"`
	Unit        string `json:"unit,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`
	StateClass  string `json:"state_class,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Precision   uint   `json:"-"`
	HasValue    bool   `json:"has_value"`
	Value       any    `json:"value"`
}

// Device

type ConnectRequest struct {
	ActorRequestMixIn
}

type ConnectResponse struct {
	ActorResponseMixIn
	Connected bool
}

type RefreshRequest struct {
	ActorRequestMixIn
}

type RefreshResponse struct {
	ActorResponseMixIn
	Payload  NumberedPayload
	Duration time.Duration
}

// Config entries

type CreateEntryRequest struct {
	ActorRequestMixIn
	Title     string
	Host      string
	Selection string
	Options   EntryOptions
}

type CreateEntryResponse struct {
	ActorResponseMixIn
	Entry       *ConfigEntry
	Errors      map[string]string
	AbortReason string
}

type RemoveEntryRequest struct {
	ActorRequestMixIn
	EntryId string
}

type RemoveEntryResponse struct {
	ActorResponseMixIn
}

type GetEntryRequest struct {
	ActorRequestMixIn
	EntryId string
}

type GetEntryResponse struct {
	ActorResponseMixIn
	Entry *ConfigEntry
}

type UpdateEntryOptionsRequest struct {
	ActorRequestMixIn
	EntryId string
	Options EntryOptions
}

type UpdateEntryOptionsResponse struct {
	ActorResponseMixIn
	Entry *ConfigEntry
}

type ListEntriesRequest struct {
	ActorRequestMixIn
}

type ListEntriesResponse struct {
	ActorResponseMixIn
	Entries []ConfigEntry
}

// Coordinator

type GetEntityStatesRequest struct {
	ActorRequestMixIn
	EntryId string
}

type GetEntityStatesResponse struct {
	ActorResponseMixIn
	EntryId           string
	State             string
	LastUpdateSuccess bool
	LastUpdate        time.Time
	Entities          []EntityState
}

type RefreshEntryRequest struct {
	ActorRequestMixIn
	EntryId string
}

type RefreshEntryResponse struct {
	ActorResponseMixIn
	LastUpdateSuccess bool
}

type SetUpdateIntervalRequest struct {
	ActorRequestMixIn
	Interval time.Duration
}

// MQTT

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Buttons []GenericButton
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type RemoveDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Buttons []GenericButton
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
