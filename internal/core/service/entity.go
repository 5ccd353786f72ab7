package service

import (
	"slices"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/pkg/aurum"

	"go.uber.org/zap"
)

type EntityStatus uint8

const (
	ENTITY_STATUS_AWAITING_FIRST_VALUE EntityStatus = iota
	ENTITY_STATUS_HAS_VALUE
)

func (s EntityStatus) String() string {
	switch s {
	case ENTITY_STATUS_HAS_VALUE:
		return "has_value"
	default:
		return "awaiting_first_value"
	}
}

// SensorEntity exposes one metric key of an entry. It keeps the last known
// value and never goes back to awaiting a value.
type SensorEntity struct {
	catalog   domain.CatalogEntry
	deviceId  string
	selection domain.Selection
	status    EntityStatus
	value     domain.MetricValue
	logger    *zap.Logger
}

func NewSensorEntity(deviceId string, catalog domain.CatalogEntry, selection domain.Selection, logger *zap.Logger) *SensorEntity {
	return &SensorEntity{
		catalog:   catalog,
		deviceId:  deviceId,
		selection: selection,
		status:    ENTITY_STATUS_AWAITING_FIRST_VALUE,
		logger:    logger.With(zap.String("entity", catalog.Key)),
	}
}

// BuildEntities creates one entity per catalog key present in the filtered
// setup snapshot, in catalog order.
func BuildEntities(deviceId string, payload domain.NumberedPayload, selection domain.Selection, logger *zap.Logger) []*SensorEntity {
	filtered := FilterPayload(payload, selection)
	var entities []*SensorEntity
	for _, key := range domain.CatalogKeys() {
		if _, ok := filtered[key]; !ok {
			continue
		}
		cat, _ := domain.Catalog(key)
		entity := NewSensorEntity(deviceId, cat, selection, logger)
		entity.HandleCoordinatorUpdate(payload)
		entities = append(entities, entity)
	}
	return entities
}

// UnboundKeys lists catalog keys of the filtered map that have no entity.
func UnboundKeys(entities []*SensorEntity, filtered domain.MetricMap) []string {
	var keys []string
	for key := range filtered {
		if _, known := domain.Catalog(key); !known {
			continue
		}
		if slices.ContainsFunc(entities, func(e *SensorEntity) bool { return e.Key() == key }) {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// HandleCoordinatorUpdate derives the entity value from a fresh payload and
// returns the state to republish.
func (e *SensorEntity) HandleCoordinatorUpdate(payload domain.NumberedPayload) domain.EntityState {
	if len(payload) == 0 {
		e.logger.Debug("entity@update received no data")
		return e.State()
	}
	filtered := FilterPayload(payload, e.selection)
	if len(filtered) == 0 {
		e.logger.Debug("entity@update received no data", zap.Stringer("selection", e.selection))
		return e.State()
	}
	if value, ok := filtered[e.catalog.Key]; ok && !value.IsAbsent() {
		e.value = value
		e.status = ENTITY_STATUS_HAS_VALUE
	}
	return e.State()
}

func (e *SensorEntity) Key() string {
	return e.catalog.Key
}

func (e *SensorEntity) Name() string {
	return domain.EntityName(e.catalog)
}

func (e *SensorEntity) UniqueId() string {
	return domain.EntityUniqueId(e.deviceId, e.catalog.Key)
}

func (e *SensorEntity) Unit() string {
	return e.catalog.Unit
}

func (e *SensorEntity) DeviceClass() string {
	return e.catalog.DeviceClass
}

func (e *SensorEntity) StateClass() string {
	return e.catalog.StateClass
}

func (e *SensorEntity) Icon() string {
	return e.catalog.Icon
}

func (e *SensorEntity) Status() EntityStatus {
	return e.status
}

func (e *SensorEntity) HasValue() bool {
	return e.status == ENTITY_STATUS_HAS_VALUE
}

// Value returns the cached value, ok is false until the first value arrives.
func (e *SensorEntity) Value() (domain.MetricValue, bool) {
	return e.value, e.HasValue()
}

func (e *SensorEntity) Sensor(device domain.Device) domain.GenericSensor {
	return domain.CatalogSensor(device, e.catalog)
}

func (e *SensorEntity) State() domain.EntityState {
	st := domain.EntityState{
		DeviceId:    e.deviceId,
		Key:         e.catalog.Key,
		Name:        e.Name(),
		UniqueId:    e.UniqueId(),
		Unit:        e.catalog.Unit,
		DeviceClass: e.catalog.DeviceClass,
		StateClass:  e.catalog.StateClass,
		Icon:        e.catalog.Icon,
		Precision:   e.catalog.Precision,
		HasValue:    e.HasValue(),
	}
	if e.HasValue() {
		switch e.value.Kind {
		case aurum.VALUE_KIND_NUMBER:
			st.Value = e.value.Number
		default:
			st.Value = e.value.Text
		}
	}
	return st
}
