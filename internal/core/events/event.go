package events

import (
	"fmt"

	. "github.com/berfenger/aurum2mqtt/internal/core/domain"
)

// EntityStatesToUpdateEvents maps the entities that hold a value to state updates.
func EntityStatesToUpdateEvents(states []EntityState) []SensorUpdateEvent {
	var events []SensorUpdateEvent
	for _, st := range states {
		if !st.HasValue {
			continue
		}
		if ev := EntityStateToUpdateEvent(st); ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func EntityStateToUpdateEvent(st EntityState) SensorUpdateEvent {
	mixin := SensorUpdateEventMixIn{
		Id: SensorStateId(st.DeviceId, st.Key),
	}
	switch v := st.Value.(type) {
	case float64:
		return FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: mixin,
			Value:                  v,
			Decimals:               st.Precision,
		}
	case string:
		return TextSensorUpdateEvent{
			SensorUpdateEventMixIn: mixin,
			Value:                  v,
		}
	case nil:
		return nil
	default:
		return TextSensorUpdateEvent{
			SensorUpdateEventMixIn: mixin,
			Value:                  fmt.Sprint(v),
		}
	}
}

func EntryAvailabilityUpdateEvent(deviceId string, available bool) SensorUpdateEvent {
	return AvailabilityUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: deviceId,
		},
		Value: available,
	}
}

func BridgeStateUpdate(online bool) SensorUpdateEvent {
	return BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BRIDGE_STATE,
		},
		Value: online,
	}
}
