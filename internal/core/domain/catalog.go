package domain

const (
	METRIC_POWER_BATTERY                = "powerBattery"
	METRIC_COUNTER_OUT_BATTERY          = "counterOutBattery"
	METRIC_COUNTER_IN_BATTERY           = "counterInBattery"
	METRIC_POWER_MCHP                   = "powerMCHP"
	METRIC_COUNTER_OUT_MCHP             = "counterOutMCHP"
	METRIC_COUNTER_IN_MCHP              = "counterInMCHP"
	METRIC_POWER_SOLAR                  = "powerSolar"
	METRIC_COUNTER_OUT_SOLAR            = "counterOutSolar"
	METRIC_COUNTER_IN_SOLAR             = "counterInSolar"
	METRIC_POWER_EV                     = "powerEV"
	METRIC_COUNTER_OUT_EV               = "counterOutEV"
	METRIC_COUNTER_IN_EV                = "counterInEV"
	METRIC_POWER_MAIN                   = "powerMain"
	METRIC_COUNTER_OUT_MAIN             = "counterOutMain"
	METRIC_COUNTER_IN_MAIN              = "counterInMain"
	METRIC_SMART_METER_TIMESTAMP        = "smartMeterTimestamp"
	METRIC_POWER_ELECTRICITY            = "powerElectricity"
	METRIC_COUNTER_ELECTRICITY_IN_LOW   = "counterElectricityInLow"
	METRIC_COUNTER_ELECTRICITY_OUT_LOW  = "counterElectricityOutLow"
	METRIC_COUNTER_ELECTRICITY_IN_HIGH  = "counterElectricityInHigh"
	METRIC_COUNTER_ELECTRICITY_OUT_HIGH = "counterElectricityOutHigh"
	METRIC_RATE_GAS                     = "rateGas"
	METRIC_COUNTER_GAS                  = "counterGas"
	UNIT_WATT                           = "W"
	UNIT_KILOWATT_HOUR                  = "kWh"
	UNIT_CUBIC_METER_PER_HOUR           = "m3/h"
	UNIT_CUBIC_METER                    = "m³"
)

const (
	PRECISION_POWER   uint = 1
	PRECISION_COUNTER uint = 3
)

// CatalogEntry holds the display metadata of one metric key.
type CatalogEntry struct {
	Key         string
	Label       string
	Unit        string
	DeviceClass string
	StateClass  string
	Icon        string
	Precision   uint
}

func powerEntry(key, label string) CatalogEntry {
	return CatalogEntry{
		Key:         key,
		Label:       label,
		Unit:        UNIT_WATT,
		DeviceClass: DEVICE_CLASS_POWER,
		StateClass:  STATE_CLASS_MEASUREMENT,
		Precision:   PRECISION_POWER,
	}
}

func energyEntry(key, label string) CatalogEntry {
	return CatalogEntry{
		Key:         key,
		Label:       label,
		Unit:        UNIT_KILOWATT_HOUR,
		DeviceClass: DEVICE_CLASS_ENERGY,
		StateClass:  STATE_CLASS_TOTAL_INCREASING,
		Precision:   PRECISION_COUNTER,
	}
}

var catalog = []CatalogEntry{
	powerEntry(METRIC_POWER_BATTERY, "Inverter Power"),
	energyEntry(METRIC_COUNTER_OUT_BATTERY, "Cumulative Inverter Power Out"),
	energyEntry(METRIC_COUNTER_IN_BATTERY, "Cumulative Inverter Power In"),
	powerEntry(METRIC_POWER_MCHP, "MCHP Power"),
	energyEntry(METRIC_COUNTER_OUT_MCHP, "Cumulative MCHP Power Out"),
	energyEntry(METRIC_COUNTER_IN_MCHP, "Cumulative MCHP Power In"),
	powerEntry(METRIC_POWER_SOLAR, "Solar Power"),
	energyEntry(METRIC_COUNTER_OUT_SOLAR, "Cumulative Solar Power Out"),
	energyEntry(METRIC_COUNTER_IN_SOLAR, "Cumulative Solar Power In"),
	powerEntry(METRIC_POWER_EV, "EV Power"),
	energyEntry(METRIC_COUNTER_OUT_EV, "Cumulative EV Power Out"),
	energyEntry(METRIC_COUNTER_IN_EV, "Cumulative EV Power In"),
	powerEntry(METRIC_POWER_MAIN, "Grid Power"),
	energyEntry(METRIC_COUNTER_OUT_MAIN, "Cumulative Grid Power Out"),
	energyEntry(METRIC_COUNTER_IN_MAIN, "Cumulative Grid Power In"),
	{
		Key:   METRIC_SMART_METER_TIMESTAMP,
		Label: "Smartmeter Timestamp",
		Icon:  "mdi:calendar-clock",
	},
	powerEntry(METRIC_POWER_ELECTRICITY, "Grid Power"),
	energyEntry(METRIC_COUNTER_ELECTRICITY_IN_LOW, "Cumulative Grid Power In Low"),
	energyEntry(METRIC_COUNTER_ELECTRICITY_OUT_LOW, "Cumulative Grid Power Out Low"),
	energyEntry(METRIC_COUNTER_ELECTRICITY_IN_HIGH, "Cumulative Grid Power In High"),
	energyEntry(METRIC_COUNTER_ELECTRICITY_OUT_HIGH, "Cumulative Grid Power Out High"),
	{
		Key:        METRIC_RATE_GAS,
		Label:      "Gas Rate",
		Unit:       UNIT_CUBIC_METER_PER_HOUR,
		StateClass: STATE_CLASS_MEASUREMENT,
		Icon:       "mdi:gas-cylinder",
		Precision:  PRECISION_COUNTER,
	},
	{
		Key:         METRIC_COUNTER_GAS,
		Label:       "Cumulative Consumed Gas",
		Unit:        UNIT_CUBIC_METER,
		DeviceClass: DEVICE_CLASS_GAS,
		StateClass:  STATE_CLASS_TOTAL_INCREASING,
		Icon:        "mdi:fire",
		Precision:   PRECISION_COUNTER,
	},
}

var catalogIndex = func() map[string]int {
	idx := make(map[string]int, len(catalog))
	for i, e := range catalog {
		idx[e.Key] = i
	}
	return idx
}()

// Catalog looks up the metadata of a metric key. Unknown keys have no entity.
func Catalog(key string) (CatalogEntry, bool) {
	i, ok := catalogIndex[key]
	if !ok {
		return CatalogEntry{}, false
	}
	return catalog[i], true
}

// CatalogKeys returns every known metric key in table order.
func CatalogKeys() []string {
	keys := make([]string, len(catalog))
	for i, e := range catalog {
		keys[i] = e.Key
	}
	return keys
}
