package util

import (
	"github.com/berfenger/aurum2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Aurum: config.AurumConfig{
			ScanInterval:          1,
			RequestTimeoutMillis:  1000,
			SetupRetryBaseSeconds: 1,
		},
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "aurum2mqtt",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
			EmbeddedBroker: config.EmbeddedBrokerConfig{
				Address: ":1883",
			},
		},
		Port: 8080,
	}
}
