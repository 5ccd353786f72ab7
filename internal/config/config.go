package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Aurum    AurumConfig `mapstructure:"aurum"`
	MQTT     MQTTConfig  `mapstructure:"mqtt"`
	Store    StoreConfig `mapstructure:"store"`
	Port     uint        `mapstructure:"port"`
	HttpLog  bool        `mapstructure:"http_log"`
}

// AurumConfig describes an optional entry created on first start.
type AurumConfig struct {
	Host                  string
	Title                 string
	Selection             string
	ScanInterval          uint `mapstructure:"scan_interval"`
	RequestTimeoutMillis  uint `mapstructure:"request_timeout_millis"`
	SetupRetryBaseSeconds uint `mapstructure:"setup_retry_base_seconds"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string               `mapstructure:"base_topic"`
	HADiscoveryEnable bool                 `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string               `mapstructure:"ha_discovery_topic"`
	EmbeddedBroker    EmbeddedBrokerConfig `mapstructure:"embedded_broker"`
}

type EmbeddedBrokerConfig struct {
	Enable  bool
	Address string
}

type StoreConfig struct {
	// empty keeps entries in memory
	Path string
}

func (c AurumConfig) HasSeedEntry() bool {
	return strings.TrimSpace(c.Host) != ""
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate checks bounds and normalizes topics in place.
func Validate(cfg *Config) error {
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if cfg.Aurum.ScanInterval < 1 {
		return errors.New("config param aurum.scan_interval should be >= 1")
	}
	if cfg.Aurum.RequestTimeoutMillis < 100 {
		return errors.New("config param aurum.request_timeout_millis should be >= 100")
	}
	if cfg.Aurum.SetupRetryBaseSeconds < 1 {
		return errors.New("config param aurum.setup_retry_base_seconds should be >= 1")
	}
	if cfg.Aurum.HasSeedEntry() {
		if _, err := domain.ParseSelection(cfg.Aurum.Selection); err != nil {
			return fmt.Errorf("config param aurum.selection: %w", err)
		}
	}
	if cfg.MQTT.EmbeddedBroker.Enable && cfg.MQTT.EmbeddedBroker.Address == "" {
		return errors.New("config param mqtt.embedded_broker.address is required when the embedded broker is enabled")
	}
	return nil
}
