package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/aurum2mqtt/internal/adapter/actor"
	"github.com/berfenger/aurum2mqtt/internal/config"
	"github.com/berfenger/aurum2mqtt/internal/core/actor"
	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/core/port"
	"github.com/berfenger/aurum2mqtt/internal/mqtt"
	"github.com/berfenger/aurum2mqtt/internal/server"
	"github.com/berfenger/aurum2mqtt/internal/store"
	"github.com/berfenger/aurum2mqtt/internal/util/actorutil"
	"github.com/berfenger/aurum2mqtt/pkg/aurum"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("starting aurum2mqtt", zap.String("version", versioninfo.Short()))

	// embedded broker, the bridge then connects to it like to any other broker
	var broker *mqtt.Broker
	if cfg.MQTT.EmbeddedBroker.Enable {
		broker, err = mqtt.StartBroker(cfg.MQTT.EmbeddedBroker, logger)
		if err != nil {
			logger.Fatal("could not start embedded broker", zap.Error(err))
		}
		defer broker.Close()
	}

	entryStore, err := store.New(cfg.Store)
	if err != nil {
		logger.Fatal("could not open entry store", zap.Error(err))
	}
	defer entryStore.Close()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, entryStore, aurumClientFactory(cfg), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not spawn master actor", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	if err := ctx.PoisonFuture(pid).Wait(); err != nil {
		logger.Warn("master actor did not stop cleanly", zap.Error(err))
	}
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => AURUM2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("AURUM2MQTT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("aurum2mqtt")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func aurumClientFactory(cfg *config.Config) port.AurumClientFactory {
	timeout := time.Duration(cfg.Aurum.RequestTimeoutMillis) * time.Millisecond
	return func(host string) port.AurumClient {
		return aurum.NewClient(host, aurum.WithTimeout(timeout))
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("aurum.host", "")
	viper.SetDefault("aurum.title", "")
	viper.SetDefault("aurum.selection", "")
	viper.SetDefault("aurum.scan_interval", 10)
	viper.SetDefault("aurum.request_timeout_millis", 10000)
	viper.SetDefault("aurum.setup_retry_base_seconds", 5)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", true)
	viper.SetDefault("mqtt.base_topic", "aurum2mqtt")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("mqtt.embedded_broker.enable", false)
	viper.SetDefault("mqtt.embedded_broker.address", ":1883")
	viper.SetDefault("store.path", "")
	viper.SetDefault("http_log", false)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
