package mqtt

import (
	"log/slog"
	"sync/atomic"

	"github.com/berfenger/aurum2mqtt/internal/config"

	"github.com/lmittmann/tint"
	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"
)

// Broker is an in-process MQTT broker for installations without one.
type Broker struct {
	server *mqttv2.Server
	subId  atomic.Int32
	logger *zap.Logger
}

func StartBroker(cfg config.EmbeddedBrokerConfig, logger *zap.Logger) (*Broker, error) {
	logger = logger.With(zap.String("component", "broker"))
	server := mqttv2.New(&mqttv2.Options{
		InlineClient: true,
		Logger: slog.New(tint.NewHandler(zap.NewStdLog(logger).Writer(), &tint.Options{
			Level: slog.LevelWarn,
		})),
	})

	// Allow all connections.
	_ = server.AddHook(new(auth.AllowHook), nil)

	tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: cfg.Address})
	if err := server.AddListener(tcp); err != nil {
		return nil, err
	}
	if err := server.Serve(); err != nil {
		return nil, err
	}
	logger.Info("embedded broker listening", zap.String("address", cfg.Address))

	return &Broker{
		server: server,
		logger: logger,
	}, nil
}

// Subscribe registers an inline subscription, handler runs on the broker goroutine.
func (b *Broker) Subscribe(filter string, handler func(topic string, payload []byte, retain bool)) error {
	id := int(b.subId.Add(1))
	return b.server.Subscribe(filter, id, func(cl *mqttv2.Client, sub packets.Subscription, pk packets.Packet) {
		handler(pk.TopicName, pk.Payload, pk.FixedHeader.Retain)
	})
}

func (b *Broker) Publish(topic string, payload []byte, retain bool) error {
	return b.server.Publish(topic, payload, retain, 0)
}

func (b *Broker) Close() error {
	b.logger.Debug("embedded broker closing")
	return b.server.Close()
}
