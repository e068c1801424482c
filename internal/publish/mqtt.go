package publish

import (
	"context"
	"fmt"
	"log"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"simscan/internal/sim"
)

// DefaultMQTTTopic is where snapshots go when no topic is configured.
const DefaultMQTTTopic = "simscan/snapshot"

// MQTTConfig holds broker settings, normally from MQTT_* variables.
type MQTTConfig struct {
	Broker   string
	Port     string
	Username string
	Password string
	Topic    string
}

// MQTTSink publishes each snapshot as one non-retained QoS 1 message.
type MQTTSink struct {
	client MQTT.Client
	topic  string
}

// NewMQTTSink connects to the broker.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		cfg.Broker = "localhost"
	}
	if cfg.Port == "" {
		cfg.Port = "1883"
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultMQTTTopic
	}

	opts := MQTT.NewClientOptions().AddBroker(fmt.Sprintf("tcp://%s:%s", cfg.Broker, cfg.Port))
	opts.SetClientID(fmt.Sprintf("simscan_%d", time.Now().Unix()))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := MQTT.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s:%s: %w", cfg.Broker, cfg.Port, token.Error())
	}
	log.Printf("publish: mqtt: connected to %s:%s, topic %s", cfg.Broker, cfg.Port, cfg.Topic)
	return &MQTTSink{client: client, topic: cfg.Topic}, nil
}

func (m *MQTTSink) Name() string { return "mqtt" }

func (m *MQTTSink) Publish(ctx context.Context, snap *sim.Snapshot) error {
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	token := m.client.Publish(m.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects, giving in-flight messages 250ms to drain.
func (m *MQTTSink) Close() error {
	m.client.Disconnect(250)
	return nil
}
