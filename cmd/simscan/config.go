package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"simscan/internal/devices"
	"simscan/internal/publish"
	"simscan/internal/sim"
)

const (
	defaultHost   = "0.0.0.0"
	defaultPort   = "6010"
	defaultOutput = "sim_data.json"
)

// config holds everything read from the environment. Flags override some
// fields after loading.
type config struct {
	Baud     int
	PortGlob string
	Output   string
	Host     string
	Port     string

	DatabaseURL string

	MQTT          publish.MQTTConfig
	PubSubProject string
	PubSubTopic   string
	AMQPURL       string
	AMQPExchange  string

	StopModemManager bool
	Timeouts         sim.Timeouts
}

func loadConfig() *config {
	return &config{
		Baud:        getEnvInt("SIMSCAN_BAUD", devices.DefaultBaudRate),
		PortGlob:    getEnv("SIMSCAN_PORT_GLOB", ""),
		Output:      getEnv("SIMSCAN_OUTPUT", defaultOutput),
		Host:        getEnv("SIMSCAN_HOST", defaultHost),
		Port:        getEnv("SIMSCAN_PORT", defaultPort),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MQTT: publish.MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", ""),
			Port:     getEnv("MQTT_PORT", "1883"),
			Username: getEnv("MQTT_USERNAME", ""),
			Password: getEnv("MQTT_PASSWORD", ""),
			Topic:    getEnv("MQTT_TOPIC", publish.DefaultMQTTTopic),
		},
		PubSubProject:    getEnv("PUBSUB_PROJECT_ID", ""),
		PubSubTopic:      getEnv("PUBSUB_TOPIC_ID", ""),
		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", publish.DefaultAMQPExchange),
		StopModemManager: getEnvBool("SIMSCAN_STOP_MODEMMANAGER", false),
		Timeouts: sim.Timeouts{
			Query: time.Duration(getEnvInt("SIMSCAN_QUERY_TIMEOUT_MS", 80)) * time.Millisecond,
			Slow:  time.Duration(getEnvInt("SIMSCAN_SLOW_TIMEOUT_MS", 1700)) * time.Millisecond,
		},
	}
}

func (c *config) addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil && i > 0 {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
