// Package mqtt publishes identification events to an MQTT broker.
package mqtt

import (
	"time"

	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// Config holds the broker connection settings.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string
	Retain            bool
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
	QueueSize         int // events buffered while the broker is slow
}

// ConfigFromSettings builds a Config with the default timeouts.
func ConfigFromSettings(s *conf.Settings) Config {
	clientID := s.MQTT.ClientID
	if clientID == "" {
		clientID = s.Main.Name
	}
	return Config{
		Broker:            s.MQTT.Broker,
		ClientID:          clientID,
		Username:          s.MQTT.Username,
		Password:          s.MQTT.Password,
		Topic:             s.MQTT.Topic,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
		QueueSize:         64,
	}
}

// Metrics receives publisher statistics.
type Metrics interface {
	UpdateConnectionStatus(connected bool)
	ObservePublish(size int, elapsed time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) UpdateConnectionStatus(bool)                {}
func (noopMetrics) ObservePublish(int, time.Duration, error) {}

// GetLogger returns the mqtt module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
