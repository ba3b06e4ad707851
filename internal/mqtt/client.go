package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// broker is the part of paho.Client the publisher uses.
type broker interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Client is a connected MQTT session.
type Client struct {
	config  Config
	metrics Metrics

	mu     sync.Mutex
	broker broker
	// newBroker is replaced in tests
	newBroker func(*paho.ClientOptions) broker
}

// NewClient returns an unconnected client. A nil metrics is allowed.
func NewClient(cfg Config, metrics Metrics) *Client {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Client{
		config:  cfg,
		metrics: metrics,
		newBroker: func(opts *paho.ClientOptions) broker {
			return paho.NewClient(opts)
		},
	}
}

// Connect resolves the broker host and opens the session. Paho reconnects
// on its own after a successful first connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := url.Parse(c.config.Broker)
	if err != nil || u.Host == "" {
		return errors.Newf("invalid broker URL %q", c.config.Broker).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(fmt.Errorf("failed to resolve hostname %s: %w", host, err)).
				Component("mqtt").
				Category(errors.CategoryMQTTConnect).
				Context("broker", c.config.Broker).
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(func(paho.Client) {
		GetLogger().Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
		c.metrics.UpdateConnectionStatus(true)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		GetLogger().Warn("connection to MQTT broker lost",
			logger.String("broker", c.config.Broker),
			logger.Error(err))
		c.metrics.UpdateConnectionStatus(false)
	})

	c.broker = c.newBroker(opts)

	token := c.broker.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return errors.Newf("connection timeout").
			Component("mqtt").
			Category(errors.CategoryMQTTConnect).
			NetworkContext(c.config.Broker, c.config.ConnectTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(fmt.Errorf("connection error: %w", err)).
			Component("mqtt").
			Category(errors.CategoryMQTTConnect).
			Context("broker", c.config.Broker).
			Build()
	}
	return nil
}

// Publish sends payload to topic at QoS 0 and waits up to the publish timeout.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	b := c.broker
	c.mu.Unlock()

	if b == nil || !b.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	start := time.Now()
	token := b.Publish(topic, 0, c.config.Retain, payload)
	var err error
	switch {
	case !token.WaitTimeout(c.config.PublishTimeout):
		err = fmt.Errorf("publish timeout")
	case token.Error() != nil:
		err = token.Error()
	}
	c.metrics.ObservePublish(len(payload), time.Since(start), err)

	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	return nil
}

// IsConnected reports the session state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broker != nil && c.broker.IsConnected()
}

// Disconnect closes the session.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broker != nil {
		c.broker.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.broker = nil
		c.metrics.UpdateConnectionStatus(false)
	}
}
