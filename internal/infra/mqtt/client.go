package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Config holds MQTT connection configuration.
type Config struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QOS         int    `yaml:"qos"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// MessageHandler receives one inbound message.
type MessageHandler func(topic string, payload []byte)

// Client wraps the paho MQTT client. Heartbeats travel at QoS 1:
// at-least-once delivery, ordered only within a single producer's own
// stream.
type Client struct {
	cli paho.Client
	cfg Config
}

// NewClient connects to the broker and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is required")
	}
	if cfg.QOS == 0 {
		cfg.QOS = 1
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "heartbeat"
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	// Durable session so queued QoS 1 messages survive a collector
	// restart instead of being dropped by the broker.
	opts.SetCleanSession(false)
	opts.SetConnectTimeout(10 * time.Second)

	cli := paho.NewClient(opts)
	token := cli.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", token.Error())
	}

	return &Client{cli: cli, cfg: cfg}, nil
}

// HeartbeatTopic returns the publish topic for one queue.
func (c *Client) HeartbeatTopic(queue string) string {
	return c.cfg.TopicPrefix + "/" + queue
}

// Publish sends one payload to the given topic.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.cli.Publish(topic, byte(c.cfg.QOS), false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// SubscribeHeartbeats subscribes to every queue under the topic prefix.
func (c *Client) SubscribeHeartbeats(handler MessageHandler) error {
	topic := c.cfg.TopicPrefix + "/#"
	token := c.cli.Subscribe(topic, byte(c.cfg.QOS), func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return nil
}

// Connected reports whether the underlying connection is live.
func (c *Client) Connected() bool {
	return c.cli.IsConnectionOpen()
}

// Close disconnects, allowing in-flight messages 250ms to complete.
func (c *Client) Close() {
	c.cli.Disconnect(250)
}
