package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"cloudpico-humidity/internal/config"
)

const (
	qos            = byte(1)
	publishTimeout = 5 * time.Second
	inboundQueue   = 1024
)

// Handler receives the raw topic and payload of an inbound message.
type Handler func(topic string, payload []byte)

type inbound struct {
	handler Handler
	topic   string
	payload []byte
}

type Client struct {
	client    paho.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	subMu sync.Mutex
	subs  map[string]Handler

	// Handlers run on one dispatcher goroutine, in arrival order, so they
	// may publish without stalling paho's router.
	inbound chan inbound

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:     cfg,
		logger:  logger,
		subs:    make(map[string]Handler),
		inbound: make(chan inbound, inboundQueue),
		stopCh:  make(chan struct{}),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Clean session: subscriptions are replayed by the OnConnect handler.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(pc paho.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		c.resubscribe(pc)
	})

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = paho.NewClient(opts)
	go c.dispatch()
	return c
}

// Connect waits for the initial connection, respecting ctx and Disconnect.
// Recorded subscriptions are (re)established by the connect handler. When ctx
// ends first, paho keeps retrying in the background.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if c.IsConnected() {
		return nil
	}

	// With ConnectRetry the token only completes once a connection is up.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// Subscribe records handler for filter and subscribes right away when
// connected. A recorded filter survives reconnects.
func (c *Client) Subscribe(filter string, handler Handler) error {
	c.subMu.Lock()
	c.subs[filter] = handler
	c.subMu.Unlock()

	if !c.IsConnected() {
		c.logger.Debug("mqtt subscription recorded until connected", "topic", filter)
		return nil
	}

	token := c.client.Subscribe(filter, qos, c.wrap(handler))
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe timeout for topic %s", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", filter, err)
	}
	c.logger.Info("subscribed to mqtt topic", "topic", filter, "qos", qos)
	return nil
}

// Unsubscribe forgets the given filters and drops them at the broker.
func (c *Client) Unsubscribe(filters ...string) error {
	if len(filters) == 0 {
		return nil
	}
	c.subMu.Lock()
	for _, f := range filters {
		delete(c.subs, f)
	}
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}
	token := c.client.Unsubscribe(filters...)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("unsubscribe timeout for %v", filters)
	}
	return token.Error()
}

// Subscriptions returns the recorded topic filters.
func (c *Client) Subscriptions() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	out := make([]string, 0, len(c.subs))
	for f := range c.subs {
		out = append(out, f)
	}
	return out
}

func (c *Client) resubscribe(pc paho.Client) {
	c.subMu.Lock()
	subs := maps.Clone(c.subs)
	c.subMu.Unlock()

	// The connect handler must not block on tokens.
	for filter, h := range subs {
		token := pc.Subscribe(filter, qos, c.wrap(h))
		go func(filter string) {
			if !token.WaitTimeout(publishTimeout) {
				c.logger.Error("mqtt resubscribe timeout", "topic", filter)
				return
			}
			if err := token.Error(); err != nil {
				c.logger.Error("mqtt resubscribe failed", "topic", filter, "error", err)
				return
			}
			c.logger.Info("subscribed to mqtt topic", "topic", filter, "qos", qos)
		}(filter)
	}
}

func (c *Client) wrap(h Handler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		select {
		case c.inbound <- inbound{handler: h, topic: msg.Topic(), payload: msg.Payload()}:
		default:
			c.logger.Warn("mqtt inbound queue full, dropping message", "topic", msg.Topic())
		}
	}
}

func (c *Client) dispatch() {
	for {
		select {
		case <-c.stopCh:
			return
		case m := <-c.inbound:
			m.handler(m.topic, m.payload)
		}
	}
}

// Publish sends payload to topic with QoS 1.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.logger.Error("mqtt publish failed", "topic", topic, "error", err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	c.logger.Debug("mqtt published", "topic", topic, "size", len(payload))
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the connection. It is idempotent;
// Connect returns "client stopped" afterwards.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
