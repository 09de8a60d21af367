package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/verdant-labs/verdant-core/internal/infrastructure/config"
)

// MessageHandler receives inbound messages. Paho invokes handlers on its
// own goroutines, so a handler must not block for long or it will stall
// delivery of sensor readings behind it.
type MessageHandler func(topic string, payload []byte) error

// Logger is the minimal surface the client needs for reporting handler
// failures. logging.Logger satisfies it, as does *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// sub remembers an active subscription so it can be replayed after the
// broker connection drops and comes back.
type sub struct {
	qos     byte
	handler MessageHandler
}

// Client is the broker connection shared by the sensor reader, the valve
// actuator and the command adapter. It keeps its subscription table across
// reconnects and announces controller liveness on the system status topic,
// including a last-will message so an open valve with a dead controller is
// visible from outside.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	mu           sync.Mutex
	subs         map[string]sub
	connected    bool
	onConnect    func()
	onDisconnect func(err error)
	log          Logger
}

// Connect dials the broker described by cfg and blocks until the session
// is up or the connect timeout passes. The returned client auto-reconnects
// and replays its subscriptions on every reconnect.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]sub),
	}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.sessionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.sessionDown(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: no session after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect callback runs asynchronously; mark the session up here
	// so IsConnected holds immediately after Connect returns.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return c, nil
}

// sessionUp runs on every successful (re)connect: replay subscriptions,
// announce liveness, then hand off to the registered callback.
func (c *Client) sessionUp() {
	c.mu.Lock()
	c.connected = true
	notify := c.onConnect
	replay := make(map[string]sub, len(c.subs))
	for topic, s := range c.subs {
		replay[topic] = s
	}
	c.mu.Unlock()

	for topic, s := range replay {
		// Failures here resolve themselves on the next reconnect cycle.
		c.client.Subscribe(topic, s.qos, c.dispatch(s.handler))
	}

	c.announce(statusPayload(c.cfg.Broker.ClientID, "online", ""))

	if notify != nil {
		notify()
	}
}

func (c *Client) sessionDown(err error) {
	c.mu.Lock()
	c.connected = false
	notify := c.onDisconnect
	c.mu.Unlock()

	if notify != nil {
		notify(err)
	}
}

// announce publishes a retained liveness payload on the system status topic.
func (c *Client) announce(payload string) {
	c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close announces a graceful shutdown, distinct from the last-will crash
// status, and disconnects with a short quiesce for in-flight publishes.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(
			Topics{}.SystemStatus(),
			byte(c.cfg.QoS), true,
			statusPayload(c.cfg.Broker.ClientID, "offline", "graceful_shutdown"),
		)
		token.WaitTimeout(opTimeout)
	}

	c.client.Disconnect(disconnectQuiesceMs)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	return nil
}

// HealthCheck reports whether the broker session is currently up.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect registers a callback invoked on the initial connect and on
// every reconnect, after subscriptions have been replayed.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback invoked whenever the session drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger attaches a logger for handler errors and recovered panics.
// Without one, handler failures are dropped silently.
func (c *Client) SetLogger(log Logger) {
	c.mu.Lock()
	c.log = log
	c.mu.Unlock()
}

func (c *Client) logger() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log
}

// dispatch adapts a MessageHandler to paho's callback shape. A panicking
// handler must not take the whole paho router down with it.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if log := c.logger(); log != nil {
					log.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if log := c.logger(); log != nil {
				log.Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
