// Package mqtt publishes simulation events to an MQTT broker.
package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	opTimeout      = 10 * time.Second
	retryInterval  = 5 * time.Second
	keepAlive      = 30 * time.Second
	statusOnline   = "online"
	statusOffline  = "offline"
	disconnectWait = 1000 // ms
)

// Options configures a broker connection.
type Options struct {
	Broker   string
	ClientID string
	// StatusTopic, when set, carries a retained "online" message while
	// connected and "offline" as the last will.
	StatusTopic string
	// OnStateChange is called whenever the connection comes up or drops,
	// including automatic reconnects.
	OnStateChange func(connected bool)
}

// Client wraps the Paho MQTT client.
type Client struct {
	client paho.Client
	opts   Options
	mu     sync.Mutex
}

// NewClient creates a client for opts.Broker but does not connect.
func NewClient(opts Options) *Client {
	c := &Client{opts: opts}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetKeepAlive(keepAlive).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if opts.StatusTopic != "" {
		po.SetWill(opts.StatusTopic, statusOffline, 1, true)
	}

	c.client = paho.NewClient(po)
	return c
}

func (c *Client) onConnect(pc paho.Client) {
	log.Printf("mqtt: connected to %s", c.opts.Broker)
	if c.opts.StatusTopic != "" {
		// Fire and forget: blocking here would stall paho's connect loop.
		pc.Publish(c.opts.StatusTopic, 1, true, statusOnline)
	}
	c.notify(true)
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	log.Printf("mqtt: connection to %s lost: %v", c.opts.Broker, err)
	c.notify(false)
}

func (c *Client) notify(connected bool) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(connected)
	}
}

// Connect attempts to connect to the broker, giving up after a bounded wait.
// Paho keeps retrying in the background after a timeout.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "connect", Target: c.opts.Broker}
	}
	return token.Error()
}

// Publish sends payload to topic at QoS 1 and waits for the acknowledgement.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "publish", Target: topic}
	}
	return token.Error()
}

// Disconnect marks the service offline and closes the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.StatusTopic != "" && c.client.IsConnected() {
		c.client.Publish(c.opts.StatusTopic, 1, true, statusOffline).WaitTimeout(time.Second)
	}
	c.client.Disconnect(disconnectWait)
	c.notify(false)
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// TimeoutError reports a broker operation that was not acknowledged in time.
type TimeoutError struct {
	Op     string
	Target string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mqtt %s timeout: %s", e.Op, e.Target)
}

// StartWithRetry attempts a first connection, logging failures instead of
// returning them. It reports whether the client is connected.
func (c *Client) StartWithRetry() bool {
	if err := c.Connect(); err != nil {
		log.Printf("mqtt: failed to connect to %s: %v", c.opts.Broker, err)
		return false
	}
	return true
}
