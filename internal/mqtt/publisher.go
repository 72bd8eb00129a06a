// Package mqtt publishes activity state and status lines to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/castlightd/internal/eventbus"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	qos            = 1
	publishTimeout = 5 * time.Second
)

// Options configures the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // Topic prefix
}

// Client is the subset of paho.Client the publisher uses.
type Client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// StatePayload is published retained on <topic>/state.
type StatePayload struct {
	InUse   bool      `json:"in_use"`
	Phase   string    `json:"phase"`
	Outcome string    `json:"outcome"`
	Session string    `json:"session,omitempty"`
	Device  string    `json:"device"`
	Group   string    `json:"group,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher forwards bus events to the broker.
type Publisher struct {
	client Client
	topic  string
}

// New creates a publisher with a paho client. The broker marks the daemon
// offline through the last will when the connection drops.
func New(opts Options) *Publisher {
	topic := opts.Topic
	if topic == "" {
		topic = "castlightd"
	}

	co := paho.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetWill(topic+"/availability", payloadOffline, qos, true)
	co.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}
	co.OnConnect = func(c paho.Client) {
		log.Info().Str("broker", opts.Broker).Msg("MQTT connected")
		c.Publish(topic+"/availability", qos, true, payloadOnline)
	}

	return NewWithClient(paho.NewClient(co), topic)
}

// NewWithClient creates a publisher on an existing client.
func NewWithClient(client Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// Topic returns the full topic for suffix.
func (p *Publisher) Topic(suffix string) string {
	return p.topic + "/" + suffix
}

// Connect connects to the broker. With connect retry enabled the token
// completes once the first attempt is made; later attempts run in the
// background.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Msg("MQTT connect still pending, continuing in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Subscribe registers the publisher on the bus.
func (p *Publisher) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeTransition, p.handleTransition)
	bus.Subscribe(eventbus.EventTypeStatus, p.handleStatus)
}

// Close publishes offline and disconnects.
func (p *Publisher) Close() {
	p.publish(p.Topic("availability"), true, payloadOffline)
	p.client.Disconnect(250)
}

func (p *Publisher) handleTransition(e eventbus.Event) {
	payload, err := json.Marshal(StatePayload{
		InUse:   e.Bool("in_use"),
		Phase:   e.String("phase"),
		Outcome: e.String("outcome"),
		Session: e.String("session"),
		Device:  e.String("device"),
		Group:   e.String("group"),
		At:      e.Time,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode MQTT state")
		return
	}
	p.publish(p.Topic("state"), true, payload)
}

func (p *Publisher) handleStatus(e eventbus.Event) {
	msg := e.String("message")
	if msg == "" {
		return
	}
	p.publish(p.Topic("status"), false, msg)
}

func (p *Publisher) publish(topic string, retained bool, payload interface{}) {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("topic", topic).Msg("MQTT publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
}
