package app

import (
	"github.com/dokzlo13/castlightd/internal/config"
	"github.com/dokzlo13/castlightd/internal/eventbus"
	"github.com/dokzlo13/castlightd/internal/mqtt"
)

// MQTTService publishes bus events to the broker.
type MQTTService struct {
	Publisher *mqtt.Publisher
}

// NewMQTTService creates the publisher and subscribes it to bus.
func NewMQTTService(cfg *config.Config, bus *eventbus.Bus) *MQTTService {
	p := mqtt.New(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		Topic:    cfg.MQTT.Topic,
	})
	p.Subscribe(bus)
	return &MQTTService{Publisher: p}
}

// Start connects to the broker.
func (s *MQTTService) Start() error {
	return s.Publisher.Connect()
}

// Close marks the daemon offline and disconnects.
func (s *MQTTService) Close() {
	s.Publisher.Close()
}
