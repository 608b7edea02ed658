package uplink

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hydrostack/hydrostack/pkg/broker"
)

// Publisher is one live broker session.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
	Close()
}

type dialFunc func(ctx context.Context, cfg Config) (Publisher, error)

type mqttPublisher struct {
	client mqtt.Client
	qos    byte
}

func (p *mqttPublisher) Publish(ctx context.Context, m Message) error {
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("uplink: connection closed")
	}
	return broker.Wait(ctx, p.client.Publish(m.Topic, p.qos, m.Retained, m.Payload))
}

func (p *mqttPublisher) Close() { p.client.Disconnect(250) }

// ClientOptions builds paho options for cfg. Reconnection is left to Run.
func ClientOptions(cfg Config) (*mqtt.ClientOptions, error) {
	opts, err := cfg.Broker.Options("hydrostack-" + cfg.Station)
	if err != nil {
		return nil, fmt.Errorf("uplink: %w", err)
	}
	return opts, nil
}

func defaultDial(ctx context.Context, cfg Config) (Publisher, error) {
	opts, err := ClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	c := mqtt.NewClient(opts)
	if err := broker.Wait(ctx, c.Connect()); err != nil {
		return nil, fmt.Errorf("uplink: connect %s: %w", cfg.Broker.URL, err)
	}
	return &mqttPublisher{client: c, qos: cfg.Broker.QoS}, nil
}
