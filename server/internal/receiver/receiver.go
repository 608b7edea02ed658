package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hydrostack/hydrostack/pkg/broker"
	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/server/internal/config"
	"github.com/hydrostack/hydrostack/server/internal/store"
	"github.com/hydrostack/hydrostack/server/internal/ws"
)

const (
	retryInitial = time.Second
	retryMax     = time.Minute
)

// ErrBadTopic is returned for topics outside the telemetry layout.
var ErrBadTopic = errors.New("receiver: not a telemetry topic")

// Evaluator is the alert engine.
type Evaluator interface {
	Evaluate(st types.StationStatus)
}

// Broadcaster pushes messages to WebSocket clients.
type Broadcaster interface {
	Broadcast(station, event string, v any)
}

// Archiver queues rows for long-term storage.
type Archiver interface {
	AddReading(r types.Reading)
	AddEvent(e types.Event)
}

// Options wires the optional consumers. Nil fields are skipped.
type Options struct {
	Alerts  Evaluator
	Hub     Broadcaster
	Archive Archiver

	// OnMessage, if set, is called after every broker message with its
	// kind and the Handle error.
	OnMessage func(kind string, err error)
}

// Receiver routes telemetry messages to the store and the consumers in Options.
type Receiver struct {
	store *store.Store
	opt   Options

	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// New creates a Receiver that writes accepted statuses and readings to st.
func New(st *store.Store, opt Options) *Receiver {
	return &Receiver{store: st, opt: opt, newClient: mqtt.NewClient}
}

// Handle decodes one telemetry message and routes it.
func (r *Receiver) Handle(topic string, payload []byte) error {
	station, kind, ok := broker.ParseTopic(topic)
	if !ok {
		return fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}

	switch kind {
	case broker.KindStatus:
		var st types.StationStatus
		if err := decode(payload, &st, station, &st.Station); err != nil {
			return err
		}
		r.store.Put(st)
		if r.opt.Alerts != nil {
			r.opt.Alerts.Evaluate(st)
		}
		r.broadcast(station, ws.EventStatus, st)
		slog.Debug("receiver: status stored", "station", station, "sampling", st.Pacing.On)

	case broker.KindReadings:
		var rd types.Reading
		if err := decode(payload, &rd, station, &rd.Station); err != nil {
			return err
		}
		if rd.Label == "" {
			return fmt.Errorf("receiver: %s: reading without label", topic)
		}
		r.store.PutReading(rd)
		if r.opt.Archive != nil {
			r.opt.Archive.AddReading(rd)
		}

	case broker.KindEvents:
		var ev types.Event
		if err := decode(payload, &ev, station, &ev.Station); err != nil {
			return err
		}
		if r.opt.Archive != nil {
			r.opt.Archive.AddEvent(ev)
		}
		r.broadcast(station, ws.EventStation, ev)
		slog.Info("receiver: station event", "station", station, "label", ev.Label, "value", ev.Value)
	}
	return nil
}

// decode unmarshals payload into v and reconciles the embedded station name
// with the one from the topic. An empty name is filled in.
func decode(payload []byte, v any, station string, field *string) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("receiver: decode %s message: %w", station, err)
	}
	switch *field {
	case "":
		*field = station
	case station:
	default:
		return fmt.Errorf("receiver: payload station %q does not match topic station %q", *field, station)
	}
	return nil
}

func (r *Receiver) broadcast(station, event string, v any) {
	if r.opt.Hub != nil {
		r.opt.Hub.Broadcast(station, event, v)
	}
}

// Run subscribes to every station's telemetry and handles messages until ctx
// is cancelled. Lost connections are re-established with exponential backoff.
func (r *Receiver) Run(ctx context.Context, cfg config.MQTTConfig) error {
	filter := broker.Filter(cfg.TopicPrefix)
	wait := retryInitial

	for {
		lost := make(chan error, 1)
		opts, err := cfg.Options("hydrostack-server")
		if err != nil {
			return fmt.Errorf("receiver: %w", err)
		}
		opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case lost <- err:
			default:
			}
		})

		c := r.newClient(opts)
		err = r.subscribe(ctx, c, filter, cfg.QoS)
		if err == nil {
			slog.Info("receiver: subscribed", "broker", cfg.URL, "filter", filter)
			wait = retryInitial
			select {
			case <-ctx.Done():
				c.Disconnect(250)
				return nil
			case err = <-lost:
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		slog.Warn("receiver: broker connection failed, will retry",
			"broker", cfg.URL, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		wait *= 2
		if wait > retryMax {
			wait = retryMax
		}
	}
}

func (r *Receiver) subscribe(ctx context.Context, c mqtt.Client, filter string, qos byte) error {
	if err := broker.Wait(ctx, c.Connect()); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	tok := c.Subscribe(filter, qos, func(_ mqtt.Client, m mqtt.Message) {
		err := r.Handle(m.Topic(), m.Payload())
		if err != nil {
			slog.Warn("receiver: message rejected", "topic", m.Topic(), "err", err)
		}
		if r.opt.OnMessage != nil {
			_, kind, _ := broker.ParseTopic(m.Topic())
			r.opt.OnMessage(kind, err)
		}
	})
	if err := broker.Wait(ctx, tok); err != nil {
		c.Disconnect(250)
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}
