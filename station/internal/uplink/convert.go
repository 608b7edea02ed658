package uplink

import (
	"encoding/json"
	"fmt"

	"github.com/hydrostack/hydrostack/pkg/broker"
	"github.com/hydrostack/hydrostack/pkg/types"
)

// Message is one encoded publish.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

func (u *Uplink) encode(kind string, v any) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("uplink: encode %s: %w", kind, err)
	}
	return Message{
		Topic:    broker.Topic(u.cfg.TopicPrefix, u.cfg.Station, kind),
		Payload:  b,
		Retained: kind == broker.KindStatus,
	}, nil
}

// PublishReading enqueues r, stamping the station name when unset.
func (u *Uplink) PublishReading(r types.Reading) error {
	if r.Station == "" {
		r.Station = u.cfg.Station
	}
	m, err := u.encode(broker.KindReadings, r)
	if err != nil {
		return err
	}
	u.Enqueue(m)
	return nil
}

// PublishEvent enqueues e, stamping the station name when unset.
func (u *Uplink) PublishEvent(e types.Event) error {
	if e.Station == "" {
		e.Station = u.cfg.Station
	}
	m, err := u.encode(broker.KindEvents, e)
	if err != nil {
		return err
	}
	u.Enqueue(m)
	return nil
}

// PublishStatus enqueues s as the retained station status.
func (u *Uplink) PublishStatus(s types.StationStatus) error {
	if s.Station == "" {
		s.Station = u.cfg.Station
	}
	m, err := u.encode(broker.KindStatus, s)
	if err != nil {
		return err
	}
	u.Enqueue(m)
	return nil
}
