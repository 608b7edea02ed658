package uplink

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hydrostack/hydrostack/pkg/broker"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// Config selects the broker and the station's topics.
type Config struct {
	Broker broker.Config `yaml:"broker"`
	// TopicPrefix defaults to "hydrostack".
	TopicPrefix string `yaml:"topic_prefix"`
	// BufferSize defaults to 1000.
	BufferSize int `yaml:"buffer_size"`

	Station string `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.TopicPrefix == "" {
		c.TopicPrefix = broker.DefaultPrefix
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	return c
}

// Uplink buffers station telemetry and publishes it to the broker.
type Uplink struct {
	cfg    Config
	buf    chan Message
	dialFn dialFunc

	// OnDrop is called for every evicted message.
	OnDrop func()
}

// New creates an Uplink for cfg.
func New(cfg Config) *Uplink {
	cfg = cfg.withDefaults()
	return &Uplink{
		cfg:    cfg,
		buf:    make(chan Message, cfg.BufferSize),
		dialFn: defaultDial,
	}
}

// Enqueue places m in the buffer, evicting the oldest message when full.
func (u *Uplink) Enqueue(m Message) {
	select {
	case u.buf <- m:
		return
	default:
	}
	select {
	case <-u.buf:
		slog.Warn("uplink: buffer full, evicted oldest message",
			"topic", m.Topic, "buffer_cap", cap(u.buf))
		if u.OnDrop != nil {
			u.OnDrop()
		}
	default:
	}
	select {
	case u.buf <- m:
	default:
	}
}

// Pending returns the number of buffered messages.
func (u *Uplink) Pending() int { return len(u.buf) }

// Run drains the buffer to the broker until ctx is cancelled.
func (u *Uplink) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		pub, err := u.dialFn(ctx, u.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("uplink: connect failed, will retry",
				"broker", u.cfg.Broker.URL, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("uplink: connected", "broker", u.cfg.Broker.URL)
		bo.reset()

		err = u.drain(ctx, pub)
		pub.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("uplink: connection lost, will reconnect",
			"broker", u.cfg.Broker.URL, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drain publishes buffered messages until a publish fails or ctx is done.
func (u *Uplink) drain(ctx context.Context, pub Publisher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-u.buf:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := pub.Publish(sendCtx, m)
			cancel()
			if err != nil {
				select {
				case u.buf <- m:
				default:
				}
				return fmt.Errorf("publish %s: %w", m.Topic, err)
			}
			slog.Debug("uplink: published", "topic", m.Topic, "bytes", len(m.Payload))
		}
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current delay with ±25% jitter and doubles the base.
func (b *backoff) next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
