package flowmeter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hydrostack/hydrostack/station/internal/digital"
	"github.com/hydrostack/hydrostack/station/internal/modbus"
	"github.com/hydrostack/hydrostack/station/internal/serialport"
)

const (
	av9000Address byte   = 0xF7
	regClock      uint16 = 0x26FC
	regInterval   uint16 = 0x0084
)

// ErrSetup is returned when the AV9000 rejects or ignores configuration.
var ErrSetup = errors.New("flowmeter: could not setup AV9000")

// epoch2000 is the AV9000 clock origin.
var epoch2000 = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// intervalCodes maps supported logging intervals to register values.
var intervalCodes = map[time.Duration]uint16{
	30 * time.Second: 1,
	time.Minute:      2,
	2 * time.Minute:  3,
	5 * time.Minute:  4,
	10 * time.Minute: 5,
	15 * time.Minute: 6,
	30 * time.Minute: 7,
	time.Hour:        8,
}

// IntervalCode returns the register value for d.
func IntervalCode(d time.Duration) (uint16, error) {
	c, ok := intervalCodes[d]
	if !ok {
		return 0, fmt.Errorf("flowmeter: interval %v unsupported: want 30s|1m|2m|5m|10m|15m|30m|1h", d)
	}
	return c, nil
}

// ClockRegisters encodes t as seconds since 2000-01-01 UTC, high word first.
func ClockRegisters(t time.Time) [2]uint16 {
	secs := uint32(t.UTC().Sub(epoch2000) / time.Second)
	return [2]uint16{uint16(secs >> 16), uint16(secs)}
}

// AV9000Config holds port and power settings.
type AV9000Config struct {
	// Port defaults to 19200 8N1.
	Port serialport.Config `yaml:"port"`
	// Interval is the logging interval written at setup; defaults to 1m.
	Interval time.Duration `yaml:"interval"`
	// PowerOff and PowerOn are the power-cycle waits; default 2s and 3s.
	PowerOff time.Duration `yaml:"power_off"`
	PowerOn  time.Duration `yaml:"power_on"`
	// Tries per register write; defaults to 3 with RetryDelay 2s.
	Tries      int           `yaml:"tries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c AV9000Config) withDefaults() AV9000Config {
	if c.Port.Baud == 0 {
		c.Port.Baud = 19200
	}
	if c.Interval == 0 {
		c.Interval = time.Minute
	}
	if c.PowerOff == 0 {
		c.PowerOff = 2 * time.Second
	}
	if c.PowerOn == 0 {
		c.PowerOn = 3 * time.Second
	}
	if c.Tries == 0 {
		c.Tries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = time.Second
	}
	return c
}

// AV9000 configures an area-velocity meter.
type AV9000 struct {
	cfg   AV9000Config
	open  serialport.Opener
	power digital.Line

	OnRetry func(attempt int, err error)
	Sleep   func(ctx context.Context, d time.Duration) error
}

// NewAV9000 returns a driver. power may be nil when the meter is always on.
func NewAV9000(cfg AV9000Config, open serialport.Opener, power digital.Line) *AV9000 {
	if open == nil {
		open = serialport.Open
	}
	return &AV9000{cfg: cfg.withDefaults(), open: open, power: power}
}

// Setup power-cycles the meter, then writes its clock and logging interval.
func (a *AV9000) Setup(ctx context.Context, now time.Time) error {
	code, err := IntervalCode(a.cfg.Interval)
	if err != nil {
		return err
	}
	if a.power != nil {
		if err := digital.PowerCycle(ctx, a.power, a.cfg.PowerOff, a.cfg.PowerOn); err != nil {
			return fmt.Errorf("flowmeter: power cycle: %w", err)
		}
	}

	port, err := a.open(a.cfg.Port)
	if err != nil {
		return fmt.Errorf("flowmeter: %w", err)
	}
	defer port.Close()
	c := &modbus.Client{
		Port:    port,
		Tries:   a.cfg.Tries,
		Delay:   a.cfg.RetryDelay,
		Timeout: a.cfg.Timeout,
		OnRetry: a.OnRetry,
		Sleep:   a.Sleep,
	}

	clock := ClockRegisters(now)
	if err := c.WriteRegisters(ctx, av9000Address, regClock, clock[:]); err != nil {
		return fmt.Errorf("%w: clock: %w", ErrSetup, err)
	}
	if err := c.WriteRegisters(ctx, av9000Address, regInterval, []uint16{code}); err != nil {
		return fmt.Errorf("%w: interval: %w", ErrSetup, err)
	}
	return nil
}
