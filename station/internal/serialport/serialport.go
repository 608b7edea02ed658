// Package serialport opens RS232/RS485 ports for the device drivers and
// provides the timed fixed-length read they all rely on.
package serialport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// ErrTimeout is returned when a read deadline passes before the buffer fills.
var ErrTimeout = errors.New("serialport: read timeout")

// Port is the subset of a serial port the drivers use. Read returns 0, nil
// when the per-read timeout elapses.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Config describes one port.
type Config struct {
	Name     string `yaml:"name"`
	Baud     int    `yaml:"baud"`
	DataBits int    `yaml:"data_bits"`
	// Parity is one of: none | odd | even.
	Parity string `yaml:"parity"`
	// StopBits is 1 or 2.
	StopBits int `yaml:"stop_bits"`
}

// withDefaults fills 8N1 when fields are zero.
func (c Config) withDefaults() Config {
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.Parity == "" {
		c.Parity = "none"
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	return c
}

// Mode converts c into a go.bug.st/serial mode.
func (c Config) Mode() (*serial.Mode, error) {
	c = c.withDefaults()
	if c.Baud <= 0 {
		return nil, fmt.Errorf("serialport: %s: baud must be positive", c.Name)
	}
	m := &serial.Mode{BaudRate: c.Baud, DataBits: c.DataBits}
	switch strings.ToLower(c.Parity) {
	case "none":
		m.Parity = serial.NoParity
	case "odd":
		m.Parity = serial.OddParity
	case "even":
		m.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("serialport: %s: parity %q unknown: want none|odd|even", c.Name, c.Parity)
	}
	switch c.StopBits {
	case 1:
		m.StopBits = serial.OneStopBit
	case 2:
		m.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("serialport: %s: stop bits %d unsupported", c.Name, c.StopBits)
	}
	return m, nil
}

// Opener opens a port by config. Drivers hold an Opener so the port is only
// held for the duration of one exchange.
type Opener func(Config) (Port, error)

// Open opens the named system port.
func Open(c Config) (Port, error) {
	mode, err := c.Mode()
	if err != nil {
		return nil, err
	}
	p, err := serial.Open(c.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", c.Name, err)
	}
	return p, nil
}

// ReadFull reads until buf is full or timeout elapses. It returns the number
// of bytes read; a short read is reported with ErrTimeout.
func ReadFull(p Port, buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	n := 0
	for n < len(buf) {
		left := time.Until(deadline)
		if left <= 0 {
			return n, ErrTimeout
		}
		if err := p.SetReadTimeout(left); err != nil {
			return n, fmt.Errorf("serialport: set timeout: %w", err)
		}
		m, err := p.Read(buf[n:])
		n += m
		if err != nil {
			return n, fmt.Errorf("serialport: read: %w", err)
		}
		if m == 0 && time.Until(deadline) <= 0 {
			return n, ErrTimeout
		}
	}
	return n, nil
}

// Exchange discards pending input, writes req and reads exactly len(resp)
// bytes.
func Exchange(p Port, req, resp []byte, timeout time.Duration) (int, error) {
	if err := p.ResetInputBuffer(); err != nil {
		return 0, fmt.Errorf("serialport: flush: %w", err)
	}
	if _, err := p.Write(req); err != nil {
		return 0, fmt.Errorf("serialport: write: %w", err)
	}
	return ReadFull(p, resp, timeout)
}
