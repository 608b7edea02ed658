package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gomodbus "github.com/goburrow/modbus"

	"github.com/hydrostack/hydrostack/station/internal/serialport"
)

// ErrNoResponse wraps the last failure once every attempt is used.
var ErrNoResponse = errors.New("modbus: no valid response")

// ExceptionError is an exception reply from a slave.
type ExceptionError = gomodbus.ModbusError

// Defaults used when Client fields are zero.
const (
	DefaultTries   = 3
	DefaultDelay   = 2 * time.Second
	DefaultTimeout = time.Second
)

// Client exchanges frames with slaves on one port.
type Client struct {
	Port    serialport.Port
	Tries   int
	Delay   time.Duration
	Timeout time.Duration

	// OnRetry is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// session returns a goburrow client addressing one slave over c.Port.
func (c *Client) session(addr byte) gomodbus.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// The handler is used only as the RTU packager; it never opens a port.
	pk := gomodbus.NewRTUClientHandler("")
	pk.SlaveId = addr
	return gomodbus.NewClient2(pk, &transport{port: c.Port, timeout: timeout})
}

// ReadRegisters reads count holding registers starting at reg.
func (c *Client) ReadRegisters(ctx context.Context, addr byte, reg, count uint16) ([]uint16, error) {
	mb := c.session(addr)
	var out []uint16
	err := c.do(ctx, func() error {
		b, err := mb.ReadHoldingRegisters(reg, count)
		if err != nil {
			return err
		}
		if len(b) != 2*int(count) {
			return fmt.Errorf("got %d data bytes, want %d", len(b), 2*count)
		}
		out = make([]uint16, count)
		for i := range out {
			out[i] = binary.BigEndian.Uint16(b[2*i:])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("modbus: read %d@0x%04x slave %d: %w", count, reg, addr, err)
	}
	return out, nil
}

// WriteRegisters writes values starting at reg.
func (c *Client) WriteRegisters(ctx context.Context, addr byte, reg uint16, values []uint16) error {
	mb := c.session(addr)
	data := make([]byte, 0, 2*len(values))
	for _, v := range values {
		data = binary.BigEndian.AppendUint16(data, v)
	}
	err := c.do(ctx, func() error {
		_, err := mb.WriteMultipleRegisters(reg, uint16(len(values)), data)
		return err
	})
	if err != nil {
		return fmt.Errorf("modbus: write %d@0x%04x slave %d: %w", len(values), reg, addr, err)
	}
	return nil
}

// do runs one exchange up to Tries times with a fixed delay in between.
// Exceptions are returned at once.
func (c *Client) do(ctx context.Context, exchange func() error) error {
	tries := c.Tries
	if tries <= 0 {
		tries = DefaultTries
	}
	delay := c.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var last error
	for attempt := 1; attempt <= tries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = exchange()
		if last == nil {
			return nil
		}
		var exc *ExceptionError
		if errors.As(last, &exc) {
			return last
		}
		if attempt == tries {
			break
		}
		slog.Debug("modbus: retrying", "attempt", attempt, "err", last)
		if c.OnRetry != nil {
			c.OnRetry(attempt, last)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d tries: %w", ErrNoResponse, tries, last)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
