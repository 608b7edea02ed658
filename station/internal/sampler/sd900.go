package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hydrostack/hydrostack/station/internal/modbus"
	"github.com/hydrostack/hydrostack/station/internal/serialport"
)

// SD900 register map.
const (
	regResult uint16 = 0x26CE
	regGrab   uint16 = 0x26CF

	cmdGrab uint16 = 0x8007
	cmdPump uint16 = 0x8000
)

var (
	// ErrTrigger is returned when the grab command is never acknowledged.
	ErrTrigger = errors.New("sampler: could not trigger sampler")
	// ErrResult is returned when the result register could not be read.
	ErrResult = errors.New("sampler: could not get result")
)

// SD900Config holds the sampler's port and timing. Zero fields take the
// defaults documented on each field.
type SD900Config struct {
	// Port defaults to 115200 8N1.
	Port serialport.Config `yaml:"port"`
	// Address defaults to 2.
	Address byte `yaml:"address"`
	// VolumeML is the grab volume; defaults to 100.
	VolumeML int `yaml:"volume_ml"`
	// GrabTries defaults to 3, RetryDelay to 2s.
	GrabTries  int           `yaml:"grab_tries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	// ResultTries defaults to 5, ResultInterval to 2s.
	ResultTries    int           `yaml:"result_tries"`
	ResultInterval time.Duration `yaml:"result_interval"`
	// Settle is the wait between grab and first poll; defaults to 1s.
	Settle time.Duration `yaml:"settle"`
	// Timeout is the per-read timeout; defaults to 1s.
	Timeout time.Duration `yaml:"timeout"`
	// Terminal lists result codes that end polling; defaults to 2 and 5.
	Terminal []uint16 `yaml:"terminal_codes"`
}

func (c SD900Config) withDefaults() SD900Config {
	if c.Port.Baud == 0 {
		c.Port.Baud = 115200
	}
	if c.Address == 0 {
		c.Address = 2
	}
	if c.VolumeML == 0 {
		c.VolumeML = 100
	}
	if c.GrabTries == 0 {
		c.GrabTries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.ResultTries == 0 {
		c.ResultTries = 5
	}
	if c.ResultInterval == 0 {
		c.ResultInterval = 2 * time.Second
	}
	if c.Settle == 0 {
		c.Settle = time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = time.Second
	}
	if len(c.Terminal) == 0 {
		c.Terminal = []uint16{2, 5}
	}
	return c
}

// Result is the outcome of one grab.
type Result struct {
	Code  uint16
	Polls int
	// Terminal is false when polling stopped on the try limit.
	Terminal bool
}

// SD900 drives a Modbus water sampler.
type SD900 struct {
	cfg  SD900Config
	open serialport.Opener

	// Volume, when set, supplies the grab volume at trigger time.
	Volume func() int
	// OnRetry is passed to the Modbus client.
	OnRetry func(attempt int, err error)
	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewSD900 returns a driver that opens its port with open for each command.
func NewSD900(cfg SD900Config, open serialport.Opener) *SD900 {
	if open == nil {
		open = serialport.Open
	}
	return &SD900{cfg: cfg.withDefaults(), open: open}
}

// Trigger grabs one aliquot and waits for the result.
func (s *SD900) Trigger(ctx context.Context) error {
	vol := s.cfg.VolumeML
	if s.Volume != nil {
		if v := s.Volume(); v > 0 {
			vol = v
		}
	}
	res, err := s.Grab(ctx, vol)
	if err != nil {
		return err
	}
	slog.Info("sampler: grab complete", "volume_ml", vol, "code", res.Code, "polls", res.Polls, "terminal", res.Terminal)
	return nil
}

// Grab writes the grab command for volumeML and polls the result register.
func (s *SD900) Grab(ctx context.Context, volumeML int) (Result, error) {
	if volumeML <= 0 || volumeML > 0xFFFF {
		return Result{}, fmt.Errorf("sampler: volume %d mL out of range", volumeML)
	}
	var res Result
	err := s.withClient(func(c *modbus.Client) error {
		c.Tries = s.cfg.GrabTries
		if err := c.WriteRegisters(ctx, s.cfg.Address, regGrab, []uint16{uint16(volumeML), cmdGrab}); err != nil {
			return fmt.Errorf("%w: %w", ErrTrigger, err)
		}
		if err := s.sleep(ctx, s.cfg.Settle); err != nil {
			return err
		}
		var err error
		res, err = s.poll(ctx, c)
		return err
	})
	return res, err
}

// Pump runs the peristaltic pump forward, or in reverse to purge the line.
func (s *SD900) Pump(ctx context.Context, reverse bool) error {
	dir := uint16(0)
	if reverse {
		dir = 1
	}
	return s.withClient(func(c *modbus.Client) error {
		c.Tries = s.cfg.GrabTries
		if err := c.WriteRegisters(ctx, s.cfg.Address, regGrab, []uint16{dir, cmdPump}); err != nil {
			return fmt.Errorf("sampler: pump: %w", err)
		}
		return nil
	})
}

// resultState extracts the state code from the result register. Firmware
// that reports the state in the high byte leaves the low byte zero.
func resultState(v uint16) uint16 {
	if v > 0xFF && v&0xFF == 0 {
		return v >> 8
	}
	return v
}

// ReadResult reads the result register once and returns the state code.
func (s *SD900) ReadResult(ctx context.Context) (uint16, error) {
	var code uint16
	err := s.withClient(func(c *modbus.Client) error {
		c.Tries = 1
		v, err := c.ReadRegisters(ctx, s.cfg.Address, regResult, 1)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrResult, err)
		}
		code = resultState(v[0])
		return nil
	})
	return code, err
}

func (s *SD900) poll(ctx context.Context, c *modbus.Client) (Result, error) {
	c.Tries = 1
	res := Result{}
	valid := false
	var last error
	for i := 1; i <= s.cfg.ResultTries; i++ {
		res.Polls = i
		v, err := c.ReadRegisters(ctx, s.cfg.Address, regResult, 1)
		if err == nil {
			valid = true
			res.Code = resultState(v[0])
			if s.terminal(res.Code) {
				res.Terminal = true
				return res, nil
			}
		} else {
			last = err
		}
		if i < s.cfg.ResultTries {
			if err := s.sleep(ctx, s.cfg.ResultInterval); err != nil {
				return res, err
			}
		}
	}
	if !valid {
		return res, fmt.Errorf("%w: %w", ErrResult, last)
	}
	return res, nil
}

func (s *SD900) terminal(code uint16) bool {
	for _, c := range s.cfg.Terminal {
		if c == code {
			return true
		}
	}
	return false
}

func (s *SD900) withClient(fn func(*modbus.Client) error) error {
	port, err := s.open(s.cfg.Port)
	if err != nil {
		return fmt.Errorf("sampler: %w", err)
	}
	defer port.Close()
	c := &modbus.Client{
		Port:    port,
		Delay:   s.cfg.RetryDelay,
		Timeout: s.cfg.Timeout,
		OnRetry: s.OnRetry,
		Sleep:   s.Sleep,
	}
	return fn(c)
}

func (s *SD900) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
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
