package flowmeter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hydrostack/hydrostack/station/internal/modbus"
	"github.com/hydrostack/hydrostack/station/internal/serialport"
)

// Value formats for the two-register Signature reply.
const (
	FormatFloat32 = "float32"
	FormatInt16   = "int16"
	FormatLowByte = "low_byte"
)

// SignatureConfig selects the register and how it is decoded.
type SignatureConfig struct {
	// Port defaults to 19200 8N1.
	Port serialport.Config `yaml:"port"`
	// Address defaults to 2.
	Address byte `yaml:"address"`
	// Register defaults to 0x0027.
	Register uint16 `yaml:"register"`
	// Format is float32 (default), int16 or low_byte.
	Format     string        `yaml:"format"`
	Tries      int           `yaml:"tries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c SignatureConfig) withDefaults() SignatureConfig {
	if c.Port.Baud == 0 {
		c.Port.Baud = 19200
	}
	if c.Address == 0 {
		c.Address = 2
	}
	if c.Register == 0 {
		c.Register = 0x0027
	}
	if c.Format == "" {
		c.Format = FormatFloat32
	}
	if c.Tries == 0 {
		c.Tries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = time.Second
	}
	return c
}

// Signature reads an ISCO Signature flow meter.
type Signature struct {
	cfg  SignatureConfig
	open serialport.Opener

	OnRetry func(attempt int, err error)
	Sleep   func(ctx context.Context, d time.Duration) error
}

// NewSignature returns a driver.
func NewSignature(cfg SignatureConfig, open serialport.Opener) (*Signature, error) {
	cfg = cfg.withDefaults()
	switch cfg.Format {
	case FormatFloat32, FormatInt16, FormatLowByte:
	default:
		return nil, fmt.Errorf("flowmeter: format %q unknown: want float32|int16|low_byte", cfg.Format)
	}
	if open == nil {
		open = serialport.Open
	}
	return &Signature{cfg: cfg, open: open}, nil
}

// Read returns the current value.
func (s *Signature) Read(ctx context.Context) (float64, error) {
	port, err := s.open(s.cfg.Port)
	if err != nil {
		return 0, fmt.Errorf("flowmeter: %w", err)
	}
	defer port.Close()
	c := &modbus.Client{
		Port:    port,
		Tries:   s.cfg.Tries,
		Delay:   s.cfg.RetryDelay,
		Timeout: s.cfg.Timeout,
		OnRetry: s.OnRetry,
		Sleep:   s.Sleep,
	}
	regs, err := c.ReadRegisters(ctx, s.cfg.Address, s.cfg.Register, 2)
	if err != nil {
		return 0, fmt.Errorf("flowmeter: signature: %w", err)
	}
	return Decode(s.cfg.Format, regs), nil
}

// Decode converts two registers to a value in format.
func Decode(format string, regs []uint16) float64 {
	switch format {
	case FormatInt16:
		return float64(int16(regs[0]))
	case FormatLowByte:
		return float64(regs[0] & 0xFF)
	default:
		return float64(math.Float32frombits(uint32(regs[0])<<16 | uint32(regs[1])))
	}
}
