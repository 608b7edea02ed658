package camera

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hydrostack/hydrostack/station/internal/serialport"
)

var (
	// ErrCamera is returned when the camera does not answer or sends a bad
	// picture.
	ErrCamera = errors.New("camera: camera error")
	// ErrMemory is returned when the camera cannot hold the requested frame.
	ErrMemory = fmt.Errorf("%w: out of frame memory", ErrCamera)
	// ErrBadCRC is returned for replies whose checksum does not match.
	ErrBadCRC = errors.New("camera: bad crc")
	// ErrBadHeader is returned when a reply does not echo the request.
	ErrBadHeader = errors.New("camera: bad reply header")
)

// readyTimeout bounds each ready probe.
const readyTimeout = 250 * time.Millisecond

// Conn is one open session with a camera.
type Conn struct {
	Port serialport.Port
	Addr byte
	// Tries is the attempt count for every command except the ready probe.
	Tries int
	// Timeout bounds each reply.
	Timeout time.Duration
	// PacketSize is the download chunk size.
	PacketSize int
	// Retries counts repeated attempts across all commands.
	Retries int
}

// Send writes one command and returns the checked reply. want is the reply
// length; zero reads the header and then the length it declares.
func (c *Conn) Send(cmd byte, data []byte, want, tries int, timeout time.Duration) ([]byte, error) {
	if tries < 1 {
		tries = 1
	}
	req := Frame(c.Addr, cmd, data)
	var last error
	for i := 0; i < tries; i++ {
		if i > 0 {
			c.Retries++
		}
		reply, err := c.exchange(req, want, timeout)
		if err != nil {
			last = err
			continue
		}
		if cmd == cmdSnapshot && bytes.Equal(reply, outOfMemory) {
			return reply, nil
		}
		if !CheckCRC(reply) {
			last = ErrBadCRC
			continue
		}
		return reply, nil
	}
	return nil, fmt.Errorf("camera: command %#02x: %w", cmd, last)
}

func (c *Conn) exchange(req []byte, want int, timeout time.Duration) ([]byte, error) {
	if want > 0 {
		buf := make([]byte, want)
		n, err := serialport.Exchange(c.Port, req, buf, timeout)
		if err != nil {
			return buf[:n], err
		}
		return buf, nil
	}
	head := make([]byte, headerLen)
	if _, err := serialport.Exchange(c.Port, req, head, timeout); err != nil {
		return nil, err
	}
	if !bytes.Equal(head[:2], prefix) || head[3] != req[3] {
		return nil, ErrBadHeader
	}
	n := int(binary.BigEndian.Uint16(head[4:6]))
	if c.PacketSize > 0 && n > c.PacketSize {
		n = c.PacketSize
	}
	rest := make([]byte, n+2)
	if _, err := serialport.ReadFull(c.Port, rest, timeout); err != nil {
		return nil, err
	}
	return append(head, rest...), nil
}

// Ready probes the camera until it answers or wait elapses.
func (c *Conn) Ready(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		if _, err := c.Send(cmdReady, []byte{0x55, 0xAA}, readyReplyLen, 1, readyTimeout); err == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: camera is not communicating", ErrCamera)
		}
	}
}

// Snapshot asks for a frame and returns its encoded size.
func (c *Conn) Snapshot(s Setting) (int, error) {
	res, err := ResolutionCode(s.Resolution)
	if err != nil {
		return 0, err
	}
	data := binary.BigEndian.AppendUint16(nil, uint16(c.PacketSize))
	data = append(data, res, byte(s.Compression))
	reply, err := c.Send(cmdSnapshot, data, snapshotReplyLen, c.Tries, c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: snapshot: %w", ErrCamera, err)
	}
	if bytes.Equal(reply, outOfMemory) {
		return 0, ErrMemory
	}
	return int(binary.BigEndian.Uint32(reply[7:11])), nil
}

// Part downloads n bytes of the last snapshot starting at pos.
func (c *Conn) Part(pos, n int) ([]byte, error) {
	data := binary.BigEndian.AppendUint32(nil, uint32(pos))
	data = binary.BigEndian.AppendUint16(data, uint16(n))
	reply, err := c.Send(cmdGetPart, data, partOverhead+n, c.Tries, c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: part at %d: %w", ErrCamera, pos, err)
	}
	return reply[6 : len(reply)-2], nil
}

// Download writes size bytes of the last snapshot to w in PacketSize chunks.
func (c *Conn) Download(ctx context.Context, w io.Writer, size int) (int, error) {
	chunk := c.PacketSize
	if chunk <= 0 {
		chunk = DefaultPacketSize
	}
	written := 0
	for written < size {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n := min(chunk, size-written)
		b, err := c.Part(written, n)
		if err != nil {
			return written, err
		}
		if _, err := w.Write(b); err != nil {
			return written, fmt.Errorf("camera: write image: %w", err)
		}
		written += len(b)
	}
	return written, nil
}

// Overlay sets the text drawn at x, y.
func (c *Conn) Overlay(x, y uint16, font byte, text string) error {
	data := binary.BigEndian.AppendUint16(nil, x)
	data = binary.BigEndian.AppendUint16(data, y)
	data = append(data, font)
	data = append(data, text...)
	if _, err := c.Send(cmdOverlay, data, overlayReplyLen, c.Tries, c.Timeout); err != nil {
		return fmt.Errorf("camera: overlay: %w", err)
	}
	return nil
}

// LED switches the infrared LEDs. Auto mode does not require an answer.
func (c *Conn) LED(mode LEDMode) error {
	data, err := mode.payload()
	if err != nil {
		return err
	}
	if _, err := c.Send(cmdLED, data, ledReplyLen, c.Tries, c.Timeout); err != nil && mode != LEDAuto {
		return fmt.Errorf("camera: led %s: %w", mode, err)
	}
	return nil
}

// AdjustDelay shortens the camera's inter-frame delay.
func (c *Conn) AdjustDelay() error {
	if _, err := c.Send(cmdDelay, []byte{0x78, 0x78, 0x1A, 0x1A}, delayReplyLen, c.Tries, c.Timeout); err != nil {
		return fmt.Errorf("camera: adjust delay: %w", err)
	}
	return nil
}
