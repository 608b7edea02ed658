package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/hydrostack/hydrostack/station/internal/serialport"
)

const (
	funcReadHolding   = 0x03
	funcWriteMultiple = 0x10

	// rtuMaxSize bounds replies to function codes without a fixed length.
	rtuMaxSize = 256
)

// transport sends RTU frames over a serialport.Port. It satisfies
// the goburrow Transporter interface.
type transport struct {
	port    serialport.Port
	timeout time.Duration
}

// Send writes adu and reads the reply. A reply cut short by the timeout is
// still returned so a five-byte exception frame reaches the decoder.
func (t *transport) Send(adu []byte) ([]byte, error) {
	buf := make([]byte, replyLen(adu))
	n, err := serialport.Exchange(t.port, adu, buf, t.timeout)
	if err != nil && !errors.Is(err, serialport.ErrTimeout) {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("no reply: %w", serialport.ErrTimeout)
	}
	return buf[:n], nil
}

// replyLen is the length of a normal reply to the request adu.
func replyLen(adu []byte) int {
	if len(adu) < 6 {
		return rtuMaxSize
	}
	switch adu[1] {
	case funcReadHolding:
		return 5 + 2*int(binary.BigEndian.Uint16(adu[4:6]))
	case funcWriteMultiple:
		return 8
	}
	return rtuMaxSize
}
