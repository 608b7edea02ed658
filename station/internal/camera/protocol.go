package camera

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Command bytes.
const (
	cmdReady    byte = 0x01
	cmdLED      byte = 0x07
	cmdSnapshot byte = 0x40
	cmdGetPart  byte = 0x48
	cmdOverlay  byte = 0x52
	cmdDelay    byte = 0x78
)

// Fixed reply sizes.
const (
	readyReplyLen    = 11
	snapshotReplyLen = 19
	overlayReplyLen  = 8
	ledReplyLen      = 8
	delayReplyLen    = 10
	partOverhead     = 8
	headerLen        = 6
)

var (
	prefix = []byte{0x90, 0xEB}

	// outOfMemory is sent in place of a snapshot reply when the frame does
	// not fit the camera's buffer. It has the same length as a good reply.
	outOfMemory = []byte("Len>JpegBufMaxLen\r\n")
)

// CRC16XMODEM returns the CRC-16/XMODEM of b (poly 0x1021, init 0).
func CRC16XMODEM(b []byte) uint16 {
	var crc uint16
	for _, c := range b {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Frame builds a request: prefix, addr, cmd, len(data) big-endian, data and
// the CRC of addr..data.
func Frame(addr, cmd byte, data []byte) []byte {
	f := make([]byte, 0, headerLen+len(data)+2)
	f = append(f, prefix...)
	f = append(f, addr, cmd)
	f = binary.BigEndian.AppendUint16(f, uint16(len(data)))
	f = append(f, data...)
	return binary.BigEndian.AppendUint16(f, CRC16XMODEM(f[len(prefix):]))
}

// CheckCRC reports whether pkt ends in the CRC of everything after the
// prefix.
func CheckCRC(pkt []byte) bool {
	if len(pkt) <= 4 {
		return false
	}
	n := len(pkt)
	return CRC16XMODEM(pkt[2:n-2]) == binary.BigEndian.Uint16(pkt[n-2:])
}

// resolutions maps frame sizes to the camera's resolution codes.
var resolutions = map[string]byte{
	"640x480":      5,
	"1280x960":     6,
	"800x600":      7,
	"1024x768":     8,
	"1600x1024":    10,
	"1600x1200":    11,
	"1280x720":     15,
	"1920x1080":    16,
	"1280x1024":    17,
	"480x270":      30,
	"640x360":      31,
	"800x450":      32,
	"960x540":      33,
	"1024x576":     34,
	"1280x720_NEW": 35,
	"1366x768":     36,
	"1440x810":     37,
	"1600x900":     38,
}

// ResolutionCode returns the code for a frame size such as "1280x720".
func ResolutionCode(name string) (byte, error) {
	code, ok := resolutions[name]
	if !ok {
		return 0, fmt.Errorf("camera: unknown resolution %q", name)
	}
	return code, nil
}

// Resolutions lists the supported frame sizes in sorted order.
func Resolutions() []string {
	out := make([]string, 0, len(resolutions))
	for k := range resolutions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LEDMode selects the infrared LED behaviour.
type LEDMode string

const (
	LEDAuto LEDMode = "auto"
	LEDOn   LEDMode = "on"
	LEDOff  LEDMode = "off"
)

func (m LEDMode) payload() ([]byte, error) {
	switch m {
	case LEDOn:
		return []byte{0x33, 0x00}, nil
	case LEDOff:
		return []byte{0xCC, 0x00}, nil
	case LEDAuto:
		return []byte{0x33, 0x01}, nil
	}
	return nil, fmt.Errorf("camera: unknown led mode %q: want auto|on|off", string(m))
}
