package serialport_test

import (
	"errors"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/hydrostack/hydrostack/station/internal/serialport"
	"github.com/hydrostack/hydrostack/station/internal/serialport/serialporttest"
)

func TestConfig_Mode(t *testing.T) {
	m, err := serialport.Config{Name: "/dev/ttyS0", Baud: 19200}.Mode()
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if m.BaudRate != 19200 || m.DataBits != 8 || m.Parity != serial.NoParity || m.StopBits != serial.OneStopBit {
		t.Errorf("mode = %+v, want 19200 8N1", m)
	}

	m, err = serialport.Config{Name: "x", Baud: 9600, Parity: "Even", StopBits: 2, DataBits: 7}.Mode()
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if m.Parity != serial.EvenParity || m.StopBits != serial.TwoStopBits || m.DataBits != 7 {
		t.Errorf("mode = %+v", m)
	}
}

func TestConfig_ModeRejects(t *testing.T) {
	cases := []serialport.Config{
		{Name: "x"},
		{Name: "x", Baud: 9600, Parity: "mark"},
		{Name: "x", Baud: 9600, StopBits: 3},
	}
	for _, c := range cases {
		if _, err := c.Mode(); err == nil {
			t.Errorf("Mode(%+v) expected error", c)
		}
	}
}

func TestExchange_ReadsFullReply(t *testing.T) {
	f := serialporttest.NewFake([]byte{1, 2, 3, 4, 5})
	buf := make([]byte, 5)
	n, err := serialport.Exchange(f, []byte{0xAA}, buf, time.Second)
	if err != nil || n != 5 {
		t.Fatalf("Exchange = %d, %v", n, err)
	}
	if buf[4] != 5 {
		t.Errorf("buf = %v", buf)
	}
	if len(f.Writes) != 1 || f.Writes[0][0] != 0xAA {
		t.Errorf("writes = %v", f.Writes)
	}
}

func TestReadFull_ShortReplyTimesOut(t *testing.T) {
	f := serialporttest.NewFake([]byte{1, 2})
	buf := make([]byte, 8)
	n, err := serialport.Exchange(f, []byte{0}, buf, 20*time.Millisecond)
	if !errors.Is(err, serialport.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}
}
