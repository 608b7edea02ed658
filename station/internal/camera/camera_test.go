package camera

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hydrostack/hydrostack/station/internal/digital"
	"github.com/hydrostack/hydrostack/station/internal/serialport/serialporttest"
)

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	return b
}

func readyReply() []byte   { return Frame(1, cmdReady, []byte{0, 0, 0}) }
func overlayReply() []byte { return Frame(1, cmdOverlay, nil) }
func delayReply() []byte   { return Frame(1, cmdDelay, []byte{0, 0}) }

func snapshotReply(size int) []byte {
	data := make([]byte, 11)
	binary.BigEndian.PutUint32(data[1:5], uint32(size))
	return Frame(1, cmdSnapshot, data)
}

func partReply(b []byte) []byte { return Frame(1, cmdGetPart, b) }

func TestCRC16XMODEM(t *testing.T) {
	if got := CRC16XMODEM([]byte("123456789")); got != 0x31C3 {
		t.Errorf("crc = %#04x, want 0x31c3", got)
	}
}

func TestFrame(t *testing.T) {
	tests := []struct {
		name string
		cmd  byte
		data []byte
		want string
	}{
		{"ready", cmdReady, []byte{0x55, 0xAA}, "90 EB 01 01 00 02 55 AA 64 7B"},
		{"snapshot", cmdSnapshot, []byte{0x20, 0x00, 15, 3}, "90 EB 01 40 00 04 20 00 0F 03 04 2A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Frame(1, tt.cmd, tt.data)
			if !bytes.Equal(got, unhex(t, tt.want)) {
				t.Errorf("Frame = % X, want %s", got, tt.want)
			}
			if !CheckCRC(got) {
				t.Error("CheckCRC rejected its own frame")
			}
		})
	}
}

func TestCheckCRC_Rejects(t *testing.T) {
	f := Frame(1, cmdReady, []byte{0x55, 0xAA})
	f[6] ^= 0xFF
	if CheckCRC(f) {
		t.Error("corrupted frame accepted")
	}
	if CheckCRC([]byte{0x90, 0xEB, 0, 0}) {
		t.Error("short frame accepted")
	}
}

func TestResolutionCode(t *testing.T) {
	code, err := ResolutionCode("1280x720")
	if err != nil || code != 15 {
		t.Errorf("ResolutionCode = %d, %v", code, err)
	}
	if _, err := ResolutionCode("4k"); err == nil {
		t.Error("unknown resolution accepted")
	}
	if n := len(Resolutions()); n != 18 {
		t.Errorf("len(Resolutions) = %d, want 18", n)
	}
}

func TestExpand(t *testing.T) {
	ts := time.Date(2026, 3, 1, 7, 5, 9, 0, time.UTC)
	got := Expand("/sd/{STATION}/{YYYY}{MM}{DD}/cam_{YY}{hh}{mm}{ss}_{CRC}.jpg", ts, "CC01")
	want := "/sd/CC01/20260301/cam_26070509_{CRC}.jpg"
	if got != want {
		t.Errorf("Expand = %q, want %q", got, want)
	}
}

func TestAutoPreset(t *testing.T) {
	p := Presets["auto"]
	if p.Setting != (Setting{"1920x1080", 3}) {
		t.Errorf("first setting = %v", p.Setting)
	}
	if len(p.Retries) != 18 || p.Retries[17] != (Setting{"1280x720", 5}) {
		t.Errorf("retries = %v", p.Retries)
	}
}

func TestConn_SendRetriesBadCRC(t *testing.T) {
	bad := overlayReply()
	bad[len(bad)-1] ^= 0x01
	port := serialporttest.NewFake(bad, overlayReply())
	c := &Conn{Port: port, Addr: 1, Tries: 2, Timeout: 20 * time.Millisecond}
	if err := c.Overlay(10, 10, 16, "x"); err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if c.Retries != 1 || port.WriteCount() != 2 {
		t.Errorf("retries = %d writes = %d", c.Retries, port.WriteCount())
	}
}

func TestConn_SendReadsDeclaredLength(t *testing.T) {
	body := []byte{1, 2, 3, 4, 5}
	port := serialporttest.NewFake(Frame(1, cmdGetPart, body))
	c := &Conn{Port: port, Addr: 1, Timeout: 20 * time.Millisecond}
	reply, err := c.Send(cmdGetPart, nil, 0, 1, c.Timeout)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !bytes.Equal(reply[6:len(reply)-2], body) {
		t.Errorf("payload = % X", reply)
	}
}

func TestConn_SendRejectsWrongEcho(t *testing.T) {
	port := serialporttest.NewFake(Frame(1, cmdReady, []byte{0, 0, 0}))
	c := &Conn{Port: port, Addr: 1, Timeout: 20 * time.Millisecond}
	_, err := c.Send(cmdGetPart, nil, 0, 1, c.Timeout)
	if !errors.Is(err, ErrBadHeader) {
		t.Errorf("err = %v, want ErrBadHeader", err)
	}
}

func TestConn_SnapshotOutOfMemory(t *testing.T) {
	port := serialporttest.NewFake(outOfMemory)
	c := &Conn{Port: port, Addr: 1, Tries: 2, Timeout: 20 * time.Millisecond, PacketSize: DefaultPacketSize}
	_, err := c.Snapshot(Setting{"1920x1080", 0})
	if !errors.Is(err, ErrMemory) || !errors.Is(err, ErrCamera) {
		t.Errorf("err = %v, want ErrMemory", err)
	}
	if port.WriteCount() != 1 {
		t.Errorf("writes = %d, want 1", port.WriteCount())
	}
}

func TestConn_LEDAutoWithoutReply(t *testing.T) {
	port := serialporttest.NewFake()
	c := &Conn{Port: port, Addr: 1, Tries: 1, Timeout: 10 * time.Millisecond}
	if err := c.LED(LEDAuto); err != nil {
		t.Errorf("LED auto: %v", err)
	}
	if err := c.LED(LEDOn); err == nil {
		t.Error("LED on without reply succeeded")
	}
	if err := c.LED("blink"); err == nil {
		t.Error("unknown mode accepted")
	}
}

type harness struct {
	cam   *Camera
	port  *serialporttest.Fake
	power *digital.Recorder
	root  string
	free  uint64
}

func newHarness(t *testing.T, cfg Config, replies ...[]byte) *harness {
	t.Helper()
	h := &harness{
		port:  serialporttest.NewFake(replies...),
		power: digital.NewRecorder("camera"),
		root:  t.TempDir(),
		free:  1 << 40,
	}
	cfg.Root = h.root
	if cfg.ImageFolder == "" {
		cfg.ImageFolder = filepath.Join(h.root, "img", "{YYYY}{MM}{DD}")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Millisecond
	}
	if cfg.Station == "" {
		cfg.Station = "CC01"
	}
	h.cam = New(cfg, h.port.Opener(), h.power, nil)
	h.cam.FreeSpace = func(string) (uint64, error) { return h.free, nil }
	h.cam.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }
	h.cam.Sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

func TestTakePicture_StoresAndCopies(t *testing.T) {
	img := []byte("\xff\xd8jpeg-bytes\xff\xd9")
	cfg := Config{FileName: "cam_{hh}{mm}_{CRC}.jpg"}
	h := newHarness(t, cfg, readyReply(), overlayReply(), delayReply(), snapshotReply(len(img)), partReply(img))
	h.cam.cfg.TxFolder = filepath.Join(h.root, "tx")

	pic, err := h.cam.TakePicture(context.Background(), Presets["low"])
	if err != nil {
		t.Fatalf("TakePicture: %v", err)
	}
	want := filepath.Join(h.root, "img", "20260301", fmt.Sprintf("cam_1230_%08x.jpg", crc32.ChecksumIEEE(img)))
	if pic.Path != want {
		t.Errorf("path = %s, want %s", pic.Path, want)
	}
	for _, p := range []string{pic.Path, pic.TxPath} {
		got, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if !bytes.Equal(got, img) {
			t.Errorf("%s = %q", p, got)
		}
	}
	if pic.Setting != (Setting{"480x270", 3}) || pic.Bytes != len(img) {
		t.Errorf("pic = %+v", pic)
	}
	if got := h.power.History(); !slices.Equal(got, []bool{true, false}) {
		t.Errorf("power = %v", got)
	}
	overlay := h.port.Writes[1]
	if !bytes.Contains(overlay, []byte(" CC01 03/01/2026 12:30:00 ")) {
		t.Errorf("overlay frame = %q", overlay)
	}
	if s := h.cam.Stats(); s.Pictures != 1 || s.Fails != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestTakePicture_FallsBackOnMemory(t *testing.T) {
	img := []byte{1, 2, 3, 4}
	cfg := Config{PacketSize: 2, DisableOverlay: true, LeavePowerOn: true}
	h := newHarness(t, cfg, readyReply(), delayReply(), outOfMemory, snapshotReply(4), partReply(img[:2]), partReply(img[2:]))
	p := Preset{Name: "t", Setting: Setting{"1920x1080", 3}, Retries: []Setting{{"1600x900", 0}}}

	pic, err := h.cam.TakePicture(context.Background(), p)
	if err != nil {
		t.Fatalf("TakePicture: %v", err)
	}
	if pic.Setting != (Setting{"1600x900", 0}) {
		t.Errorf("setting = %v", pic.Setting)
	}
	got, _ := os.ReadFile(pic.Path)
	if !bytes.Equal(got, img) {
		t.Errorf("image = % X", got)
	}
	if got := h.power.History(); !slices.Equal(got, []bool{true}) {
		t.Errorf("power = %v, want left on", got)
	}
}

func TestTakePicture_MemoryErrorSkipsPowerCycle(t *testing.T) {
	h := newHarness(t, Config{DisableOverlay: true}, readyReply(), delayReply(), outOfMemory)
	_, err := h.cam.TakePicture(context.Background(), Presets["hd_most"])
	if !errors.Is(err, ErrMemory) {
		t.Fatalf("err = %v, want ErrMemory", err)
	}
	if s := h.cam.Stats(); s.Repowers != 0 || s.Fails != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestTakePicture_NotCommunicating(t *testing.T) {
	h := newHarness(t, Config{PowerCycles: 2, ReadyWait: time.Millisecond})
	_, err := h.cam.TakePicture(context.Background(), Presets["low"])
	if !errors.Is(err, ErrCamera) {
		t.Fatalf("err = %v, want ErrCamera", err)
	}
	if got := h.power.History(); !slices.Equal(got, []bool{true, false, true, false}) {
		t.Errorf("power = %v", got)
	}
	if s := h.cam.Stats(); s.Repowers != 2 || s.Fails != 1 || s.Pictures != 0 {
		t.Errorf("stats = %+v", s)
	}
	entries, _ := os.ReadDir(filepath.Join(h.root, "img", "20260301"))
	if len(entries) != 0 {
		t.Errorf("left %d files behind", len(entries))
	}
}

func TestTakePicture_LowSpace(t *testing.T) {
	h := newHarness(t, Config{})
	h.free = 10 * mib
	_, err := h.cam.TakePicture(context.Background(), Presets["low"])
	if !errors.Is(err, ErrLowSpace) {
		t.Fatalf("err = %v, want ErrLowSpace", err)
	}
	if h.port.WriteCount() != 0 {
		t.Error("camera contacted despite low space")
	}

	// without a tx folder the card must keep the higher floor free
	h.free = 100 * mib
	if _, err := h.cam.TakePicture(context.Background(), Presets["low"]); !errors.Is(err, ErrLowSpace) {
		t.Errorf("err = %v, want ErrLowSpace", err)
	}
	if s := h.cam.Stats(); s.Fails != 2 {
		t.Errorf("fails = %d", s.Fails)
	}
}

func TestTakePicture_NoSD(t *testing.T) {
	h := newHarness(t, Config{})
	h.cam.cfg.Root = filepath.Join(h.root, "missing")
	_, err := h.cam.TakePicture(context.Background(), Presets["low"])
	if !errors.Is(err, ErrNoSD) {
		t.Fatalf("err = %v, want ErrNoSD", err)
	}

	h.cam.cfg.Root = h.root
	h.cam.cfg.RequireMount = true
	h.cam.Mounted = func(string) (bool, error) { return false, nil }
	if _, err := h.cam.TakePicture(context.Background(), Presets["low"]); !errors.Is(err, ErrNoSD) {
		t.Errorf("err = %v, want ErrNoSD", err)
	}
	if s := h.cam.Stats(); s.NoSD != 2 {
		t.Errorf("nosd = %d", s.NoSD)
	}
}
