package camera

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hydrostack/hydrostack/station/internal/digital"
	"github.com/hydrostack/hydrostack/station/internal/serialport"
)

var (
	// ErrNoSD is returned when the storage root is missing or not mounted.
	ErrNoSD = errors.New("camera: sd card not mounted")
	// ErrLowSpace is returned when free space is under a configured floor.
	ErrLowSpace = errors.New("camera: low on space")
)

const (
	DefaultPacketSize = 8192
	mib               = 1 << 20
)

// Setting is one resolution and compression pair. Compression runs from 0
// (most detail) to 5.
type Setting struct {
	Resolution  string `yaml:"resolution"`
	Compression int    `yaml:"compression"`
}

func (s Setting) String() string { return fmt.Sprintf("%s/c%d", s.Resolution, s.Compression) }

// Preset is a first-choice setting plus fallbacks tried when the camera runs
// out of memory or the frame is larger than the configured maximum.
type Preset struct {
	Name    string
	Setting Setting
	Retries []Setting
}

// Presets are the scheduled picture tasks.
var Presets = map[string]Preset{
	"auto":      autoPreset(),
	"hd_most":   {Name: "hd_most", Setting: Setting{"1280x720", 0}},
	"hd_medium": {Name: "hd_medium", Setting: Setting{"1280x720", 2}},
	"hd_least":  {Name: "hd_least", Setting: Setting{"1280x720", 5}},
	"low":       {Name: "low", Setting: Setting{"480x270", 3}},
}

func autoPreset() Preset {
	p := Preset{Name: "auto", Setting: Setting{"1920x1080", 3}}
	for _, res := range []string{"1920x1080", "1600x900", "1280x720"} {
		for c := 0; c <= 5; c++ {
			p.Retries = append(p.Retries, Setting{res, c})
		}
	}
	return p
}

// Config holds the camera settings. Zero fields take defaults.
type Config struct {
	// Port defaults to 115200 8N1.
	Port    serialport.Config `yaml:"port"`
	Address byte              `yaml:"address"`
	Station string            `yaml:"station"`

	// Root is the storage mount; defaults to /sd.
	Root         string `yaml:"root"`
	RequireMount bool   `yaml:"require_mount"`
	// ImageFolder and FileName are path templates. Recognised fields are
	// {YYYY} {YY} {MM} {DD} {hh} {mm} {ss} {STATION}; {CRC} in the file
	// name is replaced by the image checksum once it is written.
	ImageFolder string `yaml:"image_folder"`
	FileName    string `yaml:"file_name"`
	// TxFolder receives a copy of every picture. Empty disables the copy.
	TxFolder string `yaml:"tx_folder"`

	LeavePowerOn bool    `yaml:"leave_power_on"`
	LED          LEDMode `yaml:"led"`

	DisableOverlay bool   `yaml:"disable_overlay"`
	OverlayX       uint16 `yaml:"overlay_x"`
	OverlayY       uint16 `yaml:"overlay_y"`
	OverlayFont    byte   `yaml:"overlay_font"`
	OverlayText    string `yaml:"overlay_text"`

	Tries          int           `yaml:"tries"`
	PowerCycles    int           `yaml:"power_cycles"`
	PacketSize     int           `yaml:"packet_size"`
	Timeout        time.Duration `yaml:"timeout"`
	Warmup         time.Duration `yaml:"warmup"`
	ReadyWait      time.Duration `yaml:"ready_wait"`
	MaxPictureSize int           `yaml:"max_picture_size"`
	// MinFreeMB stops capture; MinTxFreeMB stops archiving on the card when
	// pictures are also queued for transmission.
	MinFreeMB   int `yaml:"min_free_mb"`
	MinTxFreeMB int `yaml:"min_tx_free_mb"`
}

func (c Config) withDefaults() Config {
	if c.Port.Baud == 0 {
		c.Port.Baud = 115200
	}
	if c.Address == 0 {
		c.Address = 1
	}
	if c.Root == "" {
		c.Root = "/sd"
	}
	if c.ImageFolder == "" {
		c.ImageFolder = filepath.Join(c.Root, "hydrostack", "camera", "{YYYY}{MM}{DD}")
	}
	if c.FileName == "" {
		c.FileName = "camera_{YY}{MM}{DD}{hh}{mm}{ss}.jpg"
	}
	if c.OverlayX == 0 {
		c.OverlayX = 10
	}
	if c.OverlayY == 0 {
		c.OverlayY = 10
	}
	if c.OverlayFont == 0 {
		c.OverlayFont = 16
	}
	if c.OverlayText == "" {
		c.OverlayText = " {STATION} {MM}/{DD}/{YYYY} {hh}:{mm}:{ss} "
	}
	if c.Tries == 0 {
		c.Tries = 2
	}
	if c.PowerCycles == 0 {
		c.PowerCycles = 3
	}
	if c.PacketSize == 0 {
		c.PacketSize = DefaultPacketSize
	}
	if c.Timeout == 0 {
		c.Timeout = 8 * time.Second
	}
	if c.Warmup == 0 {
		c.Warmup = 3500 * time.Millisecond
	}
	if c.ReadyWait == 0 {
		c.ReadyWait = 10 * time.Second
	}
	if c.MaxPictureSize == 0 {
		c.MaxPictureSize = 450000
	}
	if c.MinFreeMB == 0 {
		c.MinFreeMB = 64
	}
	if c.MinTxFreeMB == 0 {
		c.MinTxFreeMB = 256
	}
	return c
}

// Stats are running totals since start.
type Stats struct {
	Pictures int
	Fails    int
	Retries  int
	Repowers int
	NoSD     int
}

// Picture describes a stored image.
type Picture struct {
	Path    string
	TxPath  string
	Bytes   int
	CRC     uint32
	Setting Setting
}

// Camera takes pictures one at a time.
type Camera struct {
	cfg   Config
	open  serialport.Opener
	power digital.Line
	log   *slog.Logger

	mu    sync.Mutex
	on    bool
	stats Stats

	// FreeSpace returns the bytes available at path. Defaults to statfs.
	FreeSpace func(path string) (uint64, error)
	// Mounted reports whether path is a mount point.
	Mounted func(path string) (bool, error)
	Now     func() time.Time
	Sleep   func(ctx context.Context, d time.Duration) error
}

// New returns a camera. power may be nil when the camera is always on.
func New(cfg Config, open serialport.Opener, power digital.Line, log *slog.Logger) *Camera {
	if open == nil {
		open = serialport.Open
	}
	if log == nil {
		log = slog.Default()
	}
	return &Camera{
		cfg:       cfg.withDefaults(),
		open:      open,
		power:     power,
		log:       log.With("component", "camera"),
		on:        power == nil,
		FreeSpace: freeSpace,
		Mounted:   isMount,
		Now:       time.Now,
		Sleep:     sleep,
	}
}

// Stats returns a copy of the running totals.
func (c *Camera) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// TakePicture captures one image with preset p and stores it.
func (c *Camera) TakePicture(ctx context.Context, p Preset) (Picture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pic, err := c.takePicture(ctx, p)
	if err != nil {
		c.stats.Fails++
		c.log.Error("take picture", "preset", p.Name, "err", err)
		return pic, err
	}
	c.log.Info("picture stored", "path", pic.Path, "bytes", pic.Bytes, "setting", pic.Setting.String())
	return pic, nil
}

func (c *Camera) takePicture(ctx context.Context, p Preset) (Picture, error) {
	if err := c.checkStorage(); err != nil {
		return Picture{}, err
	}
	free, err := c.FreeSpace(c.cfg.Root)
	if err != nil {
		return Picture{}, fmt.Errorf("camera: free space: %w", err)
	}
	if free < uint64(c.cfg.MinFreeMB)*mib {
		return Picture{}, fmt.Errorf("%w: %d MiB free", ErrLowSpace, free/mib)
	}
	if c.cfg.TxFolder == "" && free < uint64(c.cfg.MinTxFreeMB)*mib {
		return Picture{}, fmt.Errorf("%w: %d MiB free", ErrLowSpace, free/mib)
	}

	now := c.Now()
	folder := Expand(c.cfg.ImageFolder, now, c.cfg.Station)
	name := Expand(c.cfg.FileName, now, c.cfg.Station)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return Picture{}, fmt.Errorf("camera: mkdir: %w", err)
	}

	port, err := c.open(c.cfg.Port)
	if err != nil {
		return Picture{}, err
	}
	defer port.Close()
	conn := &Conn{Port: port, Addr: c.cfg.Address, Tries: c.cfg.Tries, Timeout: c.cfg.Timeout, PacketSize: c.cfg.PacketSize}
	defer func() { c.stats.Retries += conn.Retries }()

	path := filepath.Join(folder, name)
	var (
		pic  Picture
		last error
		ok   bool
	)
	for cycle := 0; cycle < c.cfg.PowerCycles; cycle++ {
		if err := c.powerOn(ctx); err != nil {
			return Picture{}, err
		}
		pic, last = c.capture(ctx, conn, path, now, p)
		ok = last == nil
		if !c.cfg.LeavePowerOn || !ok {
			c.powerOff()
		}
		if ok || errors.Is(last, ErrMemory) || ctx.Err() != nil {
			break
		}
		c.stats.Repowers++
		c.log.Warn("camera retrying with power cycle", "cycle", cycle+1, "err", last)
	}
	if !ok {
		os.Remove(path)
		return Picture{}, last
	}

	if strings.Contains(path, "{CRC}") {
		renamed := strings.ReplaceAll(path, "{CRC}", fmt.Sprintf("%08x", pic.CRC))
		if err := os.Rename(path, renamed); err != nil {
			return Picture{}, fmt.Errorf("camera: rename: %w", err)
		}
		pic.Path = renamed
	}
	c.stats.Pictures++

	if c.cfg.TxFolder == "" {
		return pic, nil
	}
	tx := Expand(c.cfg.TxFolder, now, c.cfg.Station)
	if err := os.MkdirAll(tx, 0o755); err != nil {
		return pic, fmt.Errorf("camera: mkdir tx: %w", err)
	}
	pic.TxPath = filepath.Join(tx, filepath.Base(pic.Path))
	if err := copyFile(pic.Path, pic.TxPath); err != nil {
		return pic, err
	}
	if free < uint64(c.cfg.MinTxFreeMB)*mib {
		os.Remove(pic.Path)
		pic.Path = ""
		return pic, fmt.Errorf("%w: %d MiB free, picture kept for transmission only", ErrLowSpace, free/mib)
	}
	return pic, nil
}

// capture runs one session against a powered camera and writes the image.
func (c *Camera) capture(ctx context.Context, conn *Conn, path string, now time.Time, p Preset) (Picture, error) {
	pic := Picture{Path: path}
	if err := conn.Ready(ctx, c.cfg.ReadyWait); err != nil {
		return pic, err
	}
	if c.cfg.LED != "" {
		if err := conn.LED(c.cfg.LED); err != nil {
			c.log.Warn("camera led", "err", err)
		}
	}
	if !c.cfg.DisableOverlay {
		text := Expand(c.cfg.OverlayText, now, c.cfg.Station)
		if err := conn.Overlay(c.cfg.OverlayX, c.cfg.OverlayY, c.cfg.OverlayFont, text); err != nil {
			c.log.Warn("camera overlay", "err", err)
		}
	}
	if err := conn.AdjustDelay(); err != nil {
		c.log.Warn("camera delay", "err", err)
	}

	setting := p.Setting
	size, err := conn.Snapshot(setting)
	if len(p.Retries) > 0 && (errors.Is(err, ErrMemory) || (err == nil && size > c.cfg.MaxPictureSize)) {
		for _, s := range p.Retries {
			c.log.Info("camera retrying snapshot", "setting", s.String(), "size", size, "err", err)
			setting = s
			size, err = conn.Snapshot(s)
			if err == nil && size <= c.cfg.MaxPictureSize {
				break
			}
			if err != nil && !errors.Is(err, ErrMemory) {
				break
			}
		}
	}
	if err != nil {
		return pic, err
	}
	if size <= 0 {
		return pic, fmt.Errorf("%w: empty snapshot", ErrCamera)
	}

	f, err := os.Create(path)
	if err != nil {
		return pic, fmt.Errorf("camera: create: %w", err)
	}
	h := crc32.NewIEEE()
	n, err := conn.Download(ctx, io.MultiWriter(f, h), size)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("camera: close: %w", cerr)
	}
	if err != nil {
		return pic, err
	}
	pic.Bytes = n
	pic.CRC = h.Sum32()
	pic.Setting = setting
	return pic, nil
}

func (c *Camera) checkStorage() error {
	if _, err := os.Stat(c.cfg.Root); err != nil {
		c.stats.NoSD++
		return fmt.Errorf("%w: %s", ErrNoSD, c.cfg.Root)
	}
	if !c.cfg.RequireMount {
		return nil
	}
	mounted, err := c.Mounted(c.cfg.Root)
	if err != nil || !mounted {
		c.stats.NoSD++
		return fmt.Errorf("%w: %s", ErrNoSD, c.cfg.Root)
	}
	return nil
}

func (c *Camera) powerOn(ctx context.Context) error {
	if c.on {
		return nil
	}
	if err := c.power.Out(true); err != nil {
		return fmt.Errorf("camera: power on: %w", err)
	}
	c.on = true
	return c.Sleep(ctx, c.cfg.Warmup)
}

func (c *Camera) powerOff() {
	if c.power == nil {
		return
	}
	if err := c.power.Out(false); err != nil {
		c.log.Warn("camera power off", "err", err)
	}
	c.on = false
}

// Expand fills a path or overlay template from t and station.
func Expand(tmpl string, t time.Time, station string) string {
	return strings.NewReplacer(
		"{YYYY}", t.Format("2006"),
		"{YY}", t.Format("06"),
		"{MM}", t.Format("01"),
		"{DD}", t.Format("02"),
		"{hh}", t.Format("15"),
		"{mm}", t.Format("04"),
		"{ss}", t.Format("05"),
		"{STATION}", station,
	).Replace(tmpl)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("camera: copy: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("camera: copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("camera: copy: %w", err)
	}
	return out.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
