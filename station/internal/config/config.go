package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hydrostack/hydrostack/pkg/auth"
	"github.com/hydrostack/hydrostack/pkg/rating"
	"github.com/hydrostack/hydrostack/station/internal/camera"
	"github.com/hydrostack/hydrostack/station/internal/flowmeter"
	"github.com/hydrostack/hydrostack/station/internal/gpvar"
	"github.com/hydrostack/hydrostack/station/internal/measure"
	"github.com/hydrostack/hydrostack/station/internal/pacing"
	"github.com/hydrostack/hydrostack/station/internal/sampler"
	"github.com/hydrostack/hydrostack/station/internal/uplink"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultDataDir       = "/var/lib/hydrostack"
	DefaultDatalog       = "datalog.db"
	DefaultVarsFile      = "gpvars.yaml"
	DefaultHTTPAddr      = ":9100"
	DefaultResolution    = time.Second
	DefaultStatusEvery   = time.Minute
	DefaultPictureEvery  = time.Hour
	DefaultPicturePreset = "auto"
)

// Config is the station configuration. Fields map 1:1 to station.yaml.
type Config struct {
	Station StationConfig `yaml:"station"`

	// Vars seeds the GP variable bank. Values already persisted win.
	Vars []gpvar.Var `yaml:"gp_vars"`

	// Tables are rating tables referenced by name from measurements.
	Tables map[string]TableConfig `yaml:"rating_tables"`

	Pacing    PacingConfig     `yaml:"pacing"`
	Sampler   SamplerConfig    `yaml:"sampler"`
	FlowMeter *FlowMeterConfig `yaml:"av9000"`
	Camera    *CameraConfig    `yaml:"camera"`

	Measurements []measure.Config `yaml:"measurements"`

	// Uplink is disabled when absent.
	Uplink *uplink.Config `yaml:"uplink"`
}

// StationConfig holds identity and local storage settings.
type StationConfig struct {
	// Name identifies the station in topics, filenames and the server.
	Name string `yaml:"name"`

	// DataDir is the base for relative paths below.
	DataDir string `yaml:"data_dir"`

	Datalog  string `yaml:"datalog"`
	VarsFile string `yaml:"gp_vars_file"`

	// HTTPAddr serves /metrics and the control API; empty disables both.
	HTTPAddr string `yaml:"http_addr"`

	// Auth guards the control API. /metrics stays open.
	Auth auth.Config `yaml:"auth"`

	// Resolution is how often the measurement scheduler wakes.
	Resolution time.Duration `yaml:"resolution"`

	// StatusEvery is the period of retained status publishes.
	StatusEvery time.Duration `yaml:"status_every"`
}

// TableConfig is one rating table. Exactly one of File or Points is set.
type TableConfig struct {
	// File is a two-column stage,flow CSV.
	File   string         `yaml:"file"`
	Points []rating.Point `yaml:"points"`
}

// PacingConfig selects the sampler program.
type PacingConfig struct {
	// Mode is one of: flow | time | none.
	Mode pacing.Mode `yaml:"mode"`

	// Units is the flow unit feeding a flow-paced program: cfs | gpm | m3s.
	Units pacing.Units `yaml:"units"`
}

// SamplerConfig selects the device the pacing engine triggers.
type SamplerConfig struct {
	// Type is one of: sd900 | pulse | none.
	Type string `yaml:"type"`

	SD900 sampler.SD900Config `yaml:"sd900"`

	// PulseLine is the GPIO name used when Type == "pulse".
	PulseLine     string        `yaml:"pulse_line"`
	PulseDuration time.Duration `yaml:"pulse_duration"`
}

// FlowMeterConfig configures an AV9000 set up at start and on every
// sampling switch.
type FlowMeterConfig struct {
	flowmeter.AV9000Config `yaml:",inline"`

	// PowerLine names the GPIO switching the meter; empty means always on.
	PowerLine string `yaml:"power_line"`
}

// CameraConfig configures periodic pictures.
type CameraConfig struct {
	camera.Config `yaml:",inline"`

	PowerLine string `yaml:"power_line"`

	// Every is the picture period; SamplingEvery replaces it while sampling.
	Every         time.Duration `yaml:"every"`
	SamplingEvery time.Duration `yaml:"sampling_every"`

	// Preset names an entry of camera.Presets.
	Preset string `yaml:"preset"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.resolve(filepath.Dir(path))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Station: StationConfig{
			DataDir:     DefaultDataDir,
			Datalog:     DefaultDatalog,
			VarsFile:    DefaultVarsFile,
			HTTPAddr:    DefaultHTTPAddr,
			Resolution:  DefaultResolution,
			StatusEvery: DefaultStatusEvery,
		},
		Pacing:  PacingConfig{Mode: pacing.ModeNone},
		Sampler: SamplerConfig{Type: "none"},
	}
}

// resolve fills defaults that depend on other fields and anchors relative
// paths. Table files resolve against the config file's directory.
func (c *Config) resolve(base string) {
	c.Station.Datalog = under(c.Station.DataDir, c.Station.Datalog)
	c.Station.VarsFile = under(c.Station.DataDir, c.Station.VarsFile)
	for name, t := range c.Tables {
		if t.File != "" {
			t.File = under(base, t.File)
			c.Tables[name] = t
		}
	}
	if c.Camera != nil {
		if c.Camera.Every == 0 {
			c.Camera.Every = DefaultPictureEvery
		}
		if c.Camera.Preset == "" {
			c.Camera.Preset = DefaultPicturePreset
		}
		if c.Camera.Station == "" {
			c.Camera.Station = c.Station.Name
		}
	}
	if c.Uplink != nil {
		c.Uplink.Station = c.Station.Name
	}
}

func under(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Station.Name == "" {
		return fmt.Errorf("station.name is required")
	}
	if cfg.Station.Resolution <= 0 {
		return fmt.Errorf("station.resolution must be positive")
	}
	if cfg.Station.StatusEvery <= 0 {
		return fmt.Errorf("station.status_every must be positive")
	}

	switch cfg.Station.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("station.auth.mode %q unknown: want apikey|none", cfg.Station.Auth.Mode)
	}

	switch cfg.Pacing.Mode {
	case pacing.ModeFlow:
		if !cfg.Pacing.Units.Valid() {
			return fmt.Errorf("pacing.units %q unknown: want cfs|gpm|m3s", cfg.Pacing.Units)
		}
	case pacing.ModeTime, pacing.ModeNone:
	default:
		return fmt.Errorf("pacing.mode %q unknown: want flow|time|none", cfg.Pacing.Mode)
	}

	switch cfg.Sampler.Type {
	case "sd900", "none":
	case "pulse":
		if cfg.Sampler.PulseLine == "" {
			return fmt.Errorf("sampler.pulse_line is required for a pulse sampler")
		}
	default:
		return fmt.Errorf("sampler.type %q unknown: want sd900|pulse|none", cfg.Sampler.Type)
	}

	for name, t := range cfg.Tables {
		if (t.File == "") == (len(t.Points) == 0) {
			return fmt.Errorf("rating_tables %q: set exactly one of file or points", name)
		}
	}

	seen := make(map[string]bool)
	for i, m := range cfg.Measurements {
		if m.Label == "" {
			return fmt.Errorf("measurements[%d]: label is required", i)
		}
		if seen[m.Label] {
			return fmt.Errorf("measurements[%d]: duplicate label %q", i, m.Label)
		}
		if m.Source.Type == "ref" && !seen[m.Source.Ref] {
			return fmt.Errorf("measurements[%d] %q: ref %q must name an earlier measurement", i, m.Label, m.Source.Ref)
		}
		for j, tc := range m.Transforms {
			if tc.Type == "rating" {
				if _, ok := cfg.Tables[tc.Table]; !ok {
					return fmt.Errorf("measurements[%d] %q: transforms[%d]: unknown rating table %q", i, m.Label, j, tc.Table)
				}
			}
		}
		seen[m.Label] = true
		if m.PacingLabel != "" {
			seen[m.PacingLabel] = true
		}
	}

	if c := cfg.Camera; c != nil {
		if _, ok := camera.Presets[c.Preset]; !ok {
			return fmt.Errorf("camera.preset %q unknown", c.Preset)
		}
		if c.Every <= 0 || c.SamplingEvery < 0 {
			return fmt.Errorf("camera.every must be positive")
		}
	}

	if u := cfg.Uplink; u != nil {
		if err := u.Broker.Validate(); err != nil {
			return fmt.Errorf("uplink.broker: %w", err)
		}
	}
	return nil
}

// RatingTables builds every configured table.
func (c *Config) RatingTables() (map[string]*rating.Table, error) {
	out := make(map[string]*rating.Table, len(c.Tables))
	for name, tc := range c.Tables {
		t, err := tc.build()
		if err != nil {
			return nil, fmt.Errorf("config: rating table %q: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

func (tc TableConfig) build() (*rating.Table, error) {
	if tc.File == "" {
		return rating.NewTable(tc.Points)
	}
	f, err := os.Open(tc.File)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return rating.LoadCSV(f)
}
