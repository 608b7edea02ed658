// Package gpvar holds the station's general-purpose variables: a fixed
// bank of labelled scalar slots that operators edit and programs read.
// The bank is persisted as YAML so values survive a reboot.
package gpvar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Slots is the size of the variable bank.
const Slots = 32

// Well-known labels used by the sampler program.
const (
	SamplingOn     = "sampling_on"
	SamplePacing   = "sample_pacing"
	BottleNum      = "bottle_num"
	AliquotVolML   = "aliquot_vol_mL"
	BottleSizeL    = "bottle_size_L"
	CarouselOrComp = "carousel_or_comp"
	EventNum       = "event_num"
	PipeDiameterIn = "pipe_diameter_in"
)

// ProgramDefaults seeds the labels the sampler program reads. Values are
// a 1000 cf flow-paced composite with 250 mL aliquots into a 20 L bottle.
var ProgramDefaults = []Var{
	{Label: SamplingOn, Value: 0},
	{Label: SamplePacing, Value: 1000},
	{Label: BottleNum, Value: 1},
	{Label: AliquotVolML, Value: 250},
	{Label: BottleSizeL, Value: 20},
	{Label: CarouselOrComp, Value: 1},
	{Label: EventNum, Value: 0},
}

// WithDefaults returns seed followed by any ProgramDefaults it lacks.
func WithDefaults(seed []Var) []Var {
	out := append([]Var(nil), seed...)
	for _, d := range ProgramDefaults {
		found := false
		for _, v := range seed {
			if strings.EqualFold(v.Label, d.Label) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, d)
		}
	}
	return out
}

var (
	// ErrUnknownLabel is returned when no slot carries the requested label.
	ErrUnknownLabel = errors.New("gpvar: unknown label")
	// ErrFull is returned when defining a label with no free slot left.
	ErrFull = errors.New("gpvar: all slots in use")
)

// Var is one slot.
type Var struct {
	Label string  `yaml:"label"`
	Value float64 `yaml:"value"`
}

// Store is a concurrency-safe bank of Slots variables.
type Store struct {
	mu   sync.Mutex
	path string
	vars []Var
}

// Open returns a Store backed by path. If the file exists its slots are
// loaded; seed labels absent from the file are added with their seed value.
// An empty path keeps the bank in memory only.
func Open(path string, seed []Var) (*Store, error) {
	s := &Store{path: path}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &s.vars); err != nil {
				return nil, fmt.Errorf("gpvar: parse %q: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("gpvar: read %q: %w", path, err)
		}
	}
	if len(s.vars) > Slots {
		return nil, fmt.Errorf("gpvar: %d slots in %q exceeds %d", len(s.vars), path, Slots)
	}
	for _, v := range seed {
		if s.index(v.Label) >= 0 {
			continue
		}
		if len(s.vars) == Slots {
			return nil, fmt.Errorf("gpvar: seed %q: %w", v.Label, ErrFull)
		}
		s.vars = append(s.vars, v)
	}
	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the value of label. Labels match case-insensitively.
func (s *Store) Get(label string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(label)
	if i < 0 {
		return 0, fmt.Errorf("%w %q", ErrUnknownLabel, label)
	}
	return s.vars[i].Value, nil
}

// Set updates label and persists the bank.
func (s *Store) Set(label string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(label)
	if i < 0 {
		return fmt.Errorf("%w %q", ErrUnknownLabel, label)
	}
	s.vars[i].Value = v
	return s.save()
}

// List returns a copy of the defined slots in slot order.
func (s *Store) List() []Var {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Var, len(s.vars))
	copy(out, s.vars)
	return out
}

func (s *Store) index(label string) int {
	for i, v := range s.vars {
		if strings.EqualFold(v.Label, label) {
			return i
		}
	}
	return -1
}

// save writes the bank atomically: temp file in the same directory, then
// rename. Caller holds mu.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.vars)
	if err != nil {
		return fmt.Errorf("gpvar: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".gpvar-*")
	if err != nil {
		return fmt.Errorf("gpvar: save: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("gpvar: save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("gpvar: save: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("gpvar: save: %w", err)
	}
	return nil
}
