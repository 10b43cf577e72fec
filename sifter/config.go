package main

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings are the numerical settings of a run.
type Settings struct {
	// Truncation is the maximum number of simultaneously active
	// functions.
	Truncation int `yaml:"truncation"`
	// Iterations is the maximum number of EM iterations.
	Iterations int     `yaml:"iterations"`
	StepSize   float64 `yaml:"step"`
	Cutoff     float64 `yaml:"cutoff"`
	// AlignLength normalizes branch lengths.
	AlignLength int `yaml:"alignlen"`
	// Prior is the single leaf prior, default is computed from the
	// number of functions.
	Prior   float64 `yaml:"prior"`
	Workers int     `yaml:"workers"`
}

// DefaultSettings returns settings used without a config file.
func DefaultSettings() Settings {
	return Settings{
		Truncation:  10,
		Iterations:  4000,
		StepSize:    0.01,
		Cutoff:      0.000115,
		AlignLength: 1,
	}
}

// ReadSettings reads YAML over the defaults.
func ReadSettings(r io.Reader) (Settings, error) {
	s := DefaultSettings()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return s, fmt.Errorf("config: %w", err)
	}
	return s, s.Check()
}

// LoadSettings reads a config file. Empty name returns the defaults.
func LoadSettings(fn string) (Settings, error) {
	if fn == "" {
		return DefaultSettings(), nil
	}
	f, err := os.Open(fn)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()
	return ReadSettings(f)
}

// Check validates the settings.
func (s Settings) Check() error {
	switch {
	case s.Truncation < 1:
		return fmt.Errorf("truncation should be positive, got %d", s.Truncation)
	case s.Iterations < 0:
		return fmt.Errorf("negative number of iterations: %d", s.Iterations)
	case s.StepSize <= 0:
		return fmt.Errorf("step size should be positive, got %v", s.StepSize)
	case s.Cutoff < 0:
		return fmt.Errorf("negative cutoff: %v", s.Cutoff)
	case s.Prior < 0 || s.Prior > 1:
		return fmt.Errorf("prior should be in [0, 1], got %v", s.Prior)
	}
	return nil
}

// Overrides are command-line values; negative values are unset.
type Overrides struct {
	Truncation  int
	Iterations  int
	StepSize    float64
	Cutoff      float64
	AlignLength int
	Prior       float64
	Workers     int
}

// Apply returns settings with the set overrides.
func (o Overrides) Apply(s Settings) (Settings, error) {
	if o.Truncation >= 0 {
		s.Truncation = o.Truncation
	}
	if o.Iterations >= 0 {
		s.Iterations = o.Iterations
	}
	if o.StepSize >= 0 {
		s.StepSize = o.StepSize
	}
	if o.Cutoff >= 0 {
		s.Cutoff = o.Cutoff
	}
	if o.AlignLength >= 0 {
		s.AlignLength = o.AlignLength
	}
	if o.Prior >= 0 {
		s.Prior = o.Prior
	}
	if o.Workers >= 0 {
		s.Workers = o.Workers
	}
	return s, s.Check()
}
