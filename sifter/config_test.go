package main

import (
	"strings"
	"testing"

	"github.com/op/go-logging"
)

func init() {
	logging.SetLevel(logging.WARNING, "sifter")
}

func unset() Overrides {
	return Overrides{-1, -1, -1, -1, -1, -1, -1}
}

func TestDefaults(tst *testing.T) {
	s, err := unset().Apply(DefaultSettings())
	if err != nil {
		tst.Fatal("Error applying overrides:", err)
	}
	if s != DefaultSettings() {
		tst.Error("Unset overrides changed settings:", s)
	}
	if s.Truncation != 10 || s.Iterations != 4000 || s.StepSize != 0.01 || s.Cutoff != 0.000115 {
		tst.Error("Wrong defaults:", s)
	}
}

func TestYAMLOverridesDefaults(tst *testing.T) {
	s, err := ReadSettings(strings.NewReader("truncation: 3\nstep: 0.05\nprior: 0.2\n"))
	if err != nil {
		tst.Fatal("Error reading settings:", err)
	}
	if s.Truncation != 3 || s.StepSize != 0.05 || s.Prior != 0.2 {
		tst.Error("YAML values were not applied:", s)
	}
	if s.Iterations != 4000 || s.Cutoff != 0.000115 {
		tst.Error("Defaults were not kept:", s)
	}
}

func TestFlagsOverrideYAML(tst *testing.T) {
	s, err := ReadSettings(strings.NewReader("truncation: 3\niterations: 20\n"))
	if err != nil {
		tst.Fatal("Error reading settings:", err)
	}
	o := unset()
	o.Truncation = 5
	o.Cutoff = 0
	s, err = o.Apply(s)
	if err != nil {
		tst.Fatal("Error applying overrides:", err)
	}
	if s.Truncation != 5 || s.Cutoff != 0 {
		tst.Error("Flags were not applied:", s)
	}
	if s.Iterations != 20 {
		tst.Error("YAML value was lost:", s)
	}
}

func TestEmptyYAML(tst *testing.T) {
	s, err := ReadSettings(strings.NewReader(""))
	if err != nil {
		tst.Fatal("Error reading empty settings:", err)
	}
	if s != DefaultSettings() {
		tst.Error("Empty config should give defaults, got", s)
	}
}

func TestBadSettings(tst *testing.T) {
	for _, conf := range []string{
		"truncation: 0\n",
		"step: -1\n",
		"prior: 2\n",
		"unknown: 1\n",
		"truncation: [1\n",
	} {
		if _, err := ReadSettings(strings.NewReader(conf)); err == nil {
			tst.Errorf("Expected error for %q", conf)
		}
	}
}
