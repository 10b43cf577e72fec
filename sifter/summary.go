package main

import (
	"bitbucket.org/Davydov/gosifter/estimate"
	"bitbucket.org/Davydov/gosifter/optimize"
)

// RunSummary is storing sifter run summary information.
type RunSummary struct {
	// Version stores sifter version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Settings are the effective settings.
	Settings Settings `json:"settings"`
	Family   string   `json:"family"`
	// NLeaves is the number of leaves, NEvidence the number of leaves
	// with evidence.
	NLeaves   int `json:"nLeaves,omitempty"`
	NEvidence int `json:"nEvidence,omitempty"`
	// EM is the expectation-maximization summary.
	EM *estimate.Summary `json:"em,omitempty"`
	// Parameters are the final parameter values.
	Parameters optimize.FloatParameters `json:"parameters,omitempty"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}
