package fmodel

import (
	"fmt"
	"sort"
)

// Names of the two branch scales.
const (
	Speciation  = "species"
	Duplication = "duplication"
)

// Default values used by the generate mode.
const (
	DefaultSpeciation  = 0.03
	DefaultDuplication = 0.05
	DefaultSelfRate    = 0.5
	DefaultConversion  = 1.0
	DefaultAlpha       = 1.0
	DefaultScale       = 20.0
)

// Params stores rate parameters of the model.
type Params struct {
	// Functions are integer GO identifiers in matrix order.
	Functions []int
	// Theta is the conversion matrix; Theta[i][i] is the loss rate
	// of function i.
	Theta [][]float64
	// Alpha are per-function gain rates.
	Alpha []float64
	// Scales are branch time scales by name.
	Scales map[string]float64
	// Scale is the value stored in the rates file header.
	Scale float64
}

// NewDefaultParams creates generate mode parameters for the given
// functions.
func NewDefaultParams(functions []int) *Params {
	l := len(functions)
	par := &Params{
		Functions: append([]int(nil), functions...),
		Theta:     make([][]float64, l),
		Alpha:     make([]float64, l),
		Scales: map[string]float64{
			Speciation:  DefaultSpeciation,
			Duplication: DefaultDuplication,
		},
		Scale: DefaultScale,
	}
	for i := range par.Theta {
		par.Theta[i] = make([]float64, l)
		for j := range par.Theta[i] {
			if i == j {
				par.Theta[i][j] = DefaultSelfRate
			} else {
				par.Theta[i][j] = DefaultConversion
			}
		}
		par.Alpha[i] = DefaultAlpha
	}
	return par
}

// L returns the number of functions.
func (par *Params) L() int {
	return len(par.Theta)
}

// Check verifies the dimensions and the presence of both scales.
func (par *Params) Check() error {
	l := len(par.Theta)
	if l == 0 {
		return &DimensionError{"theta", 0, 1}
	}
	for _, row := range par.Theta {
		if len(row) != l {
			return &DimensionError{"theta row", len(row), l}
		}
	}
	if len(par.Alpha) != l {
		return &DimensionError{"alpha", len(par.Alpha), l}
	}
	if par.Functions != nil && len(par.Functions) != l {
		return &DimensionError{"function names", len(par.Functions), l}
	}
	for _, name := range []string{Speciation, Duplication} {
		if _, ok := par.Scales[name]; !ok {
			return fmt.Errorf("scale parameter %s is missing", name)
		}
	}
	return nil
}

// ScaleNames returns scale names in sorted order.
func (par *Params) ScaleNames() []string {
	names := make([]string, 0, len(par.Scales))
	for name := range par.Scales {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Copy creates a deep copy.
func (par *Params) Copy() *Params {
	n := &Params{
		Functions: append([]int(nil), par.Functions...),
		Theta:     make([][]float64, len(par.Theta)),
		Alpha:     append([]float64(nil), par.Alpha...),
		Scales:    make(map[string]float64, len(par.Scales)),
		Scale:     par.Scale,
	}
	for i, row := range par.Theta {
		n.Theta[i] = append([]float64(nil), row...)
	}
	for k, v := range par.Scales {
		n.Scales[k] = v
	}
	return n
}

// SingleLeafPrior returns the prior probability of a single function
// being present given l candidate functions.
func SingleLeafPrior(l int) float64 {
	r := 1.0
	for i := 2; i <= l; i++ {
		r += 1 / (2.2605 * float64(i*i-i))
	}
	return 1 / (r * float64(l))
}
