package fmodel

import (
	"fmt"
	"math"
)

const (
	// LogZero is returned by LogSafe instead of log(0).
	LogZero = -1e7
	// ProbEpsilon is the smallest transition probability.
	ProbEpsilon = 1e-18
)

// DimensionError is returned when a matrix or a vector size disagrees
// with the number of functions or states.
type DimensionError struct {
	What string
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch, got %d, expected %d", e.What, e.Got, e.Want)
}

// LinearAlgebraError is returned when eigendecomposition or matrix
// inversion fails.
type LinearAlgebraError struct {
	Op  string
	Err error
}

func (e *LinearAlgebraError) Error() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *LinearAlgebraError) Unwrap() error {
	return e.Err
}

// LogSafe returns log(x), or LogZero for non-positive x.
func LogSafe(x float64) float64 {
	if x <= 0 {
		log.Debugf("Underflow in log(%v)", x)
		return LogZero
	}
	return math.Log(x)
}
