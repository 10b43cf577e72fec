package fmodel

import (
	"errors"
	"math"

	"github.com/gonum/matrix"
	"github.com/gonum/matrix/mat64"
)

// imagTol is the largest imaginary eigenvalue part treated as zero.
const imagTol = 1e-10

// EMatrix stores Q-matrix and its eigendecomposition to quickly
// compute e^Qt.
type EMatrix struct {
	// Q is the generator matrix.
	Q *mat64.Dense
	v  *mat64.Dense
	d  []float64
	iv *mat64.Dense
	// complex spectrum, e^Qt is computed without decomposition
	complex bool
}

// NewEMatrix creates a new EMatrix.
func NewEMatrix(Q *mat64.Dense) *EMatrix {
	return &EMatrix{Q: Q}
}

// Set sets Q-matrix and drops the decomposition.
func (m *EMatrix) Set(Q *mat64.Dense) {
	m.Q = Q
	m.v = nil
	m.d = nil
	m.iv = nil
	m.complex = false
}

// Eigen performs eigendecomposition.
func (m *EMatrix) Eigen() (err error) {
	if m.v != nil || m.complex {
		return nil
	}
	rows, cols := m.Q.Dims()
	if rows != cols {
		return &DimensionError{"Q columns", cols, rows}
	}

	var decomp mat64.Eigen
	if ok := decomp.Factorize(m.Q, false, true); !ok {
		return &LinearAlgebraError{Op: "eigendecomposition"}
	}
	vals := decomp.Values(nil)
	d := make([]float64, len(vals))
	for i, v := range vals {
		if math.Abs(imag(v)) > imagTol {
			log.Warningf("Complex eigenvalue %v, falling back to Pade approximation", v)
			m.complex = true
			return nil
		}
		d[i] = real(v)
	}

	v := decomp.Vectors()
	iv := mat64.NewDense(rows, cols, nil)
	err = iv.Inverse(v)
	if err != nil {
		var cond matrix.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return &LinearAlgebraError{Op: "eigenvector inversion", Err: err}
		}
		log.Warningf("Eigenvectors are ill-conditioned: %v", err)
	}
	m.v, m.d, m.iv = v, d, iv
	return nil
}

// Exp computes P=e^Qt. Eigen must be called first. Entries are
// floored at ProbEpsilon.
func (m *EMatrix) Exp(t float64) (*mat64.Dense, error) {
	rows, cols := m.Q.Dims()
	if cols != rows {
		return nil, &DimensionError{"Q columns", cols, rows}
	}
	res := mat64.NewDense(rows, cols, nil)
	switch {
	case t == 0:
		for i := 0; i < rows; i++ {
			res.Set(i, i, 1)
		}
	case m.complex:
		qt := mat64.NewDense(rows, cols, nil)
		qt.Scale(t, m.Q)
		res.Exp(qt)
	default:
		if m.v == nil {
			return nil, errors.New("eigendecomposition was not computed")
		}
		cD := mat64.NewDense(rows, cols, nil)
		for i := 0; i < rows; i++ {
			cD.Set(i, i, math.Exp(m.d[i]*t))
		}
		tmp := mat64.NewDense(rows, cols, nil)
		tmp.Mul(m.v, cD)
		res.Mul(tmp, m.iv)
	}
	// Remove rounding noise and zeros
	res.Apply(func(r, c int, v float64) float64 {
		return math.Max(ProbEpsilon, v)
	}, res)
	return res, nil
}
