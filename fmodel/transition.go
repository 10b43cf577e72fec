package fmodel

import (
	"math"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// Transition holds P = e^Qt for a single time scale t. It is
// immutable once created and safe for concurrent use.
type Transition struct {
	T float64

	p    *mat64.Dense
	ind  *mat64.Dense
	once sync.Once
	marg *mat64.Dense
}

// Prob returns the probability of moving from state p to state c.
func (tr *Transition) Prob(p, c int) float64 {
	return tr.p.At(p, c)
}

// Row returns probabilities of moving from state p; the slice must
// not be modified.
func (tr *Transition) Row(p int) []float64 {
	return tr.p.RawRowView(p)
}

// Marginal returns the probability that function j is active after
// leaving state p.
func (tr *Transition) Marginal(p, j int) float64 {
	tr.once.Do(func() {
		s, _ := tr.p.Dims()
		_, l := tr.ind.Dims()
		tr.marg = mat64.NewDense(s, l, nil)
		tr.marg.Mul(tr.p, tr.ind)
	})
	return math.Min(1, tr.marg.At(p, j))
}
