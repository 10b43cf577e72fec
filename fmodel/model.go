// Package fmodel provides the continuous-time Markov model of
// function gain, loss and conversion over function subsets.
package fmodel

import (
	"fmt"
	"sync"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gosifter/fstate"
	"bitbucket.org/Davydov/gosifter/optimize"
)

// log is a global logging variable.
var log = logging.MustGetLogger("fmodel")

// Model stores rate parameters and caches the generator matrix, its
// eigendecomposition and the exponentiated matrices. Every parameter
// change increases the generation counter; caches built for an older
// generation are rebuilt on the next request.
type Model struct {
	space      *fstate.Space
	par        *Params
	parameters optimize.FloatParameters

	mu         sync.Mutex
	generation uint64
	built      uint64
	ready      bool
	q          *mat64.Dense
	e          *EMatrix
	ind        *mat64.Dense
	cache      map[float64]*Transition
}

// NewModel creates a model for the parameters truncated to k active
// functions. Parameters are used in place, not copied.
func NewModel(par *Params, k int) (*Model, error) {
	if err := par.Check(); err != nil {
		return nil, err
	}
	space, err := fstate.NewSpace(par.L(), k)
	if err != nil {
		return nil, err
	}
	m := &Model{
		space: space,
		par:   par,
		e:     NewEMatrix(nil),
	}
	m.ind = mat64.NewDense(space.Size(), space.L(), nil)
	for i, s := range space.States() {
		for _, j := range s.Active() {
			m.ind.Set(i, j, 1)
		}
	}
	m.addParameters(optimize.BasicFloatParameterGenerator)
	log.Debugf("Model with %d functions, truncation %d, %d states", space.L(), space.K(), space.Size())
	return m, nil
}

// addParameters registers theta, alpha and the scales.
func (m *Model) addParameters(fpg optimize.FloatParameterGenerator) {
	m.parameters = nil
	touch := func() { m.Touch() }
	for i := range m.par.Theta {
		for j := range m.par.Theta[i] {
			par := fpg(&m.par.Theta[i][j], fmt.Sprintf("theta_%d_%d", i, j))
			par.SetMin(0)
			par.SetOnChange(touch)
			m.parameters.Append(par)
		}
	}
	for i := range m.par.Alpha {
		par := fpg(&m.par.Alpha[i], fmt.Sprintf("alpha_%d", i))
		par.SetMin(0)
		par.SetOnChange(touch)
		m.parameters.Append(par)
	}
	for _, name := range m.par.ScaleNames() {
		// map values are not addressable
		v := m.par.Scales[name]
		name := name
		ptr := &v
		par := fpg(ptr, "scale_"+name)
		par.SetMin(0)
		par.SetOnChange(func() {
			m.mu.Lock()
			m.par.Scales[name] = *ptr
			m.mu.Unlock()
		})
		m.parameters.Append(par)
	}
}

// Space returns the state space of the model.
func (m *Model) Space() *fstate.Space {
	return m.space
}

// Params returns the parameters. They should be changed only through
// GetFloatParameters or followed by Touch.
func (m *Model) Params() *Params {
	return m.par
}

// GetFloatParameters returns all the model parameters.
func (m *Model) GetFloatParameters() optimize.FloatParameters {
	return m.parameters
}

// Theta returns the parameter for the theta_ij element.
func (m *Model) Theta(i, j int) optimize.FloatParameter {
	return m.parameters[i*m.space.L()+j]
}

// Alpha returns the parameter for alpha_i.
func (m *Model) Alpha(i int) optimize.FloatParameter {
	l := m.space.L()
	return m.parameters[l*l+i]
}

// ScaleParameter returns the parameter of a named scale or nil.
func (m *Model) ScaleParameter(name string) optimize.FloatParameter {
	for _, par := range m.parameters {
		if par.Name() == "scale_"+name {
			return par
		}
	}
	return nil
}

// Rate returns the time scale of a branch below a duplication or a
// speciation node.
func (m *Model) Rate(duplication bool) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if duplication {
		return m.par.Scales[Duplication]
	}
	return m.par.Scales[Speciation]
}

// Touch invalidates the cached matrices.
func (m *Model) Touch() {
	m.mu.Lock()
	m.generation++
	m.mu.Unlock()
}

// Generation returns the number of parameter changes so far.
func (m *Model) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// SetParams replaces all parameter values, e.g. to restore a
// snapshot. Dimensions must match.
func (m *Model) SetParams(par *Params) error {
	if err := par.Check(); err != nil {
		return err
	}
	if par.L() != m.par.L() {
		return &DimensionError{"parameters", par.L(), m.par.L()}
	}
	for i := range par.Theta {
		for j, v := range par.Theta[i] {
			m.Theta(i, j).Set(v)
		}
	}
	for i, v := range par.Alpha {
		m.Alpha(i).Set(v)
	}
	for name, v := range par.Scales {
		if p := m.ScaleParameter(name); p != nil {
			p.Set(v)
		}
	}
	m.par.Scale = par.Scale
	m.Touch()
	return nil
}

// Q returns the generator matrix for the current parameters.
func (m *Model) Q() (*mat64.Dense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.update(); err != nil {
		return nil, err
	}
	return m.q, nil
}

// Transition returns e^Qt. Results are cached for every t until the
// parameters change.
func (m *Model) Transition(t float64) (*Transition, error) {
	m.mu.Lock()
	if err := m.update(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if tr, ok := m.cache[t]; ok {
		m.mu.Unlock()
		return tr, nil
	}
	gen := m.built
	e := m.e
	m.mu.Unlock()

	p, err := e.Exp(t)
	if err != nil {
		return nil, err
	}
	tr := &Transition{T: t, p: p, ind: m.ind}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.built == gen {
		if old, ok := m.cache[t]; ok {
			return old, nil
		}
		m.cache[t] = tr
	}
	return tr, nil
}

// update rebuilds Q and its decomposition if the parameters
// changed. m.mu must be held.
func (m *Model) update() error {
	if m.ready && m.built == m.generation {
		return nil
	}
	m.q = BuildQ(m.space, m.par.Theta, m.par.Alpha)
	// a new EMatrix, transitions in flight keep the old one
	e := NewEMatrix(m.q)
	if err := e.Eigen(); err != nil {
		m.ready = false
		return err
	}
	// validate the decomposition, the result is not needed
	if _, err := e.Exp(1); err != nil {
		m.ready = false
		return err
	}
	m.e = e
	m.cache = make(map[float64]*Transition)
	m.built = m.generation
	m.ready = true
	log.Debugf("Rebuilt Q for generation %d", m.generation)
	return nil
}

// BuildQ creates the generator matrix. The empty state gains function
// m with rate alpha_m. A non-empty state loses active function j with
// rate theta_jj and gains inactive function j with rate
// sum_i(theta_ij + alpha_j) over its active functions i.
func BuildQ(space *fstate.Space, theta [][]float64, alpha []float64) *mat64.Dense {
	s := space.Size()
	l := space.L()
	q := mat64.NewDense(s, s, nil)
	for j, c := range space.Singletons() {
		if c >= 0 {
			q.Set(0, c, alpha[j])
		}
	}
	for p, ps := range space.States() {
		if ps.IsEmpty() {
			continue
		}
		active := ps.Active()
		for j := 0; j < l; j++ {
			c := space.Index(ps.Mask() ^ (1 << uint(j)))
			if c < 0 {
				continue
			}
			var rate float64
			if ps.Has(j) {
				rate = theta[j][j]
			} else {
				for _, i := range active {
					rate += theta[i][j] + alpha[j]
				}
			}
			q.Set(p, c, rate)
		}
	}
	for p := 0; p < s; p++ {
		row := q.RawRowView(p)
		sum := 0.0
		for c, v := range row {
			if c != p {
				sum += v
			}
		}
		row[p] = -sum
	}
	return q
}
