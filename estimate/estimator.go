// Package estimate re-estimates rate parameters from posterior
// function probabilities (the maximization step of EM) and runs the
// EM loop.
package estimate

import (
	"math"
	"runtime"
	"sync"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gosifter/fmodel"
	"bitbucket.org/Davydov/gosifter/fstate"
	"bitbucket.org/Davydov/gosifter/propagate"
	"bitbucket.org/Davydov/gosifter/tree"
)

var log = logging.MustGetLogger("estimate")

// Epsilon is the smallest value of any parameter after an update.
const Epsilon = 0.01

// Estimator performs gradient updates of the model parameters.
type Estimator struct {
	model   *fmodel.Model
	step    float64
	cutoff  float64
	workers int

	// phi normalizes theta gradients by the number of transitions
	// each element takes part in; gain rate gradients are used as is
	phi [][]float64
}

// NewEstimator creates an estimator with step size step; updates with
// delta below cutoff are treated as converged.
func NewEstimator(model *fmodel.Model, step, cutoff float64, workers int) *Estimator {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	e := &Estimator{
		model:   model,
		step:    step,
		cutoff:  cutoff,
		workers: workers,
	}
	phi, phi0 := phiCounts(model.Space(), model.Params().Alpha)
	log.Debugf("Transition counts: phi=%v, phi0=%v", phi, phi0)
	e.phi = phi
	return e
}

// phiCounts counts single function gains and losses between states.
func phiCounts(sp *fstate.Space, alpha []float64) (phi [][]float64, phi0 []float64) {
	l := sp.L()
	phi = make([][]float64, l)
	for i := range phi {
		phi[i] = make([]float64, l)
	}
	phi0 = make([]float64, l)
	for j, c := range sp.Singletons() {
		if c >= 0 && alpha[j] != 0 {
			phi0[j]++
		}
	}
	for _, ps := range sp.States() {
		if ps.IsEmpty() {
			continue
		}
		active := ps.Active()
		for _, cs := range sp.States() {
			j := ps.SingleBitDifference(cs)
			if j < 0 || j == l {
				continue
			}
			if ps.Has(j) {
				phi[j][j]++
				continue
			}
			for _, i := range active {
				phi[i][j]++
				phi[j][i]++
				phi0[j]++
			}
		}
	}
	return
}

// gradients are accumulated by a single worker.
type gradients struct {
	theta [][]float64
	alpha []float64
	scale map[string]float64
	count map[string]int
}

func newGradients(l int) *gradients {
	g := &gradients{
		theta: make([][]float64, l),
		alpha: make([]float64, l),
		scale: make(map[string]float64),
		count: make(map[string]int),
	}
	for i := range g.theta {
		g.theta[i] = make([]float64, l)
	}
	return g
}

func (g *gradients) add(o *gradients) {
	for i := range g.theta {
		floats.Add(g.theta[i], o.theta[i])
	}
	floats.Add(g.alpha, o.alpha)
	for name, v := range o.scale {
		g.scale[name] += v
	}
	for name, n := range o.count {
		g.count[name] += n
	}
}

// edgeTask is a parent-child pair with posteriors.
type edgeTask struct {
	parent, child []float64
	rate, dist    float64
	scale         string
}

// MaximizationStep updates the parameters using posteriors of a tree
// and returns the total absolute parameter change.
func (e *Estimator) MaximizationStep(t *tree.Tree, res *propagate.Result) (delta float64, converged bool, err error) {
	q, err := e.model.Q()
	if err != nil {
		return 0, false, err
	}
	var edges []edgeTask
	for _, id := range t.EvidenceNodes() {
		node := t.Node(id)
		parent := t.Parent(node)
		pc, err := res.Posterior(node.Id)
		if err != nil {
			log.Debugf("Skipping %s: %v", node.LongString(), err)
			continue
		}
		pp, err := res.Posterior(parent.Id)
		if err != nil {
			log.Debugf("Skipping parent of %s: %v", node.LongString(), err)
			continue
		}
		scale := fmodel.Speciation
		if parent.Duplication {
			scale = fmodel.Duplication
		}
		edges = append(edges, edgeTask{
			parent: pp,
			child:  pc,
			rate:   e.model.Rate(parent.Duplication),
			dist:   node.BranchLength,
			scale:  scale,
		})
	}

	grad := e.edgeGradients(q, edges)

	dTheta := e.updateTheta(grad.theta)
	dAlpha := e.updateAlpha(grad.alpha)
	dScale := e.updateScales(grad)

	delta = math.Abs(dScale) + dAlpha + dTheta
	log.Debugf("delta theta=%v, alpha=%v, scale=%v", dTheta, dAlpha, dScale)
	return delta, delta < e.cutoff, nil
}

// edgeGradients processes edges on a pool of workers with private
// accumulators.
func (e *Estimator) edgeGradients(q *mat64.Dense, edges []edgeTask) *gradients {
	l := e.model.Space().L()
	tasks := make(chan edgeTask, len(edges))
	results := make(chan *gradients, e.workers)
	var wg sync.WaitGroup

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			g := newGradients(l)
			for task := range tasks {
				e.edge(g, q, task)
			}
			results <- g
			wg.Done()
		}()
	}

	for _, task := range edges {
		tasks <- task
	}
	close(tasks)
	wg.Wait()
	close(results)

	total := newGradients(l)
	for g := range results {
		total.add(g)
	}
	return total
}

// stateProbs returns probabilities of every state given independent
// per-function probabilities.
func stateProbs(sp *fstate.Space, post []float64) []float64 {
	res := make([]float64, sp.Size())
	for i, s := range sp.States() {
		p := 1.0
		for j, v := range post {
			if s.Has(j) {
				p *= v
			} else {
				p *= 1 - v
			}
		}
		res[i] = p
	}
	return res
}

// edge adds gradients of a single parent-child pair.
func (e *Estimator) edge(g *gradients, q *mat64.Dense, task edgeTask) {
	sp := e.model.Space()
	l := sp.L()
	rd := task.rate * task.dist

	cc := stateProbs(sp, task.child)
	cp := stateProbs(sp, task.parent)
	// the empty state
	noChild, noParent := cc[0], cp[0]

	for j, c := range sp.Singletons() {
		if c >= 0 {
			g.alpha[j] += cc[c]*noParent*rd - noChild*noParent*rd
		}
	}

	scaleGrad := 0.0
	for pi, ps := range sp.States() {
		if ps.IsEmpty() {
			continue
		}
		active := ps.Active()
		identity := cp[pi] * cc[pi] * rd
		for ci, cs := range sp.States() {
			j := ps.SingleBitDifference(cs)
			if j < 0 {
				continue
			}
			scaleGrad += cc[ci] * cp[pi] * task.dist * q.At(pi, ci)
			if j == l {
				continue
			}
			v := cc[ci]*cp[pi]*rd - identity
			if ps.Has(j) {
				g.theta[j][j] += v
				continue
			}
			for _, i := range active {
				g.theta[i][j] += v
				g.theta[j][i] += v
				g.alpha[j] += v
			}
		}
	}
	g.scale[task.scale] += scaleGrad * e.step
	g.count[task.scale]++
}

// ascend applies a gradient step to values, flooring them at Epsilon.
// It returns the new values and their sum.
func (e *Estimator) ascend(old, grad []float64) (res []float64, total float64) {
	res = make([]float64, len(old))
	for i := range old {
		res[i] = math.Max(old[i]+e.step*grad[i], Epsilon)
		total += res[i]
	}
	return
}

// shrink returns the divisor for values summing to total: one if the
// total does not exceed n, total/n otherwise.
func shrink(total float64, n int) float64 {
	if total <= float64(n) {
		return 1
	}
	return total / float64(n)
}

// divide rescales v unless it is at the Epsilon floor.
func divide(v, div float64) float64 {
	if v > Epsilon {
		return v / div
	}
	return Epsilon
}

// project applies a gradient step to values and rescales them so that
// their sum does not exceed n. Values at or below Epsilon become
// Epsilon.
func (e *Estimator) project(old, grad []float64, n int) []float64 {
	res, total := e.ascend(old, grad)
	div := shrink(total, n)
	for i, v := range res {
		res[i] = divide(v, div)
	}
	return res
}

// projectAlpha is project with the divisor shrunk again before every
// element: the first gain rate is divided by total/n, the following
// ones by the repeatedly shrunk divisor.
func (e *Estimator) projectAlpha(old, grad []float64, n int) []float64 {
	res, div := e.ascend(old, grad)
	for i, v := range res {
		div = shrink(div, n)
		res[i] = divide(v, div)
	}
	return res
}

func (e *Estimator) updateTheta(grad [][]float64) (delta float64) {
	par := e.model.Params()
	l := par.L()
	for i := 0; i < l; i++ {
		g := make([]float64, l)
		for j := range g {
			if e.phi[i][j] != 0 {
				g[j] = grad[i][j] / e.phi[i][j]
			}
		}
		old := append([]float64(nil), par.Theta[i]...)
		for j, v := range e.project(old, g, l) {
			delta += math.Abs(v - old[j])
			e.model.Theta(i, j).Set(v)
		}
	}
	return
}

func (e *Estimator) updateAlpha(grad []float64) (delta float64) {
	par := e.model.Params()
	old := append([]float64(nil), par.Alpha...)
	for j, v := range e.projectAlpha(old, grad, par.L()) {
		delta += math.Abs(v - old[j])
		e.model.Alpha(j).Set(v)
	}
	return
}

func (e *Estimator) updateScales(grad *gradients) (delta float64) {
	for _, name := range e.model.Params().ScaleNames() {
		n := grad.count[name]
		if n == 0 {
			continue
		}
		par := e.model.ScaleParameter(name)
		g := grad.scale[name] / float64(n)
		if v := par.Get() + g; v > Epsilon {
			par.Set(v)
			delta += math.Abs(g)
		} else {
			par.Set(Epsilon)
		}
	}
	return
}
