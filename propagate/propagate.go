// Package propagate implements exact two-pass belief propagation of
// function annotations over a reconciled phylogeny.
//
// Messages are per-function log-probability vectors. The upward
// message (gamma) of a node summarizes the evidence below it, the
// downward message (delta) summarizes the rest of the tree.
package propagate

import (
	"context"
	"errors"
	"math"
	"runtime"

	"github.com/gonum/floats"
	"github.com/op/go-logging"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/Davydov/gosifter/fmodel"
	"bitbucket.org/Davydov/gosifter/tree"
)

var log = logging.MustGetLogger("propagate")

// ErrMissingEvidence is returned for nodes without a posterior.
var ErrMissingEvidence = errors.New("no evidence reached the node")

// Uninformative returns the upward message of a subtree without
// evidence.
func Uninformative() []float64 {
	return []float64{1}
}

// Informative tests if gamma carries evidence for l functions.
func Informative(gamma []float64, l int) bool {
	return len(gamma) == l && gamma[0] <= 0
}

// Propagator computes posterior function probabilities.
type Propagator struct {
	model   *fmodel.Model
	prior   float64
	workers int

	// prior^|P| for every state, zero for the empty state
	statePrior []float64
	active     [][]int
}

// New creates a propagator. A non-positive prior is replaced by the
// default single leaf prior, non-positive workers by GOMAXPROCS.
func New(model *fmodel.Model, prior float64, workers int) *Propagator {
	sp := model.Space()
	if prior <= 0 {
		prior = fmodel.SingleLeafPrior(sp.L())
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Propagator{
		model:      model,
		prior:      prior,
		workers:    workers,
		statePrior: make([]float64, sp.Size()),
		active:     make([][]int, sp.Size()),
	}
	for i, s := range sp.States() {
		p.active[i] = s.Active()
		if !s.IsEmpty() {
			p.statePrior[i] = math.Pow(prior, float64(s.Weight()))
		}
	}
	return p
}

// Prior returns the single leaf prior.
func (p *Propagator) Prior() float64 {
	return p.prior
}

// contribution is the message of a single informative child, before
// normalization.
type contribution struct {
	sum, not []float64
}

// Result stores messages and posteriors indexed by node id.
type Result struct {
	Gamma     [][]float64
	Delta     [][]float64
	posterior [][]float64
}

// Posterior returns per-function probabilities of the node.
func (r *Result) Posterior(id int) ([]float64, error) {
	if id < 0 || id >= len(r.posterior) || r.posterior[id] == nil {
		return nil, ErrMissingEvidence
	}
	return r.posterior[id], nil
}

// Posteriors returns posteriors of all the nodes; nil entries have
// no posterior.
func (r *Result) Posteriors() [][]float64 {
	return r.posterior
}

// Infer runs the upward and the downward passes and computes
// posteriors for every node. If no evidence reaches the root, the
// result has no posteriors.
func (p *Propagator) Infer(ctx context.Context, t *tree.Tree) (*Result, error) {
	l := p.model.Space().L()
	n := t.NNodes()
	res := &Result{
		Gamma: make([][]float64, n),
		Delta: make([][]float64, n),
	}
	contrib := make([]*contribution, n)

	for _, id := range t.NodeOrder() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := t.Node(id)
		if node.IsTerminal() {
			g, err := leafGamma(node, l)
			if err != nil {
				return nil, err
			}
			res.Gamma[id] = g
			continue
		}
		if err := p.contributions(ctx, t, node, res.Gamma, contrib); err != nil {
			return nil, err
		}
		res.Gamma[id] = combine(node.Children, -1, contrib, l)
	}

	if !Informative(res.Gamma[t.Root().Id], l) {
		log.Warning("No evidence in the tree")
		return res, nil
	}

	res.Delta[t.Root().Id] = make([]float64, l)
	for _, id := range t.PreOrder() {
		node := t.Node(id)
		if node.IsTerminal() {
			continue
		}
		if err := p.deltas(ctx, t, node, res.Delta, contrib); err != nil {
			return nil, err
		}
	}

	res.posterior = make([][]float64, n)
	for _, node := range t.Nodes() {
		res.posterior[node.Id] = posterior(res.Gamma[node.Id], res.Delta[node.Id], node.IsRoot(), l)
	}
	return res, nil
}

// leafGamma converts evidence into log probabilities.
func leafGamma(node *tree.Node, l int) ([]float64, error) {
	if !node.HasEvidence() {
		return Uninformative(), nil
	}
	if len(node.Evidence) != l {
		return nil, &fmodel.DimensionError{What: "evidence for " + node.Name, Got: len(node.Evidence), Want: l}
	}
	g := make([]float64, l)
	for i, v := range node.Evidence {
		g[i] = fmodel.LogSafe(v)
	}
	return g, nil
}

// contributions computes messages of the informative children of
// node in parallel.
func (p *Propagator) contributions(ctx context.Context, t *tree.Tree, node *tree.Node, gammas [][]float64, contrib []*contribution) error {
	l := p.model.Space().L()
	rate := p.model.Rate(node.Duplication)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, c := range node.Children {
		c := c
		if !Informative(gammas[c], l) {
			contrib[c] = nil
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tr, err := p.model.Transition(rate * t.Node(c).BranchLength)
			if err != nil {
				return err
			}
			contrib[c] = p.contribution(tr, gammas[c])
			return nil
		})
	}
	return g.Wait()
}

// contribution sums over non-empty child states C the probability of
// every parent function given C, weighted by the child message.
func (p *Propagator) contribution(tr *fmodel.Transition, gamma []float64) *contribution {
	sp := p.model.Space()
	l := sp.L()
	eg := make([]float64, l)
	for j, v := range gamma {
		eg[j] = math.Exp(v)
	}
	res := &contribution{
		sum: make([]float64, l),
		not: make([]float64, l),
	}
	w := make([]float64, l)
	for c := 1; c < sp.Size(); c++ {
		for i := range w {
			w[i] = 0
		}
		total := 0.0
		for pi := 1; pi < sp.Size(); pi++ {
			v := tr.Prob(pi, c) * p.statePrior[pi]
			total += v
			for _, i := range p.active[pi] {
				w[i] += v
			}
		}
		if total <= 0 {
			continue
		}
		cs := sp.State(c)
		childProd := 1.0
		for j := 0; j < l; j++ {
			if cs.Has(j) {
				childProd *= eg[j]
			} else {
				childProd *= 1 - eg[j]
			}
		}
		// sum += w/total*childProd, not += (1-w/total)*childProd
		floats.AddScaled(res.sum, childProd/total, w)
		floats.AddConst(childProd, res.not)
		floats.AddScaled(res.not, -childProd/total, w)
	}
	return res
}

// combine multiplies messages of the informative children, skipping
// the child at position skip.
func combine(children []int, skip int, contrib []*contribution, l int) []float64 {
	gamma := make([]float64, l)
	not := make([]float64, l)
	for i := range gamma {
		gamma[i] = 1
		not[i] = 1
	}
	n := 0
	for k, c := range children {
		if k == skip || contrib[c] == nil {
			continue
		}
		floats.Mul(gamma, contrib[c].sum)
		floats.Mul(not, contrib[c].not)
		n++
	}
	if n == 0 {
		return Uninformative()
	}
	for i := range gamma {
		gamma[i] = fmodel.LogSafe(ratio(gamma[i], not[i]))
	}
	return gamma
}

// deltas computes downward messages of all the children of node.
func (p *Propagator) deltas(ctx context.Context, t *tree.Tree, node *tree.Node, deltas [][]float64, contrib []*contribution) error {
	l := p.model.Space().L()
	rate := p.model.Rate(node.Duplication)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for k, c := range node.Children {
		k, c := k, c
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			siblings := combine(node.Children, k, contrib, l)
			if !Informative(siblings, l) {
				siblings = make([]float64, l)
			}
			tr, err := p.model.Transition(rate * t.Node(c).BranchLength)
			if err != nil {
				return err
			}
			deltas[c] = p.delta(tr, deltas[node.Id], siblings)
			return nil
		})
	}
	return g.Wait()
}

// delta sums over non-empty parent states the probability of every
// child function weighted by the parent delta and the siblings.
func (p *Propagator) delta(tr *fmodel.Transition, parent, siblings []float64) []float64 {
	sp := p.model.Space()
	l := sp.L()
	eq := make([]float64, l)
	es := make([]float64, l)
	for i := 0; i < l; i++ {
		eq[i] = math.Exp(parent[i])
		es[i] = math.Exp(siblings[i])
	}
	delta := make([]float64, l)
	not := make([]float64, l)
	for pi := 1; pi < sp.Size(); pi++ {
		ps := sp.State(pi)
		prod := 1.0
		for i := 0; i < l; i++ {
			if ps.Has(i) {
				prod *= eq[i] * es[i]
				continue
			}
			a := 1 - eq[i]
			if a <= 0 {
				a = 1
			}
			b := 1 - es[i]
			if b <= 0 {
				b = 1
			}
			prod *= a * b
		}
		for j := 0; j < l; j++ {
			m := tr.Marginal(pi, j)
			delta[j] += m * prod
			not[j] += (1 - m) * prod
		}
	}
	for j := range delta {
		delta[j] = fmodel.LogSafe(ratio(delta[j], not[j]))
	}
	return delta
}

// posterior combines the upward and the downward messages.
func posterior(gamma, delta []float64, root bool, l int) []float64 {
	res := make([]float64, l)
	switch {
	case !Informative(gamma, l):
		for i := range res {
			res[i] = math.Exp(delta[i])
		}
	case root:
		for i := range res {
			res[i] = math.Exp(gamma[i])
		}
	default:
		for i := range res {
			eg := math.Exp(gamma[i])
			ed := math.Exp(delta[i])
			res[i] = ratio(math.Exp(gamma[i]+delta[i]), (1-eg)*(1-ed))
		}
	}
	return res
}

// ratio returns a/(a+b) or zero if the sum is not positive.
func ratio(a, b float64) float64 {
	if a+b <= 0 {
		return 0
	}
	return a / (a + b)
}
