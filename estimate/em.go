package estimate

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"bitbucket.org/Davydov/gosifter/fmodel"
	"bitbucket.org/Davydov/gosifter/propagate"
	"bitbucket.org/Davydov/gosifter/tree"
)

// IterationFunc is called after every M-step with the iteration
// number and the updated parameters.
type IterationFunc func(iter int, par *fmodel.Params) error

// Summary describes a finished EM run.
type Summary struct {
	Iterations int     `json:"iterations"`
	Delta      float64 `json:"delta"`
	Converged  bool    `json:"converged"`
	Stopped    bool    `json:"stopped,omitempty"`
}

// EM alternates inference and parameter updates.
type EM struct {
	model *fmodel.Model
	prop  *propagate.Propagator
	est   *Estimator
	out   io.Writer
	sig   chan os.Signal
	// Quiet disables the trajectory output.
	Quiet bool
	// OnIteration is called after every update, including the
	// initial parameters as iteration 0.
	OnIteration IterationFunc
}

// NewEM creates an EM driver. The trajectory is written to out.
func NewEM(prop *propagate.Propagator, est *Estimator, out io.Writer) *EM {
	return &EM{
		model: est.model,
		prop:  prop,
		est:   est,
		out:   out,
	}
}

// WatchSignals stops the loop after the current iteration once any
// of sigs is received. Signals are watched until Run returns.
func (em *EM) WatchSignals(sigs ...os.Signal) {
	em.sig = make(chan os.Signal, 1)
	signal.Notify(em.sig, sigs...)
}

// StopSignals stops watching signals.
func (em *EM) StopSignals() {
	if em.sig != nil {
		signal.Stop(em.sig)
		em.sig = nil
	}
}

// PrintHeader prints the trajectory header.
func (em *EM) PrintHeader() {
	if !em.Quiet {
		pars := em.model.GetFloatParameters()
		fmt.Fprintf(em.out, "iteration\tdelta\t%s\n", pars.NamesString())
	}
}

// PrintLine prints a single trajectory line.
func (em *EM) PrintLine(iter int, delta float64) {
	if !em.Quiet {
		pars := em.model.GetFloatParameters()
		fmt.Fprintf(em.out, "%d\t%g\t%s\n", iter, delta, pars.ValuesString())
	}
}

// Run performs at most iterations EM steps on t followed by a final
// inference. On an error the last parameters which passed inference
// are restored and returned together with the error.
func (em *EM) Run(ctx context.Context, t *tree.Tree, iterations int) (res *propagate.Result, sum Summary, err error) {
	defer em.StopSignals()
	good := em.model.Params().Copy()
	defer func() {
		if err != nil {
			log.Errorf("EM failed at iteration %d, restoring parameters", sum.Iterations)
			if rerr := em.model.SetParams(good); rerr != nil {
				log.Error("Error restoring parameters:", rerr)
			}
		}
	}()

	em.PrintHeader()
	if err = em.report(0); err != nil {
		return nil, sum, err
	}

Iter:
	for i := 0; i < iterations; i++ {
		if em.sig != nil {
			select {
			case s := <-em.sig:
				log.Warningf("Received signal %v, exiting.", s)
				sum.Stopped = true
				break Iter
			default:
			}
		}

		res, err = em.prop.Infer(ctx, t)
		if err != nil {
			return nil, sum, err
		}
		good = em.model.Params().Copy()
		var delta float64
		var converged bool
		delta, converged, err = em.est.MaximizationStep(t, res)
		if err != nil {
			return nil, sum, err
		}
		sum.Iterations = i + 1
		sum.Delta = delta
		em.PrintLine(i+1, delta)
		log.Infof("Iteration %d: delta=%g", i+1, delta)
		if err = em.report(i + 1); err != nil {
			return nil, sum, err
		}
		if converged {
			sum.Converged = true
			log.Noticef("Converged after %d iterations", i+1)
			break
		}
	}

	res, err = em.prop.Infer(ctx, t)
	if err != nil {
		return nil, sum, err
	}
	return res, sum, nil
}

func (em *EM) report(iter int) error {
	if em.OnIteration == nil {
		return nil
	}
	return em.OnIteration(iter, em.model.Params())
}
