package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"bitbucket.org/Davydov/gosifter/estimate"
	"bitbucket.org/Davydov/gosifter/fmodel"
	"bitbucket.org/Davydov/gosifter/propagate"
	"bitbucket.org/Davydov/gosifter/store"
	"bitbucket.org/Davydov/gosifter/tree"
)

// family is a tree with evidence and a model.
type family struct {
	tree      *tree.Tree
	model     *fmodel.Model
	nEvidence int
}

// readTree reads a Newick tree from a file.
func readTree(fn string) (*tree.Tree, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tree.ParseNewick(f)
}

// loadFamily reads parameters, the tree and the evidence.
func loadFamily(s Settings, treeFn, evidenceFn string) (*family, error) {
	files := inputFiles()
	par, err := fmodel.ReadParams(files)
	if err != nil {
		return nil, fmt.Errorf("reading parameters: %w", err)
	}
	log.Infof("Read parameters for %d functions from %s", par.L(), files.Rates)

	model, err := fmodel.NewModel(par, s.Truncation)
	if err != nil {
		return nil, err
	}
	log.Infof("Model has %d states and %d parameters", model.Space().Size(), len(model.GetFloatParameters()))
	if *startF != "" {
		if err := readStart(*startF, model.GetFloatParameters()); err != nil {
			return nil, err
		}
		log.Infof("Start parameters from %s", *startF)
	}

	t, err := readTree(treeFn)
	if err != nil {
		return nil, fmt.Errorf("reading tree: %w", err)
	}
	t.NormalizeDistances(s.AlignLength)
	log.Infof("Read tree with %d leaves", t.NLeaves())
	log.Debugf("tree=%s", t)

	f, err := os.Open(evidenceFn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	n, err := t.ReadEvidence(f, par.L())
	if err != nil {
		return nil, fmt.Errorf("reading evidence: %w", err)
	}
	if n == 0 {
		log.Warning("No leaves with evidence")
	} else {
		log.Infof("Evidence for %d leaves", n)
	}

	return &family{tree: t, model: model, nEvidence: n}, nil
}

// runGenerate writes default parameters.
func runGenerate(files fmodel.Files, functions []int) error {
	par := fmodel.NewDefaultParams(functions)
	if err := par.Check(); err != nil {
		return err
	}
	if err := fmodel.WriteParams(files, par); err != nil {
		return err
	}
	log.Noticef("Wrote parameters to %s, %s and %s", files.Rates, files.Scale, files.Alpha)
	return nil
}

// runInfer computes and reports posteriors.
func runInfer(s Settings, summary *RunSummary, treeFn, evidenceFn string) error {
	fam, err := loadFamily(s, treeFn, evidenceFn)
	if err != nil {
		return err
	}
	prop := propagate.New(fam.model, s.Prior, s.Workers)
	log.Infof("Leaf prior: %v", prop.Prior())

	res, err := prop.Infer(context.Background(), fam.tree)
	if err != nil {
		return err
	}
	return finish(summary, fam, res, estimate.Summary{})
}

// iterationFiles returns parameter file names of an EM iteration.
func iterationFiles(dir string, iter int) fmodel.Files {
	return fmodel.Files{
		Rates: filepath.Join(dir, fmt.Sprintf("pfxIteration%d.fx", iter)),
		Scale: filepath.Join(dir, fmt.Sprintf("scale%d.fx", iter)),
		Alpha: filepath.Join(dir, fmt.Sprintf("alpha%d.fx", iter)),
	}
}

// saveParams writes the model parameters to the save directory, if
// there is one.
func saveParams(fam *family) error {
	if *saveDir == "" {
		return nil
	}
	if err := os.MkdirAll(*saveDir, 0777); err != nil {
		return err
	}
	files := paramFiles(*saveDir, *familyName)
	if err := fmodel.WriteParams(files, fam.model.Params()); err != nil {
		return err
	}
	log.Noticef("Wrote estimated parameters to %s", files.Rates)
	return nil
}

// runEM estimates parameters and reports posteriors. If EM fails, the
// restored parameters are still saved and reported in the summary.
func runEM(ctx context.Context, s Settings, summary *RunSummary, treeFn, evidenceFn string) error {
	fam, err := loadFamily(s, treeFn, evidenceFn)
	if err != nil {
		return err
	}
	prop := propagate.New(fam.model, s.Prior, s.Workers)
	log.Infof("Leaf prior: %v", prop.Prior())
	est := estimate.NewEstimator(fam.model, s.StepSize, s.Cutoff, s.Workers)
	log.Infof("EM: %d iterations, step=%v, cutoff=%v", s.Iterations, s.StepSize, s.Cutoff)

	var w io.Writer = os.Stdout
	if *trajF != "" {
		f, err := os.Create(*trajF)
		if err != nil {
			return fmt.Errorf("creating trajectory file: %w", err)
		}
		defer f.Close()
		w = f
	}
	em := estimate.NewEM(prop, est, w)
	em.Quiet = *trajF == ""
	em.WatchSignals(os.Interrupt, syscall.SIGTERM)

	if *iterDir != "" {
		if err := os.MkdirAll(*iterDir, 0777); err != nil {
			return err
		}
		em.OnIteration = func(iter int, par *fmodel.Params) error {
			return fmodel.WriteParams(iterationFiles(*iterDir, iter), par)
		}
	}

	res, sum, err := em.Run(ctx, fam.tree, s.Iterations)
	summary.EM = &sum
	if err != nil {
		summary.Parameters = fam.model.GetFloatParameters()
		if serr := saveParams(fam); serr != nil {
			log.Error("Error saving parameters:", serr)
		}
		return fmt.Errorf("EM: %w", err)
	}
	if sum.Converged {
		log.Noticef("EM converged after %d iterations, delta=%v", sum.Iterations, sum.Delta)
	} else {
		log.Warningf("EM did not converge after %d iterations, delta=%v", sum.Iterations, sum.Delta)
	}

	if err := saveParams(fam); err != nil {
		return err
	}
	return finish(summary, fam, res, sum)
}

// finish writes the posterior table and the database record.
func finish(summary *RunSummary, fam *family, res *propagate.Result, sum estimate.Summary) error {
	summary.NLeaves = fam.tree.NLeaves()
	summary.NEvidence = fam.nEvidence
	summary.Parameters = fam.model.GetFloatParameters()

	posteriors := leafPosteriors(fam.tree, res)
	functions := fam.model.Params().Functions

	var w io.Writer = os.Stdout
	if *outF != "" {
		f, err := os.Create(*outF)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := writePosteriors(w, functions, posteriors); err != nil {
		return err
	}

	if *dbF == "" {
		return nil
	}
	db, err := store.Open(*dbF)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	pars := fam.model.GetFloatParameters()
	return store.New(db, *familyName).Save(&store.Record{
		Parameters: pars.Map(),
		Posteriors: posteriors,
		Functions:  functions,
		Iterations: sum.Iterations,
		Delta:      sum.Delta,
		Converged:  sum.Converged,
	})
}

// runShow prints stored results of a family or lists the families.
func runShow(name string) error {
	if *dbF == "" {
		return fmt.Errorf("database file is required (--db)")
	}
	if _, err := os.Stat(*dbF); err != nil {
		return err
	}
	db, err := store.Open(*dbF)
	if err != nil {
		return err
	}
	defer db.Close()

	if name == "" {
		keys, err := store.Keys(db)
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	}

	rec, err := store.New(db, name).Load()
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no results for %s", name)
	}
	return writePosteriors(os.Stdout, rec.Functions, rec.Posteriors)
}
