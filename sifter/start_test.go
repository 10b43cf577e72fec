package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bitbucket.org/Davydov/gosifter/estimate"
	"bitbucket.org/Davydov/gosifter/fmodel"
	"bitbucket.org/Davydov/gosifter/propagate"
	"bitbucket.org/Davydov/gosifter/tree"
)

func newStartModel(tst *testing.T) *fmodel.Model {
	m, err := fmodel.NewModel(fmodel.NewDefaultParams([]int{3674, 5524}), 2)
	if err != nil {
		tst.Fatal("Error creating model:", err)
	}
	return m
}

func TestStartFromTrajectory(tst *testing.T) {
	m := newStartModel(tst)
	t, err := tree.ParseNewick(strings.NewReader("((a:0.1,b:0.2)#1:0.1,c:0.3);"))
	if err != nil {
		tst.Fatal(err)
	}
	t.SetEvidence("a", []float64{1, 0}, 2)
	t.SetEvidence("c", []float64{0, 1}, 2)

	var b bytes.Buffer
	em := estimate.NewEM(propagate.New(m, 0, 1), estimate.NewEstimator(m, 0.01, 0, 1), &b)
	if _, _, err := em.Run(context.Background(), t, 3); err != nil {
		tst.Fatal("Error in EM:", err)
	}
	fn := filepath.Join(tst.TempDir(), "traj.txt")
	if err := os.WriteFile(fn, b.Bytes(), 0666); err != nil {
		tst.Fatal(err)
	}

	m2 := newStartModel(tst)
	if err := readStart(fn, m2.GetFloatParameters()); err != nil {
		tst.Fatal("Error reading start:", err)
	}
	pars := m.GetFloatParameters()
	for i, par := range m2.GetFloatParameters() {
		if d := par.Get() - pars[i].Get(); d > 1e-6 || d < -1e-6 {
			tst.Errorf("%s: expected %v, got %v", par.Name(), pars[i].Get(), par.Get())
		}
	}
}

func TestStartFromJSON(tst *testing.T) {
	m := newStartModel(tst)
	m.Alpha(1).Set(0.3)
	m.ScaleParameter(fmodel.Speciation).Set(0.7)
	j, err := json.Marshal(&RunSummary{Parameters: m.GetFloatParameters()})
	if err != nil {
		tst.Fatal(err)
	}
	fn := filepath.Join(tst.TempDir(), "summary.json")
	if err := os.WriteFile(fn, j, 0666); err != nil {
		tst.Fatal(err)
	}

	m2 := newStartModel(tst)
	if err := readStart(fn, m2.GetFloatParameters()); err != nil {
		tst.Fatal("Error reading start:", err)
	}
	if m2.Params().Alpha[1] != 0.3 || m2.Params().Scales[fmodel.Speciation] != 0.7 {
		tst.Error("Start parameters were not applied:", m2.Params())
	}
}

func TestStartErrors(tst *testing.T) {
	m := newStartModel(tst)
	dir := tst.TempDir()

	bad := filepath.Join(dir, "bad.txt")
	os.WriteFile(bad, []byte("iteration\tdelta\n"), 0666)
	if err := readStart(bad, m.GetFloatParameters()); err == nil {
		tst.Error("Expected error for a trajectory without iterations")
	}

	pars := m.GetFloatParameters()
	line := "1\t0.1"
	for range pars {
		line += "\t-1"
	}
	neg := filepath.Join(dir, "neg.txt")
	os.WriteFile(neg, []byte(line+"\n"), 0666)
	if err := readStart(neg, m.GetFloatParameters()); err == nil {
		tst.Error("Expected error for negative parameters")
	}
}
