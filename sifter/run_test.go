package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bitbucket.org/Davydov/gosifter/fmodel"
)

// writeFamily writes default parameters, a tree and evidence to dir.
func writeFamily(tst *testing.T, dir string) (treeFn, evidenceFn string) {
	if err := runGenerate(paramFiles(dir, "fam"), []int{3674, 5524}); err != nil {
		tst.Fatal("Error generating parameters:", err)
	}
	treeFn = filepath.Join(dir, "tree.nwk")
	if err := os.WriteFile(treeFn, []byte("((a:0.1,b:0.2)#1:0.1,c:0.3);\n"), 0666); err != nil {
		tst.Fatal(err)
	}
	evidenceFn = filepath.Join(dir, "evidence.txt")
	if err := os.WriteFile(evidenceFn, []byte("a\t1\t0\nc\t0\t1\n"), 0666); err != nil {
		tst.Fatal(err)
	}
	return
}

func TestEMFailureSavesParameters(tst *testing.T) {
	dir := tst.TempDir()
	treeFn, evidenceFn := writeFamily(tst, dir)
	*paramDir, *familyName, *saveDir = dir, "fam", filepath.Join(dir, "out")
	defer func() {
		*paramDir, *familyName, *saveDir = "", "", ""
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary := &RunSummary{}
	err := runEM(ctx, DefaultSettings(), summary, treeFn, evidenceFn)
	if !errors.Is(err, context.Canceled) {
		tst.Fatal("Expected cancellation, got", err)
	}
	if summary.EM == nil || summary.EM.Iterations != 0 {
		tst.Error("Wrong EM summary:", summary.EM)
	}
	if len(summary.Parameters) == 0 {
		tst.Error("Restored parameters are missing in the summary")
	}

	par, err := fmodel.ReadParams(paramFiles(*saveDir, "fam"))
	if err != nil {
		tst.Fatal("Restored parameters were not saved:", err)
	}
	if par.Theta[0][0] != fmodel.DefaultSelfRate || par.Alpha[1] != fmodel.DefaultAlpha {
		tst.Error("Wrong saved parameters:", par)
	}
}
