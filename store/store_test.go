package store

import (
	"path/filepath"
	"testing"

	"github.com/op/go-logging"
)

func init() {
	logging.SetLevel(logging.WARNING, "store")
}

func TestSaveLoad(tst *testing.T) {
	db, err := Open(filepath.Join(tst.TempDir(), "results.db"))
	if err != nil {
		tst.Fatal("Error opening database:", err)
	}
	defer db.Close()

	s := New(db, "PF00001")
	if rec, err := s.Load(); err != nil || rec != nil {
		tst.Fatal("Expected empty store, got", rec, err)
	}

	rec := &Record{
		Parameters: map[string]float64{"alpha_0": 0.5, "theta_0_0": 0.25},
		Posteriors: map[string][]float64{"P12345": {0.9, 0.1}},
		Functions:  []int{5524, 3677},
		Iterations: 12,
		Delta:      1e-5,
		Converged:  true,
	}
	if err := s.Save(rec); err != nil {
		tst.Fatal("Error saving:", err)
	}
	got, err := New(db, "PF00001").Load()
	if err != nil || got == nil {
		tst.Fatal("Error loading:", err)
	}
	if got.Iterations != 12 || !got.Converged || got.Delta != 1e-5 {
		tst.Error("Wrong record:", got)
	}
	if got.Parameters["alpha_0"] != 0.5 || got.Posteriors["P12345"][1] != 0.1 {
		tst.Error("Wrong record values:", got)
	}

	keys, err := Keys(db)
	if err != nil || len(keys) != 1 || keys[0] != "PF00001" {
		tst.Error("Wrong keys:", keys, err)
	}
}

func TestNoDatabase(tst *testing.T) {
	s := New(nil, "x")
	if err := s.Save(&Record{}); err != nil {
		tst.Error("Saving without database should be a no-op, got", err)
	}
	if rec, err := s.Load(); rec != nil || err != nil {
		tst.Error("Loading without database should return nothing, got", rec, err)
	}
}

func TestLoadDataCopy(tst *testing.T) {
	db, err := Open(filepath.Join(tst.TempDir(), "copy.db"))
	if err != nil {
		tst.Fatal("Error opening database:", err)
	}
	defer db.Close()
	if err := SaveData(db, []byte("k"), []byte("value")); err != nil {
		tst.Fatal(err)
	}
	v, err := LoadData(db, []byte("k"))
	if err != nil || string(v) != "value" {
		tst.Errorf("Expected %q, got %q (%v)", "value", v, err)
	}
}
