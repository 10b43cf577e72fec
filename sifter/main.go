/*

Sifter predicts molecular functions of proteins in a gene family. It
propagates annotation evidence over a reconciled phylogeny using a
continuous-time Markov model of function gain, loss and conversion.

Generate default parameters for a family with three GO terms:

	sifter --family PF00001 generate 3674 5524 16787

This writes infer-PF00001.fx, scale-PF00001.fx and alpha-PF00001.fx.
Estimate the parameters with expectation-maximization:

	sifter --family PF00001 em --save . tree.nwk evidence.txt

and compute the posterior probabilities:

	sifter --family PF00001 infer tree.nwk evidence.txt

To see all the options run:

	sifter --help

*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gosifter/fmodel"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("sifter")
var formatter = logging.MustStringFormatter(`%{message}`)

// modules are the logging modules controlled by --loglevel.
var modules = []string{"sifter", "fmodel", "tree", "propagate", "estimate", "store"}

// command-line options
var (
	// application
	app = kingpin.New("sifter", "protein function prediction over reconciled phylogenies").Version(version)

	// settings, negative values mean unset
	configF    = app.Flag("config", "read settings from a YAML file").ExistingFile()
	truncation = app.Flag("truncation", "maximum number of simultaneously active functions (10 by default)").Default("-1").Int()
	alignLen   = app.Flag("alignlen", "alignment length used to normalize branch lengths (1 by default)").Default("-1").Int()
	prior      = app.Flag("prior", "single leaf prior, computed from the number of functions by default").Default("-1").Float64()

	// parameter files
	familyName = app.Flag("family", "family name, used in the default parameter file names and as the database key").Default("family").String()
	paramDir   = app.Flag("params", "directory with the parameter files").Default(".").String()
	fxF        = app.Flag("fx", "rates parameter file (infer-<family>.fx by default)").String()
	sfxF       = app.Flag("sfx", "scale parameter file (scale-<family>.fx by default)").String()
	afxF       = app.Flag("afx", "alpha parameter file (alpha-<family>.fx by default)").String()
	startF     = app.Flag("start", "read start parameters from the trajectory or JSON file").ExistingFile()

	// technical
	nThreads   = app.Flag("nt", "number of threads to use").Default("-1").Int()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	outF     = app.Flag("out", "write posterior table to a file").String()
	dbF      = app.Flag("db", "results database file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()

	// generate
	generateCmd = app.Command("generate", "write default parameter files")
	functions   = generateCmd.Arg("functions", "GO term ids").Required().Ints()

	// infer
	inferCmd      = app.Command("infer", "compute posterior function probabilities")
	inferTree     = inferCmd.Arg("tree", "reconciled tree in Newick format").Required().ExistingFile()
	inferEvidence = inferCmd.Arg("evidence", "leaf evidence table").Required().ExistingFile()

	// em
	emCmd      = app.Command("em", "estimate parameters using expectation-maximization")
	emTree     = emCmd.Arg("tree", "reconciled tree in Newick format").Required().ExistingFile()
	emEvidence = emCmd.Arg("evidence", "leaf evidence table").Required().ExistingFile()
	iterations = emCmd.Flag("iter", "maximum number of iterations (4000 by default)").Default("-1").Int()
	step       = emCmd.Flag("step", "step size (0.01 by default)").Default("-1").Float64()
	cutoff     = emCmd.Flag("cutoff", "convergence cutoff (0.000115 by default)").Default("-1").Float64()
	trajF      = emCmd.Flag("trajectory", "write EM trajectory to a file").String()
	iterDir    = emCmd.Flag("iterdir", "write parameters of every iteration to a directory").String()
	saveDir    = emCmd.Flag("save", "write estimated parameters to a directory").String()

	// show
	showCmd    = app.Command("show", "print stored results")
	showFamily = showCmd.Arg("family", "family to print, all families are listed by default").String()
)

// paramFiles returns parameter file names of the family in dir.
func paramFiles(dir, family string) fmodel.Files {
	return fmodel.Files{
		Rates: filepath.Join(dir, "infer-"+family+".fx"),
		Scale: filepath.Join(dir, "scale-"+family+".fx"),
		Alpha: filepath.Join(dir, "alpha-"+family+".fx"),
	}
}

// inputFiles returns parameter files with command-line overrides.
func inputFiles() fmodel.Files {
	files := paramFiles(*paramDir, *familyName)
	if *fxF != "" {
		files.Rates = *fxF
	}
	if *sfxF != "" {
		files.Scale = *sfxF
	}
	if *afxF != "" {
		files.Alpha = *afxF
	}
	return files
}

// settings combines defaults, the config file and the command line.
func settings() (Settings, error) {
	s, err := LoadSettings(*configF)
	if err != nil {
		return s, err
	}
	return Overrides{
		Truncation:  *truncation,
		Iterations:  *iterations,
		StepSize:    *step,
		Cutoff:      *cutoff,
		AlignLength: *alignLen,
		Prior:       *prior,
		Workers:     *nThreads,
	}.Apply(s)
}

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, module := range modules {
		logging.SetLevel(level, module)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	s, err := settings()
	if err != nil {
		log.Fatal("Error in settings:", err)
	}
	if s.Workers > 0 {
		runtime.GOMAXPROCS(s.Workers)
	}
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	startTime := time.Now()
	summary := &RunSummary{
		Version:     version,
		CommandLine: os.Args,
		NThreads:    effectiveNThreads,
		Settings:    s,
		Family:      *familyName,
	}

	switch cmd {
	case generateCmd.FullCommand():
		err = runGenerate(paramFiles(*paramDir, *familyName), *functions)
	case inferCmd.FullCommand():
		err = runInfer(s, summary, *inferTree, *inferEvidence)
	case emCmd.FullCommand():
		err = runEM(context.Background(), s, summary, *emTree, *emEvidence)
	case showCmd.FullCommand():
		err = runShow(*showFamily)
	}

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()

	// the summary is written for failed runs too
	writeSummary(summary)
	if err != nil {
		log.Fatal(err)
	}
}

// writeSummary outputs the summary in json format.
func writeSummary(summary *RunSummary) {
	if *jsonF == "" {
		return
	}
	j, err := json.Marshal(summary)
	if err != nil {
		log.Error(err)
		return
	}
	log.Debug(string(j))
	f, err := os.Create(*jsonF)
	if err != nil {
		log.Error("Error creating json output file:", err)
		return
	}
	defer f.Close()
	f.Write(j)
}
