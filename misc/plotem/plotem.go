// Plotem plots EM convergence (delta per iteration) from one or more
// trajectory files written by sifter em --trajectory.
package main

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var log = logging.MustGetLogger("plotem")

var (
	app    = kingpin.New("plotem", "plot EM trajectories")
	files  = app.Arg("trajectory", "trajectory files").Required().ExistingFiles()
	outF   = app.Flag("out", "output image, format is taken from the extension").Short('o').Default("em.png").String()
	logY   = app.Flag("log", "plot log10 of delta").Bool()
	size   = app.Flag("size", "image size in inches").Default("5").Float64()
	cutoff = app.Flag("cutoff", "draw a horizontal line at the convergence cutoff").Default("0").Float64()
)

// readTrajectory reads iteration and delta columns. The header line
// and lines which cannot be parsed are skipped.
func readTrajectory(rd io.Reader) (plotter.XYs, error) {
	var pts plotter.XYs
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), "\t", 3)
		if len(fields) < 2 {
			continue
		}
		iter, err := strconv.Atoi(fields[0])
		if err != nil {
			// header
			continue
		}
		delta, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			log.Warningf("Bad delta at iteration %d: %v", iter, err)
			continue
		}
		pts = append(pts, plotter.XY{X: float64(iter), Y: delta})
	}
	return pts, scanner.Err()
}

// toLog replaces Y with log10(Y). Non-positive values are dropped.
func toLog(pts plotter.XYs) plotter.XYs {
	res := make(plotter.XYs, 0, len(pts))
	for _, pt := range pts {
		if pt.Y > 0 {
			res = append(res, plotter.XY{X: pt.X, Y: math.Log10(pt.Y)})
		}
	}
	return res
}

// newPlot creates a plot of the trajectories; lines alternate names
// and points as plotutil.AddLinePoints expects. A positive cutoff is
// drawn as a dashed line up to the last iteration.
func newPlot(lines []interface{}, last, cutoff float64, logY bool) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "EM convergence"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "delta"
	if logY {
		p.Y.Label.Text = "log10(delta)"
	}

	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return nil, err
	}

	if cutoff > 0 {
		y := cutoff
		if logY {
			y = math.Log10(y)
		}
		line, err := plotter.NewLine(plotter.XYs{{X: 0, Y: y}, {X: last, Y: y}})
		if err != nil {
			return nil, err
		}
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("cutoff=%g", cutoff), line)
	}
	return p, nil
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	var lines []interface{}
	last := 0.0
	for _, fn := range *files {
		f, err := os.Open(fn)
		if err != nil {
			log.Fatal(err)
		}
		pts, err := readTrajectory(f)
		f.Close()
		if err != nil {
			log.Fatalf("Error reading %s: %v", fn, err)
		}
		if *logY {
			pts = toLog(pts)
		}
		if len(pts) == 0 {
			log.Warningf("No iterations in %s", fn)
			continue
		}
		last = math.Max(last, pts[len(pts)-1].X)
		lines = append(lines, filepath.Base(fn), pts)
	}
	if len(lines) == 0 {
		log.Fatal("Nothing to plot")
	}

	p, err := newPlot(lines, last, *cutoff, *logY)
	if err != nil {
		log.Fatal(err)
	}
	if err := p.Save(vg.Length(*size)*vg.Inch, vg.Length(*size)*vg.Inch, *outF); err != nil {
		log.Fatal(err)
	}
	log.Noticef("Saved %s", *outF)
}
