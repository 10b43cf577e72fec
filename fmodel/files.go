package fmodel

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"bitbucket.org/Davydov/gosifter/optimize"
)

// scaleHeader starts the first line of a rates file.
const scaleHeader = "# scale parameter:"

// minScale is the smallest scale value accepted from a file.
const minScale = -0.05

// Files names the three parameter files.
type Files struct {
	Rates string
	Scale string
	Alpha string
}

// ReadParams reads all the parameter files.
func ReadParams(f Files) (*Params, error) {
	par := &Params{}
	if err := readFile(f.Rates, func(r io.Reader) (err error) {
		par.Functions, par.Theta, par.Scale, err = ReadRates(r)
		return
	}); err != nil {
		return nil, err
	}
	if err := readFile(f.Scale, func(r io.Reader) (err error) {
		par.Scales, err = ReadScales(r)
		return
	}); err != nil {
		return nil, err
	}
	if err := readFile(f.Alpha, func(r io.Reader) (err error) {
		par.Alpha, err = ReadAlpha(r)
		return
	}); err != nil {
		return nil, err
	}
	if err := par.Check(); err != nil {
		return nil, err
	}
	return par, nil
}

// WriteParams writes all the parameter files.
func WriteParams(f Files, par *Params) error {
	if err := writeFile(f.Rates, func(w io.Writer) error {
		return WriteRates(w, par)
	}); err != nil {
		return err
	}
	if err := writeFile(f.Scale, func(w io.Writer) error {
		return WriteScales(w, par)
	}); err != nil {
		return err
	}
	return writeFile(f.Alpha, func(w io.Writer) error {
		return WriteAlpha(w, par)
	})
}

func readFile(name string, read func(io.Reader) error) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := read(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}

func writeFile(name string, write func(io.Writer) error) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadRates reads the conversion matrix. A line starting with tab
// lists function ids, other lines are an id followed by the matrix
// row. Text after # is ignored, the scale header is parsed if present.
func ReadRates(r io.Reader) (functions []int, theta [][]float64, scale float64, err error) {
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if strings.HasPrefix(line, scaleHeader) {
			v := strings.TrimSpace(line[len(scaleHeader):])
			if scale, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, nil, 0, fmt.Errorf("line %d: %w", lineno, err)
			}
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if fields[0] == "" {
			for _, s := range fields[1:] {
				if s == "" {
					continue
				}
				id, err := strconv.Atoi(strings.TrimSpace(s))
				if err != nil {
					return nil, nil, 0, fmt.Errorf("line %d: %w", lineno, err)
				}
				functions = append(functions, id)
			}
			continue
		}
		row, err := optimize.ReadFloats(strings.Join(fields[1:], " "))
		if err != nil {
			return nil, nil, 0, fmt.Errorf("line %d: %w", lineno, err)
		}
		theta = append(theta, row)
	}
	if err = scanner.Err(); err != nil {
		return nil, nil, 0, err
	}
	for _, row := range theta {
		if len(row) != len(theta) {
			return nil, nil, 0, &DimensionError{"rates row", len(row), len(theta)}
		}
	}
	if functions != nil && len(functions) != len(theta) {
		return nil, nil, 0, &DimensionError{"rates function ids", len(functions), len(theta)}
	}
	return
}

// WriteRates writes the conversion matrix with the scale header.
func WriteRates(w io.Writer, par *Params) error {
	if _, err := fmt.Fprintf(w, "%s %v\n", scaleHeader, par.Scale); err != nil {
		return err
	}
	for _, id := range par.Functions {
		if _, err := fmt.Fprintf(w, "\t%d", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	for i, row := range par.Theta {
		id := i
		if i < len(par.Functions) {
			id = par.Functions[i]
		}
		if _, err := fmt.Fprint(w, id); err != nil {
			return err
		}
		for _, v := range row {
			if _, err := fmt.Fprintf(w, "\t%v", v); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// ReadScales reads name/value pairs. Values below -0.05 are skipped.
func ReadScales(r io.Reader) (map[string]float64, error) {
	scales := make(map[string]float64)
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: scale value is missing", lineno)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		if v <= minScale {
			log.Warningf("Skipping scale %s=%v", fields[0], v)
			continue
		}
		scales[fields[0]] = v
	}
	return scales, scanner.Err()
}

// WriteScales writes scales sorted by name.
func WriteScales(w io.Writer, par *Params) error {
	for _, name := range par.ScaleNames() {
		if _, err := fmt.Fprintf(w, "%s\t%v\n", name, par.Scales[name]); err != nil {
			return err
		}
	}
	return nil
}

// ReadAlpha reads whitespace separated alpha values.
func ReadAlpha(r io.Reader) ([]float64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return optimize.ReadFloats(string(b))
}

// WriteAlpha writes one alpha value per line.
func WriteAlpha(w io.Writer, par *Params) error {
	for _, v := range par.Alpha {
		if _, err := fmt.Fprintf(w, "%v\t\n", v); err != nil {
			return err
		}
	}
	return nil
}
