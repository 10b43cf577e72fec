package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"bitbucket.org/Davydov/gosifter/optimize"
)

// lastLine returns the last line of a file content.
func lastLine(fn string) (line string, err error) {
	f, err := os.Open(fn)
	if err != nil {
		return line, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line = scanner.Text()
	}
	err = scanner.Err()
	return line, err
}

// readStartJSON reads parameters of a JSON run summary.
func readStartJSON(fn string, pars optimize.FloatParameters) error {
	b, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	var summary struct {
		Parameters json.RawMessage `json:"parameters"`
	}
	if err := json.Unmarshal(b, &summary); err != nil {
		return err
	}
	if len(summary.Parameters) == 0 {
		return errors.New("no parameters in the summary")
	}
	return json.Unmarshal(summary.Parameters, &pars)
}

// readStart sets parameters from the last line of an EM trajectory or
// from a JSON run summary.
func readStart(fn string, pars optimize.FloatParameters) error {
	l, err := lastLine(fn)
	if err == nil {
		err = pars.ReadLine(l)
	}
	if err != nil {
		log.Debug("Reading start file as JSON")
		err2 := readStartJSON(fn, pars)
		// fn is neither trajectory nor correct JSON
		if err2 != nil {
			log.Error("Error reading start position from JSON:", err2)
			return fmt.Errorf("reading start position from trajectory: %w", err)
		}
	}
	if !pars.InRange() {
		return errors.New("initial parameters are not in the range")
	}
	return nil
}
