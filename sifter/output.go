package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"bitbucket.org/Davydov/gosifter/propagate"
	"bitbucket.org/Davydov/gosifter/tree"
)

// leafPosteriors returns posteriors of the leaves by name.
func leafPosteriors(t *tree.Tree, res *propagate.Result) map[string][]float64 {
	posteriors := make(map[string][]float64)
	for _, node := range t.Terminals() {
		post, err := res.Posterior(node.Id)
		if err != nil {
			log.Debugf("%s: %v", node.Name, err)
			continue
		}
		posteriors[node.Name] = post
	}
	return posteriors
}

// writePosteriors writes the posterior table with leaves sorted by
// name.
func writePosteriors(w io.Writer, functions []int, posteriors map[string][]float64) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("#Names")
	for _, id := range functions {
		fmt.Fprintf(bw, "\tGO:%07d", id)
	}
	bw.WriteString("\n")

	names := make([]string, 0, len(posteriors))
	for name := range posteriors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		bw.WriteString(strings.ToUpper(name))
		for _, v := range posteriors[name] {
			fmt.Fprintf(bw, "\t%v", v)
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}
