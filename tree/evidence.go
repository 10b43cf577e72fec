package tree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"bitbucket.org/Davydov/gosifter/fmodel"
	"bitbucket.org/Davydov/gosifter/optimize"
)

// ReadEvidence attaches per-leaf evidence vectors of length l. Each
// line is a leaf name followed by l values; lines starting with # are
// ignored. Unknown leaves are skipped with a warning. It returns the
// number of leaves that received evidence.
func (tree *Tree) ReadEvidence(rd io.Reader, l int) (n int, err error) {
	scanner := bufio.NewScanner(rd)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		values, err := optimize.ReadFloats(strings.Join(fields[1:], " "))
		if err != nil {
			return n, fmt.Errorf("evidence line %d: %w", lineno, err)
		}
		if err := tree.SetEvidence(fields[0], values, l); err != nil {
			var derr *fmodel.DimensionError
			if errors.As(err, &derr) {
				return n, fmt.Errorf("evidence line %d: %w", lineno, err)
			}
			log.Warning(err)
			continue
		}
		n++
	}
	return n, scanner.Err()
}

// SetEvidence attaches evidence to a named leaf.
func (tree *Tree) SetEvidence(name string, values []float64, l int) error {
	if len(values) != l {
		return &fmodel.DimensionError{What: "evidence for " + name, Got: len(values), Want: l}
	}
	node := tree.ByName(name)
	if node == nil {
		return fmt.Errorf("unknown leaf %s", name)
	}
	if !node.IsTerminal() {
		return fmt.Errorf("node %s is not a leaf", name)
	}
	node.Evidence = append([]float64(nil), values...)
	return nil
}

// ClearEvidence removes evidence from all the nodes.
func (tree *Tree) ClearEvidence() {
	for _, node := range tree.nodes {
		node.Evidence = nil
	}
}

// EvidenceNodes returns ids of the leaves with evidence and all their
// ancestors except the root, in post-order.
func (tree *Tree) EvidenceNodes() []int {
	marked := make([]bool, len(tree.nodes))
	for _, node := range tree.nodes {
		if !node.HasEvidence() {
			continue
		}
		for id := node.Id; id != NoParent && !marked[id]; id = tree.nodes[id].Parent {
			marked[id] = true
		}
	}
	var res []int
	for _, id := range tree.NodeOrder() {
		if marked[id] && !tree.nodes[id].IsRoot() {
			res = append(res, id)
		}
	}
	return res
}
