package tree

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"bitbucket.org/Davydov/gosifter/fmodel"
)

const (
	tree2 = "((a:1,b:2)#1:3,c:1):0;"
	tree3 = "((a:0.5,b)[&&NHX:D=Y]:0.2,c:0);"
)

func TestParseDuplication(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree2))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	tst.Log("Got tree:", t.FullString())
	if t.NNodes() != 5 || t.NLeaves() != 3 {
		tst.Fatal("Wrong tree size", t.NNodes(), t.NLeaves())
	}
	ab := t.Node(t.ByName("a").Parent)
	if !ab.Duplication {
		tst.Error("Expected duplication node")
	}
	if t.Root().Duplication || t.ByName("c").Duplication {
		tst.Error("Unexpected duplication node")
	}
	if ab.BranchLength != 3 || t.ByName("b").BranchLength != 2 {
		tst.Error("Wrong branch lengths")
	}
	if t.String() != "((a:1.000000,b:2.000000)#1:3.000000,c:1.000000):0.000000;" {
		tst.Error("Wrong newick, got:", t)
	}
}

func TestParseNHX(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree3))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	ab := t.Node(t.ByName("a").Parent)
	if !ab.Duplication || ab.BranchLength != 0.2 {
		tst.Error("NHX duplication was not parsed:", ab.LongString())
	}
	if t.ByName("b").BranchLength >= 0 {
		tst.Error("Missing branch length should be negative")
	}
}

func TestParseErrors(tst *testing.T) {
	for _, s := range []string{"(a,b));", "a,b;", "(a:x,b);"} {
		if _, err := ParseNewick(strings.NewReader(s)); err == nil {
			tst.Error("Expected error parsing", s)
		}
	}
}

func TestOrders(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree1))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	post := t.NodeOrder()
	if len(post) != t.NNodes() {
		tst.Fatal("Post-order has", len(post), "nodes, expected", t.NNodes())
	}
	pos := make([]int, t.NNodes())
	for i, id := range post {
		pos[id] = i
	}
	for _, node := range t.Nodes() {
		for _, child := range node.Children {
			if pos[child] >= pos[node.Id] {
				tst.Error("Child", child, "after parent", node.Id)
			}
		}
	}
	if post[len(post)-1] != 0 {
		tst.Error("Root is not last")
	}
	if t.PreOrder()[0] != 0 {
		tst.Error("Root is not first in pre-order")
	}
}

func TestNormalizeDistances(tst *testing.T) {
	t, err := ParseNewick(strings.NewReader("((a:0.5,b:20)#1:0,c:3,d):0;"))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	t.NormalizeDistances(10)
	exp := map[string]float64{"a": 0.5, "b": 1, "c": 0.3, "d": 1}
	for name, v := range exp {
		if got := t.ByName(name).BranchLength; math.Abs(got-v) > 1e-12 {
			tst.Errorf("%s: expected %v, got %v", name, v, got)
		}
	}
	if got := t.Node(t.ByName("a").Parent).BranchLength; math.Abs(got-0.1) > 1e-12 {
		tst.Error("Zero length: expected 0.1, got", got)
	}

	t, _ = ParseNewick(strings.NewReader("(a:0,b:4):0;"))
	t.NormalizeDistances(0)
	if t.ByName("a").BranchLength != 1 || t.ByName("b").BranchLength != 1 {
		tst.Error("Wrong lengths without alignment length:", t)
	}
}

func TestReadEvidence(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree2))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	in := "# leaf evidence\na\t1\t0\nc\t0.2\t0.8\nunknown\t1\t1\n"
	n, err := t.ReadEvidence(strings.NewReader(in), 2)
	if err != nil {
		tst.Fatal("Error reading evidence", err)
	}
	if n != 2 {
		tst.Error("Expected 2 leaves with evidence, got", n)
	}
	if !t.ByName("a").HasEvidence() || t.ByName("b").HasEvidence() {
		tst.Error("Evidence attached to wrong leaves")
	}
	if t.ByName("c").Evidence[1] != 0.8 {
		tst.Error("Wrong evidence value", t.ByName("c").Evidence)
	}

	// a, its parent and c; the root is excluded
	ids := t.EvidenceNodes()
	if len(ids) != 3 {
		tst.Error("Expected 3 evidence nodes, got", ids)
	}
	for _, id := range ids {
		if t.Node(id).IsRoot() {
			tst.Error("Root among evidence nodes")
		}
	}

	var derr *fmodel.DimensionError
	_, err = t.ReadEvidence(strings.NewReader("b\t1\t0\t1\n"), 2)
	if !errors.As(err, &derr) {
		tst.Error("Expected dimension error, got", err)
	}

	t.ClearEvidence()
	if t.ByName("a").HasEvidence() {
		tst.Error("Evidence was not cleared")
	}
}
