// Package tree implements a reconciled phylogeny stored as an arena
// of nodes addressed by integer ids.
package tree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("tree")

// NoParent is the parent id of the root.
const NoParent = -1

type Mode int

const (
	NORMAL Mode = iota
	LENGTH
	CLASS
)

// Node is a single tree node. Parent and Children are node ids.
type Node struct {
	Id       int
	Name     string
	Parent   int
	Children []int
	// BranchLength is the distance to the parent.
	BranchLength float64
	// Duplication is set for gene duplication events.
	Duplication bool
	// Evidence are per-function annotation probabilities (leaves only).
	Evidence []float64
	LeafId   int
}

// IsRoot returns true for the root node.
func (node *Node) IsRoot() bool {
	return node.Parent == NoParent
}

// IsTerminal returns true for leaves.
func (node *Node) IsTerminal() bool {
	return len(node.Children) == 0
}

// HasEvidence returns true if the node has an evidence vector.
func (node *Node) HasEvidence() bool {
	return node.Evidence != nil
}

func (node *Node) LongString() (s string) {
	s = "<"
	if node.IsRoot() {
		s += "root, "
	}
	if node.Name != "" {
		s += "name=" + node.Name + ", "
	}
	s += fmt.Sprintf("Id=%v, BranchLength=%v", node.Id, node.BranchLength)
	if node.IsTerminal() {
		s += fmt.Sprintf(", TipId=%v", node.LeafId)
	}
	if node.Duplication {
		s += ", duplication"
	}
	s += ">"
	return
}

// Tree is the node arena; node 0 is the root.
type Tree struct {
	nodes     []*Node
	byName    map[string]*Node
	postOrder []int
}

func (tree *Tree) newNode(parent int) *Node {
	node := &Node{Id: len(tree.nodes), Parent: parent, BranchLength: -1}
	tree.nodes = append(tree.nodes, node)
	if parent != NoParent {
		p := tree.nodes[parent]
		p.Children = append(p.Children, node.Id)
	}
	return node
}

// ClearCache drops cached traversal orders and the name index.
func (tree *Tree) ClearCache() {
	tree.byName = nil
	tree.postOrder = nil
}

// NNodes returns the number of nodes.
func (tree *Tree) NNodes() int {
	return len(tree.nodes)
}

// Root returns the root node.
func (tree *Tree) Root() *Node {
	return tree.nodes[0]
}

// Node returns the node with the given id.
func (tree *Tree) Node(id int) *Node {
	return tree.nodes[id]
}

// Nodes returns all nodes ordered by id.
func (tree *Tree) Nodes() []*Node {
	return tree.nodes
}

// Parent returns the parent node or nil for the root.
func (tree *Tree) Parent(node *Node) *Node {
	if node.IsRoot() {
		return nil
	}
	return tree.nodes[node.Parent]
}

// Terminals returns all the leaves.
func (tree *Tree) Terminals() (leaves []*Node) {
	for _, node := range tree.nodes {
		if node.IsTerminal() {
			leaves = append(leaves, node)
		}
	}
	return
}

// NLeaves returns the number of leaves.
func (tree *Tree) NLeaves() (i int) {
	for _, node := range tree.nodes {
		if node.IsTerminal() {
			i++
		}
	}
	return
}

// ByName returns a named node or nil.
func (tree *Tree) ByName(name string) *Node {
	if tree.byName == nil {
		tree.byName = make(map[string]*Node, len(tree.nodes))
		for _, node := range tree.nodes {
			if node.Name != "" {
				tree.byName[node.Name] = node
			}
		}
	}
	return tree.byName[name]
}

// NodeOrder returns node ids in post-order: children always precede
// their parent and the root is last.
func (tree *Tree) NodeOrder() []int {
	if tree.postOrder == nil {
		order := make([]int, 0, len(tree.nodes))
		type frame struct{ id, next int }
		stack := []frame{{0, 0}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			node := tree.nodes[top.id]
			if top.next < len(node.Children) {
				child := node.Children[top.next]
				top.next++
				stack = append(stack, frame{child, 0})
				continue
			}
			order = append(order, top.id)
			stack = stack[:len(stack)-1]
		}
		tree.postOrder = order
	}
	return tree.postOrder
}

// PreOrder returns node ids with every parent before its children.
func (tree *Tree) PreOrder() []int {
	post := tree.NodeOrder()
	pre := make([]int, len(post))
	for i, id := range post {
		pre[len(post)-1-i] = id
	}
	return pre
}

// Copy creates independent copy of the tree.
func (tree *Tree) Copy() *Tree {
	newTree := &Tree{nodes: make([]*Node, len(tree.nodes))}
	for i, node := range tree.nodes {
		if i != node.Id {
			panic("node id mismatch")
		}
		n := *node
		n.Children = append([]int(nil), node.Children...)
		if node.Evidence != nil {
			n.Evidence = append([]float64(nil), node.Evidence...)
		}
		newTree.nodes[i] = &n
	}
	return newTree
}

// NormalizeDistances converts branch lengths into (0, 1]. Lengths in
// (0, 1) are kept, zero or lengths of at least one are divided by the
// alignment length, non-positive results become 1/alignLen and missing
// lengths become 1. Non-positive alignLen is treated as 1.
func (tree *Tree) NormalizeDistances(alignLen int) {
	if alignLen <= 0 {
		alignLen = 1
	}
	a := float64(alignLen)
	for _, node := range tree.nodes {
		pd := node.BranchLength
		switch {
		case pd < 0:
			pd = 1
		case pd >= 1 || pd == 0:
			pd /= a
		}
		if pd <= 0 {
			pd = 1 / a
		}
		if pd > 1 {
			pd = 1
		}
		node.BranchLength = pd
	}
}

// String returns the Newick representation; duplications are marked
// with #1.
func (tree *Tree) String() string {
	var b strings.Builder
	tree.write(&b, tree.Root())
	b.WriteString(";")
	return b.String()
}

func (tree *Tree) write(b *strings.Builder, node *Node) {
	if !node.IsTerminal() {
		b.WriteString("(")
		for i, child := range node.Children {
			if i > 0 {
				b.WriteString(",")
			}
			tree.write(b, tree.nodes[child])
		}
		b.WriteString(")")
	}
	b.WriteString(node.Name)
	if node.Duplication {
		b.WriteString("#1")
	}
	fmt.Fprintf(b, ":%0.6f", node.BranchLength)
}

// FullString returns an indented node listing.
func (tree *Tree) FullString() string {
	var b strings.Builder
	var rec func(id int, prefix string)
	rec = func(id int, prefix string) {
		node := tree.nodes[id]
		b.WriteString(prefix + node.LongString() + "\n")
		for _, child := range node.Children {
			rec(child, prefix+"    ")
		}
	}
	rec(0, "")
	return strings.TrimSpace(b.String())
}

func IsSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', '#', ';', ',':
		return true
	}
	return false

}

// NewickSplit is a bufio.SplitFunc for Newick tokens. Comments in
// square brackets are returned as a single token.
func NewickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if IsSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if r == '[' {
			if end := strings.IndexByte(string(data[start:]), ']'); end >= 0 {
				return start + end + 1, data[start : start+end+1], nil
			}
			if atEOF {
				return 0, nil, errors.New("unterminated comment")
			}
			return 0, nil, nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// Scan until space or special character.
	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || IsSpecial(r) || r == '[' {
			return i, data[start:i], nil
		}
	}
	// If we're at EOF, we have a final, non-empty, non-terminated word. Return it.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return 0, nil, nil
}

// ParseNewick reads a Newick tree. A node class of 1 (name#1) or an
// NHX comment with D=Y marks a duplication node. Branch lengths are
// kept as is, missing lengths are negative.
func ParseNewick(rd io.Reader) (tree *Tree, err error) {
	scanner := bufio.NewScanner(rd)

	scanner.Split(NewickSplit)

	tree = &Tree{}
	node := tree.newNode(NoParent)

	mode := NORMAL

	for scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			node = tree.newNode(node.Id)

		case ",":
			if node.IsRoot() {
				return nil, errors.New("top level comma mismatch")
			}
			node = tree.newNode(node.Parent)

		case ")":
			if node.IsRoot() {
				return nil, errors.New("brackets mismatch")
			}
			node = tree.nodes[node.Parent]
		case "#":
			mode = CLASS
		case ":":
			mode = LENGTH
		case ";":
			return tree.finish()
		default:
			if strings.HasPrefix(text, "[") {
				if strings.Contains(strings.ToUpper(text), "D=Y") {
					node.Duplication = true
				}
				continue
			}
			switch mode {
			case LENGTH:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				node.BranchLength = l
				mode = NORMAL
			case CLASS:
				cl, err := strconv.ParseInt(text, 0, 0)
				if err != nil {
					return nil, err
				}
				node.Duplication = cl == 1
				mode = NORMAL
			default:
				node.Name = text
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tree.finish()
}

// finish numbers the leaves and checks the tree is not empty.
func (tree *Tree) finish() (*Tree, error) {
	leafId := 0
	for _, node := range tree.nodes {
		if node.IsTerminal() {
			node.LeafId = leafId
			leafId++
		}
	}
	if len(tree.nodes) < 2 {
		return nil, errors.New("tree has no branches")
	}
	log.Debugf("Parsed tree with %d nodes and %d leaves", len(tree.nodes), leafId)
	return tree, nil
}
