package fstate

import "fmt"

// Joint enumerates concatenations of n per-child states of length l
// sharing one global weight bound. The first child occupies the
// lowest bits and varies fastest.
type Joint struct {
	n, l, k int
}

// NewJoint creates a joint enumeration over n children with l
// functions each and at most k active bits in total.
func NewJoint(n, l, k int) (*Joint, error) {
	if n <= 0 || l <= 0 || n*l > MaxLength {
		return nil, fmt.Errorf("joint state of %d x %d bits is not supported", n, l)
	}
	if k > n*l {
		k = n * l
	}
	return &Joint{n: n, l: l, k: k}, nil
}

// First returns the joint state with all children empty.
func (j *Joint) First() State {
	return First(j.n * j.l)
}

// Next returns the joint state following s.
func (j *Joint) Next(s State) (State, bool) {
	return Next(s, j.k)
}

// Part returns the state of child i; its index is the position inside
// a single-child space with the same truncation.
func (j *Joint) Part(s State, i int, sp *Space) State {
	mask := (s.mask >> uint(i*j.l)) & (1<<uint(j.l) - 1)
	idx := -1
	if sp != nil {
		idx = sp.Index(mask)
	}
	return State{mask: mask, length: j.l, index: idx}
}

// Children returns the number of concatenated children.
func (j *Joint) Children() int {
	return j.n
}
