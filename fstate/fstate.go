// Package fstate enumerates function subsets: bit-vectors over L
// candidate functions with at most K active bits.
//
// States are ordered by binary counting restricted to the weight bound,
// bit 0 being the least significant one. The empty state always has
// index 0. Every package working with a rate matrix or with messages
// over states uses this order, so indices are interchangeable between
// them.
package fstate

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/gonum/mathext"
)

// MaxLength is the maximum number of functions a state can hold.
const MaxLength = 64

// State is an immutable function subset with its dense index.
type State struct {
	mask   uint64
	length int
	index  int
}

// Mask returns the bit mask of the state.
func (s State) Mask() uint64 {
	return s.mask
}

// Len returns the number of functions (bits) in the state.
func (s State) Len() int {
	return s.length
}

// Index returns the position of the state in the enumeration.
func (s State) Index() int {
	return s.index
}

// Weight returns the number of active functions.
func (s State) Weight() int {
	return bits.OnesCount64(s.mask)
}

// Has returns true if function i is active.
func (s State) Has(i int) bool {
	return s.mask&(1<<uint(i)) != 0
}

// IsEmpty is true for the state without active functions.
func (s State) IsEmpty() bool {
	return s.mask == 0
}

// Active returns indices of active functions in increasing order.
func (s State) Active() []int {
	res := make([]int, 0, s.Weight())
	for m := s.mask; m != 0; m &= m - 1 {
		res = append(res, bits.TrailingZeros64(m))
	}
	return res
}

// SingleBitDifference returns the position of the only differing bit,
// the state length if states are identical and -1 otherwise.
func (s State) SingleBitDifference(o State) int {
	d := s.mask ^ o.mask
	switch {
	case d == 0:
		return s.length
	case d&(d-1) == 0:
		return bits.TrailingZeros64(d)
	}
	return -1
}

// String returns bits from the first function to the last one.
func (s State) String() string {
	var b strings.Builder
	for i := 0; i < s.length; i++ {
		if s.Has(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// First returns the empty state of length l.
func First(l int) State {
	return State{length: l}
}

// Next returns the state following s under weight bound k. The
// second value is false when s is the last state.
func Next(s State, k int) (State, bool) {
	m := s.mask + 1
	for m != 0 && bits.OnesCount64(m) > k {
		// all the integers below m+lowbit(m) share m's upper bits
		m += m & -m
	}
	if m == 0 || (s.length < MaxLength && m>>uint(s.length) != 0) {
		return s, false
	}
	return State{mask: m, length: s.length, index: s.index + 1}, true
}

// Space is the (L, K) state space with all its states enumerated.
type Space struct {
	l, k   int
	states []State
	index  map[uint64]int
}

// NewSpace creates a state space for l functions with at most k
// active ones. K is clamped to [0, l].
func NewSpace(l, k int) (*Space, error) {
	if l <= 0 || l > MaxLength {
		return nil, fmt.Errorf("number of functions should be in [1, %d], got %d", MaxLength, l)
	}
	if k > l {
		k = l
	}
	if k < 0 {
		k = 0
	}
	size := Size(l, k)
	sp := &Space{
		l:      l,
		k:      k,
		states: make([]State, 0, size),
		index:  make(map[uint64]int, size),
	}
	for s, ok := First(l), true; ok; s, ok = Next(s, k) {
		sp.index[s.mask] = s.index
		sp.states = append(sp.states, s)
	}
	return sp, nil
}

// L returns the number of functions.
func (sp *Space) L() int {
	return sp.l
}

// K returns the truncation level.
func (sp *Space) K() int {
	return sp.k
}

// Size returns the number of states.
func (sp *Space) Size() int {
	return len(sp.states)
}

// States returns all states in enumeration order.
func (sp *Space) States() []State {
	return sp.states
}

// State returns the state with index i.
func (sp *Space) State(i int) State {
	return sp.states[i]
}

// Index returns the index of the state with the given mask, or -1 if
// it is outside of the space.
func (sp *Space) Index(mask uint64) int {
	if i, ok := sp.index[mask]; ok {
		return i
	}
	return -1
}

// Singletons returns indices of the weight one states; element j is
// the state with only function j active.
func (sp *Space) Singletons() []int {
	res := make([]int, sp.l)
	for j := range res {
		res[j] = sp.Index(1 << uint(j))
	}
	return res
}

// Choose returns the binomial coefficient C(n, k).
func Choose(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	if k == 0 || k == n {
		return 1
	}
	// C(n, k) = 1 / ((n+1) B(n-k+1, k+1))
	return math.Round(math.Exp(-mathext.Lbeta(float64(n-k+1), float64(k+1))) / float64(n+1))
}

// Size returns the number of states with at most k of l bits set.
func Size(l, k int) (size int) {
	if k > l {
		k = l
	}
	for i := 0; i <= k; i++ {
		size += int(Choose(l, i))
	}
	return
}
