package fstate

import (
	"math/bits"
	"testing"
)

func TestSpaceFull(tst *testing.T) {
	sp, err := NewSpace(2, 2)
	if err != nil {
		tst.Fatal("Error creating space:", err)
	}
	if sp.Size() != 4 {
		tst.Fatal("Expected 4 states, got", sp.Size())
	}
	weights := []int{0, 1, 1, 2}
	seen := make(map[uint64]bool)
	for i, s := range sp.States() {
		if s.Index() != i {
			tst.Error("Index mismatch:", s.Index(), "!=", i)
		}
		if s.Weight() != weights[i] {
			tst.Errorf("State %v: expected weight %d, got %d", s, weights[i], s.Weight())
		}
		if seen[s.Mask()] {
			tst.Error("Duplicate state:", s)
		}
		seen[s.Mask()] = true
	}
}

func TestSpaceTruncated(tst *testing.T) {
	sp, err := NewSpace(3, 2)
	if err != nil {
		tst.Fatal("Error creating space:", err)
	}
	if sp.Size() != 7 {
		tst.Fatal("Expected 7 states, got", sp.Size())
	}
	for _, s := range sp.States() {
		if s.Weight() == 3 {
			tst.Error("Weight 3 state in truncated space:", s)
		}
	}
	if sp.Index(7) != -1 {
		tst.Error("Full state should not have an index")
	}
}

func TestBinaryCountingOrder(tst *testing.T) {
	l, k := 6, 3
	sp, err := NewSpace(l, k)
	if err != nil {
		tst.Fatal(err)
	}
	var expected []uint64
	for m := uint64(0); m < 1<<uint(l); m++ {
		if bits.OnesCount64(m) <= k {
			expected = append(expected, m)
		}
	}
	if len(expected) != sp.Size() || Size(l, k) != sp.Size() {
		tst.Fatalf("Size mismatch: enumerated %d, counted %d, expected %d",
			sp.Size(), Size(l, k), len(expected))
	}
	for i, m := range expected {
		if sp.State(i).Mask() != m {
			tst.Errorf("State %d: expected mask %b, got %b", i, m, sp.State(i).Mask())
		}
	}
	last := sp.State(sp.Size() - 1)
	if last.Mask() != 0x38 {
		tst.Errorf("Last state should have top %d bits set, got %v", k, last)
	}
}

func TestNextIsPure(tst *testing.T) {
	s := First(4)
	n1, ok1 := Next(s, 2)
	n2, ok2 := Next(s, 2)
	if !ok1 || !ok2 || n1 != n2 {
		tst.Error("Next should not depend on hidden state")
	}
	if s.Mask() != 0 || s.Index() != 0 {
		tst.Error("Next modified its argument")
	}
	if n1.Index() != 1 || !n1.Has(0) {
		tst.Error("Unexpected second state:", n1)
	}
}

func TestSingleBitDifference(tst *testing.T) {
	sp, _ := NewSpace(3, 3)
	a := sp.State(sp.Index(0x5))
	if d := a.SingleBitDifference(a); d != 3 {
		tst.Error("Identical states should return length, got", d)
	}
	if d := a.SingleBitDifference(sp.State(sp.Index(0x4))); d != 0 {
		tst.Error("Expected bit 0, got", d)
	}
	if d := a.SingleBitDifference(sp.State(sp.Index(0x7))); d != 1 {
		tst.Error("Expected bit 1, got", d)
	}
	if d := a.SingleBitDifference(sp.State(sp.Index(0x2))); d != -1 {
		tst.Error("Expected -1 for two differing bits, got", d)
	}
}

func TestActive(tst *testing.T) {
	sp, _ := NewSpace(5, 5)
	s := sp.State(sp.Index(0x16))
	a := s.Active()
	if len(a) != 3 || a[0] != 1 || a[1] != 2 || a[2] != 4 {
		tst.Error("Wrong active functions:", a)
	}
	if s.String() != "01101" {
		tst.Error("Wrong string:", s.String())
	}
}

func TestChoose(tst *testing.T) {
	cases := []struct {
		n, k int
		c    float64
	}{
		{5, 2, 10},
		{10, 3, 120},
		{20, 10, 184756},
		{7, 0, 1},
		{7, 8, 0},
	}
	for _, c := range cases {
		if v := Choose(c.n, c.k); v != c.c {
			tst.Errorf("Choose(%d, %d) = %v, expected %v", c.n, c.k, v, c.c)
		}
	}
}

func TestJoint(tst *testing.T) {
	sp, _ := NewSpace(2, 2)
	j, err := NewJoint(3, 2, 2)
	if err != nil {
		tst.Fatal(err)
	}
	n := 0
	for s, ok := j.First(), true; ok; s, ok = j.Next(s) {
		total := 0
		for i := 0; i < j.Children(); i++ {
			p := j.Part(s, i, sp)
			if p.Index() < 0 {
				tst.Error("Child state outside of the space:", p)
			}
			total += p.Weight()
		}
		if total > 2 {
			tst.Error("Global weight bound violated:", s)
		}
		n++
	}
	// 1 + 6 + 15 subsets of 6 bits
	if n != 22 {
		tst.Error("Expected 22 joint states, got", n)
	}
}

func BenchmarkSpace(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewSpace(20, 4)
	}
}
