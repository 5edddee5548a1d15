package nodemask

import "testing"

func TestSetClearHas(t *testing.T) {
	var m NodeMask
	m = m.Set(1).Set(16)
	if !m.Has(1) || !m.Has(16) {
		t.Fatalf("expected bits 1 and 16 set, got %016b", m)
	}
	if m.Has(2) {
		t.Fatalf("bit 2 should not be set")
	}
	m = m.Clear(1)
	if m.Has(1) {
		t.Fatalf("bit 1 should have been cleared")
	}
}

func TestAllBitsExercised(t *testing.T) {
	// Property test 9: with max_nodes = MAX_NODES, all bits are usable.
	var m NodeMask
	for id := 1; id <= 16; id++ {
		m = m.Set(id)
	}
	if m.Count() != 16 {
		t.Fatalf("expected 16 members, got %d", m.Count())
	}
	if m != 0xFFFF {
		t.Fatalf("expected full mask, got %016b", m)
	}
	for id := 1; id <= 16; id++ {
		m = m.Clear(id)
	}
	if !m.Empty() {
		t.Fatalf("expected empty mask after clearing all bits, got %016b", m)
	}
}

func TestUnionIntersectDiff(t *testing.T) {
	a := Of(1, 2, 3)
	b := Of(2, 3, 4)
	if got := a.Union(b); got != Of(1, 2, 3, 4) {
		t.Fatalf("union mismatch: %016b", got)
	}
	if got := a.Intersect(b); got != Of(2, 3) {
		t.Fatalf("intersect mismatch: %016b", got)
	}
	if got := a.Diff(b); got != Of(1) {
		t.Fatalf("diff mismatch: %016b", got)
	}
}

func TestLowestSetBit(t *testing.T) {
	if Of().LowestSetBit() != 0 {
		t.Fatalf("empty mask should report 0")
	}
	if Of(3, 5, 7).LowestSetBit() != 3 {
		t.Fatalf("expected lowest bit 3")
	}
}

func TestIsSubsetOf(t *testing.T) {
	all := Of(1, 2, 3, 4)
	disabled := Of(4)
	self := 2
	participants := all.Diff(disabled).Clear(self)
	if !participants.IsSubsetOf(all.Diff(disabled)) {
		t.Fatalf("participants must be subset of all\\disabled")
	}
	if participants.Has(self) {
		t.Fatalf("self must never be a participant")
	}
}

func TestNodes(t *testing.T) {
	m := Of(5, 1, 3)
	got := m.Nodes()
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %v want %v", i, got, want)
		}
	}
}
