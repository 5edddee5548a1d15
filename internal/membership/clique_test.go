package membership

import (
	"testing"

	"github.com/mtmcore/arbiter/internal/nodemask"
)

func TestLargestCliqueFullyConnected(t *testing.T) {
	views := map[int]nodemask.NodeMask{
		1: nodemask.Of(1, 2, 3),
		2: nodemask.Of(1, 2, 3),
		3: nodemask.Of(1, 2, 3),
	}
	got := LargestClique(1, views)
	want := nodemask.Of(1, 2, 3)
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestLargestCliqueAsymmetricEdgeExcluded(t *testing.T) {
	// 1 claims to see 3, but 3 does not claim to see 1: not an edge.
	views := map[int]nodemask.NodeMask{
		1: nodemask.Of(1, 2, 3),
		2: nodemask.Of(1, 2),
		3: nodemask.Of(3),
	}
	got := LargestClique(1, views)
	want := nodemask.Of(1, 2)
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestLargestCliqueSelfAlone(t *testing.T) {
	views := map[int]nodemask.NodeMask{
		1: nodemask.Of(1),
		2: nodemask.Of(2),
	}
	got := LargestClique(1, views)
	want := nodemask.Of(1)
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestLargestCliqueTieBreakLexicographic(t *testing.T) {
	// Two 2-cliques containing self (1-2 and 1-4), 3 sees
	// nobody. 1-2 must win over 1-4 as the lexicographically smaller.
	views := map[int]nodemask.NodeMask{
		1: nodemask.Of(1, 2, 4),
		2: nodemask.Of(1, 2),
		3: nodemask.Of(3),
		4: nodemask.Of(1, 4),
	}
	got := LargestClique(1, views)
	want := nodemask.Of(1, 2)
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}
