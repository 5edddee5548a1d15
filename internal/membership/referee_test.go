package membership

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-memory stand-in for Redis sufficient to exercise
// Referee's conditional-set protocol without a live server.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]int
}

func newFakeStore() *fakeStore { return &fakeStore{data: map[string]int{}} }

func (s *fakeStore) setNX(ctx context.Context, key string, value int, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value
	return true, nil
}

func (s *fakeStore) get(ctx context.Context, key string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (s *fakeStore) del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func TestRefereeAwardsAtMostOneWinner(t *testing.T) {
	store := newFakeStore()
	refA := newReferee(store, "cluster", time.Minute)
	refB := newReferee(store, "cluster", time.Minute)

	wonA, winnerA, err := refA.Claim(context.Background(), 1)
	if err != nil {
		t.Fatalf("claim a: %v", err)
	}
	wonB, winnerB, err := refB.Claim(context.Background(), 2)
	if err != nil {
		t.Fatalf("claim b: %v", err)
	}

	if !wonA || winnerA != 1 {
		t.Fatalf("expected node 1 to win, got won=%v winner=%d", wonA, winnerA)
	}
	if wonB {
		t.Fatalf("expected node 2 to lose the race, got won=%v winner=%d", wonB, winnerB)
	}
	if winnerB != 1 {
		t.Fatalf("expected loser to observe winner=1, got %d", winnerB)
	}
}

func TestRefereeRenewalBySameHolder(t *testing.T) {
	store := newFakeStore()
	ref := newReferee(store, "cluster", time.Minute)

	won, winner, err := ref.Claim(context.Background(), 1)
	if err != nil || !won || winner != 1 {
		t.Fatalf("initial claim failed: won=%v winner=%d err=%v", won, winner, err)
	}
	won, winner, err = ref.Claim(context.Background(), 1)
	if err != nil || !won || winner != 1 {
		t.Fatalf("renewal claim failed: won=%v winner=%d err=%v", won, winner, err)
	}
}

func TestRefereeSurrenderThenOtherNodeWins(t *testing.T) {
	store := newFakeStore()
	refA := newReferee(store, "cluster", time.Minute)
	refB := newReferee(store, "cluster", time.Minute)
	ctx := context.Background()

	won, _, err := refA.Claim(ctx, 1)
	if err != nil || !won {
		t.Fatalf("node 1 should win first claim: won=%v err=%v", won, err)
	}
	if err := refA.Surrender(ctx, 1); err != nil {
		t.Fatalf("surrender: %v", err)
	}
	won, winner, err := refB.Claim(ctx, 2)
	if err != nil || !won || winner != 2 {
		t.Fatalf("node 2 should win after surrender: won=%v winner=%d err=%v", won, winner, err)
	}
}

// TestTwoNodeRefereeSplit models property S6: when a two-node cluster
// partitions, exactly one node continues as the referee winner.
func TestTwoNodeRefereeSplit(t *testing.T) {
	store := newFakeStore()
	refA := newReferee(store, "cluster", time.Minute)
	refB := newReferee(store, "cluster", time.Minute)
	ctx := context.Background()

	wonA, _, errA := refA.Claim(ctx, 1)
	wonB, _, errB := refB.Claim(ctx, 2)
	if errA != nil || errB != nil {
		t.Fatalf("claim errors: %v / %v", errA, errB)
	}
	if wonA == wonB {
		t.Fatalf("exactly one of the two partitioned nodes must win, got wonA=%v wonB=%v", wonA, wonB)
	}
}
