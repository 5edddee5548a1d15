package applyguard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mtmcore/arbiter/internal/locks"
	"github.com/mtmcore/arbiter/internal/membership"
	"github.com/mtmcore/arbiter/internal/nodemask"
	"github.com/mtmcore/arbiter/internal/syncpoint"
)

type fakeStream struct {
	mu    sync.Mutex
	calls []subscribeCall
	block chan struct{} // when non-nil, SubscribeFrom waits on it
}

type subscribeCall struct {
	peer int
	lsn  uint64
}

func (f *fakeStream) SubscribeFrom(ctx context.Context, peer int, lsn uint64) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, subscribeCall{peer: peer, lsn: lsn})
	return nil
}

func newTracker(t *testing.T) *syncpoint.Tracker {
	t.Helper()
	tr, err := syncpoint.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open tracker: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestInstallAddsPeerToParticipants(t *testing.T) {
	state := membership.New(1, nodemask.Of(1, 2, 3))
	state.MarkDisabled(2) // peer 2 not yet installed
	barrier := locks.NewCommitBarrier()
	stream := &fakeStream{}
	g := NewGuard(barrier, state, newTracker(t), stream)

	if err := g.Install(context.Background(), 2); err != nil {
		t.Fatalf("install: %v", err)
	}

	participants, _ := state.Participants()
	if !participants.Has(2) {
		t.Fatalf("expected peer 2 in participants after install, got %v", participants)
	}
	if len(stream.calls) != 1 || stream.calls[0].peer != 2 {
		t.Fatalf("expected one subscribe call for peer 2, got %+v", stream.calls)
	}
}

func TestInstallSubscribesAtRecordedSyncpointLSN(t *testing.T) {
	state := membership.New(1, nodemask.Of(1, 2))
	state.MarkDisabled(2)
	tracker := newTracker(t)
	if _, err := tracker.Observe(2, 100, 42); err != nil {
		t.Fatalf("observe: %v", err)
	}
	barrier := locks.NewCommitBarrier()
	stream := &fakeStream{}
	g := NewGuard(barrier, state, tracker, stream)

	if err := g.Install(context.Background(), 2); err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(stream.calls) != 1 || stream.calls[0].lsn != 42 {
		t.Fatalf("expected subscribe at lsn 42, got %+v", stream.calls)
	}
}

func TestInstallSubscribesAtZeroLSNWithoutPriorSyncpoint(t *testing.T) {
	state := membership.New(1, nodemask.Of(1, 2))
	state.MarkDisabled(2)
	barrier := locks.NewCommitBarrier()
	stream := &fakeStream{}
	g := NewGuard(barrier, state, newTracker(t), stream)

	if err := g.Install(context.Background(), 2); err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(stream.calls) != 1 || stream.calls[0].lsn != 0 {
		t.Fatalf("expected subscribe at lsn 0, got %+v", stream.calls)
	}
}

// TestInstallDrainsBeforeCapturingNewParticipant exercises §4.3's
// closing guarantee: a coordinator that acquires the barrier shared
// only after Install releases it must see peer in its captured
// participants, never a half-installed state.
func TestInstallDrainsBeforeCapturingNewParticipant(t *testing.T) {
	state := membership.New(1, nodemask.Of(1, 2))
	state.MarkDisabled(2)
	barrier := locks.NewCommitBarrier()
	stream := &fakeStream{block: make(chan struct{})}
	g := NewGuard(barrier, state, newTracker(t), stream)

	done := make(chan struct{})
	go func() {
		if err := g.Install(context.Background(), 2); err != nil {
			t.Error(err)
		}
		close(done)
	}()

	// Give Install a chance to reach the blocked subscribe call while
	// still holding the barrier exclusively.
	time.Sleep(20 * time.Millisecond)

	acquired := make(chan struct{})
	go func() {
		barrier.AcquireShared()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("shared acquisition succeeded while Install still holds the barrier exclusively")
	case <-time.After(30 * time.Millisecond):
	}

	close(stream.block)
	<-done

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("shared acquisition never succeeded after Install released the barrier")
	}
	barrier.ReleaseShared()

	participants, _ := state.Participants()
	if !participants.Has(2) {
		t.Fatalf("expected peer 2 in participants once drained, got %v", participants)
	}
}
