package membership

import (
	"context"
	"testing"
	"time"

	"github.com/mtmcore/arbiter/internal/dmq"
	"github.com/mtmcore/arbiter/internal/nodemask"
)

type fakeHooks struct {
	acquireDonor bool
	caughtUp     bool
	acked        bool
}

func (h *fakeHooks) AcquireDonorSlot(ctx context.Context, candidates []int) bool { return h.acquireDonor }
func (h *fakeHooks) CaughtUpToDonor(ctx context.Context) bool                    { return h.caughtUp }
func (h *fakeHooks) PeersAcknowledgeResumption(ctx context.Context) bool         { return h.acked }

func TestMachineFullLifecycleToOnline(t *testing.T) {
	net := dmq.NewNetwork()
	transport := net.Node(1)
	state := New(1, nodemask.Of(1, 2, 3))
	hb := NewHeartbeat(state, transport, 10*time.Millisecond, 50*time.Millisecond)
	// Simulate full mutual connectivity without running a live heartbeat
	// loop: self's own view plus two peers that each report seeing
	// everyone, so recomputeClique's merged adjacency is a full triangle.
	state.SetConnectivity(nodemask.Of(1, 2, 3))
	hb.observe(2, nodemask.Of(1, 2, 3))
	hb.observe(3, nodemask.Of(1, 2, 3))

	hooks := &fakeHooks{acquireDonor: true, caughtUp: true, acked: true}
	m := NewMachine(state, hb, nil, hooks, 5*time.Millisecond)

	m.step(context.Background()) // INITIALIZATION -> DISABLED
	if got := state.Read().Status; got != Disabled {
		t.Fatalf("expected DISABLED, got %v", got)
	}

	m.step(context.Background()) // DISABLED -> RECOVERY (majority + donor)
	if got := state.Read().Status; got != Recovery {
		t.Fatalf("expected RECOVERY, got %v", got)
	}

	m.step(context.Background()) // RECOVERY -> RECOVERED
	if got := state.Read().Status; got != Recovered {
		t.Fatalf("expected RECOVERED, got %v", got)
	}

	m.step(context.Background()) // RECOVERED -> ONLINE
	if got := state.Read().Status; got != Online {
		t.Fatalf("expected ONLINE, got %v", got)
	}
}

func TestMachineLosesMajorityGoesDisabled(t *testing.T) {
	net := dmq.NewNetwork()
	transport := net.Node(1)
	state := New(1, nodemask.Of(1, 2, 3))
	state.SetStatus(Online)
	// No heartbeats observed from any peer: clique collapses to self,
	// which is less than a majority of 3 nodes.

	hb := NewHeartbeat(state, transport, time.Second, time.Second)
	hooks := &fakeHooks{}
	m := NewMachine(state, hb, nil, hooks, 5*time.Millisecond)

	m.step(context.Background())
	if got := state.Read().Status; got != Disabled {
		t.Fatalf("expected DISABLED after losing majority, got %v", got)
	}
}

func TestParticipantsExcludesDisabledAndSelf(t *testing.T) {
	state := New(1, nodemask.Of(1, 2, 3, 4))
	state.SetStatus(Online)
	state.MarkDisabled(3)

	participants, status := state.Participants()
	if status != Online {
		t.Fatalf("expected ONLINE, got %v", status)
	}
	want := nodemask.Of(2, 4)
	if participants != want {
		t.Fatalf("got %v want %v", participants, want)
	}
}

func TestCheckOnlineHealthSurrendersRefereeGrantOnceMajorityReturns(t *testing.T) {
	net := dmq.NewNetwork()
	transport := net.Node(1)
	state := New(1, nodemask.Of(1, 2))
	state.SetStatus(Online)
	state.SetReferee(true, 1)
	state.SetConnectivity(nodemask.Of(1, 2))

	store := newFakeStore()
	referee := newReferee(store, "cluster", time.Minute)
	if _, _, err := referee.Claim(context.Background(), 1); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	hb := NewHeartbeat(state, transport, time.Second, time.Second)
	// Peer reports seeing self too, so recomputeClique's merged
	// adjacency covers both nodes again: a majority of 2.
	hb.observe(2, nodemask.Of(1, 2))
	m := NewMachine(state, hb, referee, &fakeHooks{}, 5*time.Millisecond)

	m.step(context.Background())

	if state.Read().RefereeGrant {
		t.Fatal("expected referee grant cleared once majority returned")
	}
	if _, found, _ := store.get(context.Background(), referee.key); found {
		t.Fatal("expected the grant surrendered in the underlying store")
	}
}

func TestMarkDisabledThenClearDisabled(t *testing.T) {
	state := New(1, nodemask.Of(1, 2))
	state.MarkDisabled(2)
	if !state.Read().DisabledMask.Has(2) {
		t.Fatal("expected node 2 disabled")
	}
	state.ClearDisabled(2)
	if state.Read().DisabledMask.Has(2) {
		t.Fatal("expected node 2 cleared")
	}
}
