// Package applyguard implements the receiver-side apply guard of
// §4.3: the four-step barrier dance a newly-joined (or just-caught-up)
// apply worker runs before it starts serving as a commit participant,
// so it can never apply a PRECOMMIT ahead of the PREPARE that preceded
// it. Grounded on FC/network/participant/main.go's Context/begin()
// startup sequence (acquire shared state, register the peer, start
// streaming), narrowed here to the barrier-install-subscribe-release
// order §4.3 specifies instead of that file's general bootstrap.
package applyguard

import (
	"context"
	"fmt"

	"github.com/mtmcore/arbiter/internal/locks"
	"github.com/mtmcore/arbiter/internal/membership"
	"github.com/mtmcore/arbiter/internal/syncpoint"
)

// ReplicationStream is the logical replication applier's subscribe
// hook (§1's "logical replication decoder and applier" external
// collaborator, narrowed to the one call this package needs).
type ReplicationStream interface {
	// SubscribeFrom starts streaming peer's replication feed into the
	// local applier beginning at lsn.
	SubscribeFrom(ctx context.Context, peer int, lsn uint64) error
}

// Guard runs the §4.3 install sequence for one node's set of apply
// workers. One Guard per node, shared by every apply worker goroutine.
type Guard struct {
	barrier *locks.CommitBarrier
	state   *membership.State
	sync    *syncpoint.Tracker
	stream  ReplicationStream
}

// NewGuard wires a Guard over the same CommitBarrier and
// membership.State the commit coordinator uses, and the syncpoint
// tracker that records latest_syncpoint per peer.
func NewGuard(barrier *locks.CommitBarrier, state *membership.State, sp *syncpoint.Tracker, stream ReplicationStream) *Guard {
	return &Guard{barrier: barrier, state: state, sync: sp, stream: stream}
}

// Install runs the four §4.3 steps for peer on startup of its apply
// worker: acquire the barrier exclusively, widen the participant-
// eligibility set to include peer, subscribe its replication stream at
// the recorded syncpoint LSN, then release. After Install returns,
// every commit captured afterward includes peer in participants, so
// the worker cannot miss the PREPARE of a transaction whose PRECOMMIT
// it later sees.
func (g *Guard) Install(ctx context.Context, peer int) error {
	g.barrier.AcquireExclusive()
	defer g.barrier.ReleaseExclusive()

	// Step 2: clearing peer's disabled bit is exactly "insert bit i-1
	// into the participant-eligibility set" against
	// membership.State.Participants' all_nodes \ disabled_mask
	// derivation.
	g.state.ClearDisabled(peer)

	lsn := uint64(0)
	if rec, ok := g.sync.Latest(peer); ok {
		lsn = rec.LSN
	}
	if err := g.stream.SubscribeFrom(ctx, peer, lsn); err != nil {
		return fmt.Errorf("applyguard: subscribe to peer %d at lsn %d: %w", peer, lsn, err)
	}
	return nil
}
