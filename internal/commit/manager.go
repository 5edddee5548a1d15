// Package commit implements the 3PC-over-2PC commit coordinator of
// §4.1: PREPARE, PRECOMMIT, COMMIT fanned out over DMQ, interlocked
// with the CommitBarrier and bounded only by membership-driven
// liveness, never a wall-clock timeout. Grounded on
// FC/network/coordinator/{2pc,3pc,txn_handler}.go's overall shape
// (a Manager orchestrating PreWrite/PreCommit/Decide phases against a
// per-transaction handler), adapted from that package's push-based
// message dispatch to this core's dmq.Transport pop(mask) contract.
package commit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mtmcore/arbiter/internal/dmq"
	cerr "github.com/mtmcore/arbiter/internal/errors"
	"github.com/mtmcore/arbiter/internal/locks"
	"github.com/mtmcore/arbiter/internal/membership"
	"github.com/mtmcore/arbiter/internal/stats"
	"github.com/mtmcore/arbiter/internal/syncpoint"
	"github.com/mtmcore/arbiter/internal/txn"
	"github.com/mtmcore/arbiter/internal/wire"
)

// requestStream is where PREPARE/PRECOMMIT/COMMIT commands are pushed
// to each participant; replies are routed back on a per-transaction
// stream (§4.1 step 1: "the reply stream named xid<xid>").
const requestStream = "mtm-commit"

func replyStream(xid uint64) string { return fmt.Sprintf("xid%d", xid) }

// Manager drives the 3PC sequence for every distributed transaction
// this node originates. One Manager per node; commit coordinator
// threads share it (§5: "one coordinator thread per user session").
type Manager struct {
	selfID    int
	state     *membership.State
	transport dmq.Transport
	barrier   *locks.CommitBarrier
	local     LocalTxnManager
	sync      *syncpoint.Tracker
	rec       *stats.Recorder

	stopNewCommits func() bool
}

// NewManager wires a coordinator for selfID. stopNewCommits, when
// non-nil, is polled at >=1 Hz before barrier acquisition (§5 step
// (a)); a nil func behaves as "never stopped".
func NewManager(selfID int, state *membership.State, transport dmq.Transport, barrier *locks.CommitBarrier, local LocalTxnManager, sp *syncpoint.Tracker, rec *stats.Recorder, stopNewCommits func() bool) *Manager {
	return &Manager{
		selfID:         selfID,
		state:          state,
		transport:      transport,
		barrier:        barrier,
		local:          local,
		sync:           sp,
		rec:            rec,
		stopNewCommits: stopNewCommits,
	}
}

// Submit runs the full §4.1 3PC sequence for tx and returns nil on
// success. Participant-capture and prepare-phase failures are reported
// as a *errors.CommitError; transport, context and local 2PC errors
// are returned as they are.
func (m *Manager) Submit(ctx context.Context, tx *txn.MtmTx) (err error) {
	started := time.Now()
	outcome := stats.OutcomeCommitted
	defer func() {
		if err != nil && outcome == stats.OutcomeCommitted {
			outcome = stats.OutcomeAborted
		}
		if m.rec != nil {
			m.rec.Observe(outcome, started)
		}
	}()

	stream := replyStream(tx.Xid)
	if err := m.transport.StreamSubscribe(stream); err != nil {
		return err
	}
	defer m.transport.StreamUnsubscribe(stream)

	// Step 2: stop_new_commits spin, then acquire the barrier shared,
	// held through step 7.
	for m.stopNewCommits != nil && m.stopNewCommits() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	m.barrier.AcquireShared()
	defer m.barrier.ReleaseShared()

	// Step 3: snapshot participants under the membership read lock.
	participants, status := m.state.Participants()
	if status != membership.Online {
		outcome = stats.OutcomeWentOffline
		return cerr.New(cerr.WentOffline, "self left ONLINE before participant capture")
	}
	tx.Participants = participants

	// Step 4: local PREPARE.
	if err := m.local.PrepareTransaction(ctx, tx.Gid); err != nil {
		outcome = stats.OutcomePrepareFailed
		return cerr.New(cerr.PrepareFailed, "local prepare: "+err.Error())
	}

	// Step 5: gather PREPAREs.
	gatherStart := time.Now()
	if err := m.broadcast(ctx, stream, tx, wire.CodePrepare); err != nil {
		return err
	}
	res, err := gather(ctx, m.transport, stream, participants, wire.CodePrepared, wire.CodeAborted, tx.Xid)
	if m.rec != nil {
		m.rec.ObserveGather("prepare", gatherStart)
	}
	if err != nil {
		return err
	}
	if res.abortedBy != 0 || len(res.failedAt) > 0 {
		failedAt := res.abortedBy
		if failedAt == 0 {
			failedAt = res.failedAt[0]
		}
		_ = m.local.FinishPrepared(ctx, tx.Gid, false)
		outcome = stats.OutcomePrepareFailed
		return cerr.NewPrepareFailed(failedAt, "prepare phase rejected or lost a participant")
	}

	// Step 6: set precommit state locally, gather PRECOMMITTEDs. A
	// participant dropping out here is not an abort (§4.1 tie-breaks):
	// every PREPARED vote already happened, so the transaction commits
	// globally regardless of later disconnects; the Resolver cleans up
	// stragglers.
	if err := m.local.SetPreparedTransactionState(ctx, tx.Gid, StatePrecommitted); err != nil {
		return err
	}
	gatherStart = time.Now()
	if err := m.broadcast(ctx, stream, tx, wire.CodePrecommit); err != nil {
		return err
	}
	_, err = gather(ctx, m.transport, stream, participants, wire.CodePrecommitted, 0, tx.Xid)
	if m.rec != nil {
		m.rec.ObserveGather("precommit", gatherStart)
	}
	if err != nil {
		return err
	}

	// Step 7: finish locally, gather COMMITTEDs, release the barrier on
	// return (deferred above).
	if err := m.local.FinishPrepared(ctx, tx.Gid, true); err != nil {
		return err
	}
	gatherStart = time.Now()
	if err := m.broadcast(ctx, stream, tx, wire.CodeCommitted); err != nil {
		return err
	}
	_, err = gather(ctx, m.transport, stream, participants, wire.CodeCommitted, 0, tx.Xid)
	if m.rec != nil {
		m.rec.ObserveGather("commit", gatherStart)
	}
	if err != nil {
		return err
	}

	// Step 8: emit a syncpoint if due, once per captured participant.
	if m.sync != nil {
		for _, peer := range participants.Nodes() {
			_, _ = m.sync.Observe(peer, tx.Xid, tx.Xid)
		}
	}

	return nil
}

// broadcast fans PREPARE/PRECOMMIT/COMMIT command messages out to
// every participant concurrently, grounded on the teacher's
// `for i, op := range branches { go txn.from.sendPreWrite(i, op) }`
// pattern but collected through errgroup instead of bare goroutines so
// a send failure is observable instead of silently dropped.
func (m *Manager) broadcast(ctx context.Context, replyTo string, tx *txn.MtmTx, code wire.Code) error {
	msg := &wire.ArbiterMessage{
		Code: code,
		Node: uint8(m.selfID),
		Dxid: tx.Xid,
		GID:  tx.Gid,
	}
	payload, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	g, _ := errgroup.WithContext(ctx)
	for _, peer := range tx.Participants.Nodes() {
		peer := peer
		g.Go(func() error {
			return m.transport.Push(peer, requestStream, payload)
		})
	}
	return g.Wait()
}
