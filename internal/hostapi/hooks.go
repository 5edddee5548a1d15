package hostapi

import (
	"context"

	"github.com/mtmcore/arbiter/internal/configs"
	"github.com/mtmcore/arbiter/internal/ddlcapture"
	"github.com/mtmcore/arbiter/internal/deadlock"
	cerr "github.com/mtmcore/arbiter/internal/errors"
	"github.com/mtmcore/arbiter/internal/txn"
)

// HostHooks is the interface the host engine calls into at each of its
// trigger points (§9 DESIGN NOTES: "Hook callbacks -> trait/interface",
// generalizing the source's direct-call hooks into transaction,
// executor, utility and sequence callbacks). CoreContext implements
// it; nothing else needs to.
type HostHooks interface {
	// OnTxStart fires at transaction start (§4.1). isUserSession
	// distinguishes ordinary client sessions from internal/background
	// ones (apply workers, the detector, etc.), which never originate
	// distributed transactions of their own.
	OnTxStart(ctx context.Context, xid uint64, database string, isUserSession bool) (*txn.MtmTx, error)
	// OnPrePrepare fires at pre-prepare (§4.1): requires database to
	// match the configured one.
	OnPrePrepare(ctx context.Context, tx *txn.MtmTx, database string) error
	// OnCommit fires at the commit command (§4.1): runs the full 3PC
	// sequence if tx qualifies, otherwise is a no-op and the host
	// proceeds with an ordinary local commit.
	OnCommit(ctx context.Context, tx *txn.MtmTx) error
	// OnExecStart fires at executor start for localID, the host
	// engine's local transaction/statement identity. Tags localID with
	// tx's GID in the local wait-for graph so any lock wait recorded
	// against it during execution is eligible for global cycle
	// detection (§4.4: "vertices are local transaction identities
	// enriched with the GID of any distributed transaction").
	OnExecStart(tx *txn.MtmTx, localID deadlock.LocalID)
	// OnExecFinish fires at executor finish for localID: the statement
	// is done and any wait-for edges it held are now meaningless.
	OnExecFinish(localID deadlock.LocalID)
	// OnUtility fires at process-utility (DDL capture, §9): returns the
	// record to forward to peers, GUC overrides staged since the last
	// call prepended in insertion order.
	OnUtility(stmt string) ddlcapture.DDLRecord
	// OnSeqNextval fires when a sequence configured with
	// monotonic_sequences allocates raw, returning the value actually
	// handed to the client.
	OnSeqNextval(seqName string, raw int64) int64
}

var _ HostHooks = (*CoreContext)(nil)

// OnTxStart implements HostHooks.
func (c *CoreContext) OnTxStart(ctx context.Context, xid uint64, database string, isUserSession bool) (*txn.MtmTx, error) {
	tx := txn.New(c.SelfID, xid)
	if !isUserSession || database != c.Database {
		return tx, nil
	}
	if !c.State.IsOnline() {
		return nil, cerr.New(cerr.ClusterNotOnline, "transaction start while cluster is not ONLINE")
	}
	tx.IsDistributed = true
	return tx, nil
}

// OnPrePrepare implements HostHooks. Reaching pre-prepare is the
// session's explicit PREPARE TRANSACTION for a distributed tx (spec.md
// §3 is_two_phase), so it's where IsTwoPhase gets set.
func (c *CoreContext) OnPrePrepare(ctx context.Context, tx *txn.MtmTx, database string) error {
	if database != c.Database {
		return cerr.New(cerr.WrongDatabase, "pre-prepare against database "+database)
	}
	if tx.IsDistributed {
		tx.IsTwoPhase = true
	}
	return nil
}

// OnCommit implements HostHooks.
func (c *CoreContext) OnCommit(ctx context.Context, tx *txn.MtmTx) error {
	if !tx.IsDistributed || !tx.ContainsDML {
		return nil // host falls through to an ordinary local commit
	}
	return c.Commit.Submit(ctx, tx)
}

// OnExecStart implements HostHooks.
func (c *CoreContext) OnExecStart(tx *txn.MtmTx, localID deadlock.LocalID) {
	if tx.IsDistributed {
		c.Graph.SetGID(localID, tx.Gid)
	}
}

// OnExecFinish implements HostHooks.
func (c *CoreContext) OnExecFinish(localID deadlock.LocalID) {
	c.Graph.RemoveVertex(localID)
}

// OnUtility implements HostHooks.
func (c *CoreContext) OnUtility(stmt string) ddlcapture.DDLRecord {
	return c.ddl.ForwardDDL(stmt)
}

// StageGUCOverride records a GUC override to prepend to the next
// forwarded DDL statement. Not part of HostHooks: the host engine's GUC
// assignment hook fires separately from (and possibly several times
// before) process-utility itself.
func (c *CoreContext) StageGUCOverride(kind ddlcapture.GUCKind, name, value string) {
	c.ddl.SetGUC(kind, name, value)
}

// OnSeqNextval implements HostHooks. When monotonic_sequences is
// enabled, each node's allocations are interleaved by node id
// (raw*MaxNodes + self_id) so two nodes never independently mint the
// same value; volkswagen mode is not consulted here (configs: "read by
// nothing").
func (c *CoreContext) OnSeqNextval(seqName string, raw int64) int64 {
	if !configs.MonotonicSequences {
		return raw
	}
	return raw*int64(configs.MaxNodes) + int64(c.SelfID)
}
