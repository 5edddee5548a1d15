// Package pgxlocal implements the local 2PC adapter the commit
// coordinator and resolver drive against the host database (§1's host
// engine collaborator, narrowed to PREPARE TRANSACTION / COMMIT
// PREPARED / ROLLBACK PREPARED). Grounded on FC/storage/postgres.go's
// SQLDB (a thin wrapper over *pgxpool.Pool with mustExec-style helper
// methods), retargeted from YCSB row CRUD to the two-phase commit
// primitives this core needs, plus a side table recording each GID's
// phase so a restarted node's Resolver (§4.5) can tell PREPARED from
// PRECOMMITTED. Store structurally satisfies both
// internal/commit.LocalTxnManager and internal/resolver.LocalInspector
// without those packages importing pgxlocal.
package pgxlocal

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/mtmcore/arbiter/internal/commit"
	"github.com/mtmcore/arbiter/internal/resolver"
)

// txExecutor issues the raw 2PC statements against the host database.
// Narrowed to one method so tests can substitute a fake instead of a
// live Postgres, the same boundary shape as
// internal/membership.refereeStore over *redis.Client.
type txExecutor interface {
	exec(ctx context.Context, sql string) error
}

type poolExecutor struct{ pool *pgxpool.Pool }

func (p poolExecutor) exec(ctx context.Context, sql string) error {
	_, err := p.pool.Exec(ctx, sql)
	return err
}

// txState is this adapter's private phase tracking, a superset of
// commit.PreparedState: it also distinguishes freshly-PREPARED (before
// any precommit) and the two terminal outcomes, which the resolver
// needs to tell orphans apart after a restart.
type txState int

const (
	stateUnknown txState = iota
	statePrepared
	statePrecommitted
	stateCommitted
	stateAborted
)

// stateStore persists txState per GID, durable across restarts so an
// orphaned PREPARE can be told from one that reached PRECOMMIT before
// the crash (§4.5).
type stateStore interface {
	setState(ctx context.Context, gid string, state txState) error
	getState(ctx context.Context, gid string) (txState, bool, error)
}

// Store is the pgx-backed commit.LocalTxnManager / resolver.LocalInspector.
type Store struct {
	exec   txExecutor
	states stateStore
}

// NewStore wires a Store over a live connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{exec: poolExecutor{pool}, states: pgStateStore{pool}}
}

func newStore(exec txExecutor, states stateStore) *Store {
	return &Store{exec: exec, states: states}
}

// PrepareTransaction issues PREPARE TRANSACTION for gid (§4.1 step 4)
// and records it as PREPARED.
func (s *Store) PrepareTransaction(ctx context.Context, gid string) error {
	if err := s.exec.exec(ctx, fmt.Sprintf("PREPARE TRANSACTION '%s'", escapeLiteral(gid))); err != nil {
		return fmt.Errorf("pgxlocal: prepare transaction %s: %w", gid, err)
	}
	return s.states.setState(ctx, gid, statePrepared)
}

// SetPreparedTransactionState records gid's in-progress phase (§4.1
// steps 6/7). Unlike Prepare/Finish this has no SQL counterpart:
// Postgres' own pg_prepared_xacts has no notion of PRECOMMITTED, so
// this core's own side table is the only record of it.
func (s *Store) SetPreparedTransactionState(ctx context.Context, gid string, state commit.PreparedState) error {
	var ts txState
	switch state {
	case commit.StatePrecommitted:
		ts = statePrecommitted
	case commit.StateCommitted:
		ts = stateCommitted
	default:
		return fmt.Errorf("pgxlocal: unknown prepared state %v", state)
	}
	return s.states.setState(ctx, gid, ts)
}

// FinishPrepared issues COMMIT PREPARED or ROLLBACK PREPARED for gid
// (§4.1 step 7 / §4.5 resolution) and records the terminal outcome.
func (s *Store) FinishPrepared(ctx context.Context, gid string, doCommit bool) error {
	verb := "ROLLBACK"
	ts := stateAborted
	if doCommit {
		verb = "COMMIT"
		ts = stateCommitted
	}
	if err := s.exec.exec(ctx, fmt.Sprintf("%s PREPARED '%s'", verb, escapeLiteral(gid))); err != nil {
		return fmt.Errorf("pgxlocal: finish prepared %s: %w", gid, err)
	}
	return s.states.setState(ctx, gid, ts)
}

// AbortLocal implements deadlock.LocalAborter: it rolls back gid if
// this node has already issued a local PREPARE for it. A GID the
// deadlock detector names before it ever reaches PREPARE is still an
// ordinary live backend holding locks, and canceling that backend is
// the host engine's own local-lock responsibility (§4.4: "purely-local
// edges are ignored... the host engine handles them") — outside what
// this adapter can do through the 2PC interface alone, so AbortLocal
// is a no-op for a GID it has never seen.
func (s *Store) AbortLocal(ctx context.Context, gid string) error {
	_, ok, err := s.states.getState(ctx, gid)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.FinishPrepared(ctx, gid, false)
}

// Status reports gid's locally known phase for the resolver (§4.5).
func (s *Store) Status(ctx context.Context, gid string) (resolver.LocalStatus, error) {
	ts, ok, err := s.states.getState(ctx, gid)
	if err != nil {
		return resolver.StatusUnknown, err
	}
	if !ok {
		return resolver.StatusUnknown, nil
	}
	switch ts {
	case statePrepared:
		return resolver.StatusPrepared, nil
	case statePrecommitted:
		return resolver.StatusPrecommitted, nil
	case stateCommitted:
		return resolver.StatusCommitted, nil
	case stateAborted:
		return resolver.StatusAborted, nil
	default:
		return resolver.StatusUnknown, nil
	}
}

// escapeLiteral doubles embedded single quotes, the standard SQL
// string-literal escape. GIDs are core-generated ("MTM-<id>-<xid>")
// and never contain one, but PREPARE TRANSACTION takes a literal, not
// a bind parameter, so this is still the honest way to build it.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
