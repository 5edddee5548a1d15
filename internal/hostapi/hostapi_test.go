package hostapi

import (
	"context"
	"testing"

	"github.com/mtmcore/arbiter/internal/deadlock"
	cerr "github.com/mtmcore/arbiter/internal/errors"
	"github.com/mtmcore/arbiter/internal/membership"
	"github.com/mtmcore/arbiter/internal/nodemask"
)

func testContext(t *testing.T, status membership.Status) *CoreContext {
	t.Helper()
	state := membership.New(1, nodemask.Of(1, 2, 3))
	state.SetStatus(status)
	c := New(1, "appdb", state, nil, nil, nil, nil, nil, nil, nil, nil, deadlock.NewGraph())
	return c
}

func TestOnTxStartMarksDistributedWhenOnlineAndConfiguredDatabase(t *testing.T) {
	c := testContext(t, membership.Online)
	tx, err := c.OnTxStart(context.Background(), 42, "appdb", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.IsDistributed {
		t.Fatal("expected IsDistributed=true")
	}
	if tx.Gid != "MTM-1-42" {
		t.Fatalf("unexpected gid: %s", tx.Gid)
	}
}

func TestOnTxStartRefusesWhenNotOnline(t *testing.T) {
	c := testContext(t, membership.Disabled)
	_, err := c.OnTxStart(context.Background(), 1, "appdb", true)
	if !cerrIsKind(err, cerr.ClusterNotOnline) {
		t.Fatalf("expected ClusterNotOnline, got %v", err)
	}
}

func TestOnTxStartLeavesNonUserSessionsLocal(t *testing.T) {
	c := testContext(t, membership.Disabled)
	tx, err := c.OnTxStart(context.Background(), 1, "appdb", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.IsDistributed {
		t.Fatal("expected a background session to stay local regardless of membership status")
	}
}

func TestOnTxStartLeavesOtherDatabasesLocal(t *testing.T) {
	c := testContext(t, membership.Online)
	tx, err := c.OnTxStart(context.Background(), 1, "otherdb", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.IsDistributed {
		t.Fatal("expected a session against an unconfigured database to stay local")
	}
}

func TestOnPrePrepareRejectsWrongDatabase(t *testing.T) {
	c := testContext(t, membership.Online)
	tx, _ := c.OnTxStart(context.Background(), 1, "appdb", true)
	err := c.OnPrePrepare(context.Background(), tx, "otherdb")
	if !cerrIsKind(err, cerr.WrongDatabase) {
		t.Fatalf("expected WrongDatabase, got %v", err)
	}
}

func TestOnPrePrepareMarksDistributedTransactionsTwoPhase(t *testing.T) {
	c := testContext(t, membership.Online)
	tx, _ := c.OnTxStart(context.Background(), 1, "appdb", true)
	if err := c.OnPrePrepare(context.Background(), tx, "appdb"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.IsTwoPhase {
		t.Fatal("expected IsTwoPhase=true after pre-prepare on a distributed transaction")
	}
}

func TestOnPrePrepareLeavesLocalTransactionsNotTwoPhase(t *testing.T) {
	c := testContext(t, membership.Online)
	tx, _ := c.OnTxStart(context.Background(), 1, "otherdb", true) // local
	if err := c.OnPrePrepare(context.Background(), tx, "otherdb"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.IsTwoPhase {
		t.Fatal("expected a local transaction to stay IsTwoPhase=false")
	}
}

func TestOnCommitSkipsNonDistributedTransactions(t *testing.T) {
	c := testContext(t, membership.Online)
	tx, _ := c.OnTxStart(context.Background(), 1, "otherdb", true) // local
	if err := c.OnCommit(context.Background(), tx); err != nil {
		t.Fatalf("expected no-op for a local commit, got %v", err)
	}
}

func TestExecHooksTagAndClearLocalGraph(t *testing.T) {
	c := testContext(t, membership.Online)
	tx, _ := c.OnTxStart(context.Background(), 7, "appdb", true)

	c.OnExecStart(tx, deadlock.LocalID(1))
	c.Graph.AddWait(deadlock.LocalID(1), deadlock.LocalID(2))
	c.Graph.SetGID(deadlock.LocalID(2), "MTM-2-9")

	edges := c.Graph.GlobalEdges()
	if len(edges) != 1 || edges[0].From != tx.Gid || edges[0].To != "MTM-2-9" {
		t.Fatalf("expected one promoted global edge, got %+v", edges)
	}

	c.OnExecFinish(deadlock.LocalID(1))
	if edges := c.Graph.GlobalEdges(); len(edges) != 0 {
		t.Fatalf("expected exec finish to clear the vertex's edges, got %+v", edges)
	}
}

func TestOnUtilityForwardsAndClearsGUCOverrides(t *testing.T) {
	c := testContext(t, membership.Online)
	c.StageGUCOverride(0, "work_mem", "'64MB'")
	rec := c.OnUtility("CREATE TABLE t(k int)")
	if len(rec.SetStatements) != 1 || rec.SetStatements[0] != "SET work_mem = '64MB'" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	rec2 := c.OnUtility("DROP TABLE t")
	if len(rec2.SetStatements) != 0 {
		t.Fatalf("expected overrides cleared after first forward, got %+v", rec2)
	}
}

func TestOnSeqNextvalPassesThroughWhenDisabled(t *testing.T) {
	c := testContext(t, membership.Online)
	if got := c.OnSeqNextval("s", 5); got != 5 {
		t.Fatalf("expected passthrough, got %d", got)
	}
}

func cerrIsKind(err error, kind cerr.Kind) bool {
	ce, ok := err.(*cerr.CommitError)
	return ok && ce.Kind == kind
}
