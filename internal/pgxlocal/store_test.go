package pgxlocal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mtmcore/arbiter/internal/commit"
	"github.com/mtmcore/arbiter/internal/resolver"
)

type fakeExecutor struct {
	mu       sync.Mutex
	stmts    []string
	failNext bool
}

func (f *fakeExecutor) exec(ctx context.Context, sql string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("boom")
	}
	f.stmts = append(f.stmts, sql)
	return nil
}

type fakeStateStore struct {
	mu     sync.Mutex
	states map[string]txState
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: map[string]txState{}}
}

func (f *fakeStateStore) setState(ctx context.Context, gid string, state txState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[gid] = state
	return nil
}

func (f *fakeStateStore) getState(ctx context.Context, gid string) (txState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[gid]
	return s, ok, nil
}

func TestPrepareTransactionRecordsPreparedState(t *testing.T) {
	exec := &fakeExecutor{}
	states := newFakeStateStore()
	s := newStore(exec, states)

	if err := s.PrepareTransaction(context.Background(), "MTM-1-100"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	status, err := s.Status(context.Background(), "MTM-1-100")
	if err != nil || status != resolver.StatusPrepared {
		t.Fatalf("expected StatusPrepared, got %v, err %v", status, err)
	}
	if len(exec.stmts) != 1 || exec.stmts[0] != "PREPARE TRANSACTION 'MTM-1-100'" {
		t.Fatalf("unexpected statements: %v", exec.stmts)
	}
}

func TestPrepareTransactionPropagatesExecError(t *testing.T) {
	exec := &fakeExecutor{failNext: true}
	s := newStore(exec, newFakeStateStore())

	if err := s.PrepareTransaction(context.Background(), "MTM-1-101"); err == nil {
		t.Fatal("expected error from failing executor")
	}
	status, _ := s.Status(context.Background(), "MTM-1-101")
	if status != resolver.StatusUnknown {
		t.Fatalf("expected no state recorded on failure, got %v", status)
	}
}

func TestSetPreparedTransactionStateTracksPrecommit(t *testing.T) {
	s := newStore(&fakeExecutor{}, newFakeStateStore())
	ctx := context.Background()

	if err := s.PrepareTransaction(ctx, "g1"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := s.SetPreparedTransactionState(ctx, "g1", commit.StatePrecommitted); err != nil {
		t.Fatalf("set state: %v", err)
	}
	status, err := s.Status(ctx, "g1")
	if err != nil || status != resolver.StatusPrecommitted {
		t.Fatalf("expected StatusPrecommitted, got %v, err %v", status, err)
	}
}

func TestFinishPreparedRecordsTerminalState(t *testing.T) {
	exec := &fakeExecutor{}
	s := newStore(exec, newFakeStateStore())
	ctx := context.Background()

	if err := s.PrepareTransaction(ctx, "g2"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := s.FinishPrepared(ctx, "g2", true); err != nil {
		t.Fatalf("finish: %v", err)
	}
	status, err := s.Status(ctx, "g2")
	if err != nil || status != resolver.StatusCommitted {
		t.Fatalf("expected StatusCommitted, got %v, err %v", status, err)
	}
	if exec.stmts[1] != "COMMIT PREPARED 'g2'" {
		t.Fatalf("expected a COMMIT PREPARED statement, got %v", exec.stmts)
	}

	if err := s.FinishPrepared(ctx, "g3", false); err != nil {
		t.Fatalf("finish abort: %v", err)
	}
	status, _ = s.Status(ctx, "g3")
	if status != resolver.StatusAborted {
		t.Fatalf("expected StatusAborted, got %v", status)
	}
}

func TestStatusUnknownForUntrackedGID(t *testing.T) {
	s := newStore(&fakeExecutor{}, newFakeStateStore())
	status, err := s.Status(context.Background(), "never-seen")
	if err != nil || status != resolver.StatusUnknown {
		t.Fatalf("expected StatusUnknown, got %v, err %v", status, err)
	}
}

func TestAbortLocalRollsBackAKnownPreparedGID(t *testing.T) {
	exec := &fakeExecutor{}
	s := newStore(exec, newFakeStateStore())
	ctx := context.Background()

	if err := s.PrepareTransaction(ctx, "g6"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := s.AbortLocal(ctx, "g6"); err != nil {
		t.Fatalf("abort local: %v", err)
	}
	status, _ := s.Status(ctx, "g6")
	if status != resolver.StatusAborted {
		t.Fatalf("expected StatusAborted, got %v", status)
	}
}

func TestAbortLocalIsANoOpForAnUnknownGID(t *testing.T) {
	exec := &fakeExecutor{}
	s := newStore(exec, newFakeStateStore())

	if err := s.AbortLocal(context.Background(), "never-prepared"); err != nil {
		t.Fatalf("expected no error for an unseen gid, got %v", err)
	}
	if len(exec.stmts) != 0 {
		t.Fatalf("expected no SQL issued for an unseen gid, got %v", exec.stmts)
	}
}

func TestEscapeLiteralDoublesSingleQuotes(t *testing.T) {
	if got := escapeLiteral("a'b"); got != "a''b" {
		t.Fatalf("expected a''b, got %q", got)
	}
}
