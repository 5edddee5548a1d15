package commit

import "context"

// PreparedState mirrors the two states a locally prepared transaction
// can be moved through on the way to commit (§4.1 steps 4/6/7).
type PreparedState int

const (
	StatePrecommitted PreparedState = iota
	StateCommitted
)

// LocalTxnManager is the host 2PC API this coordinator drives (§1's
// "host engine" external collaborator, narrowed to the three calls
// §4.1 needs). pgxlocal implements this against a real database; tests
// substitute an in-memory fake.
type LocalTxnManager interface {
	// PrepareTransaction issues the local PREPARE TRANSACTION for gid.
	PrepareTransaction(ctx context.Context, gid string) error
	// SetPreparedTransactionState records gid as locally PRECOMMITTED
	// (or COMMITTED), step 6/7 of §4.1.
	SetPreparedTransactionState(ctx context.Context, gid string, state PreparedState) error
	// FinishPrepared issues COMMIT PREPARED or ROLLBACK PREPARED for
	// gid depending on commit.
	FinishPrepared(ctx context.Context, gid string, commit bool) error
}
