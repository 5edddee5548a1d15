package resolver

import "context"

// LocalStatus is this node's local knowledge of a GID, narrowed from
// the host engine's full 2PC bookkeeping to what §4.5's polling
// protocol needs to answer or act on.
type LocalStatus int

const (
	StatusUnknown LocalStatus = iota
	StatusPrepared
	StatusPrecommitted
	StatusCommitted
	StatusAborted
)

// LocalInspector is the host 2PC API the resolver drives (§1's host
// engine collaborator), decoupled from internal/commit.LocalTxnManager
// the same way internal/commit decouples from pgxlocal: a structural
// match kept deliberately separate so neither package imports the
// other.
type LocalInspector interface {
	// Status reports what this node currently knows about gid.
	Status(ctx context.Context, gid string) (LocalStatus, error)
	// FinishPrepared issues COMMIT PREPARED or ROLLBACK PREPARED for a
	// GID the resolver has decided the outcome of.
	FinishPrepared(ctx context.Context, gid string, commit bool) error
}
