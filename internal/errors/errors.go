// Package errors implements the §7 error taxonomy as a CommitError sum
// type, generalizing FC/utils/errors.go's pair of sentinel errors
// (ErrLockTimeout, ErrTimeout) to the full table spec.md §7 names.
package errors

import "fmt"

// Kind identifies one of the §7 error categories.
type Kind int

const (
	// ClusterNotOnline is raised at transaction start while
	// status != ONLINE. Rejected to the client, no side effects.
	ClusterNotOnline Kind = iota
	// WrongDatabase is raised at pre-prepare when the session's
	// database does not match the configured database.
	WrongDatabase
	// WentOffline is raised at participant-capture when the node's
	// own membership status is not ONLINE.
	WentOffline
	// PrepareFailed is raised when gather-prepares saw an ABORTED
	// vote or a participant left before voting.
	PrepareFailed
	// DecodeError is returned by the commit gather on a malformed,
	// mis-tagged or unexpected reply. The DMQ connection and the
	// sender's membership status are left as they are.
	DecodeError
	// ResolverUnknown marks an unresolved resolver poll. No package in
	// this module constructs it: Resolve polls have no timeout and
	// block until ctx ends.
	ResolverUnknown
	// ConfigInvalid marks invalid startup configuration. No package in
	// this module constructs it; cmd/mtm-core exits via log.Fatal when
	// -id is missing or not positive and performs no other validation.
	ConfigInvalid
)

func (k Kind) String() string {
	switch k {
	case ClusterNotOnline:
		return "ClusterNotOnline"
	case WrongDatabase:
		return "WrongDatabase"
	case WentOffline:
		return "WentOffline"
	case PrepareFailed:
		return "PrepareFailed"
	case DecodeError:
		return "DecodeError"
	case ResolverUnknown:
		return "ResolverUnknown"
	case ConfigInvalid:
		return "ConfigInvalid"
	default:
		return "UnknownKind"
	}
}

// CommitError is the sum-typed result the commit coordinator and its
// neighbors return instead of raising a host-level exception (spec §9
// DESIGN NOTES: "Exception-based abort -> sum-typed results"). Only
// internal/hostapi translates a CommitError back into the host's abort
// mechanism.
type CommitError struct {
	Kind Kind
	// Node is set for PrepareFailed: the participant node id whose
	// vote or departure caused the abort.
	Node int
	// Msg carries additional human-readable context.
	Msg string
}

func (e *CommitError) Error() string {
	if e.Node != 0 {
		return fmt.Sprintf("%s(node=%d): %s", e.Kind, e.Node, e.Msg)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind.String()
}

// New builds a CommitError of the given kind.
func New(kind Kind, msg string) *CommitError {
	return &CommitError{Kind: kind, Msg: msg}
}

// NewPrepareFailed builds a PrepareFailed error naming the offending node.
func NewPrepareFailed(node int, msg string) *CommitError {
	return &CommitError{Kind: PrepareFailed, Node: node, Msg: msg}
}

// Is supports errors.Is by comparing Kind.
func (e *CommitError) Is(target error) bool {
	other, ok := target.(*CommitError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
