package hostapi

import (
	"github.com/mtmcore/arbiter/internal/applyguard"
	"github.com/mtmcore/arbiter/internal/commit"
	"github.com/mtmcore/arbiter/internal/ddlcapture"
	"github.com/mtmcore/arbiter/internal/deadlock"
	"github.com/mtmcore/arbiter/internal/locks"
	"github.com/mtmcore/arbiter/internal/membership"
	"github.com/mtmcore/arbiter/internal/resolver"
	"github.com/mtmcore/arbiter/internal/stats"
	"github.com/mtmcore/arbiter/internal/syncpoint"
)

// CoreContext is the single explicit object every host hook is
// registered against, replacing the teacher's package-level "var config
// map[string]interface{}" plus "var conLock sync.Mutex" globals
// (network/participant/main.go) with one owned struct threaded through
// by the host-integration layer (spec §9: "Global mutable state ->
// explicit context"; "process-wide lifetime is modeled as a single
// owner... with shared read views and a single writer for
// membership"). Every field here is itself already safe for concurrent
// use (State is an RWMutex-backed machine with a single writer, Graph
// and Catalog lock internally), so CoreContext adds no locking of its
// own — it is purely a wiring/lifetime owner, not a second mutex
// guarding the same data.
type CoreContext struct {
	SelfID   int
	Database string // the configured database name (§4.1 pre-prepare check)

	State   *membership.State
	Barrier *locks.CommitBarrier
	Commit  *commit.Manager
	Resolver *resolver.Resolver
	Detector *deadlock.Detector
	Guard    *applyguard.Guard
	Sync     *syncpoint.Tracker
	Stats    *stats.Recorder
	Catalog  NodeCatalog

	// Graph is this node's local wait-for graph (§4.4): the exec hooks
	// tag/clear vertices in it; the Detector reads GlobalEdges() from
	// it on every tick.
	Graph *deadlock.Graph
	// ddl accumulates GUC overrides staged ahead of the next forwarded
	// DDL statement (§9 "Linked list of GUC overrides").
	ddl *ddlcapture.Capture
}

// New wires a CoreContext from its already-constructed collaborators.
// graph must be the same *deadlock.Graph instance handed to det, so the
// exec hooks and the detector's periodic snapshot agree on one set of
// local vertices. Each collaborator is built by cmd/mtm-core's startup
// sequence and handed in fully formed; CoreContext does not itself open
// connections or start goroutines.
func New(selfID int, database string, state *membership.State, barrier *locks.CommitBarrier, mgr *commit.Manager, res *resolver.Resolver, det *deadlock.Detector, guard *applyguard.Guard, sp *syncpoint.Tracker, rec *stats.Recorder, catalog NodeCatalog, graph *deadlock.Graph) *CoreContext {
	return &CoreContext{
		SelfID:   selfID,
		Database: database,
		State:    state,
		Barrier:  barrier,
		Commit:   mgr,
		Resolver: res,
		Detector: det,
		Guard:    guard,
		Sync:     sp,
		Stats:    rec,
		Catalog:  catalog,
		Graph:    graph,
		ddl:      ddlcapture.NewCapture(),
	}
}
