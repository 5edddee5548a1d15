// Package membership implements the cluster liveness state machine
// (§4.2): per-node status, heartbeat-driven failure detection, clique
// computation over merged connectivity reports, and external referee
// arbitration for two-node splits. MembershipState is process-wide and
// outlives any single transaction; it is read under a shared lock by
// every commit coordinator and mutated by a single writer goroutine,
// grounded on FC/network/detector/rlsm.go's LevelStateMachine pattern
// (a small FSM behind a viney-shih/go-lock RWMutex).
package membership

import (
	lock "github.com/viney-shih/go-lock"

	"github.com/mtmcore/arbiter/internal/nodemask"
)

// Status is one state of the §4.2 machine.
type Status int

const (
	Initialization Status = iota
	Disabled
	Recovery
	Recovered
	Online
)

func (s Status) String() string {
	switch s {
	case Initialization:
		return "INITIALIZATION"
	case Disabled:
		return "DISABLED"
	case Recovery:
		return "RECOVERY"
	case Recovered:
		return "RECOVERED"
	case Online:
		return "ONLINE"
	default:
		return "UNKNOWN"
	}
}

// State is the process-wide membership record (§3). All fields behind
// latch are read/written only through State's methods.
type State struct {
	selfID  int
	allNode nodemask.NodeMask

	latch lock.RWMutex

	status           Status
	disabledMask     nodemask.NodeMask
	clique           nodemask.NodeMask
	connectivityMask nodemask.NodeMask
	refereeGrant     bool
	refereeWinnerID  int
	recoveryCount    uint64
}

// New returns a MembershipState initialized to INITIALIZATION, as
// required by §3's lifecycle note ("initialized once at startup").
func New(selfID int, allNodes nodemask.NodeMask) *State {
	return &State{
		selfID:           selfID,
		allNode:          allNodes,
		latch:            lock.NewCASMutex(),
		status:           Initialization,
		connectivityMask: nodemask.Of(selfID),
		clique:           nodemask.Of(selfID),
	}
}

// Snapshot is an immutable point-in-time read of State, the only form
// in which callers outside this package observe membership.
type Snapshot struct {
	Status           Status
	DisabledMask     nodemask.NodeMask
	Clique           nodemask.NodeMask
	ConnectivityMask nodemask.NodeMask
	RefereeGrant     bool
	RefereeWinnerID  int
	RecoveryCount    uint64
}

// Read takes State's shared lock and returns a Snapshot, never held
// across a DMQ or database call per §5.
func (s *State) Read() Snapshot {
	s.latch.RLock()
	defer s.latch.RUnlock()
	return Snapshot{
		Status:           s.status,
		DisabledMask:     s.disabledMask,
		Clique:           s.clique,
		ConnectivityMask: s.connectivityMask,
		RefereeGrant:     s.refereeGrant,
		RefereeWinnerID:  s.refereeWinnerID,
		RecoveryCount:    s.recoveryCount,
	}
}

// Participants returns (all_nodes \ disabled_mask) \ {self_id}, the
// §3/§4.1-step-3 participant derivation, taken under the same shared
// read as the rest of the snapshot so it is consistent with Status.
func (s *State) Participants() (nodemask.NodeMask, Status) {
	s.latch.RLock()
	defer s.latch.RUnlock()
	p := s.allNode.Diff(s.disabledMask)
	p = p.Clear(s.selfID)
	return p, s.status
}

// IsOnline reports whether status == ONLINE under the shared lock.
func (s *State) IsOnline() bool {
	s.latch.RLock()
	defer s.latch.RUnlock()
	return s.status == Online
}

func (s *State) writeLocked(fn func()) {
	s.latch.Lock()
	defer s.latch.Unlock()
	fn()
}

// SetStatus transitions status under the exclusive lock. Callers are
// the state machine in machine.go; transition legality is enforced
// there, not here, since State itself is a dumb store.
func (s *State) SetStatus(next Status) {
	s.writeLocked(func() { s.status = next })
}

// EnterRecovery transitions to RECOVERY and bumps recovery_count (§3:
// "monotonically increasing each time this node re-enters recovery"),
// the value the deadlock detector tags every local snapshot with so
// stale contributions from a peer that has since re-recovered can be
// told apart from current ones (§4.4 "Freshness").
func (s *State) EnterRecovery() {
	s.writeLocked(func() {
		s.status = Recovery
		s.recoveryCount++
	})
}

// RecoveryCount reads the current recovery epoch under the shared lock.
func (s *State) RecoveryCount() uint64 {
	s.latch.RLock()
	defer s.latch.RUnlock()
	return s.recoveryCount
}

// MarkDisabled sets node i's bit in disabled_mask, per the "any" row
// of §4.2's transition table. disabled_mask only grows here; it is
// cleared bit-by-bit only via ClearDisabled, matching §3's invariant
// that it is monotonically non-decreasing within one commit's gather
// window.
func (s *State) MarkDisabled(node int) {
	s.writeLocked(func() { s.disabledMask = s.disabledMask.Set(node) })
}

// ClearDisabled removes node i's bit, used when a heartbeat arrives
// from a previously disabled peer (§4.2: "peer must itself re-enter
// RECOVERY", which is that peer's own state, not ours — we merely stop
// treating it as unreachable).
func (s *State) ClearDisabled(node int) {
	s.writeLocked(func() { s.disabledMask = s.disabledMask.Clear(node) })
}

// SetConnectivity replaces self's connectivity view; Heartbeat calls
// it before every broadcast.
func (s *State) SetConnectivity(mask nodemask.NodeMask) {
	s.writeLocked(func() { s.connectivityMask = mask })
}

// SetClique installs a freshly computed clique (clique.go).
func (s *State) SetClique(c nodemask.NodeMask) {
	s.writeLocked(func() { s.clique = c })
}

// SetReferee records a referee decision (§4.2).
func (s *State) SetReferee(granted bool, winner int) {
	s.writeLocked(func() {
		s.refereeGrant = granted
		s.refereeWinnerID = winner
	})
}

func (s *State) SelfID() int              { return s.selfID }
func (s *State) AllNodes() nodemask.NodeMask { return s.allNode }
