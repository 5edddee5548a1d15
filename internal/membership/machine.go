package membership

import (
	"context"
	"time"

	"github.com/mtmcore/arbiter/internal/nodemask"
)

// RecoveryHooks lets the machine ask the host-side recovery pipeline
// about donor acquisition and catch-up, without this package knowing
// anything about WAL replay or logical decoding (those are external
// collaborators per spec §1).
type RecoveryHooks interface {
	// AcquireDonorSlot attempts to start streaming from a live peer.
	// Returning true drives DISABLED -> RECOVERY.
	AcquireDonorSlot(ctx context.Context, candidates []int) bool
	// CaughtUpToDonor reports RECOVERY -> RECOVERED readiness: the
	// receiver has applied up to the donor's end-of-WAL.
	CaughtUpToDonor(ctx context.Context) bool
	// PeersAcknowledgeResumption reports RECOVERED -> ONLINE readiness:
	// every live peer has applied up to our resumption point.
	PeersAcknowledgeResumption(ctx context.Context) bool
}

// Machine drives State through §4.2's transition table. It owns the
// single writer: all status changes flow through its Run loop.
type Machine struct {
	state     *State
	heartbeat *Heartbeat
	referee   *Referee
	hooks     RecoveryHooks
	tick      time.Duration
}

// NewMachine wires a driver for state, polling the clique/referee
// decision every tick (configs.MembershipTickInterval).
func NewMachine(state *State, heartbeat *Heartbeat, referee *Referee, hooks RecoveryHooks, tick time.Duration) *Machine {
	return &Machine{state: state, heartbeat: heartbeat, referee: referee, hooks: hooks, tick: tick}
}

// Run drives the machine until ctx is cancelled. It is the single
// writer goroutine for State's status field (§3/§5).
func (m *Machine) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.step(ctx)
		}
	}
}

func (m *Machine) step(ctx context.Context) {
	m.recomputeClique()

	snap := m.state.Read()
	switch snap.Status {
	case Initialization:
		m.state.SetStatus(Disabled)
	case Disabled:
		m.tryRecover(ctx, snap)
	case Recovery:
		if m.hooks.CaughtUpToDonor(ctx) {
			m.state.SetStatus(Recovered)
		}
	case Recovered:
		if m.hooks.PeersAcknowledgeResumption(ctx) {
			m.state.SetStatus(Online)
		}
	case Online:
		m.checkOnlineHealth(ctx, snap)
	}
}

// recomputeClique merges heartbeat views into the symmetric adjacency
// the clique algorithm needs, and installs the result (§4.2).
func (m *Machine) recomputeClique() {
	self := m.state.SelfID()
	clique := LargestClique(self, m.heartbeat.Views())
	m.state.SetClique(clique)
}

func (m *Machine) tryRecover(ctx context.Context, snap Snapshot) {
	if m.hasMajority(snap) {
		live := snap.Clique.Diff(nodemask.Of(m.state.SelfID())).Nodes()
		if len(live) == 0 {
			return
		}
		if m.hooks.AcquireDonorSlot(ctx, live) {
			m.state.EnterRecovery()
		}
		return
	}
	if m.twoNodeDegenerate(snap) && m.referee != nil {
		won, _, err := m.referee.Claim(ctx, m.state.SelfID())
		if err == nil && won {
			m.state.SetReferee(true, m.state.SelfID())
			m.state.EnterRecovery()
		}
	}
}

func (m *Machine) checkOnlineHealth(ctx context.Context, snap Snapshot) {
	if m.hasMajority(snap) {
		if snap.RefereeGrant && m.referee != nil {
			if err := m.referee.Surrender(ctx, m.state.SelfID()); err == nil {
				m.state.SetReferee(false, 0)
			}
		}
		return
	}
	if m.twoNodeDegenerate(snap) {
		if m.referee != nil {
			won, _, err := m.referee.Claim(ctx, m.state.SelfID())
			if err == nil && won {
				return // referee keeps us online alone
			}
		}
		m.state.SetReferee(false, 0)
	}
	// §4.2: "self loses majority OR is referee-loser -> DISABLED"
	m.state.SetStatus(Disabled)
}

// hasMajority reports whether clique (including self) covers a
// majority of all_nodes, the non-referee path through §4.2's tables.
func (m *Machine) hasMajority(snap Snapshot) bool {
	total := snap.Clique.Union(nodemask.Of(m.state.SelfID()))
	return 2*total.Count() > m.state.AllNodes().Count()
}

// twoNodeDegenerate reports the referee precondition: N=2 and the
// clique has collapsed to just self (§4.2).
func (m *Machine) twoNodeDegenerate(snap Snapshot) bool {
	return m.state.AllNodes().Count() == 2 && snap.Clique.Count() == 1
}
