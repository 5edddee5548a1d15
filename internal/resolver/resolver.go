// Package resolver implements §4.5: resolution of a GID left PREPARED
// on some node after a restart or network healing, by polling every
// other live node for its status and applying presumed-commit-after-
// precommit. Grounded on FC/network/coordinator/manager.go's poll-then-
// gather shape (readValue's broadcast-and-collect loop), retargeted
// from reading a row's value to polling a GID's outcome.
package resolver

import (
	"context"

	"github.com/mtmcore/arbiter/internal/dmq"
	"github.com/mtmcore/arbiter/internal/membership"
	"github.com/mtmcore/arbiter/internal/wire"
)

// requestStream is where every node's resolver listens for POLL_STATUS
// queries about a GID it may hold an orphaned PREPARE for.
const requestStream = "mtm-resolve"

func replyStream(gid string) string { return "resolve-" + gid }

// Resolver implements both halves of §4.5: Serve answers peers' polls
// about this node's own GIDs, Resolve drives the poll for one of this
// node's own orphans.
type Resolver struct {
	selfID    int
	transport dmq.Transport
	state     *membership.State
	local     LocalInspector
}

// NewResolver wires a resolver for selfID, polling the peer set the
// current membership state considers live.
func NewResolver(selfID int, transport dmq.Transport, state *membership.State, local LocalInspector) *Resolver {
	return &Resolver{selfID: selfID, transport: transport, state: state, local: local}
}

// Serve answers incoming POLL_STATUS requests against this node's own
// LocalInspector until ctx is cancelled or the subscription fails.
func (r *Resolver) Serve(ctx context.Context) error {
	if err := r.transport.StreamSubscribe(requestStream); err != nil {
		return err
	}
	defer r.transport.StreamUnsubscribe(requestStream)

	for {
		res, err := r.transport.Pop(ctx, requestStream, r.state.AllNodes())
		if err != nil {
			return err
		}
		if res.Detached {
			continue
		}
		in, err := wire.Decode(res.Payload)
		if err != nil || in.Code != wire.CodePollStatus {
			continue
		}
		status, err := r.local.Status(ctx, in.GID)
		if err != nil {
			continue
		}
		out := &wire.ArbiterMessage{
			Code: wire.CodeStatus,
			Node: uint8(r.selfID),
			Oxid: uint64(fromLocalStatus(status)),
			GID:  in.GID,
		}
		payload, err := wire.Encode(out)
		if err != nil {
			continue
		}
		_ = r.transport.Push(res.Sender, replyStream(in.GID), payload)
	}
}

// Resolve runs §4.5 for gid: if it is no longer locally PREPARED or
// PRECOMMITTED, resolution already happened and this is a no-op
// (repeated polls are safe). Otherwise it polls every live peer and
// applies the decision table: any COMMIT wins, else any ABORT wins,
// else presumed-commit if self is past PRECOMMIT, else abort.
func (r *Resolver) Resolve(ctx context.Context, gid string) error {
	status, err := r.local.Status(ctx, gid)
	if err != nil {
		return err
	}
	if status != StatusPrepared && status != StatusPrecommitted {
		return nil
	}

	stream := replyStream(gid)
	if err := r.transport.StreamSubscribe(stream); err != nil {
		return err
	}
	defer r.transport.StreamUnsubscribe(stream)

	peers, _ := r.state.Participants()
	poll := &wire.ArbiterMessage{Code: wire.CodePollStatus, Node: uint8(r.selfID), GID: gid}
	payload, err := wire.Encode(poll)
	if err != nil {
		return err
	}
	for _, peer := range peers.Nodes() {
		_ = r.transport.Push(peer, requestStream, payload)
	}

	sawCommit, sawAbort := false, false
	remaining := peers
	for !remaining.Empty() {
		res, err := r.transport.Pop(ctx, stream, remaining)
		if err != nil {
			return err
		}
		if res.Detached {
			remaining = remaining.Clear(res.Sender)
			continue
		}
		in, err := wire.Decode(res.Payload)
		if err != nil || in.Code != wire.CodeStatus || in.GID != gid {
			continue
		}
		switch outcome(in.Oxid) {
		case outcomeCommit:
			sawCommit = true
		case outcomeAbort:
			sawAbort = true
		}
		remaining = remaining.Clear(res.Sender)
	}

	return r.local.FinishPrepared(ctx, gid, decide(sawCommit, sawAbort, status))
}

func decide(sawCommit, sawAbort bool, self LocalStatus) bool {
	switch {
	case sawCommit:
		return true
	case sawAbort:
		return false
	case self == StatusPrecommitted:
		return true // presumed commit after precommit
	default:
		return false // only PREPARED, nobody knew better
	}
}
