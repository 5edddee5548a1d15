// Package dmq implements the reliable directed-message-queue contract
// this core consumes (spec §6): attach_receiver, stream_subscribe/
// unsubscribe, pop(mask), push. The DMQ itself (generic reliable,
// framed, in-order, at-most-once inter-node delivery) is an external
// collaborator per spec §1; this package defines the interface the
// core programs against and ships two concrete transports: an
// in-process Loop network for tests and a real framed TCP transport,
// both grounded on FC/network/participant/conn.go's connection
// management shape.
package dmq

import (
	"context"

	"github.com/mtmcore/arbiter/internal/nodemask"
)

// PopResult is what Pop(mask) returns: either a message from a sender
// covered by mask, or notice that a covered sender has detached.
type PopResult struct {
	Sender   int
	Payload  []byte
	Detached bool
}

// Transport is the DMQ contract consumed by this core (§6).
type Transport interface {
	// AttachReceiver registers this process as a receiver of messages
	// originating from senderID, filed under a human-readable name.
	AttachReceiver(name string, senderID int) error

	// StreamSubscribe opens stream for receiving; only messages pushed
	// to a subscribed stream are visible to Pop.
	StreamSubscribe(stream string) error

	// StreamUnsubscribe closes a previously subscribed stream.
	StreamUnsubscribe(stream string)

	// Pop blocks until a message from a sender in mask arrives on
	// stream, a covered sender is reported detached, or ctx is done.
	// It returns only when at least one sender in mask produced a
	// message or detached, per §6.
	Pop(ctx context.Context, stream string, mask nodemask.NodeMask) (PopResult, error)

	// Push sends payload to dest on stream.
	Push(dest int, stream string, payload []byte) error

	// NotifyDetach marks senderID as detached on every stream this
	// transport has subscribed to, unblocking any Pop waiting on it.
	// Called by the heartbeat tracker / membership state machine when
	// a peer disconnects.
	NotifyDetach(senderID int)

	// Close releases transport resources.
	Close() error
}
