package membership

import (
	"context"
	"sync"
	"time"

	"github.com/mtmcore/arbiter/internal/dmq"
	"github.com/mtmcore/arbiter/internal/nodemask"
	"github.com/mtmcore/arbiter/internal/wire"
)

const heartbeatStream = "mtm-heartbeat"

// Heartbeat broadcasts HEARTBEAT messages and tracks per-peer
// last-seen times, driving the "peer i times out" and "heartbeat from
// peer i after disabled" rows of §4.2's transition table. Grounded on
// the teacher's periodic-Send shape in network/detector/res.go,
// generalized from robustness-level gossip to liveness heartbeats.
type Heartbeat struct {
	state     *State
	transport dmq.Transport
	sendEvery time.Duration
	recvEvery time.Duration

	mu        sync.Mutex
	lastSeen  map[int]time.Time
	peerViews map[int]nodemask.NodeMask
}

// NewHeartbeat wires a tracker for state over transport. sendEvery and
// recvEvery come from configs.HeartbeatSendTimeout /
// configs.HeartbeatRecvTimeout (§6: defaults 200ms / 1000ms, "5x send
// interval").
func NewHeartbeat(state *State, transport dmq.Transport, sendEvery, recvEvery time.Duration) *Heartbeat {
	return &Heartbeat{
		state:     state,
		transport: transport,
		sendEvery: sendEvery,
		recvEvery: recvEvery,
		lastSeen:  map[int]time.Time{},
		peerViews: map[int]nodemask.NodeMask{},
	}
}

// Run drives the send and timeout-scan loops until ctx is cancelled.
// Callers run this as the dedicated heartbeat thread (§5).
func (h *Heartbeat) Run(ctx context.Context) error {
	if err := h.transport.StreamSubscribe(heartbeatStream); err != nil {
		return err
	}
	defer h.transport.StreamUnsubscribe(heartbeatStream)

	go h.sendLoop(ctx)
	go h.scanLoop(ctx)
	go h.recvLoop(ctx)
	<-ctx.Done()
	return ctx.Err()
}

func (h *Heartbeat) sendLoop(ctx context.Context) {
	ticker := time.NewTicker(h.sendEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.broadcast()
		}
	}
}

func (h *Heartbeat) broadcast() {
	reachable := nodemask.Of(h.state.SelfID())
	cutoff := time.Now().Add(-h.recvEvery)
	h.mu.Lock()
	for node, seen := range h.lastSeen {
		if !seen.Before(cutoff) {
			reachable = reachable.Set(node)
		}
	}
	h.mu.Unlock()
	h.state.SetConnectivity(reachable)
	snap := h.state.Read()
	msg := &wire.ArbiterMessage{
		Code:             wire.CodeHeartbeat,
		Node:             uint8(h.state.SelfID()),
		ConnectivityMask: uint64(snap.ConnectivityMask),
	}
	payload, err := wire.Encode(msg)
	if err != nil {
		return
	}
	for _, peer := range h.state.AllNodes().Nodes() {
		if peer == h.state.SelfID() {
			continue
		}
		_ = h.transport.Push(peer, heartbeatStream, payload)
	}
}

func (h *Heartbeat) recvLoop(ctx context.Context) {
	for {
		res, err := h.transport.Pop(ctx, heartbeatStream, h.state.AllNodes())
		if err != nil {
			return
		}
		if res.Detached {
			h.markDisabled(res.Sender)
			continue
		}
		msg, err := wire.Decode(res.Payload)
		if err != nil || msg.Code != wire.CodeHeartbeat {
			continue
		}
		h.observe(int(msg.Node), nodemask.NodeMask(msg.ConnectivityMask))
	}
}

func (h *Heartbeat) observe(node int, connectivity nodemask.NodeMask) {
	h.mu.Lock()
	h.lastSeen[node] = time.Now()
	h.peerViews[node] = connectivity
	h.mu.Unlock()
	// §4.2: "heartbeat from peer i after being disabled -> clear bit i"
	h.state.ClearDisabled(node)
}

func (h *Heartbeat) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(h.recvEvery / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.scanOnce()
		}
	}
}

func (h *Heartbeat) scanOnce() {
	cutoff := time.Now().Add(-h.recvEvery)
	h.mu.Lock()
	stale := make([]int, 0)
	for node, seen := range h.lastSeen {
		if seen.Before(cutoff) {
			stale = append(stale, node)
		}
	}
	h.mu.Unlock()
	for _, node := range stale {
		h.markDisabled(node)
	}
}

func (h *Heartbeat) markDisabled(node int) {
	h.state.MarkDisabled(node)
	h.transport.NotifyDetach(node)
}

// Views returns node->connectivity_mask for self plus every peer whose
// last HEARTBEAT carried a connectivity_mask, for clique computation
// (clique.go).
func (h *Heartbeat) Views() map[int]nodemask.NodeMask {
	snap := h.state.Read()
	views := map[int]nodemask.NodeMask{h.state.SelfID(): snap.ConnectivityMask}
	h.mu.Lock()
	defer h.mu.Unlock()
	for node, view := range h.peerViews {
		views[node] = view
	}
	return views
}
