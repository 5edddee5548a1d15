package dmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/mtmcore/arbiter/internal/nodemask"
)

// Network is an in-process fabric connecting every node's Loop
// transport within one test binary: exactly the "single-process
// tests" transport SPEC_FULL §6 calls for. Push(dest, ...) looks up
// dest's mailbox directly; there is no socket in between.
type Network struct {
	mu        sync.Mutex
	mailboxes map[int]map[string]*streamQueue // nodeID -> stream -> queue
}

// NewNetwork returns an empty in-process fabric.
func NewNetwork() *Network {
	return &Network{mailboxes: map[int]map[string]*streamQueue{}}
}

func (n *Network) queue(nodeID int, stream string) *streamQueue {
	n.mu.Lock()
	defer n.mu.Unlock()
	byStream, ok := n.mailboxes[nodeID]
	if !ok {
		byStream = map[string]*streamQueue{}
		n.mailboxes[nodeID] = byStream
	}
	q, ok := byStream[stream]
	if !ok {
		q = newStreamQueue()
		byStream[stream] = q
	}
	return q
}

// Node returns the Transport handle a node with the given id should
// use to talk to the rest of the fabric.
func (n *Network) Node(id int) Transport {
	return &Loop{net: n, self: id, subscribed: map[string]bool{}}
}

// Loop is one node's view of an in-process Network.
type Loop struct {
	net  *Network
	self int

	mu          sync.Mutex
	subscribed  map[string]bool
	attached    map[string]int
}

func (l *Loop) AttachReceiver(name string, senderID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.attached == nil {
		l.attached = map[string]int{}
	}
	l.attached[name] = senderID
	return nil
}

func (l *Loop) StreamSubscribe(stream string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribed[stream] = true
	l.net.queue(l.self, stream) // ensure the mailbox exists before Pop is called
	return nil
}

func (l *Loop) StreamUnsubscribe(stream string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subscribed, stream)
}

func (l *Loop) Pop(ctx context.Context, stream string, mask nodemask.NodeMask) (PopResult, error) {
	l.mu.Lock()
	ok := l.subscribed[stream]
	l.mu.Unlock()
	if !ok {
		return PopResult{}, fmt.Errorf("dmq: node %d not subscribed to stream %q", l.self, stream)
	}
	return l.net.queue(l.self, stream).pop(ctx, mask)
}

func (l *Loop) Push(dest int, stream string, payload []byte) error {
	l.net.queue(dest, stream).push(l.self, payload)
	return nil
}

func (l *Loop) NotifyDetach(senderID int) {
	l.mu.Lock()
	streams := make([]string, 0, len(l.subscribed))
	for s := range l.subscribed {
		streams = append(streams, s)
	}
	l.mu.Unlock()
	for _, s := range streams {
		l.net.queue(l.self, s).markDetached(senderID)
	}
}

func (l *Loop) Close() error { return nil }
