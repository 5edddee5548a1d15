package dmq

import (
	"context"
	"sync"

	"github.com/mtmcore/arbiter/internal/nodemask"
)

type queuedMsg struct {
	sender  int
	payload []byte
}

// streamQueue is a single-producer(many)/single-consumer mailbox for
// one (node, stream) pair, matching §5's "per-peer BgwPool queues are
// single-producer-single-consumer" note generalized to a shared
// mailbox per subscribed stream. The wake channel is the classic
// close-and-replace broadcast idiom: blocked Pop calls select on a
// copy of wake taken under the lock, so a Push/MarkDetached after they
// released the lock but before they entered select still wakes them
// (the channel close happens only after the new state is visible).
type streamQueue struct {
	mu      sync.Mutex
	msgs    []queuedMsg
	detach  map[int]bool
	wake    chan struct{}
}

func newStreamQueue() *streamQueue {
	return &streamQueue{
		detach: map[int]bool{},
		wake:   make(chan struct{}),
	}
}

func (q *streamQueue) notifyLocked() chan struct{} {
	old := q.wake
	q.wake = make(chan struct{})
	return old
}

func (q *streamQueue) push(sender int, payload []byte) {
	q.mu.Lock()
	q.msgs = append(q.msgs, queuedMsg{sender: sender, payload: payload})
	old := q.notifyLocked()
	q.mu.Unlock()
	close(old)
}

func (q *streamQueue) markDetached(sender int) {
	q.mu.Lock()
	q.detach[sender] = true
	old := q.notifyLocked()
	q.mu.Unlock()
	close(old)
}

func (q *streamQueue) pop(ctx context.Context, mask nodemask.NodeMask) (PopResult, error) {
	for {
		q.mu.Lock()
		for i, m := range q.msgs {
			if mask.Has(m.sender) {
				q.msgs = append(q.msgs[:i], q.msgs[i+1:]...)
				q.mu.Unlock()
				return PopResult{Sender: m.sender, Payload: m.payload}, nil
			}
		}
		for id := range q.detach {
			if mask.Has(id) {
				delete(q.detach, id)
				q.mu.Unlock()
				return PopResult{Sender: id, Detached: true}, nil
			}
		}
		wait := q.wake
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return PopResult{}, ctx.Err()
		}
	}
}
