// Package locks implements CommitBarrier (§4.1/§4.3), the shared/
// exclusive lock coordinators and joining receivers interlock on.
// Adapted from FC/locks/rw_lock.go's starvation-protected spin lock:
// the teacher's RWLock already has exactly the write-protect-window
// shape a commit barrier needs (many concurrent shared holders, an
// occasional brief exclusive holder that must not starve), so this
// keeps that shape and renames the API to the barrier's own domain
// vocabulary instead of a generic RWLock.
package locks

import (
	"sync"
	"time"
)

// writeProtectWindow is how long a recent contended access blocks new
// shared acquisitions, to stop exclusive acquirers (the rarer, higher-
// priority case: a receiver installing a new participant) from
// starving under a steady stream of commits.
const writeProtectWindow = 5 * time.Microsecond

// CommitBarrier is a distinct reader-writer lock from the membership
// lock (§5: "Never nested inside the membership lock"). Coordinators
// hold it shared through their whole 3PC sequence (§4.1 step 2);
// receivers take it exclusively for a brief window to install a new
// participant bit (§4.3).
type CommitBarrier struct {
	mu                  sync.Mutex
	readers             int
	writer              bool
	writeProtectEndTime int64
}

// NewCommitBarrier returns a ready-to-use CommitBarrier.
func NewCommitBarrier() *CommitBarrier {
	return &CommitBarrier{}
}

func (b *CommitBarrier) tryAcquireExclusive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writer || b.readers > 0 {
		b.writeProtectEndTime = time.Now().UnixNano() + int64(writeProtectWindow)
		return false
	}
	b.writer = true
	return true
}

// AcquireExclusive blocks until the barrier is held exclusively. Used
// by the receiver-side apply guard (§4.3) to install a new participant
// bit; drains any in-flight coordinators, none of which will capture
// participants until release.
func (b *CommitBarrier) AcquireExclusive() {
	for !b.tryAcquireExclusive() {
	}
}

// ReleaseExclusive releases an exclusive hold.
func (b *CommitBarrier) ReleaseExclusive() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writer = false
}

func (b *CommitBarrier) tryAcquireShared() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writer || time.Now().UnixNano() < b.writeProtectEndTime {
		return false
	}
	b.readers++
	return true
}

// AcquireShared blocks until the barrier can be held shared. Used by
// commit coordinators (§4.1 step 2): held through the whole 3PC
// sequence up to and including step 7.
func (b *CommitBarrier) AcquireShared() {
	for !b.tryAcquireShared() {
	}
}

// ReleaseShared releases one shared hold.
func (b *CommitBarrier) ReleaseShared() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readers > 0 {
		b.readers--
	}
}
