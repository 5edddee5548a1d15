// Package configs holds the process-wide tunables and debug switches
// shared by every other package in this module, the way FC/configs does
// for the teaching harness this core is adapted from.
package configs

import "time"

// Debugging switches.
var (
	ShowDebugInfo = false
	ShowWarnings  = ShowDebugInfo
	ShowTestInfo  = ShowDebugInfo
	LogToFile     = false
)

// MaxNodes bounds the cluster size so NodeMask fits a machine word (§3).
const MaxNodes = 16

// Config keys and defaults (§6).
var (
	HeartbeatSendTimeout = 200 * time.Millisecond
	HeartbeatRecvTimeout = 1000 * time.Millisecond
	MaxNodesConfigured   = 6
	QueueSizeBytes       = 10 * 1024 * 1024
	TransSpillThreshold  = 100 * 1024 * 1024
	MaxWorkers           = 100
	MonotonicSequences   = false
	IgnoreTablesNoPK     = false
	RefereeConnString    = ""
	RemoteFunctions      = []string{}
)

// VolkswagenMode is an inert compatibility flag (spec §9 DESIGN NOTES):
// retained because the original carries it, read by nothing.
var VolkswagenMode = false

// GidMax bounds the zero-padded gid byte array of ArbiterMessage (§3).
const GidMax = 64

// CrashFailureTimeout is retained from the teacher; no package in this
// module reads it. Per §5 the commit coordinator's gather loop never
// arms a timer against it — only the
// membership state machine's disabled_mask transition unblocks a
// gather on a silent peer.
var CrashFailureTimeout = 5 * time.Second

// DeadlockDetectionInterval is the 1 Hz default cadence from §4.4.
var DeadlockDetectionInterval = time.Second

// MembershipTickInterval is how often the state machine re-evaluates
// clique/referee status (§4.2). Independent of the heartbeat send/recv
// timeouts above: heartbeats feed connectivity views continuously,
// this just controls how promptly the machine reacts to them.
var MembershipTickInterval = 250 * time.Millisecond

// SyncpointLSNInterval/SyncpointTimeInterval gate how often a syncpoint
// log record is emitted (§4.1 step 8): on whichever threshold trips
// first.
var (
	SyncpointLSNInterval  uint64 = 1 << 20
	SyncpointTimeInterval        = 10 * time.Second
)
