package deadlock

import (
	"github.com/goccy/go-json"
)

// snapshotStream carries per-node wait-for graph snapshots to the
// elected detector (§4.4). abortStream carries the detector's victim
// decision back out to every node. Both are plain JSON documents, not
// the fixed-layout ArbiterMessage record: a graph snapshot's edge list
// has no fixed size, so it gets the same goccy/go-json treatment the
// rest of the pack uses for document-shaped payloads (see
// wire.ArbiterMessage for why the commit/membership control messages are the one
// exception).
const (
	snapshotStream = "mtm-deadlock-snapshot"
	abortStream    = "mtm-deadlock-abort"
)

// Snapshot is one node's contribution to the global wait-for graph,
// tagged with the recovery_count its membership state held when
// gathered so the detector can discard stale contributions (§4.4
// "Freshness").
type Snapshot struct {
	Node          int    `json:"node"`
	RecoveryCount uint64 `json:"recovery_count"`
	Edges         []Edge `json:"edges"`
}

func encodeSnapshot(s Snapshot) ([]byte, error) { return json.Marshal(s) }

func decodeSnapshot(buf []byte) (Snapshot, error) {
	var s Snapshot
	err := json.Unmarshal(buf, &s)
	return s, err
}

// abortNotice is the detector's ABORT(gid) broadcast (§4.4), pushed
// to every node in all_nodes, not only the victim's participants.
type abortNotice struct {
	GID string `json:"gid"`
}

func encodeAbort(gid string) ([]byte, error) { return json.Marshal(abortNotice{GID: gid}) }

func decodeAbort(buf []byte) (string, error) {
	var a abortNotice
	if err := json.Unmarshal(buf, &a); err != nil {
		return "", err
	}
	return a.GID, nil
}
