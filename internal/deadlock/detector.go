package deadlock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/robfig/cron/v3"

	"github.com/mtmcore/arbiter/internal/configs"
	"github.com/mtmcore/arbiter/internal/dmq"
	"github.com/mtmcore/arbiter/internal/membership"
)

// LocalAborter is the host engine's local abort hook (§1's host engine
// collaborator, narrowed to the one call this package drives): tell
// the host to roll back the transaction carrying gid.
type LocalAborter interface {
	AbortLocal(ctx context.Context, gid string) error
}

// Detector runs both halves of §4.4 on every node: it always forwards
// its own graph snapshot on a schedule, and additionally acts as the
// elected detector (merge + cycle search) whenever it happens to be
// the lowest-id online node.
type Detector struct {
	selfID    int
	state     *membership.State
	transport dmq.Transport
	graph     *Graph
	aborter   LocalAborter

	mu        sync.Mutex
	received  map[int]Snapshot // latest accepted contribution per node
	peerEpoch map[int]uint64   // highest recovery_count seen per node
}

// NewDetector wires a detector for selfID over graph, driven by
// transport and the shared membership state used for election and
// freshness checks.
func NewDetector(selfID int, state *membership.State, transport dmq.Transport, graph *Graph, aborter LocalAborter) *Detector {
	return &Detector{
		selfID:    selfID,
		state:     state,
		transport: transport,
		graph:     graph,
		aborter:   aborter,
		received:  make(map[int]Snapshot),
		peerEpoch: make(map[int]uint64),
	}
}

// Run subscribes to both detector streams, starts the snapshot
// receiver, and schedules the periodic snapshot broadcast (default
// 1 Hz, §4.4) via robfig/cron until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	if err := d.transport.StreamSubscribe(snapshotStream); err != nil {
		return err
	}
	defer d.transport.StreamUnsubscribe(snapshotStream)
	if err := d.transport.StreamSubscribe(abortStream); err != nil {
		return err
	}
	defer d.transport.StreamUnsubscribe(abortStream)

	c := cron.New()
	spec := fmt.Sprintf("@every %s", configs.DeadlockDetectionInterval)
	if _, err := c.AddFunc(spec, func() { d.tick() }); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	go d.recvSnapshots(ctx)
	go d.recvAbort(ctx)

	<-ctx.Done()
	return ctx.Err()
}

// tick runs one round: send self's snapshot to whoever is elected
// detector, and if that's self, run cycle detection over whatever has
// been gathered so far.
func (d *Detector) tick() {
	detectorID := d.electedDetector()
	snap := Snapshot{
		Node:          d.selfID,
		RecoveryCount: d.state.RecoveryCount(),
		Edges:         d.graph.GlobalEdges(),
	}
	payload, err := encodeSnapshot(snap)
	if err == nil {
		_ = d.transport.Push(detectorID, snapshotStream, payload)
	}
	if detectorID == d.selfID {
		d.detectAndAbort()
	}
}

// electedDetector returns the lowest-id online node (§4.4), including
// self if self is online.
func (d *Detector) electedDetector() int {
	snap := d.state.Read()
	online := d.state.AllNodes().Diff(snap.DisabledMask)
	if id := online.LowestSetBit(); id != 0 {
		return id
	}
	return d.selfID
}

// recvSnapshots drains the snapshot stream and keeps d.received
// current, applying §4.4's "Freshness" rule: a contribution whose
// recovery_count is older than the newest one already seen for that
// node is a stale straggler from a node that has since re-recovered,
// and is discarded.
func (d *Detector) recvSnapshots(ctx context.Context) {
	for {
		res, err := d.transport.Pop(ctx, snapshotStream, d.state.AllNodes())
		if err != nil {
			return
		}
		if res.Detached {
			continue
		}
		snap, err := decodeSnapshot(res.Payload)
		if err != nil {
			continue
		}
		d.mu.Lock()
		if snap.RecoveryCount >= d.peerEpoch[snap.Node] {
			d.peerEpoch[snap.Node] = snap.RecoveryCount
			d.received[snap.Node] = snap
		}
		d.mu.Unlock()
	}
}

// detectAndAbort merges every currently-held snapshot into one global
// graph, runs DFS cycle detection, and broadcasts ABORT for the
// lowest-GID vertex of any cycle found (§4.4).
func (d *Detector) detectAndAbort() {
	d.mu.Lock()
	adj := make(map[string]mapset.Set, len(d.received))
	for _, snap := range d.received {
		for _, e := range snap.Edges {
			if _, ok := adj[e.From]; !ok {
				adj[e.From] = mapset.NewSet()
			}
			adj[e.From].Add(e.To)
			if _, ok := adj[e.To]; !ok {
				adj[e.To] = mapset.NewSet()
			}
		}
	}
	d.mu.Unlock()

	cycle := findCycle(adj)
	if cycle == nil {
		return
	}
	victim := lowestGID(cycle)
	payload, err := encodeAbort(victim)
	if err != nil {
		return
	}
	for _, node := range d.state.AllNodes().Nodes() {
		_ = d.transport.Push(node, abortStream, payload)
	}
}

// recvAbort listens for the detector's ABORT(gid) decisions and tells
// the host engine to roll the matching local transaction back.
func (d *Detector) recvAbort(ctx context.Context) {
	for {
		res, err := d.transport.Pop(ctx, abortStream, d.state.AllNodes())
		if err != nil {
			return
		}
		if res.Detached {
			continue
		}
		gid, err := decodeAbort(res.Payload)
		if err != nil {
			continue
		}
		if d.aborter != nil {
			_ = d.aborter.AbortLocal(ctx, gid)
		}
	}
}

// findCycle runs a DFS over adj and returns the vertex set of the
// first cycle found, or nil.
func findCycle(adj map[string]mapset.Set) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(adj))
	var stack []string
	var cycle []string

	var visit func(v string) bool
	visit = func(v string) bool {
		color[v] = gray
		stack = append(stack, v)
		if neighbors, ok := adj[v]; ok {
			for _, n := range neighbors.ToSlice() {
				next := n.(string)
				switch color[next] {
				case white:
					if visit(next) {
						return true
					}
				case gray:
					// found the back edge closing a cycle; slice the
					// stack from next's first occurrence.
					for i, s := range stack {
						if s == next {
							cycle = append([]string{}, stack[i:]...)
							return true
						}
					}
				}
			}
		}
		color[v] = black
		stack = stack[:len(stack)-1]
		return false
	}

	vertices := make([]string, 0, len(adj))
	for v := range adj {
		vertices = append(vertices, v)
	}
	sort.Strings(vertices) // deterministic traversal order

	for _, v := range vertices {
		if color[v] == white {
			if visit(v) {
				return cycle
			}
		}
	}
	return nil
}

// lowestGID picks the §4.4 victim: "lowest GID (stable, deterministic)".
func lowestGID(vertices []string) string {
	lowest := vertices[0]
	for _, v := range vertices[1:] {
		if v < lowest {
			lowest = v
		}
	}
	return lowest
}
