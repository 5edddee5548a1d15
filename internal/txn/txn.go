// Package txn implements MtmTx (spec §3), the coordinator-side
// per-transaction state, and GID derivation/parsing. Narrowed out of
// FC/network/coordinator/txn_handler.go's TID-keyed handler concept
// into the spec's named struct.
package txn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mtmcore/arbiter/internal/nodemask"
)

// MtmTx is the per-transaction state tracked on the coordinator side
// (§3).
type MtmTx struct {
	Xid           uint64
	Gid           string
	IsDistributed bool
	ContainsDML   bool
	IsTwoPhase    bool
	Participants  nodemask.NodeMask
}

// NewGID derives the GID string "MTM-<origin_node_id>-<local_xid>"
// (§3). Unique cluster-wide because origin_node_id is unique and
// local_xid is unique on its origin.
func NewGID(originNodeID int, localXid uint64) string {
	return fmt.Sprintf("MTM-%d-%d", originNodeID, localXid)
}

// ParseGID splits a GID back into its origin node id and local xid.
func ParseGID(gid string) (originNodeID int, localXid uint64, err error) {
	parts := strings.Split(gid, "-")
	if len(parts) != 3 || parts[0] != "MTM" {
		return 0, 0, fmt.Errorf("txn: malformed gid %q", gid)
	}
	originNodeID, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("txn: malformed gid %q: %w", gid, err)
	}
	localXid, err = strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("txn: malformed gid %q: %w", gid, err)
	}
	return originNodeID, localXid, nil
}

// New creates an MtmTx for a local transaction originating on
// originNodeID, deriving its GID.
func New(originNodeID int, xid uint64) *MtmTx {
	return &MtmTx{
		Xid: xid,
		Gid: NewGID(originNodeID, xid),
	}
}
