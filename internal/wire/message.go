// Package wire implements ArbiterMessage (spec §3/§4.6): the fixed-
// layout wire record exchanged between membership/commit peers, and
// its stable little-endian binary codec.
//
// This is the one wire format in the repo that is NOT goccy/go-json,
// on purpose: §3 fixes a byte-exact little-endian record with a
// zero-padded gid array, which is a framing concern, not a document
// format. See DESIGN.md for why encoding/binary, not a third-party
// library, is the justified tool here.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/mtmcore/arbiter/internal/configs"
)

// Code identifies the kind of ArbiterMessage (§3).
type Code uint8

const (
	CodePrepare Code = iota + 1
	CodePrepared
	CodeAborted
	CodePrecommit
	CodePrecommitted
	CodeCommitted
	CodeAbort
	CodeHeartbeat
	CodePollStatus
	CodeStatus
)

func (c Code) String() string {
	switch c {
	case CodePrepare:
		return "PREPARE"
	case CodePrepared:
		return "PREPARED"
	case CodeAborted:
		return "ABORTED"
	case CodePrecommit:
		return "PRECOMMIT"
	case CodePrecommitted:
		return "PRECOMMITTED"
	case CodeCommitted:
		return "COMMITTED"
	case CodeAbort:
		return "ABORT"
	case CodeHeartbeat:
		return "HEARTBEAT"
	case CodePollStatus:
		return "POLL_STATUS"
	case CodeStatus:
		return "STATUS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
	}
}

func (c Code) valid() bool {
	return c >= CodePrepare && c <= CodeStatus
}

// ArbiterMessage is the fixed-layout record of §3:
//
//	{ code: u8, node: u8, connectivity_mask: u64, dxid: u64, oxid: u64,
//	  sxid: u64, lsn: u64, gid: [u8; GID_MAX] }
//
// All multi-byte fields are little-endian. gid is zero-padded.
type ArbiterMessage struct {
	Code             Code
	Node             uint8
	ConnectivityMask uint64
	Dxid             uint64
	Oxid             uint64
	Sxid             uint64
	LSN              uint64
	GID              string
}

// Size is the fixed wire size of an ArbiterMessage in bytes.
const Size = 1 + 1 + 8 + 8 + 8 + 8 + 8 + configs.GidMax

// Encode writes m to its fixed-layout binary form.
func Encode(m *ArbiterMessage) ([]byte, error) {
	if len(m.GID) > configs.GidMax {
		return nil, fmt.Errorf("wire: gid %q exceeds GID_MAX=%d", m.GID, configs.GidMax)
	}
	buf := make([]byte, Size)
	buf[0] = byte(m.Code)
	buf[1] = m.Node
	binary.LittleEndian.PutUint64(buf[2:10], m.ConnectivityMask)
	binary.LittleEndian.PutUint64(buf[10:18], m.Dxid)
	binary.LittleEndian.PutUint64(buf[18:26], m.Oxid)
	binary.LittleEndian.PutUint64(buf[26:34], m.Sxid)
	binary.LittleEndian.PutUint64(buf[34:42], m.LSN)
	copy(buf[42:42+configs.GidMax], m.GID) // remaining bytes stay zero (zero-padded)
	return buf, nil
}

// Decode parses a fixed-layout binary record. Unknown codes are fatal
// decode errors (§4.6: "do not silently drop").
func Decode(buf []byte) (*ArbiterMessage, error) {
	if len(buf) != Size {
		return nil, fmt.Errorf("wire: expected %d bytes, got %d", Size, len(buf))
	}
	code := Code(buf[0])
	if !code.valid() {
		return nil, fmt.Errorf("wire: unknown message code %d", buf[0])
	}
	m := &ArbiterMessage{
		Code:             code,
		Node:             buf[1],
		ConnectivityMask: binary.LittleEndian.Uint64(buf[2:10]),
		Dxid:             binary.LittleEndian.Uint64(buf[10:18]),
		Oxid:             binary.LittleEndian.Uint64(buf[18:26]),
		Sxid:             binary.LittleEndian.Uint64(buf[26:34]),
		LSN:              binary.LittleEndian.Uint64(buf[34:42]),
		GID:              decodeGID(buf[42 : 42+configs.GidMax]),
	}
	return m, nil
}

// decodeGID truncates at the trailing NUL, per §4.6.
func decodeGID(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}
