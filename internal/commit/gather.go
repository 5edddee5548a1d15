package commit

import (
	"context"

	"github.com/mtmcore/arbiter/internal/dmq"
	cerr "github.com/mtmcore/arbiter/internal/errors"
	"github.com/mtmcore/arbiter/internal/nodemask"
	"github.com/mtmcore/arbiter/internal/wire"
)

// gatherResult is what one phase of §4.1's gather loop produced:
// peers whose bit was cleared because DMQ reported them detached
// (case (b) of step 5, or the "not an abort" case of steps 6/7), and
// the sender of an ABORTED reply if the phase cares about aborts.
type gatherResult struct {
	failedAt  []int
	abortedBy int // 0 means no abort observed
}

// gather runs the generic §4.1 reception loop: "wait on DMQ for one
// message per bit in participants... A bit is cleared when (a) its
// reply arrives, or (b) the DMQ reports the peer detached." Reception
// uses dmq_pop(mask), which "returns when at least one sender in mask
// produced a message or one detached."
//
// There is deliberately no select arm for a wall-clock timeout here
// (§5: "Gather loops have no wall-clock timeout by design"): only
// ctx.Done() (process shutdown) and the transport's own detach
// notifications — driven by the membership tracker demoting an
// unreachable peer — can end the wait. This is the one place this
// package's control flow diverges from the teacher's
// network/coordinator/2pc.go and 3pc.go, which race a
// configs.CrashFailureTimeout against the finish channel; here that
// race would violate the liveness contract in §5.
func gather(ctx context.Context, transport dmq.Transport, stream string, participants nodemask.NodeMask, successCode, abortCode wire.Code, xid uint64) (gatherResult, error) {
	var res gatherResult
	remaining := participants
	for !remaining.Empty() {
		popped, err := transport.Pop(ctx, stream, remaining)
		if err != nil {
			return res, err
		}
		if popped.Detached {
			res.failedAt = append(res.failedAt, popped.Sender)
			remaining = remaining.Clear(popped.Sender)
			continue
		}

		msg, err := wire.Decode(popped.Payload)
		if err != nil {
			return res, cerr.New(cerr.DecodeError, "gather: "+err.Error())
		}
		if msg.Dxid != xid || int(msg.Node) != popped.Sender {
			return res, cerr.New(cerr.DecodeError, "gather: reply tagged for a different sender or xid")
		}

		switch msg.Code {
		case successCode:
			remaining = remaining.Clear(popped.Sender)
		case abortCode:
			res.abortedBy = popped.Sender
			remaining = remaining.Clear(popped.Sender)
			return res, nil
		default:
			return res, cerr.New(cerr.DecodeError, "gather: unexpected code "+msg.Code.String())
		}
	}
	return res, nil
}
