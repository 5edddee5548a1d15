package dmq

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/klauspost/compress/zstd"

	"github.com/mtmcore/arbiter/internal/configs"
	"github.com/mtmcore/arbiter/internal/nodemask"
)

// frame is the envelope pushed over the wire between TCP transports.
// Grounded on FC/network/participant/network.PaGossip: a JSON envelope
// carrying routing metadata plus an opaque payload, newline-framed.
type frame struct {
	Stream   string `json:"stream"`
	Sender   int    `json:"sender"`
	Payload  []byte `json:"payload"`
	Zipped   bool   `json:"zipped,omitempty"`
}

// compressionThreshold is the payload size (bytes) above which a frame
// is zstd-compressed before going over the wire, per SPEC_FULL §6.
const compressionThreshold = 4096

// PeerResolver maps a node id to its dial address.
type PeerResolver interface {
	Address(nodeID int) (string, bool)
}

// StaticPeers is the simplest PeerResolver: a fixed id->address map.
type StaticPeers map[int]string

func (p StaticPeers) Address(nodeID int) (string, bool) {
	addr, ok := p[nodeID]
	return addr, ok
}

// TCP is a real framed, at-most-once TCP transport implementing the
// DMQ contract, grounded on FC/network/participant/conn.go's
// net.Listen + bufio.NewReader(conn).ReadString('\n') framing and
// per-peer connection cache.
type TCP struct {
	self  int
	peers PeerResolver

	listener net.Listener
	done     chan struct{}

	connMu sync.Mutex
	conns  map[int]net.Conn

	mu         sync.Mutex
	subscribed map[string]bool
	queues     map[string]*streamQueue
	attached   map[string]int

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewTCP starts listening on listenAddr for node self, resolving peer
// addresses via peers.
func NewTCP(self int, listenAddr string, peers PeerResolver) (*TCP, error) {
	l, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("dmq: listen %s: %w", listenAddr, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	t := &TCP{
		self:       self,
		peers:      peers,
		listener:   l,
		done:       make(chan struct{}),
		conns:      map[int]net.Conn{},
		subscribed: map[string]bool{},
		queues:     map[string]*streamQueue{},
		attached:   map[string]int{},
		enc:        enc,
		dec:        dec,
	}
	go t.acceptLoop()
	return t, nil
}

func (t *TCP) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				configs.LPrintf("dmq: accept error: %v", err)
				return
			}
		}
		go t.serve(conn)
	}
}

func (t *TCP) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			return
		}
		if err != nil {
			configs.LPrintf("dmq: read error: %v", err)
			return
		}
		var f frame
		if err := json.Unmarshal(line, &f); err != nil {
			configs.LPrintf("dmq: decode error, dropping connection: %v", err)
			return
		}
		payload := f.Payload
		if f.Zipped {
			payload, err = t.dec.DecodeAll(payload, nil)
			if err != nil {
				configs.LPrintf("dmq: decompress error, dropping connection: %v", err)
				return
			}
		}
		t.queueFor(f.Stream).push(f.Sender, payload)
	}
}

func (t *TCP) queueFor(stream string) *streamQueue {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queues[stream]
	if !ok {
		q = newStreamQueue()
		t.queues[stream] = q
	}
	return q
}

func (t *TCP) connFor(dest int) (net.Conn, error) {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if c, ok := t.conns[dest]; ok {
		return c, nil
	}
	addr, ok := t.peers.Address(dest)
	if !ok {
		return nil, fmt.Errorf("dmq: no address known for node %d", dest)
	}
	c, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dmq: dial node %d at %s: %w", dest, addr, err)
	}
	t.conns[dest] = c
	return c, nil
}

func (t *TCP) AttachReceiver(name string, senderID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attached[name] = senderID
	return nil
}

func (t *TCP) StreamSubscribe(stream string) error {
	t.mu.Lock()
	t.subscribed[stream] = true
	t.mu.Unlock()
	t.queueFor(stream) // ensure the mailbox exists before Pop is called
	return nil
}

func (t *TCP) StreamUnsubscribe(stream string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribed, stream)
}

func (t *TCP) Pop(ctx context.Context, stream string, mask nodemask.NodeMask) (PopResult, error) {
	t.mu.Lock()
	ok := t.subscribed[stream]
	t.mu.Unlock()
	if !ok {
		return PopResult{}, fmt.Errorf("dmq: node %d not subscribed to stream %q", t.self, stream)
	}
	return t.queueFor(stream).pop(ctx, mask)
}

func (t *TCP) Push(dest int, stream string, payload []byte) error {
	f := frame{Stream: stream, Sender: t.self, Payload: payload}
	if len(payload) > compressionThreshold {
		f.Payload = t.enc.EncodeAll(payload, nil)
		f.Zipped = true
	}
	b, err := json.Marshal(&f)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	conn, err := t.connFor(dest)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return err
	}
	if _, err := conn.Write(b); err != nil {
		t.connMu.Lock()
		delete(t.conns, dest)
		t.connMu.Unlock()
		return err
	}
	return nil
}

func (t *TCP) NotifyDetach(senderID int) {
	t.mu.Lock()
	streams := make([]string, 0, len(t.subscribed))
	for s := range t.subscribed {
		streams = append(streams, s)
	}
	t.mu.Unlock()
	for _, s := range streams {
		t.queueFor(s).markDetached(senderID)
	}
	t.connMu.Lock()
	if c, ok := t.conns[senderID]; ok {
		c.Close()
		delete(t.conns, senderID)
	}
	t.connMu.Unlock()
}

func (t *TCP) Close() error {
	close(t.done)
	t.connMu.Lock()
	for _, c := range t.conns {
		c.Close()
	}
	t.connMu.Unlock()
	return t.listener.Close()
}
