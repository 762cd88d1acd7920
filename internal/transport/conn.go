// Package transport implements the zone server's connection-oriented UDP
// endpoint: hello/disconnect control handshake, a reliable in-order channel
// with cumulative and selective acks, an unreliable newest-wins channel, and
// keep-alive based liveness. The endpoint surfaces peers and packets as
// events; it never interprets application payloads.
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/towerwars/internal/metrics"
	"github.com/udisondev/towerwars/internal/protocol"
)

const (
	defaultSweepInterval     = 50 * time.Millisecond
	defaultRTO               = 250 * time.Millisecond
	defaultMaxRTO            = 2 * time.Second
	defaultMaxAttempts       = 10
	defaultKeepAliveInterval = 5 * time.Second
	defaultPeerTimeout       = 15 * time.Second
	defaultEventBuffer       = 4096
	defaultMaxDatagram       = 16384
	defaultMaxPeers          = 1024
)

// ErrUnknownPeer is returned by Send for peers that are not connected.
var ErrUnknownPeer = errors.New("unknown peer")

// PacketConn is the slice of *net.UDPConn the endpoint uses. Tests provide
// in-memory implementations.
type PacketConn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	Close() error
	LocalAddr() net.Addr
}

// Listen binds the UDP socket for an Endpoint.
func Listen(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving udp address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %q: %w", addr, err)
	}
	return conn, nil
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Conn   PacketConn

	// Optional with defaults.
	SweepInterval     time.Duration // retransmit/keepalive sweep granularity
	RTO               time.Duration // initial retransmit timeout
	MaxRTO            time.Duration // retransmit backoff cap
	MaxAttempts       int           // sends per reliable frame before dropping the peer
	KeepAliveInterval time.Duration // send silence before a keep-alive
	PeerTimeout       time.Duration // receive silence before the peer is dead
	EventBuffer       int
	MaxDatagram       int
	MaxPeers          int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Conn == nil {
		return errors.New("conn is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.RTO == 0 {
		c.RTO = defaultRTO
	}
	if c.MaxRTO == 0 {
		c.MaxRTO = defaultMaxRTO
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = defaultKeepAliveInterval
	}
	if c.PeerTimeout == 0 {
		c.PeerTimeout = defaultPeerTimeout
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.MaxDatagram == 0 {
		c.MaxDatagram = defaultMaxDatagram
	}
	if c.MaxPeers == 0 {
		c.MaxPeers = defaultMaxPeers
	}
	if c.SweepInterval <= 0 || c.RTO <= 0 || c.MaxRTO < c.RTO {
		return errors.New("invalid retransmit timings")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("max attempts must be > 0")
	}
	if c.MaxDatagram < headerSize+1 {
		return errors.New("max datagram too small")
	}
	return nil
}

// Endpoint multiplexes all peers over one UDP socket.
type Endpoint struct {
	log   *slog.Logger
	cfg   *Config
	clock clockwork.Clock
	conn  PacketConn

	events chan Event
	bufs   *BytePool

	mu         sync.RWMutex
	peers      map[string]*peer // keyed by remote addr
	peersByID  map[uint32]*peer
	nextPeerID uint32
}

func New(cfg *Config) (*Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating transport config: %w", err)
	}
	return &Endpoint{
		log:       cfg.Logger,
		cfg:       cfg,
		clock:     cfg.Clock,
		conn:      cfg.Conn,
		events:    make(chan Event, cfg.EventBuffer),
		bufs:      NewBytePool(cfg.MaxDatagram),
		peers:     map[string]*peer{},
		peersByID: map[uint32]*peer{},
	}, nil
}

// Events returns the endpoint's event stream. The application must drain it
// while the endpoint runs.
func (e *Endpoint) Events() <-chan Event {
	return e.events
}

// LocalAddr returns the bound socket address.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Run drives the read and sweep loops until ctx is canceled.
func (e *Endpoint) Run(ctx context.Context) error {
	e.log.Info("transport listening", "addr", e.conn.LocalAddr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = e.conn.Close()
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.readLoop(ctx) })
	g.Go(func() error { return e.sweepLoop(ctx) })
	return g.Wait()
}

// Send transmits one application packet to a peer. The channel is chosen by
// the packet type. A reliable send that overflows the unacked window drops
// the peer and returns an error.
func (e *Endpoint) Send(peerID uint32, t protocol.Type, payload []byte) error {
	if headerSize+len(payload) > e.cfg.MaxDatagram {
		return fmt.Errorf("sending %v: payload %d exceeds max datagram %d", t, len(payload), e.cfg.MaxDatagram)
	}
	p := e.peerByID(peerID)
	if p == nil {
		return ErrUnknownPeer
	}
	now := e.clock.Now()

	if t.Reliable() {
		fr, overflow := p.prepareReliable(t, payload, now, e.cfg.RTO)
		if overflow {
			e.Disconnect(peerID, "send window overflow")
			return fmt.Errorf("sending %v to peer %d: send window full", t, peerID)
		}
		e.write(p.addr, fr)
		p.touchSend(now)
		return nil
	}

	seq := p.nextUnreliableSeq()
	buf := e.bufs.Get(0)
	fr := appendDataFrame(buf, chanUnreliable, seq, byte(t), payload)
	e.write(p.addr, fr)
	e.bufs.Put(fr)
	p.touchSend(now)
	return nil
}

// Disconnect removes a peer at the application's request, notifying the
// remote. No PeerDown event fires; the caller initiated the removal.
func (e *Endpoint) Disconnect(peerID uint32, reason string) {
	p := e.peerByID(peerID)
	if p == nil || !e.remove(p) {
		return
	}
	e.notifyDisconnect(p, reason)
	metrics.ActivePeers.Dec()
	metrics.PeerDrops.WithLabelValues(reason).Inc()
	e.log.Info("peer disconnected", "peer", p.id, "addr", p.addr, "reason", reason)
}

func (e *Endpoint) readLoop(ctx context.Context) error {
	buf := make([]byte, e.cfg.MaxDatagram)
	for {
		n, addr, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("reading udp socket: %w", err)
		}
		metrics.PacketsIn.Inc()
		metrics.BytesIn.Add(float64(n))
		e.handleDatagram(ctx, addr, buf[:n])
	}
}

func (e *Endpoint) sweepLoop(ctx context.Context) error {
	t := e.clock.NewTicker(e.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Chan():
			e.sweep(ctx)
		}
	}
}

// sweep retransmits due frames, sends keep-alives and drops dead peers.
func (e *Endpoint) sweep(ctx context.Context) {
	now := e.clock.Now()
	for _, p := range e.snapshotPeers() {
		if p.timedOut(now, e.cfg.PeerTimeout) {
			e.dropPeer(ctx, p, "timeout", "timeout", true)
			continue
		}

		frames, expired := p.collectRetransmits(now, e.cfg.MaxRTO, e.cfg.MaxAttempts)
		if expired {
			e.dropPeer(ctx, p, "timeout", "timeout", true)
			continue
		}
		for _, fr := range frames {
			metrics.Retransmits.Inc()
			e.write(p.addr, fr)
		}
		if len(frames) > 0 {
			p.touchSend(now)
		}

		if p.needsKeepAlive(now, e.cfg.KeepAliveInterval) {
			e.writeControl(p.addr, ctrlKeepAlive, nil)
			p.touchSend(now)
		}
	}
}

func (e *Endpoint) handleDatagram(ctx context.Context, addr *net.UDPAddr, data []byte) {
	f, err := parseFrame(data)
	if err != nil {
		metrics.FrameErrors.WithLabelValues("parse").Inc()
		e.log.Debug("dropping malformed datagram", "addr", addr, "error", err)
		return
	}

	if f.channel == chanControl && f.ptype == ctrlHello {
		e.handleHello(ctx, addr)
		return
	}

	p := e.peerByAddr(addr)
	if p == nil {
		metrics.FrameErrors.WithLabelValues("unknown_peer").Inc()
		return
	}
	p.touchRecv(e.clock.Now())

	switch f.channel {
	case chanAck:
		p.ackReceived(f.seq, f.acks)

	case chanReliable:
		delivered := p.receiveReliable(f.seq, protocol.Type(f.ptype), f.payload)
		e.writeAck(p)
		for _, in := range delivered {
			e.emit(ctx, Event{Kind: EventPacket, PeerID: p.id, Type: in.Type, Payload: in.Payload})
		}

	case chanUnreliable:
		if in, ok := p.receiveUnreliable(f.seq, protocol.Type(f.ptype), f.payload); ok {
			e.emit(ctx, Event{Kind: EventPacket, PeerID: p.id, Type: in.Type, Payload: in.Payload})
		}

	case chanControl:
		e.handleControl(ctx, p, f)
	}
}

func (e *Endpoint) handleHello(ctx context.Context, addr *net.UDPAddr) {
	now := e.clock.Now()
	key := addr.String()

	e.mu.Lock()
	p, known := e.peers[key]
	if !known {
		if len(e.peers) >= e.cfg.MaxPeers {
			e.mu.Unlock()
			metrics.FrameErrors.WithLabelValues("peer_limit").Inc()
			e.log.Warn("rejecting hello, peer limit reached", "addr", addr)
			return
		}
		e.nextPeerID++
		p = newPeer(e.nextPeerID, addr, now)
		e.peers[key] = p
		e.peersByID[p.id] = p
	}
	e.mu.Unlock()

	p.touchRecv(now)
	var id [4]byte
	binary.LittleEndian.PutUint32(id[:], p.id)
	e.writeControl(addr, ctrlHelloAck, id[:])
	p.touchSend(now)

	if !known {
		metrics.ActivePeers.Inc()
		e.log.Info("peer connected", "peer", p.id, "addr", addr)
		e.emit(ctx, Event{Kind: EventPeerUp, PeerID: p.id, Addr: addr})
	}
}

func (e *Endpoint) handleControl(ctx context.Context, p *peer, f frame) {
	switch f.ptype {
	case ctrlKeepAlive, ctrlHelloAck:
		// liveness already refreshed

	case ctrlDisconnect:
		reason := "remote disconnect"
		if s, err := protocol.NewReader(f.payload).ReadString(); err == nil && s != "" {
			reason = s
		}
		e.dropPeer(ctx, p, reason, "remote", false)

	default:
		metrics.FrameErrors.WithLabelValues("control").Inc()
		e.log.Debug("unknown control opcode", "peer", p.id, "opcode", f.ptype)
	}
}

// dropPeer removes a transport-initiated peer and emits PeerDown. label is
// the metrics bucket; reason travels in the event and, when notify is set,
// to the remote.
func (e *Endpoint) dropPeer(ctx context.Context, p *peer, reason, label string, notify bool) {
	if !e.remove(p) {
		return
	}
	if notify {
		e.notifyDisconnect(p, reason)
	}
	metrics.ActivePeers.Dec()
	metrics.PeerDrops.WithLabelValues(label).Inc()
	e.log.Info("peer dropped", "peer", p.id, "addr", p.addr, "reason", reason)
	e.emit(ctx, Event{Kind: EventPeerDown, PeerID: p.id, Reason: reason})
}

// remove untracks the peer. Returns false when it was already gone.
func (e *Endpoint) remove(p *peer) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.peersByID[p.id]; !ok {
		return false
	}
	delete(e.peersByID, p.id)
	delete(e.peers, p.addr.String())
	return true
}

func (e *Endpoint) notifyDisconnect(p *peer, reason string) {
	w := protocol.GetWriter()
	w.WriteString(reason)
	e.writeControl(p.addr, ctrlDisconnect, w.Bytes())
	w.Release()
}

func (e *Endpoint) writeAck(p *peer) {
	cum, sels := p.ackState()
	buf := e.bufs.Get(0)
	fr := appendAckFrame(buf, cum, sels)
	e.write(p.addr, fr)
	e.bufs.Put(fr)
	p.touchSend(e.clock.Now())
}

func (e *Endpoint) writeControl(addr *net.UDPAddr, op byte, payload []byte) {
	buf := e.bufs.Get(0)
	fr := appendDataFrame(buf, chanControl, 0, op, payload)
	e.write(addr, fr)
	e.bufs.Put(fr)
}

func (e *Endpoint) write(addr *net.UDPAddr, fr []byte) {
	n, err := e.conn.WriteToUDP(fr, addr)
	if err != nil {
		metrics.FrameErrors.WithLabelValues("write").Inc()
		e.log.Debug("udp write failed", "addr", addr, "error", err)
		return
	}
	metrics.PacketsOut.Inc()
	metrics.BytesOut.Add(float64(n))
}

func (e *Endpoint) emit(ctx context.Context, ev Event) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}

func (e *Endpoint) peerByAddr(addr *net.UDPAddr) *peer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.peers[addr.String()]
}

func (e *Endpoint) peerByID(id uint32) *peer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.peersByID[id]
}

func (e *Endpoint) snapshotPeers() []*peer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*peer, 0, len(e.peersByID))
	for _, p := range e.peersByID {
		out = append(out, p)
	}
	return out
}
