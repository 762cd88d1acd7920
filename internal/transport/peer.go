package transport

import (
	"net"
	"slices"
	"sync"
	"time"

	"github.com/udisondev/towerwars/internal/protocol"
)

// Reliability windows. Timings live in Config; windows are fixed.
const (
	maxUnacked = 1024 // outstanding reliable frames before the peer is cut off
	maxStash   = 256  // buffered out-of-order frames
)

// inbound is one application packet ready for delivery. Payload is an owned
// copy, detached from the socket buffer.
type inbound struct {
	Type    protocol.Type
	Payload []byte
}

// pending is one unacked reliable frame.
type pending struct {
	seq      uint32
	frame    []byte // full datagram, resent verbatim
	lastSent time.Time
	attempts int
	rto      time.Duration
}

// peer holds the per-remote reliability state. Methods are pure state
// transitions; the endpoint performs all socket IO and event delivery.
type peer struct {
	id   uint32
	addr *net.UDPAddr

	mu sync.Mutex

	// Outgoing.
	nextSeq       uint32 // next reliable sequence, starts at 1
	unacked       map[uint32]*pending
	outUnreliable uint32

	// Incoming.
	expected       uint32 // next reliable sequence to deliver
	stash          map[uint32]inbound
	lastUnreliable uint32
	seenUnreliable bool

	lastRecv time.Time
	lastSend time.Time
}

func newPeer(id uint32, addr *net.UDPAddr, now time.Time) *peer {
	return &peer{
		id:       id,
		addr:     addr,
		nextSeq:  1,
		unacked:  map[uint32]*pending{},
		expected: 1,
		stash:    map[uint32]inbound{},
		lastRecv: now,
		lastSend: now,
	}
}

// prepareReliable frames one reliable packet and tracks it for retransmit.
// Returns overflow=true without sending when the unacked window is full.
func (p *peer) prepareReliable(t protocol.Type, payload []byte, now time.Time, rto time.Duration) (fr []byte, overflow bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.unacked) >= maxUnacked {
		return nil, true
	}
	seq := p.nextSeq
	p.nextSeq++
	fr = appendDataFrame(nil, chanReliable, seq, byte(t), payload)
	p.unacked[seq] = &pending{seq: seq, frame: fr, lastSent: now, attempts: 1, rto: rto}
	return fr, false
}

// nextUnreliableSeq hands out the next outgoing unreliable sequence.
func (p *peer) nextUnreliableSeq() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outUnreliable++
	return p.outUnreliable
}

// ackReceived clears frames covered by a cumulative + selective ack.
func (p *peer) ackReceived(cum uint32, sels []uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for seq := range p.unacked {
		if seq <= cum {
			delete(p.unacked, seq)
		}
	}
	for _, s := range sels {
		delete(p.unacked, s)
	}
}

// receiveReliable ingests one reliable frame and returns the packets that are
// now deliverable in sequence order. Duplicates return nothing; the caller
// acks regardless so the sender stops retransmitting.
func (p *peer) receiveReliable(seq uint32, t protocol.Type, payload []byte) []inbound {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seq < p.expected {
		return nil
	}
	if seq != p.expected {
		if _, ok := p.stash[seq]; !ok && len(p.stash) < maxStash {
			p.stash[seq] = inbound{Type: t, Payload: slices.Clone(payload)}
		}
		return nil
	}

	out := make([]inbound, 0, 1+len(p.stash))
	out = append(out, inbound{Type: t, Payload: slices.Clone(payload)})
	p.expected++
	for {
		in, ok := p.stash[p.expected]
		if !ok {
			break
		}
		delete(p.stash, p.expected)
		out = append(out, in)
		p.expected++
	}
	return out
}

// receiveUnreliable ingests one unreliable frame. Frames at or below the
// newest seen sequence are stale and dropped.
func (p *peer) receiveUnreliable(seq uint32, t protocol.Type, payload []byte) (inbound, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seenUnreliable && seq <= p.lastUnreliable {
		return inbound{}, false
	}
	p.seenUnreliable = true
	p.lastUnreliable = seq
	return inbound{Type: t, Payload: slices.Clone(payload)}, true
}

// ackState returns the cumulative ack (newest in-order delivered sequence)
// and the sorted out-of-order sequences held in the stash.
func (p *peer) ackState() (cum uint32, sels []uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.stash) == 0 {
		return p.expected - 1, nil
	}
	sels = make([]uint32, 0, len(p.stash))
	for s := range p.stash {
		sels = append(sels, s)
	}
	slices.Sort(sels)
	return p.expected - 1, sels
}

// collectRetransmits returns the frames due for resend and advances their
// backoff. expired=true means a frame ran out of attempts and the peer must
// be dropped.
func (p *peer) collectRetransmits(now time.Time, maxRTO time.Duration, maxAttempts int) (frames [][]byte, expired bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pd := range p.unacked {
		if now.Sub(pd.lastSent) < pd.rto {
			continue
		}
		if pd.attempts >= maxAttempts {
			return nil, true
		}
		pd.attempts++
		pd.lastSent = now
		pd.rto *= 2
		if pd.rto > maxRTO {
			pd.rto = maxRTO
		}
		frames = append(frames, pd.frame)
	}
	return frames, false
}

func (p *peer) touchRecv(now time.Time) {
	p.mu.Lock()
	p.lastRecv = now
	p.mu.Unlock()
}

func (p *peer) touchSend(now time.Time) {
	p.mu.Lock()
	p.lastSend = now
	p.mu.Unlock()
}

func (p *peer) needsKeepAlive(now time.Time, interval time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastSend) >= interval
}

func (p *peer) timedOut(now time.Time, timeout time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastRecv) > timeout
}
