package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/towerwars/internal/protocol"
)

func testPeer(now time.Time) *peer {
	return newPeer(1, clientAddr(45000), now)
}

func TestPeerPrepareReliableSequences(t *testing.T) {
	now := time.Now()
	p := testPeer(now)

	fr1, overflow := p.prepareReliable(protocol.TypePing, []byte{1}, now, defaultRTO)
	require.False(t, overflow)
	fr2, overflow := p.prepareReliable(protocol.TypePing, []byte{2}, now, defaultRTO)
	require.False(t, overflow)

	f1, err := parseFrame(fr1)
	require.NoError(t, err)
	f2, err := parseFrame(fr2)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), f1.seq)
	assert.Equal(t, uint32(2), f2.seq)
	assert.Equal(t, chanReliable, f1.channel)
}

func TestPeerPrepareReliableOverflow(t *testing.T) {
	now := time.Now()
	p := testPeer(now)

	for i := 0; i < maxUnacked; i++ {
		_, overflow := p.prepareReliable(protocol.TypePing, nil, now, defaultRTO)
		require.False(t, overflow)
	}
	_, overflow := p.prepareReliable(protocol.TypePing, nil, now, defaultRTO)
	assert.True(t, overflow)

	// Acking frees the window.
	p.ackReceived(uint32(maxUnacked), nil)
	_, overflow = p.prepareReliable(protocol.TypePing, nil, now, defaultRTO)
	assert.False(t, overflow)
}

func TestPeerRetransmitBackoffProgression(t *testing.T) {
	now := time.Now()
	p := testPeer(now)
	_, _ = p.prepareReliable(protocol.TypePing, nil, now, 100*time.Millisecond)

	// Not due yet.
	frames, expired := p.collectRetransmits(now.Add(50*time.Millisecond), time.Second, 10)
	require.False(t, expired)
	assert.Empty(t, frames)

	// Due: rto doubles 100 -> 200 -> 400 ... capped at 1s.
	at := now
	for i, wait := range []time.Duration{100, 200, 400, 800, 1000, 1000} {
		at = at.Add(wait * time.Millisecond)
		frames, expired = p.collectRetransmits(at, time.Second, 10)
		require.Falsef(t, expired, "attempt %d", i)
		require.Lenf(t, frames, 1, "attempt %d", i)
	}
}

func TestPeerRetransmitExpiry(t *testing.T) {
	now := time.Now()
	p := testPeer(now)
	_, _ = p.prepareReliable(protocol.TypePing, nil, now, 10*time.Millisecond)

	var expired bool
	at := now
	for i := 0; i < 20 && !expired; i++ {
		at = at.Add(time.Second)
		_, expired = p.collectRetransmits(at, 10*time.Millisecond, 3)
	}
	assert.True(t, expired)
}

func TestPeerStashBounded(t *testing.T) {
	p := testPeer(time.Now())

	// Fill the stash with far-ahead sequences, none deliverable.
	for seq := uint32(2); seq < uint32(2+maxStash+10); seq++ {
		out := p.receiveReliable(seq, protocol.TypePing, []byte{byte(seq)})
		assert.Empty(t, out)
	}
	_, sels := p.ackState()
	assert.Len(t, sels, maxStash)

	// Sequence 1 unblocks delivery of everything stashed, in order.
	out := p.receiveReliable(1, protocol.TypePing, []byte{1})
	require.Len(t, out, 1+maxStash)
	for i := 1; i < len(out); i++ {
		assert.Equal(t, []byte{byte(i + 1)}, out[i].Payload)
	}
}

func TestPeerReceiveReliablePayloadDetached(t *testing.T) {
	p := testPeer(time.Now())
	buf := []byte{42}
	out := p.receiveReliable(1, protocol.TypePing, buf)
	require.Len(t, out, 1)
	buf[0] = 0 // socket buffer reused
	assert.Equal(t, []byte{42}, out[0].Payload)
}

func TestPeerUnreliableSequenceWindow(t *testing.T) {
	p := testPeer(time.Now())

	_, ok := p.receiveUnreliable(10, protocol.TypePlayerInput, nil)
	assert.True(t, ok)
	_, ok = p.receiveUnreliable(10, protocol.TypePlayerInput, nil)
	assert.False(t, ok)
	_, ok = p.receiveUnreliable(9, protocol.TypePlayerInput, nil)
	assert.False(t, ok)
	_, ok = p.receiveUnreliable(11, protocol.TypePlayerInput, nil)
	assert.True(t, ok)
}

func TestPeerLiveness(t *testing.T) {
	now := time.Now()
	p := testPeer(now)

	assert.False(t, p.needsKeepAlive(now.Add(4*time.Second), 5*time.Second))
	assert.True(t, p.needsKeepAlive(now.Add(5*time.Second), 5*time.Second))

	assert.False(t, p.timedOut(now.Add(15*time.Second), 15*time.Second))
	assert.True(t, p.timedOut(now.Add(15*time.Second+time.Millisecond), 15*time.Second))

	p.touchRecv(now.Add(10 * time.Second))
	assert.False(t, p.timedOut(now.Add(20*time.Second), 15*time.Second))
}
