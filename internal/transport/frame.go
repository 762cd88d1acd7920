package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/udisondev/towerwars/internal/protocol"
)

// Wire channels. Every datagram starts with one channel byte.
const (
	chanUnreliable byte = 0
	chanReliable   byte = 1
	chanAck        byte = 2
	chanControl    byte = 3
)

// Control opcodes (channel 3), carried in the packetType slot.
const (
	ctrlHello      byte = 0x01
	ctrlHelloAck   byte = 0x02
	ctrlDisconnect byte = 0x03
	ctrlKeepAlive  byte = 0x04
)

// headerSize covers channel, sequence, packetType and payload length.
const headerSize = 1 + 4 + 1 + 2

// maxSelectiveAcks bounds the ack list a remote can make us allocate.
const maxSelectiveAcks = 512

// frame is one parsed datagram. payload aliases the receive buffer and is
// only valid until the next read.
type frame struct {
	channel byte
	seq     uint32 // sequence; cumulative ack on chanAck
	ptype   byte   // protocol.Type, or control opcode on chanControl
	payload []byte
	acks    []uint32 // selective acks on chanAck
}

// appendDataFrame appends a data/control frame to dst and returns it.
func appendDataFrame(dst []byte, channel byte, seq uint32, ptype byte, payload []byte) []byte {
	var hdr [headerSize]byte
	hdr[0] = channel
	binary.LittleEndian.PutUint32(hdr[1:5], seq)
	hdr[5] = ptype
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(len(payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// appendAckFrame appends an ack frame: cumulative ack, selective ack count,
// then the selective acks.
func appendAckFrame(dst []byte, cum uint32, sels []uint32) []byte {
	var hdr [9]byte
	hdr[0] = chanAck
	binary.LittleEndian.PutUint32(hdr[1:5], cum)
	binary.LittleEndian.PutUint32(hdr[5:9], uint32(len(sels)))
	dst = append(dst, hdr[:]...)
	for _, s := range sels {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], s)
		dst = append(dst, b[:]...)
	}
	return dst
}

func parseFrame(data []byte) (frame, error) {
	r := protocol.NewReader(data)
	var f frame
	var err error
	if f.channel, err = r.ReadByte(); err != nil {
		return f, fmt.Errorf("reading channel: %w", err)
	}

	switch f.channel {
	case chanAck:
		if f.seq, err = r.ReadUint32(); err != nil {
			return f, fmt.Errorf("reading cumulative ack: %w", err)
		}
		n, err := r.ReadUint32()
		if err != nil {
			return f, fmt.Errorf("reading selective ack count: %w", err)
		}
		if n > maxSelectiveAcks {
			return f, fmt.Errorf("selective ack count %d exceeds limit %d", n, maxSelectiveAcks)
		}
		f.acks = make([]uint32, 0, n)
		for i := 0; i < int(n); i++ {
			s, err := r.ReadUint32()
			if err != nil {
				return f, fmt.Errorf("reading selective ack: %w", err)
			}
			f.acks = append(f.acks, s)
		}
		return f, nil

	case chanUnreliable, chanReliable, chanControl:
		if f.seq, err = r.ReadUint32(); err != nil {
			return f, fmt.Errorf("reading sequence: %w", err)
		}
		if f.ptype, err = r.ReadByte(); err != nil {
			return f, fmt.Errorf("reading packet type: %w", err)
		}
		n, err := r.ReadUint16()
		if err != nil {
			return f, fmt.Errorf("reading payload length: %w", err)
		}
		if f.payload, err = r.ReadBytes(int(n)); err != nil {
			return f, fmt.Errorf("reading payload: %w", err)
		}
		return f, nil
	}

	return f, fmt.Errorf("unknown channel %d", f.channel)
}
