package transport

import (
	"net"

	"github.com/udisondev/towerwars/internal/protocol"
)

// EventKind discriminates transport events.
type EventKind uint8

const (
	// EventPeerUp fires once when a new peer completes the hello exchange.
	EventPeerUp EventKind = iota + 1
	// EventPeerDown fires when the transport drops a peer (timeout, remote
	// disconnect, send window overflow). Drops requested through Disconnect
	// do not fire it; the caller already knows.
	EventPeerDown
	// EventPacket delivers one application packet.
	EventPacket
)

// Event is one transport occurrence handed to the application layer.
type Event struct {
	Kind   EventKind
	PeerID uint32

	// Addr is set on EventPeerUp.
	Addr *net.UDPAddr

	// Reason is set on EventPeerDown.
	Reason string

	// Type and Payload are set on EventPacket. Payload is an owned copy.
	Type    protocol.Type
	Payload []byte
}
