package zone

import (
	"golang.org/x/time/rate"

	"github.com/udisondev/towerwars/internal/token"
)

// peerPhase is the connection lifecycle of one transport peer.
type peerPhase uint8

const (
	phaseUnauthenticated peerPhase = iota + 1
	phaseLobby
	phaseInGame
)

func (p peerPhase) String() string {
	switch p {
	case phaseUnauthenticated:
		return "Unauthenticated"
	case phaseLobby:
		return "Lobby"
	case phaseInGame:
		return "InGame"
	}
	return "Unknown"
}

// chat flood control per peer: one line a second, small burst
const (
	chatPerSecond = 1
	chatBurst     = 5
)

// peerConn is the server-side view of one connected peer. Owned by the tick
// goroutine.
type peerConn struct {
	id       uint32
	phase    peerPhase
	identity token.Identity

	authInFlight bool
	chatLimiter  *rate.Limiter
}

func newPeerConn(id uint32) *peerConn {
	return &peerConn{
		id:          id,
		phase:       phaseUnauthenticated,
		chatLimiter: rate.NewLimiter(chatPerSecond, chatBurst),
	}
}
