// Package protocol defines the TowerWars wire protocol: the packet catalog,
// the little-endian payload codec, and the error taxonomy surfaced to
// clients. Every packet is a tagged variant with a hand-defined binary
// layout; decoding dispatches on the one-byte type tag through a table, no
// reflection.
package protocol

import (
	"fmt"
)

// Version is the protocol version exchanged in Connect. A mismatch is
// terminal for the connection.
const Version uint16 = 2

// DefaultPort is the zone server's UDP port.
const DefaultPort = 7100

// TickRate is the fixed simulation rate in ticks per second.
const TickRate = 20

// Type tags a packet variant on the wire.
type Type byte

// Handshake and keepalive (any peer state).
const (
	TypeConnect      Type = 0x01
	TypeConnectAck   Type = 0x02
	TypeAuthResponse Type = 0x03
	TypePing         Type = 0x04
	TypePong         Type = 0x05
)

// Lobby (authenticated peers).
const (
	TypePlayerDataRequest    Type = 0x10
	TypePlayerTowersResponse Type = 0x11
	TypePlayerItemsResponse  Type = 0x12
	TypeRequestMatch         Type = 0x13
	TypeRequestMatchAck      Type = 0x14
	TypeReturnToLobby        Type = 0x15
)

// In-game, client to server.
const (
	TypePlayerInput  Type = 0x20
	TypeTowerBuild   Type = 0x21
	TypeTowerUpgrade Type = 0x22
	TypeTowerSell    Type = 0x23
	TypeAbilityUse   Type = 0x24
	TypeReadyState   Type = 0x25
	TypeChatMessage  Type = 0x26
	TypeItemCollect  Type = 0x27
)

// In-game, server to clients.
const (
	TypeMatchStart     Type = 0x40
	TypeMatchEnd       Type = 0x41
	TypeWaveStart      Type = 0x42
	TypeWaveEnd        Type = 0x43
	TypeEntitySpawn    Type = 0x44
	TypeEntityDestroy  Type = 0x45
	TypeEntityUpdate   Type = 0x46
	TypeStateSnapshot  Type = 0x47
	TypeChatBroadcast  Type = 0x48
	TypeError          Type = 0x49
	TypeItemDropNotice Type = 0x4A
	TypeItemCollectAck Type = 0x4B
	TypeGamePause      Type = 0x4C
	TypePlayerInputAck Type = 0x4D
	TypePlayerJoined   Type = 0x4E
	TypePlayerLeft     Type = 0x4F
	TypeGoldUpdate     Type = 0x50
	TypePlayerReady    Type = 0x51
)

var typeNames = map[Type]string{
	TypeConnect:              "Connect",
	TypeConnectAck:           "ConnectAck",
	TypeAuthResponse:         "AuthResponse",
	TypePing:                 "Ping",
	TypePong:                 "Pong",
	TypePlayerDataRequest:    "PlayerDataRequest",
	TypePlayerTowersResponse: "PlayerTowersResponse",
	TypePlayerItemsResponse:  "PlayerItemsResponse",
	TypeRequestMatch:         "RequestMatch",
	TypeRequestMatchAck:      "RequestMatchAck",
	TypeReturnToLobby:        "ReturnToLobby",
	TypePlayerInput:          "PlayerInput",
	TypeTowerBuild:           "TowerBuild",
	TypeTowerUpgrade:         "TowerUpgrade",
	TypeTowerSell:            "TowerSell",
	TypeAbilityUse:           "AbilityUse",
	TypeReadyState:           "ReadyState",
	TypeChatMessage:          "ChatMessage",
	TypeItemCollect:          "ItemCollect",
	TypeMatchStart:           "MatchStart",
	TypeMatchEnd:             "MatchEnd",
	TypeWaveStart:            "WaveStart",
	TypeWaveEnd:              "WaveEnd",
	TypeEntitySpawn:          "EntitySpawn",
	TypeEntityDestroy:        "EntityDestroy",
	TypeEntityUpdate:         "EntityUpdate",
	TypeStateSnapshot:        "StateSnapshot",
	TypeChatBroadcast:        "ChatBroadcast",
	TypeError:                "Error",
	TypeItemDropNotice:       "ItemDropNotice",
	TypeItemCollectAck:       "ItemCollectAck",
	TypeGamePause:            "GamePause",
	TypePlayerInputAck:       "PlayerInputAck",
	TypePlayerJoined:         "PlayerJoined",
	TypePlayerLeft:           "PlayerLeft",
	TypeGoldUpdate:           "GoldUpdate",
	TypePlayerReady:          "PlayerReady",
}

// String returns the packet type name ("Connect", "TowerBuild", ...).
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(0x%02X)", byte(t))
}

// Reliable reports whether packets of this type ride the reliable channel.
// Snapshots and deltas are superseded by the next broadcast, so they go
// unreliable; everything else must arrive.
func (t Type) Reliable() bool {
	return t != TypeEntityUpdate && t != TypeStateSnapshot
}

// Packet is one tagged variant of the wire catalog.
type Packet interface {
	// PacketType returns the variant's wire tag.
	PacketType() Type
	// encode appends the payload (without the tag) to w.
	encode(w *Writer)
}

// decoder parses a payload (without the tag) into its variant.
type decoder func(r *Reader) (Packet, error)

// decoders is the dispatch table keyed by wire tag.
var decoders = map[Type]decoder{}

func registerDecoder(t Type, d decoder) {
	if _, dup := decoders[t]; dup {
		panic(fmt.Sprintf("protocol: duplicate decoder for %v", t))
	}
	decoders[t] = d
}

// Encode serializes pkt's payload and returns its tag and payload bytes.
// The returned slice is freshly allocated and owned by the caller.
func Encode(pkt Packet) (Type, []byte) {
	w := GetWriter()
	defer w.Release()
	pkt.encode(w)
	payload := make([]byte, w.Len())
	copy(payload, w.Bytes())
	return pkt.PacketType(), payload
}

// Decode parses a payload for the given tag into its typed packet.
func Decode(t Type, payload []byte) (Packet, error) {
	d, ok := decoders[t]
	if !ok {
		return nil, fmt.Errorf("decoding packet: unknown type 0x%02X", byte(t))
	}
	pkt, err := d(NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decoding %v: %w", t, err)
	}
	return pkt, nil
}
