package protocol

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectWireLayout(t *testing.T) {
	typ, payload := Encode(&Connect{ProtocolVersion: 2, ConnectionToken: "abc"})

	require.Equal(t, TypeConnect, typ)
	// u16 version LE, u16 string length LE, then UTF-8 bytes.
	require.Equal(t, []byte{0x02, 0x00, 0x03, 0x00, 'a', 'b', 'c'}, payload)

	pkt, err := Decode(typ, payload)
	require.NoError(t, err)
	require.Equal(t, &Connect{ProtocolVersion: 2, ConnectionToken: "abc"}, pkt)
}

func TestErrorMessageWireLayout(t *testing.T) {
	typ, payload := Encode(&ErrorMessage{Code: ErrInsufficientGold, Message: "no", RequestID: 7})

	require.Equal(t, TypeError, typ)
	// code, u16-prefixed message, request id.
	require.Equal(t, []byte{
		0x06,
		0x02, 0x00, 'n', 'o',
		0x07, 0x00, 0x00, 0x00,
	}, payload)
}

func TestUUIDWireLayout(t *testing.T) {
	id := uuid.MustParse("0102030405060708090a0b0c0d0e0f10")
	typ, payload := Encode(&RequestMatchAck{Success: true, MatchID: id})

	require.Equal(t, TypeRequestMatchAck, typ)
	require.Equal(t, byte(1), payload[0])
	require.Equal(t, id[:], payload[1:17])
}

func TestRoundTrips(t *testing.T) {
	towerID := uuid.New()
	itemID := uuid.New()
	charID := uuid.New()
	matchID := uuid.New()

	tests := []struct {
		name string
		pkt  Packet
	}{
		{"Connect", &Connect{ProtocolVersion: Version, ConnectionToken: "tok-123"}},
		{"ConnectAck", &ConnectAck{PlayerID: 4, ServerTick: 12345, TickRate: 20}},
		{"AuthResponse", &AuthResponse{Success: false, Error: "invalid token"}},
		{"Ping", &Ping{ClientTime: -5}},
		{"Pong", &Pong{ClientTime: 100, ServerTime: 200}},
		{"PlayerDataRequest", &PlayerDataRequest{}},
		{"PlayerTowersResponse", &PlayerTowersResponse{Towers: []PlayerTowerInfo{
			{PlayerTowerID: towerID, TowerType: 2, Level: 3, XP: 450},
		}}},
		{"PlayerItemsResponse", &PlayerItemsResponse{Items: []PlayerItemInfo{
			{ItemID: itemID, ItemType: 1, Rarity: 2, ItemLevel: 7, EquippedTowerID: towerID, Name: "Ember Core"},
			{ItemID: uuid.New(), ItemType: 3, Rarity: 0, ItemLevel: 1, Name: "Chipped Fang"},
		}}},
		{"RequestMatch", &RequestMatch{Mode: ModeSolo}},
		{"RequestMatchAck", &RequestMatchAck{Success: true, MatchID: matchID}},
		{"ReturnToLobby", &ReturnToLobby{}},
		{"PlayerInput", &PlayerInput{Sequence: 9000, Actions: 0b101}},
		{"TowerBuild", &TowerBuild{RequestID: 1, PlayerTowerID: towerID, TowerType: 4, GX: 3, GY: 2}},
		{"TowerUpgrade", &TowerUpgrade{RequestID: 2, EntityID: 17}},
		{"TowerSell", &TowerSell{RequestID: 3, EntityID: 17}},
		{"AbilityUse", &AbilityUse{Ability: 1, TargetX: 4.5, TargetY: -2.25}},
		{"ReadyState", &ReadyState{IsReady: true}},
		{"ChatMessage", &ChatMessage{Channel: ChatAll, Text: "gl hf"}},
		{"ItemCollect", &ItemCollect{RequestID: 4, DropID: 88}},
		{"MatchStart", &MatchStart{MatchID: matchID, Mode: ModeCoop, MapID: 1}},
		{"MatchEnd", &MatchEnd{Result: ResultVictory, Stats: MatchStats{
			WavesCompleted:  30,
			DurationSeconds: 1800,
			UnitsKilled:     412,
			UnitsLeaked:     9,
			Players: []PlayerMatchStats{
				{PlayerID: 1, Score: 9001, UnitsKilled: 412, GoldEarned: 777},
			},
		}}},
		{"WaveStart", &WaveStart{WaveNumber: 10, UnitType: 4, UnitCount: 6, RarityHint: 1}},
		{"WaveEnd", &WaveEnd{WaveNumber: 10, Success: true, BonusGold: 15}},
		{"EntitySpawn tower", &EntitySpawn{Tick: 333, Entity: TowerState{
			EntityID: 5, TowerType: 1, OwnerPlayerID: 1, GX: 2, GY: 2,
			HP: 100, MaxHP: 100, UpgradeLevel: 0, Damage: 10, Range: 3, AttackSpeed: 1, DamageType: 1,
		}}},
		{"EntitySpawn unit", &EntitySpawn{Tick: 334, Entity: UnitState{
			EntityID: 6, UnitType: 3, Rarity: 1, Modifiers: 0x0041,
			X: -1, Y: 2.5, Speed: 0.6, HP: 180, MaxHP: 180, ShieldActive: true,
		}}},
		{"EntityDestroy", &EntityDestroy{Tick: 400, EntityID: 6, Reason: DestroyKilled}},
		{"EntityUpdate", &EntityUpdate{Tick: 402, Deltas: []EntityDelta{
			{EntityID: 6, Flags: DeltaPosition | DeltaHealth, X: 1.5, Y: 2.5, HP: 120},
			{EntityID: 5, Flags: DeltaRotation, Rotation: 1.57},
		}}},
		{"StateSnapshot", &StateSnapshot{
			Tick: 405,
			Entities: []EntityState{
				TowerState{EntityID: 5, TowerType: 1, OwnerPlayerID: 1, GX: 2, GY: 2, HP: 100, MaxHP: 100, Damage: 10, Range: 3, AttackSpeed: 1, DamageType: 1},
				UnitState{EntityID: 6, UnitType: 1, X: 0.5, Y: 2.5, Speed: 1, HP: 30, MaxHP: 30},
				DropState{EntityID: 7, X: 3, Y: 2.5, ItemType: 2, Rarity: 1, ItemLevel: 4, OwnerPlayerID: 1, Name: "Frost Sigil"},
			},
			Players: []PlayerState{
				{PlayerID: 1, Gold: 12, Lives: 9, Score: 340, TeamID: 0, IsReady: true, Connected: true},
			},
		}},
		{"ChatBroadcast", &ChatBroadcast{Channel: ChatSystem, PlayerID: 0, Text: "wave 10 incoming"}},
		{"ErrorMessage", &ErrorMessage{Code: ErrInvalidPlacement, Message: "cell occupied", RequestID: 12}},
		{"ItemDropNotice", &ItemDropNotice{Drop: DropState{
			EntityID: 7, X: 3, Y: 2.5, ItemType: 2, Rarity: 2, ItemLevel: 10, OwnerPlayerID: 2, Name: "Storm Idol",
		}}},
		{"ItemCollectAck", &ItemCollectAck{RequestID: 5, Success: true, ItemID: itemID}},
		{"ItemCollectAck failed", &ItemCollectAck{RequestID: 6, Success: false, Error: ErrItemAlreadyCollected}},
		{"GamePause", &GamePause{IsPaused: true, Reason: "all players disconnected"}},
		{"PlayerInputAck", &PlayerInputAck{LastProcessedSequence: 9000}},
		{"PlayerJoined", &PlayerJoined{PlayerID: 2, CharacterID: charID, TeamID: 1}},
		{"PlayerLeft", &PlayerLeft{PlayerID: 2, Reason: LeaveDisconnect}},
		{"GoldUpdate", &GoldUpdate{PlayerID: 1, Gold: 42}},
		{"PlayerReady", &PlayerReady{PlayerID: 1, IsReady: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, payload := Encode(tt.pkt)
			got, err := Decode(typ, payload)
			require.NoError(t, err)
			require.Equal(t, tt.pkt, got)
		})
	}
}

func TestEntityDeltaFlagCombinations(t *testing.T) {
	tests := []struct {
		name  string
		delta EntityDelta
	}{
		{"position only", EntityDelta{EntityID: 1, Flags: DeltaPosition, X: 1, Y: 2}},
		{"health only", EntityDelta{EntityID: 2, Flags: DeltaHealth, HP: -5}},
		{"owner only", EntityDelta{EntityID: 3, Flags: DeltaOwner, Owner: 9}},
		{"all fields", EntityDelta{
			EntityID: 4,
			Flags:    DeltaPosition | DeltaHealth | DeltaRotation | DeltaOwner,
			X:        0.5, Y: 2.5, HP: 77, Rotation: 3.14, Owner: 2,
		}},
		{"no fields", EntityDelta{EntityID: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(64)
			tt.delta.encodeTo(w)
			got, err := decodeEntityDelta(NewReader(w.Bytes()))
			require.NoError(t, err)
			require.Equal(t, tt.delta, got)
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode(Type(0xEE), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestDecodeTruncated(t *testing.T) {
	// Encode valid packets, then decode every strict prefix. Each prefix must
	// fail cleanly, never panic.
	pkts := []Packet{
		&Connect{ProtocolVersion: Version, ConnectionToken: "tok"},
		&TowerBuild{RequestID: 1, PlayerTowerID: uuid.New(), TowerType: 1, GX: 1, GY: 1},
		&StateSnapshot{
			Tick:     7,
			Entities: []EntityState{UnitState{EntityID: 1, UnitType: 1, X: 1, Y: 2, Speed: 1, HP: 30, MaxHP: 30}},
			Players:  []PlayerState{{PlayerID: 1, Gold: 10, Lives: 10}},
		},
		&MatchEnd{Result: ResultDefeat, Stats: MatchStats{Players: []PlayerMatchStats{{PlayerID: 1}}}},
	}

	for _, pkt := range pkts {
		typ, payload := Encode(pkt)
		for n := 0; n < len(payload); n++ {
			_, err := Decode(typ, payload[:n])
			require.Errorf(t, err, "%v: prefix of %d bytes decoded without error", typ, n)
		}
	}
}

func TestDecodeUnknownEntityKind(t *testing.T) {
	w := NewWriter(16)
	w.WriteUint64(1)  // tick
	w.WriteByte(0xFF) // bogus kind tag
	_, err := Decode(TypeEntitySpawn, w.Bytes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity kind")
}

func TestReliableChannelAssignment(t *testing.T) {
	assert.False(t, TypeEntityUpdate.Reliable())
	assert.False(t, TypeStateSnapshot.Reliable())
	assert.True(t, TypeConnect.Reliable())
	assert.True(t, TypeMatchEnd.Reliable())
	assert.True(t, TypeItemDropNotice.Reliable())
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "TowerBuild", TypeTowerBuild.String())
	assert.Equal(t, "Type(0xEE)", Type(0xEE).String())
}

func TestReaderRejectsOverlongString(t *testing.T) {
	w := NewWriter(8)
	w.WriteUint16(10) // declares 10 bytes
	w.WriteBytes([]byte("abc"))
	_, err := NewReader(w.Bytes()).ReadString()
	require.Error(t, err)
}

func TestWriterPoolReuse(t *testing.T) {
	w := GetWriter()
	w.WriteUint32(1)
	require.Equal(t, 4, w.Len())
	w.Release()

	w2 := GetWriter()
	defer w2.Release()
	require.Equal(t, 0, w2.Len())
}
