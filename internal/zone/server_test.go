package zone

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/towerwars/internal/bonus"
	"github.com/udisondev/towerwars/internal/events"
	"github.com/udisondev/towerwars/internal/protocol"
	"github.com/udisondev/towerwars/internal/token"
	"github.com/udisondev/towerwars/internal/transport"
)

type sentFrame struct {
	peerID uint32
	pkt    protocol.Packet
}

type droppedPeer struct {
	peerID uint32
	reason string
}

type fakeTransport struct {
	events chan transport.Event

	mu      sync.Mutex
	sent    []sentFrame
	dropped []droppedPeer
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan transport.Event, 256)}
}

func (f *fakeTransport) Events() <-chan transport.Event { return f.events }

func (f *fakeTransport) Send(peerID uint32, t protocol.Type, payload []byte) error {
	pkt, err := protocol.Decode(t, payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{peerID: peerID, pkt: pkt})
	return nil
}

func (f *fakeTransport) Disconnect(peerID uint32, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, droppedPeer{peerID: peerID, reason: reason})
}

func (f *fakeTransport) of(t protocol.Type) []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentFrame
	for _, fr := range f.sent {
		if fr.pkt.PacketType() == t {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeTransport) drops() []droppedPeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]droppedPeer(nil), f.dropped...)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

type fakeValidator struct {
	tokens map[string]token.Identity
}

func (v *fakeValidator) Validate(_ context.Context, tok string) (token.Identity, error) {
	id, ok := v.tokens[tok]
	if !ok {
		return token.Identity{}, token.ErrNotFound
	}
	return id, nil
}

type fakeResolver struct {
	loadout bonus.Loadout
	data    bonus.PlayerData
	err     error
}

func (r *fakeResolver) ResolveTower(_ context.Context, _ uuid.UUID, done func(bonus.Loadout, error)) {
	done(r.loadout, r.err)
}

func (r *fakeResolver) ResolvePlayerData(_ context.Context, _ uuid.UUID, done func(bonus.PlayerData, error)) {
	done(r.data, r.err)
}

type nullSink struct{}

func (nullSink) Publish(events.Event) {}

type serverHarness struct {
	srv       *Server
	transport *fakeTransport
	validator *fakeValidator
	resolver  *fakeResolver
	identity  token.Identity
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()
	h := &serverHarness{
		transport: newFakeTransport(),
		validator: &fakeValidator{tokens: map[string]token.Identity{}},
		resolver:  &fakeResolver{},
		identity: token.Identity{
			UserID:      uuid.New(),
			CharacterID: uuid.New(),
		},
	}
	h.validator.tokens["good-token"] = h.identity

	srv, err := NewServer(Config{
		Logger:    slog.New(slog.DiscardHandler),
		Clock:     clockwork.NewFakeClock(),
		Transport: h.transport,
		Tokens:    h.validator,
		Resolver:  h.resolver,
		Events:    nullSink{},
	})
	require.NoError(t, err)
	h.srv = srv
	t.Cleanup(srv.cancel)
	return h
}

func (h *serverHarness) peerUp(peerID uint32) {
	h.transport.events <- transport.Event{Kind: transport.EventPeerUp, PeerID: peerID}
}

func (h *serverHarness) peerDown(peerID uint32) {
	h.transport.events <- transport.Event{Kind: transport.EventPeerDown, PeerID: peerID, Reason: "timeout"}
}

func (h *serverHarness) packet(peerID uint32, pkt protocol.Packet) {
	t, payload := protocol.Encode(pkt)
	h.transport.events <- transport.Event{
		Kind:    transport.EventPacket,
		PeerID:  peerID,
		Type:    t,
		Payload: payload,
	}
}

// stepUntil drives ticks until cond holds, failing the test on timeout. Auth
// and data lookups finish on worker goroutines, so results need a few steps
// to land.
func (h *serverHarness) stepUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.srv.step(0.05)
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

// authenticate walks a peer through the happy handshake.
func (h *serverHarness) authenticate(t *testing.T, peerID uint32) {
	t.Helper()
	h.peerUp(peerID)
	h.packet(peerID, &protocol.Connect{ProtocolVersion: protocol.Version, ConnectionToken: "good-token"})
	h.stepUntil(t, func() bool {
		return len(h.transport.of(protocol.TypeAuthResponse)) > 0
	})
	require.Equal(t, phaseLobby, h.srv.peers[peerID].phase)
	h.transport.reset()
}

func TestServerHappyJoin(t *testing.T) {
	h := newServerHarness(t)
	h.peerUp(10)
	h.packet(10, &protocol.Connect{ProtocolVersion: protocol.Version, ConnectionToken: "good-token"})

	h.stepUntil(t, func() bool {
		return len(h.transport.of(protocol.TypeAuthResponse)) > 0
	})

	acks := h.transport.of(protocol.TypeConnectAck)
	require.Len(t, acks, 1)
	ack := acks[0].pkt.(*protocol.ConnectAck)
	assert.Equal(t, uint32(10), ack.PlayerID)
	assert.Equal(t, byte(protocol.TickRate), ack.TickRate)

	resp := h.transport.of(protocol.TypeAuthResponse)[0].pkt.(*protocol.AuthResponse)
	assert.True(t, resp.Success)
	assert.Equal(t, phaseLobby, h.srv.peers[10].phase)
	assert.Equal(t, h.identity, h.srv.peers[10].identity)

	// duplicate Connect in Lobby is ignored
	h.transport.reset()
	h.packet(10, &protocol.Connect{ProtocolVersion: protocol.Version, ConnectionToken: "good-token"})
	h.srv.step(0.05)
	h.srv.step(0.05)
	assert.Empty(t, h.transport.of(protocol.TypeAuthResponse))
	assert.Empty(t, h.transport.of(protocol.TypeError))
}

func TestServerRejectsBadToken(t *testing.T) {
	h := newServerHarness(t)
	h.peerUp(10)
	h.packet(10, &protocol.Connect{ProtocolVersion: protocol.Version, ConnectionToken: "bogus"})

	h.stepUntil(t, func() bool {
		return len(h.transport.of(protocol.TypeAuthResponse)) > 0
	})

	resp := h.transport.of(protocol.TypeAuthResponse)[0].pkt.(*protocol.AuthResponse)
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid token", resp.Error)

	drops := h.transport.drops()
	require.Len(t, drops, 1)
	assert.Equal(t, droppedPeer{peerID: 10, reason: "Invalid token"}, drops[0])
	assert.NotContains(t, h.srv.peers, uint32(10))
}

func TestServerRejectsVersionMismatch(t *testing.T) {
	h := newServerHarness(t)
	h.peerUp(10)
	h.packet(10, &protocol.Connect{ProtocolVersion: protocol.Version + 1, ConnectionToken: "good-token"})
	h.srv.step(0.05)

	resps := h.transport.of(protocol.TypeAuthResponse)
	require.Len(t, resps, 1)
	resp := resps[0].pkt.(*protocol.AuthResponse)
	assert.False(t, resp.Success)
	assert.Equal(t, "protocol version mismatch", resp.Error)

	drops := h.transport.drops()
	require.Len(t, drops, 1)
	assert.Equal(t, "protocol version mismatch", drops[0].reason)
}

func TestServerRejectsGamePacketsBeforeAuth(t *testing.T) {
	h := newServerHarness(t)
	h.peerUp(10)
	h.packet(10, &protocol.RequestMatch{Mode: protocol.ModeSolo})
	h.srv.step(0.05)

	errs := h.transport.of(protocol.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ErrNotAuthenticated, errs[0].pkt.(*protocol.ErrorMessage).Code)
}

func TestServerAnswersPingInAnyPhase(t *testing.T) {
	h := newServerHarness(t)
	h.peerUp(10)
	h.packet(10, &protocol.Ping{ClientTime: 123})
	h.srv.step(0.05)

	pongs := h.transport.of(protocol.TypePong)
	require.Len(t, pongs, 1)
	assert.Equal(t, int64(123), pongs[0].pkt.(*protocol.Pong).ClientTime)
}

func TestServerPlayerDataRequest(t *testing.T) {
	h := newServerHarness(t)
	towerID := uuid.New()
	h.resolver.data = bonus.PlayerData{
		Towers: []bonus.PlayerTower{{PlayerTowerID: towerID, TowerType: 1, Level: 3, XP: 120}},
		Items:  []bonus.PlayerItem{{ItemID: uuid.New(), ItemType: 1, Rarity: 2, ItemLevel: 4, Name: "Gleaming Wand"}},
	}
	h.authenticate(t, 10)

	h.packet(10, &protocol.PlayerDataRequest{})
	h.stepUntil(t, func() bool {
		return len(h.transport.of(protocol.TypePlayerItemsResponse)) > 0
	})

	towers := h.transport.of(protocol.TypePlayerTowersResponse)
	require.Len(t, towers, 1)
	tr := towers[0].pkt.(*protocol.PlayerTowersResponse)
	require.Len(t, tr.Towers, 1)
	assert.Equal(t, towerID, tr.Towers[0].PlayerTowerID)
	assert.Equal(t, uint16(3), tr.Towers[0].Level)

	items := h.transport.of(protocol.TypePlayerItemsResponse)[0].pkt.(*protocol.PlayerItemsResponse)
	require.Len(t, items.Items, 1)
	assert.Equal(t, "Gleaming Wand", items.Items[0].Name)
}

func TestServerRequestMatchMovesPeerInGame(t *testing.T) {
	h := newServerHarness(t)
	h.authenticate(t, 10)

	h.packet(10, &protocol.RequestMatch{Mode: protocol.ModeSolo})
	h.stepUntil(t, func() bool {
		return len(h.transport.of(protocol.TypeRequestMatchAck)) > 0
	})

	ack := h.transport.of(protocol.TypeRequestMatchAck)[0].pkt.(*protocol.RequestMatchAck)
	assert.True(t, ack.Success)
	assert.NotEqual(t, uuid.Nil, ack.MatchID)
	assert.Equal(t, phaseInGame, h.srv.peers[10].phase)
	assert.Equal(t, 1, h.srv.manager.SessionCount())

	// a second request while in game gets a failed ack, not an error packet
	h.transport.reset()
	h.packet(10, &protocol.RequestMatch{Mode: protocol.ModeSolo})
	h.srv.step(0.05)
	acks := h.transport.of(protocol.TypeRequestMatchAck)
	require.Len(t, acks, 1)
	again := acks[0].pkt.(*protocol.RequestMatchAck)
	assert.False(t, again.Success)
	assert.Equal(t, "already in a match", again.Error)
	assert.Empty(t, h.transport.of(protocol.TypeError))
	assert.Equal(t, 1, h.srv.manager.SessionCount())
}

func TestServerPlayerDataRequestInGame(t *testing.T) {
	h := newServerHarness(t)
	towerID := uuid.New()
	h.resolver.data = bonus.PlayerData{
		Towers: []bonus.PlayerTower{{PlayerTowerID: towerID, TowerType: 1, Level: 2, XP: 40}},
	}
	h.authenticate(t, 10)
	h.packet(10, &protocol.RequestMatch{Mode: protocol.ModeSolo})
	h.stepUntil(t, func() bool {
		return len(h.transport.of(protocol.TypeRequestMatchAck)) > 0
	})
	h.transport.reset()

	// loadout stays queryable mid-match
	h.packet(10, &protocol.PlayerDataRequest{})
	h.stepUntil(t, func() bool {
		return len(h.transport.of(protocol.TypePlayerItemsResponse)) > 0
	})

	towers := h.transport.of(protocol.TypePlayerTowersResponse)
	require.Len(t, towers, 1)
	tr := towers[0].pkt.(*protocol.PlayerTowersResponse)
	require.Len(t, tr.Towers, 1)
	assert.Equal(t, towerID, tr.Towers[0].PlayerTowerID)
	assert.Empty(t, h.transport.of(protocol.TypeError))
}

func TestServerLobbyRejectsGamePackets(t *testing.T) {
	h := newServerHarness(t)
	h.authenticate(t, 10)

	h.packet(10, &protocol.TowerBuild{RequestID: 1, PlayerTowerID: uuid.New(), TowerType: 1})
	h.srv.step(0.05)

	errs := h.transport.of(protocol.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ErrWrongState, errs[0].pkt.(*protocol.ErrorMessage).Code)
}

func TestServerChatRateLimit(t *testing.T) {
	h := newServerHarness(t)
	h.authenticate(t, 10)
	h.packet(10, &protocol.RequestMatch{Mode: protocol.ModeSolo})
	h.stepUntil(t, func() bool {
		return len(h.transport.of(protocol.TypeRequestMatchAck)) > 0
	})
	h.transport.reset()

	for i := 0; i < chatBurst+3; i++ {
		h.packet(10, &protocol.ChatMessage{Channel: protocol.ChatAll, Text: "spam"})
	}
	h.srv.step(0.05)

	// only the burst allowance reaches the session
	chats := h.transport.of(protocol.TypeChatBroadcast)
	assert.Len(t, chats, chatBurst)
}

func TestServerPeerDownInGameDetachesFromSession(t *testing.T) {
	h := newServerHarness(t)
	h.authenticate(t, 10)
	h.packet(10, &protocol.RequestMatch{Mode: protocol.ModeSolo})
	h.stepUntil(t, func() bool {
		return len(h.transport.of(protocol.TypeRequestMatchAck)) > 0
	})
	require.True(t, h.srv.manager.InSession(10))

	h.peerDown(10)
	h.srv.step(0.05)

	assert.False(t, h.srv.manager.InSession(10))
	assert.NotContains(t, h.srv.peers, uint32(10))
}

func TestServerReturnsPeerToLobbyAfterMatch(t *testing.T) {
	h := newServerHarness(t)
	h.authenticate(t, 10)
	h.packet(10, &protocol.RequestMatch{Mode: protocol.ModeSolo})
	h.stepUntil(t, func() bool {
		return len(h.transport.of(protocol.TypeRequestMatchAck)) > 0
	})

	sess, ok := h.srv.manager.SessionFor(10)
	require.True(t, ok)
	sess.ForceEnd("test")

	assert.Equal(t, phaseLobby, h.srv.peers[10].phase)
	assert.False(t, h.srv.manager.InSession(10))
	require.Len(t, h.transport.of(protocol.TypeReturnToLobby), 1)
}
