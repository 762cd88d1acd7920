package game

import (
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/towerwars/internal/protocol"
)

type managerHarness struct {
	mgr      *Manager
	sender   *captureSender
	sink     *captureSink
	returned []uint32
}

func newManagerHarness(t *testing.T) *managerHarness {
	t.Helper()
	h := &managerHarness{
		sender: &captureSender{},
		sink:   &captureSink{},
	}
	mgr, err := NewManager(ManagerConfig{
		Logger:   slog.New(slog.DiscardHandler),
		Clock:    clockwork.NewFakeClock(),
		Send:     h.sender.send,
		Events:   h.sink,
		Resolver: &stubResolver{},
		NewRng: func() *rand.Rand {
			return rand.New(rand.NewPCG(3, 5))
		},
		OnPeerReturned: func(peerID uint32) {
			h.returned = append(h.returned, peerID)
		},
	})
	require.NoError(t, err)
	h.mgr = mgr
	return h
}

func TestManagerSoloGetsFreshSession(t *testing.T) {
	h := newManagerHarness(t)

	m1, err := h.mgr.RequestMatch(10, uuid.New(), uuid.New(), protocol.ModeSolo)
	require.NoError(t, err)
	m2, err := h.mgr.RequestMatch(11, uuid.New(), uuid.New(), protocol.ModeSolo)
	require.NoError(t, err)

	assert.NotEqual(t, m1, m2)
	assert.Equal(t, 2, h.mgr.SessionCount())
	assert.True(t, h.mgr.InSession(10))
	assert.True(t, h.mgr.InSession(11))
}

func TestManagerCoopFillsOpenSession(t *testing.T) {
	h := newManagerHarness(t)

	m1, err := h.mgr.RequestMatch(10, uuid.New(), uuid.New(), protocol.ModeCoop)
	require.NoError(t, err)
	m2, err := h.mgr.RequestMatch(11, uuid.New(), uuid.New(), protocol.ModeCoop)
	require.NoError(t, err)

	assert.Equal(t, m1, m2)
	assert.Equal(t, 1, h.mgr.SessionCount())

	sess, ok := h.mgr.SessionFor(10)
	require.True(t, ok)
	assert.Equal(t, 2, sess.PlayerCount())
}

func TestManagerPvPClosesWhenFull(t *testing.T) {
	h := newManagerHarness(t)

	m1, err := h.mgr.RequestMatch(10, uuid.New(), uuid.New(), protocol.ModePvP)
	require.NoError(t, err)
	m2, err := h.mgr.RequestMatch(11, uuid.New(), uuid.New(), protocol.ModePvP)
	require.NoError(t, err)
	require.Equal(t, m1, m2)

	// two players cap the PvP session; the third opens a new one
	m3, err := h.mgr.RequestMatch(12, uuid.New(), uuid.New(), protocol.ModePvP)
	require.NoError(t, err)
	assert.NotEqual(t, m1, m3)
	assert.Equal(t, 2, h.mgr.SessionCount())
}

func TestManagerRejectsDoubleRequest(t *testing.T) {
	h := newManagerHarness(t)

	_, err := h.mgr.RequestMatch(10, uuid.New(), uuid.New(), protocol.ModeSolo)
	require.NoError(t, err)
	_, err = h.mgr.RequestMatch(10, uuid.New(), uuid.New(), protocol.ModeSolo)
	assert.Error(t, err)
}

func TestManagerRejectsUnknownMode(t *testing.T) {
	h := newManagerHarness(t)
	_, err := h.mgr.RequestMatch(10, uuid.New(), uuid.New(), protocol.MatchMode(99))
	assert.Error(t, err)
}

func TestManagerRoutesPacketsAndDisconnects(t *testing.T) {
	h := newManagerHarness(t)
	_, err := h.mgr.RequestMatch(10, uuid.New(), uuid.New(), protocol.ModeSolo)
	require.NoError(t, err)

	assert.True(t, h.mgr.AcceptPacket(10, &protocol.PlayerInput{Sequence: 1}))
	assert.False(t, h.mgr.AcceptPacket(99, &protocol.PlayerInput{Sequence: 1}))

	h.mgr.HandleDisconnect(10)
	assert.False(t, h.mgr.InSession(10))
	sessFor, ok := h.mgr.SessionFor(10)
	assert.False(t, ok)
	assert.Nil(t, sessFor)
}

func TestManagerSessionEndReturnsPeersToLobby(t *testing.T) {
	h := newManagerHarness(t)
	matchID, err := h.mgr.RequestMatch(10, uuid.New(), uuid.New(), protocol.ModeSolo)
	require.NoError(t, err)

	sess, ok := h.mgr.SessionFor(10)
	require.True(t, ok)
	require.Equal(t, matchID, sess.MatchID())

	sess.ForceEnd("test")

	assert.Equal(t, 0, h.mgr.SessionCount())
	assert.False(t, h.mgr.InSession(10))
	assert.Equal(t, []uint32{10}, h.returned)

	var lobbyPeers []uint32
	for _, sp := range h.sender.of(protocol.TypeReturnToLobby) {
		lobbyPeers = append(lobbyPeers, sp.peerID)
	}
	assert.Equal(t, []uint32{10}, lobbyPeers)
	assert.Len(t, h.sender.of(protocol.TypeMatchEnd), 1)
}

func TestManagerShutdownAbortsEverySession(t *testing.T) {
	h := newManagerHarness(t)
	_, err := h.mgr.RequestMatch(10, uuid.New(), uuid.New(), protocol.ModeSolo)
	require.NoError(t, err)
	_, err = h.mgr.RequestMatch(11, uuid.New(), uuid.New(), protocol.ModeSolo)
	require.NoError(t, err)

	h.mgr.Shutdown()

	assert.Equal(t, 0, h.mgr.SessionCount())
	assert.Len(t, h.sender.of(protocol.TypeMatchEnd), 2)
	assert.ElementsMatch(t, []uint32{10, 11}, h.returned)
}

func TestManagerReopensWaitingSlotAfterEnd(t *testing.T) {
	h := newManagerHarness(t)
	m1, err := h.mgr.RequestMatch(10, uuid.New(), uuid.New(), protocol.ModeCoop)
	require.NoError(t, err)

	sess, _ := h.mgr.SessionFor(10)
	sess.ForceEnd("test")

	m2, err := h.mgr.RequestMatch(11, uuid.New(), uuid.New(), protocol.ModeCoop)
	require.NoError(t, err)
	assert.NotEqual(t, m1, m2)
	assert.Equal(t, 1, h.mgr.SessionCount())
}

func TestManagerUpdateAllDrivesSessions(t *testing.T) {
	h := newManagerHarness(t)
	_, err := h.mgr.RequestMatch(10, uuid.New(), uuid.New(), protocol.ModeSolo)
	require.NoError(t, err)

	h.mgr.AcceptPacket(10, &protocol.ReadyState{IsReady: true})
	for i := 0; i < 100; i++ {
		h.mgr.UpdateAll(tickDt)
		h.mgr.TickAll()
	}

	sess, ok := h.mgr.SessionFor(10)
	require.True(t, ok)
	assert.Equal(t, StatePreparation, sess.State())
	assert.Len(t, h.sender.of(protocol.TypeMatchStart), 1)
}
