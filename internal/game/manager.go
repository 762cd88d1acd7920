package game

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/udisondev/towerwars/internal/metrics"
	"github.com/udisondev/towerwars/internal/protocol"
)

// ManagerConfig wires the session manager.
type ManagerConfig struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Rules    Rules
	Send     Sender
	Events   EventSink
	Resolver TowerResolver

	// NewRng seeds one generator per session. Tests inject deterministic
	// seeds here.
	NewRng func() *rand.Rand

	// OnPeerReturned runs when a finished match releases a peer back to
	// the lobby.
	OnPeerReturned func(peerID uint32)
}

func (c *ManagerConfig) validate() error {
	if c.Send == nil {
		return fmt.Errorf("manager: sender required")
	}
	if c.Events == nil {
		return fmt.Errorf("manager: event sink required")
	}
	if c.Resolver == nil {
		return fmt.Errorf("manager: tower resolver required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Rules == (Rules{}) {
		c.Rules = DefaultRules()
	}
	if c.NewRng == nil {
		c.NewRng = func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	return nil
}

// Manager owns every live session and routes peers to them. Like the
// sessions it drives, it runs entirely on the scheduler goroutine.
type Manager struct {
	log *slog.Logger
	cfg ManagerConfig

	sessions map[uuid.UUID]*Session
	byPeer   map[uint32]uuid.UUID

	// one open session per team mode accepts joins until it starts or fills
	waiting map[protocol.MatchMode]uuid.UUID
}

// NewManager builds an empty manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Manager{
		log:      cfg.Logger,
		cfg:      cfg,
		sessions: map[uuid.UUID]*Session{},
		byPeer:   map[uint32]uuid.UUID{},
		waiting:  map[protocol.MatchMode]uuid.UUID{},
	}, nil
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int { return len(m.sessions) }

// InSession reports whether the peer is bound to a session.
func (m *Manager) InSession(peerID uint32) bool {
	_, ok := m.byPeer[peerID]
	return ok
}

// SessionFor returns the peer's session.
func (m *Manager) SessionFor(peerID uint32) (*Session, bool) {
	id, ok := m.byPeer[peerID]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[id]
	return s, ok
}

// RequestMatch places the peer into a session of the requested mode. Solo
// always gets a fresh session; team modes fill the open one first.
func (m *Manager) RequestMatch(peerID uint32, userID, characterID uuid.UUID, mode protocol.MatchMode) (uuid.UUID, error) {
	if _, ok := m.byPeer[peerID]; ok {
		return uuid.Nil, fmt.Errorf("peer %d already in a match", peerID)
	}
	switch mode {
	case protocol.ModeSolo, protocol.ModeCoop, protocol.ModePvP:
	default:
		return uuid.Nil, fmt.Errorf("unknown match mode %d", mode)
	}

	var sess *Session
	if mode != protocol.ModeSolo {
		if id, ok := m.waiting[mode]; ok {
			if open, live := m.sessions[id]; live && open.HasRoom() {
				sess = open
			} else {
				delete(m.waiting, mode)
			}
		}
	}
	if sess == nil {
		var err error
		sess, err = m.createSession(mode)
		if err != nil {
			return uuid.Nil, err
		}
		if mode != protocol.ModeSolo {
			m.waiting[mode] = sess.MatchID()
		}
	}

	if _, err := sess.Join(peerID, userID, characterID); err != nil {
		return uuid.Nil, err
	}
	m.byPeer[peerID] = sess.MatchID()
	if !sess.HasRoom() {
		delete(m.waiting, mode)
	}
	return sess.MatchID(), nil
}

func (m *Manager) createSession(mode protocol.MatchMode) (*Session, error) {
	matchID := uuid.New()
	sess, err := NewSession(SessionConfig{
		Logger:   m.log,
		MatchID:  matchID,
		Mode:     mode,
		Rules:    m.cfg.Rules,
		Clock:    m.cfg.Clock,
		Rng:      m.cfg.NewRng(),
		Send:     m.cfg.Send,
		Events:   m.cfg.Events,
		Resolver: m.cfg.Resolver,
		OnEnded:  m.sessionEnded,
	})
	if err != nil {
		return nil, err
	}
	m.sessions[matchID] = sess
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.log.Info("session created", "match_id", matchID, "mode", mode.String())
	return sess, nil
}

// AcceptPacket routes one in-game packet to the peer's session. Returns
// false when the peer has no session.
func (m *Manager) AcceptPacket(peerID uint32, pkt protocol.Packet) bool {
	sess, ok := m.SessionFor(peerID)
	if !ok {
		return false
	}
	sess.AcceptPacket(peerID, pkt)
	return true
}

// HandleDisconnect detaches a dropped peer from its session.
func (m *Manager) HandleDisconnect(peerID uint32) {
	sess, ok := m.SessionFor(peerID)
	if !ok {
		return
	}
	delete(m.byPeer, peerID)
	sess.PlayerDisconnected(peerID)
}

// UpdateAll steps every session by dt seconds.
func (m *Manager) UpdateAll(dt float64) {
	for _, id := range m.sessionOrder() {
		if sess, ok := m.sessions[id]; ok {
			sess.Update(dt)
		}
	}
}

// TickAll runs the broadcast phase on every session.
func (m *Manager) TickAll() {
	for _, id := range m.sessionOrder() {
		if sess, ok := m.sessions[id]; ok {
			sess.Tick()
		}
	}
}

// Shutdown aborts every live session, flushing their final events.
func (m *Manager) Shutdown() {
	for _, id := range m.sessionOrder() {
		if sess, ok := m.sessions[id]; ok {
			sess.ForceEnd("server shutdown")
		}
	}
}

// sessionEnded runs on the tick thread when a session closes. Its peers go
// back to the lobby.
func (m *Manager) sessionEnded(matchID uuid.UUID) {
	if _, ok := m.sessions[matchID]; !ok {
		return
	}
	delete(m.sessions, matchID)
	for mode, id := range m.waiting {
		if id == matchID {
			delete(m.waiting, mode)
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))

	for peerID, id := range m.byPeer {
		if id != matchID {
			continue
		}
		delete(m.byPeer, peerID)
		m.cfg.Send(peerID, &protocol.ReturnToLobby{})
		if m.cfg.OnPeerReturned != nil {
			m.cfg.OnPeerReturned(peerID)
		}
	}
}

func (m *Manager) sessionOrder() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
