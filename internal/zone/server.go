// Package zone composes the zone server: the UDP transport underneath, the
// peer state machine (Unauthenticated -> Lobby -> InGame) and the session
// manager on top, all driven by one fixed-rate scheduler goroutine.
package zone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/udisondev/towerwars/internal/bonus"
	"github.com/udisondev/towerwars/internal/game"
	"github.com/udisondev/towerwars/internal/metrics"
	"github.com/udisondev/towerwars/internal/protocol"
	"github.com/udisondev/towerwars/internal/scheduler"
	"github.com/udisondev/towerwars/internal/token"
	"github.com/udisondev/towerwars/internal/transport"
)

// Transport is the slice of the UDP endpoint the server drives. The endpoint
// itself runs in the caller's errgroup; the server only consumes events and
// sends.
type Transport interface {
	Events() <-chan transport.Event
	Send(peerID uint32, t protocol.Type, payload []byte) error
	Disconnect(peerID uint32, reason string)
}

// Resolver fetches durable progression state off the tick goroutine.
type Resolver interface {
	game.TowerResolver
	ResolvePlayerData(ctx context.Context, characterID uuid.UUID, done func(bonus.PlayerData, error))
}

// Config wires the server.
type Config struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Transport Transport
	Tokens    token.Validator
	Resolver  Resolver
	Events    game.EventSink
	Rules     game.Rules
	TickRate  int
}

func (c *Config) validate() error {
	if c.Transport == nil {
		return errors.New("zone: transport required")
	}
	if c.Tokens == nil {
		return errors.New("zone: token validator required")
	}
	if c.Resolver == nil {
		return errors.New("zone: resolver required")
	}
	if c.Events == nil {
		return errors.New("zone: event sink required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.TickRate == 0 {
		c.TickRate = protocol.TickRate
	}
	return nil
}

// Server is the zone server core.
type Server struct {
	log   *slog.Logger
	cfg   Config
	clock clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc

	manager *game.Manager
	peers   map[uint32]*peerConn
	tasks   *taskQueue

	serverTick uint64
}

// NewServer builds the server and its session manager.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		log:    cfg.Logger,
		cfg:    cfg,
		clock:  cfg.Clock,
		ctx:    ctx,
		cancel: cancel,
		peers:  map[uint32]*peerConn{},
		tasks:  &taskQueue{},
	}

	mgr, err := game.NewManager(game.ManagerConfig{
		Logger:   cfg.Logger,
		Clock:    cfg.Clock,
		Rules:    cfg.Rules,
		Send:     s.sendPacket,
		Events:   cfg.Events,
		Resolver: cfg.Resolver,
		NewRng: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
		OnPeerReturned: s.peerReturnedToLobby,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("building session manager: %w", err)
	}
	s.manager = mgr
	return s, nil
}

// Run drives the fixed-step loop until ctx is cancelled. Live sessions are
// aborted on the way out so their final events still flush.
func (s *Server) Run(ctx context.Context) error {
	loop, err := scheduler.New(scheduler.Config{
		Logger:   s.log,
		Clock:    s.clock,
		TickRate: s.cfg.TickRate,
	}, s.step)
	if err != nil {
		return fmt.Errorf("building scheduler: %w", err)
	}

	s.log.Info("zone server running", "tick_rate", s.cfg.TickRate)
	err = loop.Run(ctx)

	// still on the tick goroutine: safe to touch sessions
	s.manager.Shutdown()
	s.tasks.Close()
	s.cancel()
	s.log.Info("zone server stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// step is one fixed tick: transport events, async completions, simulation.
func (s *Server) step(dt float64) {
	s.serverTick++
	s.drainTransport()
	s.tasks.Drain()
	s.manager.UpdateAll(dt)
	s.manager.TickAll()
}

func (s *Server) drainTransport() {
	for {
		select {
		case ev := <-s.cfg.Transport.Events():
			s.handleEvent(ev)
		default:
			return
		}
	}
}

func (s *Server) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventPeerUp:
		s.peers[ev.PeerID] = newPeerConn(ev.PeerID)
		s.log.Debug("peer up", "peer", ev.PeerID)

	case transport.EventPeerDown:
		s.manager.HandleDisconnect(ev.PeerID)
		delete(s.peers, ev.PeerID)
		s.log.Debug("peer down", "peer", ev.PeerID, "reason", ev.Reason)

	case transport.EventPacket:
		s.handlePacket(ev.PeerID, ev.Type, ev.Payload)
	}
}

func (s *Server) handlePacket(peerID uint32, t protocol.Type, payload []byte) {
	pc, ok := s.peers[peerID]
	if !ok {
		return
	}
	pkt, err := protocol.Decode(t, payload)
	if err != nil {
		metrics.PacketDecodeErrors.Inc()
		s.log.Debug("dropping undecodable packet", "peer", peerID, "type", t, "error", err)
		return
	}

	// Ping answers in any phase.
	if ping, ok := pkt.(*protocol.Ping); ok {
		s.sendPacket(peerID, &protocol.Pong{
			ClientTime: ping.ClientTime,
			ServerTime: s.clock.Now().UnixMilli(),
		})
		return
	}

	switch pc.phase {
	case phaseUnauthenticated:
		s.routeUnauthenticated(pc, pkt)
	case phaseLobby:
		s.routeLobby(pc, pkt)
	case phaseInGame:
		s.routeInGame(pc, pkt)
	}
}

func (s *Server) routeUnauthenticated(pc *peerConn, pkt protocol.Packet) {
	connect, ok := pkt.(*protocol.Connect)
	if !ok {
		metrics.PacketsRejected.WithLabelValues("not_authenticated").Inc()
		s.sendPacket(pc.id, &protocol.ErrorMessage{
			Code:    protocol.ErrNotAuthenticated,
			Message: "authenticate first",
		})
		return
	}
	if connect.ProtocolVersion != protocol.Version {
		metrics.AuthResults.WithLabelValues("version_mismatch").Inc()
		s.sendPacket(pc.id, &protocol.AuthResponse{
			Success: false,
			Error:   "protocol version mismatch",
		})
		s.cfg.Transport.Disconnect(pc.id, "protocol version mismatch")
		delete(s.peers, pc.id)
		return
	}
	if pc.authInFlight {
		return
	}
	pc.authInFlight = true

	peerID := pc.id
	tok := connect.ConnectionToken
	go func() {
		identity, err := s.cfg.Tokens.Validate(s.ctx, tok)
		s.tasks.Push(func() {
			s.finishAuth(peerID, identity, err)
		})
	}()
}

// finishAuth lands the token verdict back on the tick goroutine.
func (s *Server) finishAuth(peerID uint32, identity token.Identity, err error) {
	pc, ok := s.peers[peerID]
	if !ok || pc.phase != phaseUnauthenticated {
		return
	}
	pc.authInFlight = false

	if err != nil {
		metrics.AuthResults.WithLabelValues("rejected").Inc()
		s.sendPacket(peerID, &protocol.AuthResponse{Success: false, Error: "Invalid token"})
		s.cfg.Transport.Disconnect(peerID, "Invalid token")
		delete(s.peers, peerID)
		if !errors.Is(err, token.ErrNotFound) {
			s.log.Warn("token lookup failed", "peer", peerID, "error", err)
		}
		return
	}

	pc.phase = phaseLobby
	pc.identity = identity
	metrics.AuthResults.WithLabelValues("accepted").Inc()
	s.sendPacket(peerID, &protocol.ConnectAck{
		PlayerID:   peerID,
		ServerTick: s.serverTick,
		TickRate:   byte(s.cfg.TickRate),
	})
	s.sendPacket(peerID, &protocol.AuthResponse{Success: true})
	s.log.Info("peer authenticated", "peer", peerID, "user_id", identity.UserID)
}

func (s *Server) routeLobby(pc *peerConn, pkt protocol.Packet) {
	switch m := pkt.(type) {
	case *protocol.Connect:
		// duplicate handshake, already authenticated

	case *protocol.PlayerDataRequest:
		s.requestPlayerData(pc)

	case *protocol.RequestMatch:
		matchID, err := s.manager.RequestMatch(pc.id, pc.identity.UserID, pc.identity.CharacterID, m.Mode)
		if err != nil {
			s.sendPacket(pc.id, &protocol.RequestMatchAck{Success: false, Error: err.Error()})
			return
		}
		pc.phase = phaseInGame
		s.sendPacket(pc.id, &protocol.RequestMatchAck{Success: true, MatchID: matchID})

	default:
		metrics.PacketsRejected.WithLabelValues("wrong_state").Inc()
		s.sendPacket(pc.id, &protocol.ErrorMessage{
			Code:    protocol.ErrWrongState,
			Message: "not in a match",
		})
	}
}

// requestPlayerData kicks off the durable loadout lookup. Available in the
// lobby and mid-match alike.
func (s *Server) requestPlayerData(pc *peerConn) {
	peerID := pc.id
	s.cfg.Resolver.ResolvePlayerData(s.ctx, pc.identity.CharacterID, func(data bonus.PlayerData, err error) {
		s.tasks.Push(func() {
			s.finishPlayerData(peerID, data, err)
		})
	})
}

func (s *Server) finishPlayerData(peerID uint32, data bonus.PlayerData, err error) {
	pc, ok := s.peers[peerID]
	if !ok || pc.phase == phaseUnauthenticated {
		return
	}
	if err != nil {
		s.sendPacket(peerID, &protocol.ErrorMessage{
			Code:    protocol.ErrInternal,
			Message: "player data unavailable",
		})
		s.log.Warn("player data lookup failed", "peer", peerID, "error", err)
		return
	}

	towers := make([]protocol.PlayerTowerInfo, 0, len(data.Towers))
	for _, pt := range data.Towers {
		towers = append(towers, protocol.PlayerTowerInfo{
			PlayerTowerID: pt.PlayerTowerID,
			TowerType:     pt.TowerType,
			Level:         pt.Level,
			XP:            pt.XP,
		})
	}
	items := make([]protocol.PlayerItemInfo, 0, len(data.Items))
	for _, it := range data.Items {
		items = append(items, protocol.PlayerItemInfo{
			ItemID:          it.ItemID,
			ItemType:        it.ItemType,
			Rarity:          it.Rarity,
			ItemLevel:       it.ItemLevel,
			EquippedTowerID: it.EquippedTowerID,
			Name:            it.Name,
		})
	}
	s.sendPacket(peerID, &protocol.PlayerTowersResponse{Towers: towers})
	s.sendPacket(peerID, &protocol.PlayerItemsResponse{Items: items})
}

func (s *Server) routeInGame(pc *peerConn, pkt protocol.Packet) {
	switch pkt.(type) {
	case *protocol.Connect:
		// duplicate handshake, ignored

	case *protocol.PlayerDataRequest:
		s.requestPlayerData(pc)

	case *protocol.RequestMatch:
		s.sendPacket(pc.id, &protocol.RequestMatchAck{Success: false, Error: "already in a match"})

	case *protocol.ChatMessage:
		if !pc.chatLimiter.Allow() {
			metrics.PacketsRejected.WithLabelValues("chat_rate").Inc()
			return
		}
		s.manager.AcceptPacket(pc.id, pkt)

	case *protocol.PlayerInput, *protocol.TowerBuild, *protocol.TowerUpgrade,
		*protocol.TowerSell, *protocol.AbilityUse, *protocol.ReadyState,
		*protocol.ItemCollect:
		s.manager.AcceptPacket(pc.id, pkt)

	default:
		metrics.PacketsRejected.WithLabelValues("wrong_state").Inc()
		s.sendPacket(pc.id, &protocol.ErrorMessage{
			Code:    protocol.ErrWrongState,
			Message: "already in a match",
		})
	}
}

// peerReturnedToLobby runs when a finished match releases a peer.
func (s *Server) peerReturnedToLobby(peerID uint32) {
	if pc, ok := s.peers[peerID]; ok && pc.phase == phaseInGame {
		pc.phase = phaseLobby
	}
}

// sendPacket encodes and transmits, logging delivery failures at debug: the
// transport already accounts for dead peers.
func (s *Server) sendPacket(peerID uint32, pkt protocol.Packet) {
	t, payload := protocol.Encode(pkt)
	if err := s.cfg.Transport.Send(peerID, t, payload); err != nil {
		s.log.Debug("send failed", "peer", peerID, "type", t, "error", err)
	}
}
