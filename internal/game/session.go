package game

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/udisondev/towerwars/internal/bonus"
	"github.com/udisondev/towerwars/internal/events"
	"github.com/udisondev/towerwars/internal/protocol"
)

// SessionState is the match lifecycle phase.
type SessionState uint8

const (
	StateWaitingForPlayers SessionState = iota + 1
	StatePreparation
	StateWaveActive
	StateGameOver
)

func (s SessionState) String() string {
	switch s {
	case StateWaitingForPlayers:
		return "WaitingForPlayers"
	case StatePreparation:
		return "Preparation"
	case StateWaveActive:
		return "WaveActive"
	case StateGameOver:
		return "GameOver"
	}
	return "Unknown"
}

// matchStartDelay runs between the last ready toggle and MatchStart.
const matchStartDelay = 5.0

// abilityStrike is the one player ability: area damage on a point.
const (
	abilityStrikeDamage   = 30.0
	abilityStrikeRadius   = 1.5
	abilityStrikeCooldown = 10.0
)

// Sender delivers one packet to a connected peer. Delivery failures are the
// transport's problem; the session fires and forgets.
type Sender func(peerID uint32, pkt protocol.Packet)

// EventSink receives domain events. Publishing never blocks.
type EventSink interface {
	Publish(events.Event)
}

// TowerResolver fetches a tower loadout off the tick thread and calls done
// from a worker goroutine.
type TowerResolver interface {
	ResolveTower(ctx context.Context, playerTowerID uuid.UUID, done func(bonus.Loadout, error))
}

// Rules are the per-session tunables.
type Rules struct {
	VictoryWave      uint32
	PreparationDelay float64 // seconds between waves
	PauseGrace       float64 // seconds a fully disconnected session survives
	DropExpiry       float64 // seconds a drop stays collectable
	MapID            uint8
}

// DefaultRules returns the standard ruleset.
func DefaultRules() Rules {
	return Rules{
		VictoryWave:      30,
		PreparationDelay: 5,
		PauseGrace:       90,
		DropExpiry:       60,
		MapID:            1,
	}
}

// SessionConfig wires one session.
type SessionConfig struct {
	Logger   *slog.Logger
	MatchID  uuid.UUID
	Mode     protocol.MatchMode
	Rules    Rules
	Clock    clockwork.Clock
	Rng      *rand.Rand
	Send     Sender
	Events   EventSink
	Resolver TowerResolver

	// OnEnded runs on the tick thread right after the match closes, before
	// the session stops accepting input.
	OnEnded func(matchID uuid.UUID)
}

func (c *SessionConfig) validate() error {
	if c.MatchID == uuid.Nil {
		return fmt.Errorf("session: match id required")
	}
	if c.Send == nil {
		return fmt.Errorf("session: sender required")
	}
	if c.Events == nil {
		return fmt.Errorf("session: event sink required")
	}
	if c.Resolver == nil {
		return fmt.Errorf("session: tower resolver required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Rng == nil {
		c.Rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if c.Rules == (Rules{}) {
		c.Rules = DefaultRules()
	}
	return nil
}

// Session is one authoritative match. All methods run on the scheduler
// goroutine; asynchronous completions re-enter through the pending queue.
type Session struct {
	log   *slog.Logger
	cfg   SessionConfig
	rules Rules
	clock clockwork.Clock
	rng   *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc

	state       SessionState
	paused      bool
	pauseReason string
	graceLeft   float64

	grid    *Grid
	players map[uint32]*Player // playerID -> player
	byPeer  map[uint32]uint32  // peerID -> playerID

	towers map[uint32]*Tower
	units  map[uint32]*Unit
	drops  map[uint32]*ItemDrop

	collectedDrops map[uint32]struct{}

	nextEntityID uint32
	nextPlayerID uint32
	currentTick  uint64
	currentWave  uint32

	startTimer float64 // ready -> MatchStart countdown, 0 when unarmed
	prepTimer  float64 // Preparation -> WaveStart countdown

	startedAt time.Time

	// per-wave counters, reset on WaveStart
	waveKilled uint32
	waveLeaked uint32

	// match totals
	totalKilled uint32
	totalLeaked uint32

	// XP accumulated since the last flush, keyed by player-tower id
	pendingXP map[uuid.UUID]*xpEntry

	pending *actionQueue
}

type xpEntry struct {
	owner  uuid.UUID // durable user id
	amount int64
}

// maxPlayersFor caps the session roster per mode.
func maxPlayersFor(mode protocol.MatchMode) int {
	switch mode {
	case protocol.ModeCoop:
		return 4
	case protocol.ModePvP:
		return 2
	}
	return 1
}

// NewSession builds an empty session in WaitingForPlayers.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		log:            cfg.Logger.With("match_id", cfg.MatchID, "mode", cfg.Mode.String()),
		cfg:            cfg,
		rules:          cfg.Rules,
		clock:          cfg.Clock,
		rng:            cfg.Rng,
		ctx:            ctx,
		cancel:         cancel,
		state:          StateWaitingForPlayers,
		grid:           NewGrid(cfg.Mode),
		players:        map[uint32]*Player{},
		byPeer:         map[uint32]uint32{},
		towers:         map[uint32]*Tower{},
		units:          map[uint32]*Unit{},
		drops:          map[uint32]*ItemDrop{},
		collectedDrops: map[uint32]struct{}{},
		pendingXP:      map[uuid.UUID]*xpEntry{},
		pending:        newActionQueue(),
	}
	return s, nil
}

// MatchID returns the session identity.
func (s *Session) MatchID() uuid.UUID { return s.cfg.MatchID }

// Mode returns the match mode.
func (s *Session) Mode() protocol.MatchMode { return s.cfg.Mode }

// State returns the lifecycle phase.
func (s *Session) State() SessionState { return s.state }

// CurrentWave returns the wave in progress or last started.
func (s *Session) CurrentWave() uint32 { return s.currentWave }

// PlayerCount returns the roster size.
func (s *Session) PlayerCount() int { return len(s.players) }

// ConnectedCount returns how many roster players still have a live peer.
func (s *Session) ConnectedCount() int {
	n := 0
	for _, p := range s.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// HasRoom reports whether another player may join.
func (s *Session) HasRoom() bool {
	return s.state == StateWaitingForPlayers && len(s.players) < maxPlayersFor(s.cfg.Mode)
}

// Join adds a peer to the roster. Only legal while waiting for players.
func (s *Session) Join(peerID uint32, userID, characterID uuid.UUID) (*Player, error) {
	if s.state != StateWaitingForPlayers {
		return nil, fmt.Errorf("session %s: join in state %s", s.cfg.MatchID, s.state)
	}
	if len(s.players) >= maxPlayersFor(s.cfg.Mode) {
		return nil, fmt.Errorf("session %s: full", s.cfg.MatchID)
	}

	s.nextPlayerID++
	p := &Player{
		PlayerID:       s.nextPlayerID,
		PeerID:         peerID,
		UserID:         userID,
		CharacterID:    characterID,
		Gold:           startingGold,
		Lives:          startingLives,
		Connected:      true,
		TowerPurchases: map[uuid.UUID]int{},
	}
	if s.cfg.Mode == protocol.ModePvP {
		p.TeamID = uint8(p.PlayerID)
	}
	s.players[p.PlayerID] = p
	s.byPeer[peerID] = p.PlayerID

	s.broadcast(&protocol.PlayerJoined{
		PlayerID:    p.PlayerID,
		CharacterID: characterID,
		TeamID:      p.TeamID,
	})
	s.send(p, s.snapshot())
	s.log.Info("player joined", "player_id", p.PlayerID, "user_id", userID)
	return p, nil
}

// PlayerDisconnected marks the peer's player as gone. The roster entry stays
// so stats and ownership survive; a fully disconnected session pauses and
// runs out its grace timer.
func (s *Session) PlayerDisconnected(peerID uint32) {
	pid, ok := s.byPeer[peerID]
	if !ok {
		return
	}
	delete(s.byPeer, peerID)
	p := s.players[pid]
	p.Connected = false
	s.broadcast(&protocol.PlayerLeft{PlayerID: pid, Reason: protocol.LeaveDisconnect})
	s.log.Info("player disconnected", "player_id", pid)

	if s.state == StateGameOver {
		return
	}
	if s.ConnectedCount() == 0 {
		s.SetPaused(true, "all players disconnected")
	}
}

// SetPaused stops or restarts the session clock.
func (s *Session) SetPaused(paused bool, reason string) {
	if s.state == StateGameOver || s.paused == paused {
		return
	}
	s.paused = paused
	s.pauseReason = reason
	if paused {
		if s.ConnectedCount() == 0 {
			s.graceLeft = s.rules.PauseGrace
		}
		s.cfg.Events.Publish(events.GamePaused{
			MatchID:   s.cfg.MatchID,
			Reason:    reason,
			Timestamp: s.clock.Now(),
		})
	} else {
		s.graceLeft = 0
		s.cfg.Events.Publish(events.GameResumed{
			MatchID:   s.cfg.MatchID,
			Timestamp: s.clock.Now(),
		})
	}
	s.broadcast(&protocol.GamePause{IsPaused: paused, Reason: reason})
	s.log.Info("pause state changed", "paused", paused, "reason", reason)
}

// ForceEnd aborts the match, flushing stats and events as usual.
func (s *Session) ForceEnd(reason string) {
	if s.state == StateGameOver {
		return
	}
	s.log.Info("force ending match", "reason", reason)
	s.endMatch(protocol.ResultAborted)
}

// AcceptPacket dispatches one decoded client packet. Unknown or out-of-phase
// requests answer with an Error packet instead of mutating state.
func (s *Session) AcceptPacket(peerID uint32, pkt protocol.Packet) {
	pid, ok := s.byPeer[peerID]
	if !ok {
		return
	}
	p := s.players[pid]
	if s.state == StateGameOver {
		return
	}

	switch m := pkt.(type) {
	case *protocol.ReadyState:
		s.handleReady(p, m)
	case *protocol.ChatMessage:
		s.handleChat(p, m)
	case *protocol.PlayerInput:
		s.handleInput(p, m)
	case *protocol.TowerBuild:
		s.handleBuild(p, m)
	case *protocol.TowerUpgrade:
		s.handleUpgrade(p, m)
	case *protocol.TowerSell:
		s.handleSell(p, m)
	case *protocol.AbilityUse:
		s.handleAbility(p, m)
	case *protocol.ItemCollect:
		s.handleCollect(p, m)
	default:
		s.sendError(p, protocol.ErrWrongState, "unexpected packet", 0)
	}
}

func (s *Session) handleReady(p *Player, m *protocol.ReadyState) {
	if s.state != StateWaitingForPlayers {
		return
	}
	p.IsReady = m.IsReady
	s.broadcast(&protocol.PlayerReady{PlayerID: p.PlayerID, IsReady: m.IsReady})

	if !m.IsReady {
		s.startTimer = 0
		return
	}
	for _, pl := range s.players {
		if !pl.IsReady {
			return
		}
	}
	if s.startTimer == 0 {
		s.startTimer = matchStartDelay
		s.log.Info("all players ready, match starting", "delay_seconds", matchStartDelay)
	}
}

func (s *Session) handleChat(p *Player, m *protocol.ChatMessage) {
	if m.Text == "" || len(m.Text) > 512 {
		return
	}
	s.broadcast(&protocol.ChatBroadcast{
		Channel:  m.Channel,
		PlayerID: p.PlayerID,
		Text:     m.Text,
	})
}

func (s *Session) handleInput(p *Player, m *protocol.PlayerInput) {
	// Stale and duplicate frames ack without applying.
	if m.Sequence > p.LastInputSeq {
		p.LastInputSeq = m.Sequence
	}
	s.send(p, &protocol.PlayerInputAck{LastProcessedSequence: p.LastInputSeq})
}

// handleBuild validates and reserves synchronously, then resolves the tower
// loadout off-thread. The commit or refund happens on the tick thread through
// the pending queue, so the gold and the cell never race another build.
func (s *Session) handleBuild(p *Player, m *protocol.TowerBuild) {
	if s.state != StatePreparation && s.state != StateWaveActive {
		s.sendError(p, protocol.ErrWrongState, "match not running", m.RequestID)
		return
	}
	spec, ok := TowerSpecFor(TowerType(m.TowerType))
	if !ok {
		s.sendError(p, protocol.ErrInvalidPlacement, "unknown tower type", m.RequestID)
		return
	}
	cell := Cell{GX: m.GX, GY: m.GY}
	if !s.grid.CanPlace(cell) {
		s.sendError(p, protocol.ErrInvalidPlacement, "cell not buildable", m.RequestID)
		return
	}
	cost := dynamicCost(spec.BaseCost, p.TowerPurchases[m.PlayerTowerID])
	if p.Gold < cost {
		s.sendError(p, protocol.ErrInsufficientGold,
			fmt.Sprintf("need %d gold", cost), m.RequestID)
		return
	}

	p.Gold -= cost
	s.grid.Place(cell, 0) // reserve until the commit lands
	s.send(p, &protocol.GoldUpdate{PlayerID: p.PlayerID, Gold: p.Gold})

	playerID := p.PlayerID
	req := *m
	s.cfg.Resolver.ResolveTower(s.ctx, m.PlayerTowerID, func(lo bonus.Loadout, err error) {
		s.pending.Push(func() {
			s.commitBuild(playerID, req, spec, cell, cost, lo, err)
		})
	})
}

// commitBuild finishes a build on the tick thread once the loadout resolves.
func (s *Session) commitBuild(playerID uint32, req protocol.TowerBuild, spec TowerSpec, cell Cell, cost int64, lo bonus.Loadout, err error) {
	p, ok := s.players[playerID]
	if !ok || s.state == StateGameOver {
		return
	}
	if err != nil {
		s.grid.Clear(cell)
		p.Gold += cost
		s.send(p, &protocol.GoldUpdate{PlayerID: p.PlayerID, Gold: p.Gold})
		s.sendError(p, protocol.ErrInternal, "tower data unavailable", req.RequestID)
		s.log.Warn("build failed, gold refunded",
			"player_id", playerID, "player_tower_id", req.PlayerTowerID, "error", err)
		return
	}

	stats, maxHP := ComposeTowerStats(spec, lo)
	x, y := s.grid.Centre(cell)
	t := &Tower{
		EntityID:      s.allocEntityID(),
		PlayerTowerID: req.PlayerTowerID,
		OwnerPlayerID: p.PlayerID,
		OwnerUserID:   p.UserID,
		Type:          spec.Type,
		Cell:          cell,
		X:             x,
		Y:             y,
		HP:            maxHP,
		MaxHP:         maxHP,
		GoldSpent:     cost,
		Stats:         stats,
	}
	s.towers[t.EntityID] = t
	s.grid.Place(cell, t.EntityID)
	p.TowerPurchases[req.PlayerTowerID]++

	s.broadcast(&protocol.EntitySpawn{Tick: s.currentTick, Entity: t.State()})
	s.cfg.Events.Publish(events.TowerBuilt{
		MatchID:   s.cfg.MatchID,
		PlayerID:  p.UserID,
		TowerID:   req.PlayerTowerID,
		TowerType: uint8(spec.Type),
		GridX:     cell.GX,
		GridY:     cell.GY,
		GoldSpent: cost,
		Timestamp: s.clock.Now(),
	})
	s.log.Debug("tower built",
		"entity_id", t.EntityID, "type", spec.Name, "player_id", p.PlayerID)
}

func (s *Session) handleUpgrade(p *Player, m *protocol.TowerUpgrade) {
	t, ok := s.towers[m.EntityID]
	if !ok || t.OwnerPlayerID != p.PlayerID {
		s.sendError(p, protocol.ErrTowerNotFound, "no such tower", m.RequestID)
		return
	}
	spec, _ := TowerSpecFor(t.Type)
	cost := upgradeCost(spec.BaseCost, t.UpgradeLevel+1)
	if p.Gold < cost {
		s.sendError(p, protocol.ErrInsufficientGold,
			fmt.Sprintf("need %d gold", cost), m.RequestID)
		return
	}
	p.Gold -= cost
	t.UpgradeLevel++
	t.GoldSpent += cost

	s.send(p, &protocol.GoldUpdate{PlayerID: p.PlayerID, Gold: p.Gold})
	// Re-spawn carries the new stat block; clients upsert by entity id.
	s.broadcast(&protocol.EntitySpawn{Tick: s.currentTick, Entity: t.State()})
}

func (s *Session) handleSell(p *Player, m *protocol.TowerSell) {
	t, ok := s.towers[m.EntityID]
	if !ok || t.OwnerPlayerID != p.PlayerID {
		s.sendError(p, protocol.ErrTowerNotFound, "no such tower", m.RequestID)
		return
	}
	refund := int64(math.Floor(float64(t.GoldSpent) * sellRefundFrac))
	p.Gold += refund
	delete(s.towers, t.EntityID)
	s.grid.Clear(t.Cell)

	s.broadcast(&protocol.EntityDestroy{
		Tick:     s.currentTick,
		EntityID: t.EntityID,
		Reason:   protocol.DestroySold,
	})
	s.send(p, &protocol.GoldUpdate{PlayerID: p.PlayerID, Gold: p.Gold})
	s.cfg.Events.Publish(events.TowerSold{
		MatchID:      s.cfg.MatchID,
		PlayerID:     p.UserID,
		TowerID:      t.PlayerTowerID,
		GoldReceived: refund,
		Timestamp:    s.clock.Now(),
	})
}

func (s *Session) handleAbility(p *Player, m *protocol.AbilityUse) {
	if s.state != StateWaveActive {
		s.sendError(p, protocol.ErrWrongState, "no wave in progress", 0)
		return
	}
	if p.AbilityCooldown > 0 {
		s.sendError(p, protocol.ErrWrongState, "ability on cooldown", 0)
		return
	}
	p.AbilityCooldown = abilityStrikeCooldown

	tx, ty := float64(m.TargetX), float64(m.TargetY)
	for _, id := range s.unitOrder() {
		u, ok := s.units[id]
		if !ok || dist(u.X, u.Y, tx, ty) > abilityStrikeRadius {
			continue
		}
		s.hurtUnit(u, abilityStrikeDamage, DamagePhysical, nil, p, false)
	}
	s.cfg.Events.Publish(events.AbilityUsed{
		MatchID:     s.cfg.MatchID,
		PlayerID:    p.UserID,
		AbilityType: m.Ability,
		TargetX:     tx,
		TargetY:     ty,
		Timestamp:   s.clock.Now(),
	})
}

func (s *Session) handleCollect(p *Player, m *protocol.ItemCollect) {
	d, ok := s.drops[m.DropID]
	if !ok {
		code := protocol.ErrItemNotFound
		if _, collected := s.collectedDrops[m.DropID]; collected {
			code = protocol.ErrItemAlreadyCollected
		}
		s.send(p, &protocol.ItemCollectAck{RequestID: m.RequestID, Error: code})
		return
	}
	if d.OwnerPlayerID != p.PlayerID {
		s.send(p, &protocol.ItemCollectAck{
			RequestID: m.RequestID,
			Error:     protocol.ErrNotItemOwner,
		})
		return
	}

	itemID := uuid.New()
	d.Collected = true
	delete(s.drops, d.EntityID)
	s.collectedDrops[d.EntityID] = struct{}{}

	s.send(p, &protocol.ItemCollectAck{
		RequestID: m.RequestID,
		Success:   true,
		ItemID:    itemID,
	})
	s.broadcast(&protocol.EntityDestroy{
		Tick:     s.currentTick,
		EntityID: d.EntityID,
		Reason:   protocol.DestroyCollected,
	})
	s.cfg.Events.Publish(events.ItemCollected{
		MatchID:   s.cfg.MatchID,
		PlayerID:  p.UserID,
		ItemID:    itemID,
		DropID:    d.EntityID,
		ItemType:  uint8(d.ItemType),
		Rarity:    uint8(d.Rarity),
		ItemLevel: d.ItemLevel,
		Name:      d.Name,
		Timestamp: s.clock.Now(),
	})
}

// dynamicCost scales a build with the player's prior purchases of the same
// durable tower.
func dynamicCost(base int64, purchases int) int64 {
	return int64(math.Ceil(float64(base) * (1 + dynamicCostStep*float64(purchases))))
}

// upgradeCost prices the next level.
func upgradeCost(base int64, level uint8) int64 {
	return int64(math.Ceil(float64(base) * upgradeCostFactor * float64(level)))
}

func (s *Session) allocEntityID() uint32 {
	s.nextEntityID++
	return s.nextEntityID
}

// send delivers to one player if still connected.
func (s *Session) send(p *Player, pkt protocol.Packet) {
	if !p.Connected {
		return
	}
	s.cfg.Send(p.PeerID, pkt)
}

// broadcast delivers to every connected player.
func (s *Session) broadcast(pkt protocol.Packet) {
	for _, id := range s.playerOrder() {
		s.send(s.players[id], pkt)
	}
}

func (s *Session) sendError(p *Player, code protocol.ErrorCode, msg string, requestID uint32) {
	s.send(p, &protocol.ErrorMessage{Code: code, Message: msg, RequestID: requestID})
}

// snapshot builds the full authoritative state for a joining peer.
func (s *Session) snapshot() *protocol.StateSnapshot {
	snap := &protocol.StateSnapshot{Tick: s.currentTick}
	for _, id := range s.towerOrder() {
		snap.Entities = append(snap.Entities, s.towers[id].State())
	}
	for _, id := range s.unitOrder() {
		snap.Entities = append(snap.Entities, s.units[id].State())
	}
	for _, id := range s.dropOrder() {
		snap.Entities = append(snap.Entities, s.drops[id].State())
	}
	for _, id := range s.playerOrder() {
		snap.Players = append(snap.Players, s.players[id].State())
	}
	return snap
}

// Iteration helpers. Map order is random per run; the simulation needs a
// stable order so identical seeds replay identically.

func (s *Session) playerOrder() []uint32 {
	return sortedKeys(s.players)
}

func (s *Session) towerOrder() []uint32 {
	return sortedKeys(s.towers)
}

func (s *Session) unitOrder() []uint32 {
	return sortedKeys(s.units)
}

func (s *Session) dropOrder() []uint32 {
	return sortedKeys(s.drops)
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func dist(x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	return math.Sqrt(dx*dx + dy*dy)
}
