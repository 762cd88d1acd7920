package game

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/udisondev/towerwars/internal/events"
	"github.com/udisondev/towerwars/internal/protocol"
)

// broadcastEvery spaces entity delta broadcasts: every 3rd tick at 20 Hz
// keeps clients under 7 updates a second.
const broadcastEvery = 3

// Update advances the simulation by one fixed step. dt is the tick length in
// seconds. Pending async completions always drain first so a resolved build
// lands before combat runs.
func (s *Session) Update(dt float64) {
	s.pending.Drain()
	if s.state == StateGameOver {
		return
	}
	if s.paused {
		if s.ConnectedCount() == 0 {
			s.graceLeft -= dt
			if s.graceLeft <= 0 {
				s.ForceEnd("pause grace expired")
			}
		}
		return
	}

	s.currentTick++
	s.advanceTimers(dt)
	if s.state == StateWaveActive {
		s.updateUnits(dt)
		s.updateTowers(dt)
		s.checkWaveComplete()
	}
	s.updateDrops(dt)
	for _, id := range s.playerOrder() {
		p := s.players[id]
		if p.AbilityCooldown > 0 {
			p.AbilityCooldown = math.Max(0, p.AbilityCooldown-dt)
		}
	}
}

// Tick runs after Update and pushes unreliable entity deltas on the
// broadcast cadence.
func (s *Session) Tick() {
	if s.state != StateWaveActive || s.paused {
		return
	}
	if s.currentTick%broadcastEvery != 0 {
		return
	}
	upd := &protocol.EntityUpdate{Tick: s.currentTick}
	for _, id := range s.unitOrder() {
		u := s.units[id]
		upd.Deltas = append(upd.Deltas, protocol.EntityDelta{
			EntityID: u.EntityID,
			Flags:    protocol.DeltaPosition | protocol.DeltaHealth,
			X:        float32(u.X),
			Y:        float32(u.Y),
			HP:       int32(math.Ceil(u.HP)),
		})
	}
	if len(upd.Deltas) > 0 {
		s.broadcast(upd)
	}
}

func (s *Session) advanceTimers(dt float64) {
	if s.state == StateWaitingForPlayers && s.startTimer > 0 {
		s.startTimer -= dt
		if s.startTimer <= 0 {
			s.startTimer = 0
			s.beginMatch()
		}
		return
	}
	if s.state == StatePreparation {
		s.prepTimer -= dt
		if s.prepTimer <= 0 {
			s.startWave()
		}
	}
}

func (s *Session) beginMatch() {
	s.state = StatePreparation
	s.startedAt = s.clock.Now()
	s.prepTimer = s.rules.PreparationDelay

	s.broadcast(&protocol.MatchStart{
		MatchID: s.cfg.MatchID,
		Mode:    s.cfg.Mode,
		MapID:   s.rules.MapID,
	})
	ids := make([]uuid.UUID, 0, len(s.players))
	for _, pid := range s.playerOrder() {
		ids = append(ids, s.players[pid].UserID)
	}
	s.cfg.Events.Publish(events.MatchStarted{
		MatchID:   s.cfg.MatchID,
		Mode:      s.cfg.Mode.String(),
		PlayerIDs: ids,
		MapID:     s.rules.MapID,
		Timestamp: s.startedAt,
	})
	s.log.Info("match started", "players", len(s.players))
}

func (s *Session) startWave() {
	s.currentWave++
	s.waveKilled = 0
	s.waveLeaked = 0
	s.state = StateWaveActive

	plan := PlanWave(s.currentWave)
	pathY := s.grid.PathY()
	slot := 0
	maxRarity := RarityNormal

	spawn := func(unitType UnitType) {
		rarity := rollUnitRarity(s.rng, s.currentWave, unitType)
		mods := rollModifiers(s.rng, modifierCount(rarity))
		u := buildUnit(s.rng, s.currentWave, unitType, rarity, mods, slot, pathY)
		u.EntityID = s.allocEntityID()
		s.units[u.EntityID] = u
		if rarity > maxRarity {
			maxRarity = rarity
		}
		slot++
	}
	for i := 0; i < plan.Count; i++ {
		spawn(plan.Type)
	}
	for i := 0; i < plan.Escorts; i++ {
		spawn(UnitBasic)
	}

	s.broadcast(&protocol.WaveStart{
		WaveNumber: s.currentWave,
		UnitType:   byte(plan.Type),
		UnitCount:  uint16(plan.Count + plan.Escorts),
		RarityHint: byte(maxRarity),
	})
	for _, id := range s.unitOrder() {
		s.broadcast(&protocol.EntitySpawn{Tick: s.currentTick, Entity: s.units[id].State()})
	}
	s.log.Info("wave started",
		"wave", s.currentWave, "unit_type", plan.Type, "count", plan.Count+plan.Escorts)
}

func (s *Session) updateUnits(dt float64) {
	for _, id := range s.unitOrder() {
		u, ok := s.units[id]
		if !ok {
			continue
		}
		if u.Has(ModRegenerating) && u.HP < u.MaxHP {
			u.HP = math.Min(u.MaxHP, u.HP+u.MaxHP*regenPerSecond*dt)
		}
		if u.SlowLeft > 0 {
			u.SlowLeft = math.Max(0, u.SlowLeft-dt)
		}
		u.X += u.Direction * u.EffectiveSpeed() * dt
		// strictly past the edge: a unit at exactly the boundary is still on
		// the map and can be killed this tick
		if u.X > s.grid.LeakX() {
			s.leakUnit(u)
		}
	}
}

// leakUnit removes a unit that walked off the map and charges every player
// its lives cost.
func (s *Session) leakUnit(u *Unit) {
	delete(s.units, u.EntityID)
	s.waveLeaked++
	s.totalLeaked++
	s.broadcast(&protocol.EntityDestroy{
		Tick:     s.currentTick,
		EntityID: u.EntityID,
		Reason:   protocol.DestroyLeaked,
	})

	for _, pid := range s.playerOrder() {
		p := s.players[pid]
		if p.Lives == 0 {
			continue
		}
		p.Lives = max(0, p.Lives-u.LivesCost)
		s.cfg.Events.Publish(events.PlayerDamaged{
			MatchID:        s.cfg.MatchID,
			PlayerID:       p.UserID,
			Damage:         u.LivesCost,
			RemainingLives: p.Lives,
			Timestamp:      s.clock.Now(),
		})
	}
	s.checkDefeat()
}

func (s *Session) checkDefeat() {
	for _, p := range s.players {
		if p.Lives > 0 {
			return
		}
	}
	s.endMatch(protocol.ResultDefeat)
}

func (s *Session) updateTowers(dt float64) {
	for _, id := range s.towerOrder() {
		t, ok := s.towers[id]
		if !ok {
			continue
		}
		t.Cooldown -= dt
		if t.Cooldown > 0 {
			continue
		}
		targets := s.targetsFor(t)
		if len(targets) == 0 {
			// hold ready until something walks into range
			t.Cooldown = 0
			continue
		}
		for _, u := range targets {
			s.towerAttack(t, u)
		}
		t.Cooldown = 1 / t.Stats.AttackSpeed
	}
}

// targetsFor picks the units a ready tower hits this attack: nearest first,
// entity id breaking ties, up to the tower's target cap.
func (s *Session) targetsFor(t *Tower) []*Unit {
	type candidate struct {
		u *Unit
		d float64
	}
	var cands []candidate
	for _, id := range s.unitOrder() {
		u := s.units[id]
		if d := dist(t.X, t.Y, u.X, u.Y); d <= t.Stats.Range {
			cands = append(cands, candidate{u, d})
		}
	}
	if len(cands) == 0 {
		return nil
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].d != cands[j].d {
			return cands[i].d < cands[j].d
		}
		return cands[i].u.EntityID < cands[j].u.EntityID
	})
	n := 1
	if t.Stats.HitsMultiple && t.Stats.MaxTargets > n {
		n = t.Stats.MaxTargets
	}
	if n > len(cands) {
		n = len(cands)
	}
	out := make([]*Unit, n)
	for i := 0; i < n; i++ {
		out[i] = cands[i].u
	}
	return out
}

// towerAttack resolves one hit on the primary target plus splash.
func (s *Session) towerAttack(t *Tower, u *Unit) {
	damage := t.CurrentDamage()
	isCrit := false
	if t.Stats.CritChance > 0 && s.rng.Float64()*100 < t.Stats.CritChance {
		damage = math.Floor(damage * t.Stats.CritMultiplier / 100)
		isCrit = true
	}

	owner := s.players[t.OwnerPlayerID]
	splashAt := u.X
	splashY := u.Y
	s.hurtUnit(u, damage, t.Stats.DamageType, t, owner, isCrit)

	if t.Stats.SplashRadius > 0 {
		for _, id := range s.unitOrder() {
			v, ok := s.units[id]
			if !ok || v == u {
				continue
			}
			if dist(splashAt, splashY, v.X, v.Y) <= t.Stats.SplashRadius {
				s.hurtUnit(v, damage, t.Stats.DamageType, t, owner, isCrit)
			}
		}
	}
}

// hurtUnit applies one damaging hit. A raised shield absorbs the whole hit
// and drops. Resistances stack additively and cap; the survivor of the cap
// still takes a quarter of the roll.
func (s *Session) hurtUnit(u *Unit, amount float64, dtype DamageType, t *Tower, credit *Player, isCrit bool) {
	if _, alive := s.units[u.EntityID]; !alive {
		return
	}
	if u.ShieldActive {
		u.ShieldActive = false
		return
	}

	resist := 0.0
	if r := elementalResistFor(dtype); r != 0 && u.Has(r) {
		resist += resistPerFlag
	}
	if u.Has(ModArmored) {
		resist += armoredResist
	}
	resist = math.Min(resist, resistCap)

	final := math.Floor(amount * (1 - resist))
	if final <= 0 {
		return
	}
	u.HP -= final
	if u.Has(ModHasted) {
		u.hastened = true
	}
	if t != nil && t.Stats.SlowAmount > 0 {
		if t.Stats.SlowAmount > u.SlowAmount || u.SlowLeft <= 0 {
			u.SlowAmount = t.Stats.SlowAmount
		}
		u.SlowLeft = math.Max(u.SlowLeft, t.Stats.SlowDuration)
	}
	if u.HP <= 0 {
		s.killUnit(u, t, credit, isCrit)
	}
}

// killUnit removes a dead unit, pays out rewards and runs death modifiers.
func (s *Session) killUnit(u *Unit, t *Tower, credit *Player, isCrit bool) {
	delete(s.units, u.EntityID)
	s.waveKilled++
	s.totalKilled++
	s.broadcast(&protocol.EntityDestroy{
		Tick:     s.currentTick,
		EntityID: u.EntityID,
		Reason:   protocol.DestroyKilled,
	})

	goldFind, xpGain := 0.0, 0.0
	killerTowerID := uuid.Nil
	if t != nil {
		goldFind = t.Stats.GoldFindPercent
		xpGain = t.Stats.XPGainPercent
		killerTowerID = t.PlayerTowerID
	}

	if credit != nil {
		gold := int64(math.Floor(float64(u.GoldReward) * goldRarityMult(u.Rarity) * (1 + goldFind/100)))
		xp := int64(math.Floor(float64(u.XPReward) * xpRarityMult(u.Rarity) * (1 + xpGain/100)))
		credit.Gold += gold
		credit.GoldEarned += gold
		credit.Score += xp
		credit.UnitsKilled++
		s.send(credit, &protocol.GoldUpdate{PlayerID: credit.PlayerID, Gold: credit.Gold})
		if t != nil {
			s.addTowerXP(t, xp)
		}

		chance := u.DropChance * dropRarityMult(u.Rarity)
		if s.rng.Float64() < chance {
			s.spawnDrop(credit, u.X, u.Y, "kill", RarityNormal)
		}
		s.cfg.Events.Publish(events.UnitKilled{
			MatchID:       s.cfg.MatchID,
			PlayerID:      credit.UserID,
			UnitID:        u.EntityID,
			UnitType:      uint8(u.Type),
			UnitRarity:    uint8(u.Rarity),
			KillerTowerID: killerTowerID,
			GoldAwarded:   gold,
			IsCritical:    isCrit,
			Timestamp:     s.clock.Now(),
		})
	}

	s.runDeathModifiers(u, credit)
}

// runDeathModifiers resolves Explosive, Vampiric and Splitting after a kill.
func (s *Session) runDeathModifiers(u *Unit, credit *Player) {
	if u.Has(ModExplosive) {
		for _, id := range s.towerOrder() {
			t, ok := s.towers[id]
			if !ok {
				continue
			}
			if dist(u.X, u.Y, t.X, t.Y) > explosiveRadius {
				continue
			}
			t.HP -= explosiveDamage
			if t.HP <= 0 {
				delete(s.towers, t.EntityID)
				s.grid.Clear(t.Cell)
				s.broadcast(&protocol.EntityDestroy{
					Tick:     s.currentTick,
					EntityID: t.EntityID,
					Reason:   protocol.DestroyKilled,
				})
			}
		}
	}

	for _, id := range s.unitOrder() {
		v := s.units[id]
		if !v.Has(ModVampiric) || v.EntityID == u.EntityID {
			continue
		}
		if dist(u.X, u.Y, v.X, v.Y) <= vampiricRadius {
			v.HP = math.Min(v.MaxHP, v.HP+v.MaxHP*vampiricHealFrac)
		}
	}

	if u.Has(ModSplitting) {
		childMods := u.Modifiers &^ ModSplitting
		for i := 0; i < splitCount; i++ {
			child := buildUnit(s.rng, s.currentWave, u.Type, u.Rarity, childMods, 0, u.Y)
			child.EntityID = s.allocEntityID()
			child.X = u.X - float64(i)*0.25
			hp := u.MaxHP * splitHPFrac
			child.HP = hp
			child.MaxHP = hp
			child.ShieldActive = false
			s.units[child.EntityID] = child
			s.broadcast(&protocol.EntitySpawn{Tick: s.currentTick, Entity: child.State()})
		}
	}
}

// spawnDrop creates a field pickup for one player.
func (s *Session) spawnDrop(owner *Player, x, y float64, source string, minRarity Rarity) {
	rarity := rollItemRarity(s.rng, minRarity)
	itemType := rollItemType(s.rng)
	level := s.currentWave
	if level == 0 {
		level = 1
	}
	d := &ItemDrop{
		EntityID:      s.allocEntityID(),
		X:             x,
		Y:             y,
		ItemType:      itemType,
		Rarity:        rarity,
		ItemLevel:     uint16(level),
		Name:          generateItemName(s.rng, itemType, rarity),
		OwnerPlayerID: owner.PlayerID,
		OwnerUserID:   owner.UserID,
		ExpiresIn:     s.rules.DropExpiry,
	}
	s.drops[d.EntityID] = d
	s.broadcast(&protocol.ItemDropNotice{Drop: d.State()})
	s.cfg.Events.Publish(events.ItemDropped{
		MatchID:   s.cfg.MatchID,
		PlayerID:  owner.UserID,
		Rarity:    uint8(rarity),
		ItemType:  uint8(itemType),
		Source:    source,
		Timestamp: s.clock.Now(),
	})
}

func (s *Session) updateDrops(dt float64) {
	for _, id := range s.dropOrder() {
		d := s.drops[id]
		d.ExpiresIn -= dt
		if d.ExpiresIn > 0 {
			continue
		}
		delete(s.drops, id)
		s.broadcast(&protocol.EntityDestroy{
			Tick:     s.currentTick,
			EntityID: id,
			Reason:   protocol.DestroyExpired,
		})
	}
}

func (s *Session) checkWaveComplete() {
	if s.state != StateWaveActive || len(s.units) > 0 {
		return
	}
	perfect := s.waveLeaked == 0
	bonus := waveBonusGold(s.currentWave)

	for _, pid := range s.playerOrder() {
		p := s.players[pid]
		p.Gold += bonus
		p.GoldEarned += bonus
		s.send(p, &protocol.GoldUpdate{PlayerID: p.PlayerID, Gold: p.Gold})
	}

	clearXP := xpWaveClear
	if perfect {
		clearXP += xpPerfectWave
	}
	for _, id := range s.towerOrder() {
		s.addTowerXP(s.towers[id], clearXP)
	}
	s.flushTowerXP("wave")

	for _, pid := range s.playerOrder() {
		p := s.players[pid]
		x := s.grid.LeakX() / 2
		if perfect {
			s.spawnDrop(p, x, s.grid.PathY(), "wave", RarityMagic)
		} else if s.rng.Float64() < waveEndDropChance(s.currentWave) {
			s.spawnDrop(p, x, s.grid.PathY(), "wave", RarityNormal)
		}
	}

	s.broadcast(&protocol.WaveEnd{
		WaveNumber: s.currentWave,
		Success:    s.waveLeaked == 0,
		BonusGold:  int32(bonus),
	})
	s.cfg.Events.Publish(events.WaveCompleted{
		MatchID:     s.cfg.MatchID,
		WaveNumber:  s.currentWave,
		UnitsKilled: s.waveKilled,
		UnitsLeaked: s.waveLeaked,
		IsPerfect:   perfect,
		Timestamp:   s.clock.Now(),
	})
	s.log.Info("wave completed",
		"wave", s.currentWave, "killed", s.waveKilled, "leaked", s.waveLeaked)

	if s.currentWave >= s.rules.VictoryWave {
		s.endMatch(protocol.ResultVictory)
		return
	}
	s.state = StatePreparation
	s.prepTimer = s.rules.PreparationDelay
}

func (s *Session) addTowerXP(t *Tower, amount int64) {
	e, ok := s.pendingXP[t.PlayerTowerID]
	if !ok {
		e = &xpEntry{owner: t.OwnerUserID}
		s.pendingXP[t.PlayerTowerID] = e
	}
	e.amount += amount
}

// flushTowerXP publishes and clears the XP accumulator.
func (s *Session) flushTowerXP(source string) {
	ids := make([]uuid.UUID, 0, len(s.pendingXP))
	for id := range s.pendingXP {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		e := s.pendingXP[id]
		s.cfg.Events.Publish(events.TowerXPGained{
			MatchID:   s.cfg.MatchID,
			PlayerID:  e.owner,
			TowerID:   id,
			XPAmount:  e.amount,
			Source:    source,
			Timestamp: s.clock.Now(),
		})
	}
	s.pendingXP = map[uuid.UUID]*xpEntry{}
}

// endMatch closes the session exactly once: final XP, stats, the MatchEnd
// broadcast and the match.ended event, then the async gates shut.
func (s *Session) endMatch(result protocol.MatchResult) {
	if s.state == StateGameOver {
		return
	}
	s.state = StateGameOver

	matchXP := xpMatchEnd
	if result == protocol.ResultVictory {
		matchXP += xpVictoryBonus
	}
	for _, id := range s.towerOrder() {
		s.addTowerXP(s.towers[id], matchXP)
	}
	s.flushTowerXP("match")

	duration := uint32(0)
	if !s.startedAt.IsZero() {
		duration = uint32(s.clock.Now().Sub(s.startedAt).Seconds())
	}
	stats := protocol.MatchStats{
		WavesCompleted:  s.currentWave,
		DurationSeconds: duration,
		UnitsKilled:     s.totalKilled,
		UnitsLeaked:     s.totalLeaked,
	}
	for _, pid := range s.playerOrder() {
		p := s.players[pid]
		stats.Players = append(stats.Players, protocol.PlayerMatchStats{
			PlayerID:    p.PlayerID,
			Score:       p.Score,
			UnitsKilled: p.UnitsKilled,
			GoldEarned:  p.GoldEarned,
		})
	}
	s.broadcast(&protocol.MatchEnd{Result: result, Stats: stats})
	s.cfg.Events.Publish(events.MatchEnded{
		MatchID:         s.cfg.MatchID,
		Result:          result.String(),
		WavesCompleted:  s.currentWave,
		DurationSeconds: duration,
		Timestamp:       s.clock.Now(),
	})
	s.log.Info("match ended",
		"result", result.String(), "waves", s.currentWave, "duration_s", duration)

	s.pending.Close()
	s.cancel()
	if s.cfg.OnEnded != nil {
		s.cfg.OnEnded(s.cfg.MatchID)
	}
}
