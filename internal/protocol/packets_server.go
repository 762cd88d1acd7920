package protocol

import "github.com/google/uuid"

func init() {
	registerDecoder(TypeMatchStart, decodeMatchStart)
	registerDecoder(TypeMatchEnd, decodeMatchEnd)
	registerDecoder(TypeWaveStart, decodeWaveStart)
	registerDecoder(TypeWaveEnd, decodeWaveEnd)
	registerDecoder(TypeEntitySpawn, decodeEntitySpawn)
	registerDecoder(TypeEntityDestroy, decodeEntityDestroy)
	registerDecoder(TypeEntityUpdate, decodeEntityUpdate)
	registerDecoder(TypeStateSnapshot, decodeStateSnapshot)
	registerDecoder(TypeChatBroadcast, decodeChatBroadcast)
	registerDecoder(TypeError, decodeErrorMessage)
	registerDecoder(TypeItemDropNotice, decodeItemDropNotice)
	registerDecoder(TypeItemCollectAck, decodeItemCollectAck)
	registerDecoder(TypeGamePause, decodeGamePause)
	registerDecoder(TypePlayerInputAck, decodePlayerInputAck)
	registerDecoder(TypePlayerJoined, decodePlayerJoined)
	registerDecoder(TypePlayerLeft, decodePlayerLeft)
	registerDecoder(TypeGoldUpdate, decodeGoldUpdate)
	registerDecoder(TypePlayerReady, decodePlayerReady)
}

// MatchStart announces the session to all its players.
type MatchStart struct {
	MatchID uuid.UUID
	Mode    MatchMode
	MapID   byte
}

func (*MatchStart) PacketType() Type { return TypeMatchStart }

func (p *MatchStart) encode(w *Writer) {
	w.WriteUUID(p.MatchID)
	w.WriteByte(byte(p.Mode))
	w.WriteByte(p.MapID)
}

func decodeMatchStart(r *Reader) (Packet, error) {
	var p MatchStart
	var err error
	if p.MatchID, err = r.ReadUUID(); err != nil {
		return nil, err
	}
	mode, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.Mode = MatchMode(mode)
	if p.MapID, err = r.ReadByte(); err != nil {
		return nil, err
	}
	return &p, nil
}

// PlayerMatchStats is one player's line in the end-of-match summary.
type PlayerMatchStats struct {
	PlayerID    uint32
	Score       int64
	UnitsKilled uint32
	GoldEarned  int64
}

func (s PlayerMatchStats) encodeTo(w *Writer) {
	w.WriteUint32(s.PlayerID)
	w.WriteInt64(s.Score)
	w.WriteUint32(s.UnitsKilled)
	w.WriteInt64(s.GoldEarned)
}

func decodePlayerMatchStats(r *Reader) (PlayerMatchStats, error) {
	var s PlayerMatchStats
	var err error
	if s.PlayerID, err = r.ReadUint32(); err != nil {
		return s, err
	}
	if s.Score, err = r.ReadInt64(); err != nil {
		return s, err
	}
	if s.UnitsKilled, err = r.ReadUint32(); err != nil {
		return s, err
	}
	if s.GoldEarned, err = r.ReadInt64(); err != nil {
		return s, err
	}
	return s, nil
}

// MatchStats is the end-of-match summary.
type MatchStats struct {
	WavesCompleted  uint32
	DurationSeconds uint32
	UnitsKilled     uint32
	UnitsLeaked     uint32
	Players         []PlayerMatchStats
}

func (s MatchStats) encodeTo(w *Writer) {
	w.WriteUint32(s.WavesCompleted)
	w.WriteUint32(s.DurationSeconds)
	w.WriteUint32(s.UnitsKilled)
	w.WriteUint32(s.UnitsLeaked)
	w.WriteUint16(uint16(len(s.Players)))
	for _, ps := range s.Players {
		ps.encodeTo(w)
	}
}

func decodeMatchStats(r *Reader) (MatchStats, error) {
	var s MatchStats
	var err error
	if s.WavesCompleted, err = r.ReadUint32(); err != nil {
		return s, err
	}
	if s.DurationSeconds, err = r.ReadUint32(); err != nil {
		return s, err
	}
	if s.UnitsKilled, err = r.ReadUint32(); err != nil {
		return s, err
	}
	if s.UnitsLeaked, err = r.ReadUint32(); err != nil {
		return s, err
	}
	n, err := r.ReadUint16()
	if err != nil {
		return s, err
	}
	s.Players = make([]PlayerMatchStats, 0, n)
	for i := 0; i < int(n); i++ {
		ps, err := decodePlayerMatchStats(r)
		if err != nil {
			return s, err
		}
		s.Players = append(s.Players, ps)
	}
	return s, nil
}

// MatchEnd closes the match with a result and the final stats.
type MatchEnd struct {
	Result MatchResult
	Stats  MatchStats
}

func (*MatchEnd) PacketType() Type { return TypeMatchEnd }

func (p *MatchEnd) encode(w *Writer) {
	w.WriteByte(byte(p.Result))
	p.Stats.encodeTo(w)
}

func decodeMatchEnd(r *Reader) (Packet, error) {
	var p MatchEnd
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.Result = MatchResult(b)
	if p.Stats, err = decodeMatchStats(r); err != nil {
		return nil, err
	}
	return &p, nil
}

// WaveStart announces the next wave's composition.
type WaveStart struct {
	WaveNumber uint32
	UnitType   byte
	UnitCount  uint16
	RarityHint byte
}

func (*WaveStart) PacketType() Type { return TypeWaveStart }

func (p *WaveStart) encode(w *Writer) {
	w.WriteUint32(p.WaveNumber)
	w.WriteByte(p.UnitType)
	w.WriteUint16(p.UnitCount)
	w.WriteByte(p.RarityHint)
}

func decodeWaveStart(r *Reader) (Packet, error) {
	var p WaveStart
	var err error
	if p.WaveNumber, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.UnitType, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if p.UnitCount, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if p.RarityHint, err = r.ReadByte(); err != nil {
		return nil, err
	}
	return &p, nil
}

// WaveEnd closes a wave. Success is false when units leaked.
type WaveEnd struct {
	WaveNumber uint32
	Success    bool
	BonusGold  int32
}

func (*WaveEnd) PacketType() Type { return TypeWaveEnd }

func (p *WaveEnd) encode(w *Writer) {
	w.WriteUint32(p.WaveNumber)
	w.WriteBool(p.Success)
	w.WriteInt32(p.BonusGold)
}

func decodeWaveEnd(r *Reader) (Packet, error) {
	var p WaveEnd
	var err error
	if p.WaveNumber, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.Success, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if p.BonusGold, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	return &p, nil
}

// EntitySpawn introduces one entity with its full state.
type EntitySpawn struct {
	Tick   uint64
	Entity EntityState
}

func (*EntitySpawn) PacketType() Type { return TypeEntitySpawn }

func (p *EntitySpawn) encode(w *Writer) {
	w.WriteUint64(p.Tick)
	writeEntityState(w, p.Entity)
}

func decodeEntitySpawn(r *Reader) (Packet, error) {
	var p EntitySpawn
	var err error
	if p.Tick, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	if p.Entity, err = decodeEntityState(r); err != nil {
		return nil, err
	}
	return &p, nil
}

// EntityDestroy removes one entity.
type EntityDestroy struct {
	Tick     uint64
	EntityID uint32
	Reason   DestroyReason
}

func (*EntityDestroy) PacketType() Type { return TypeEntityDestroy }

func (p *EntityDestroy) encode(w *Writer) {
	w.WriteUint64(p.Tick)
	w.WriteUint32(p.EntityID)
	w.WriteByte(byte(p.Reason))
}

func decodeEntityDestroy(r *Reader) (Packet, error) {
	var p EntityDestroy
	var err error
	if p.Tick, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	if p.EntityID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.Reason = DestroyReason(b)
	return &p, nil
}

// EntityUpdate carries the per-broadcast entity deltas. Sent unreliable.
type EntityUpdate struct {
	Tick   uint64
	Deltas []EntityDelta
}

func (*EntityUpdate) PacketType() Type { return TypeEntityUpdate }

func (p *EntityUpdate) encode(w *Writer) {
	w.WriteUint64(p.Tick)
	w.WriteUint16(uint16(len(p.Deltas)))
	for _, d := range p.Deltas {
		d.encodeTo(w)
	}
}

func decodeEntityUpdate(r *Reader) (Packet, error) {
	var p EntityUpdate
	var err error
	if p.Tick, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	p.Deltas = make([]EntityDelta, 0, n)
	for i := 0; i < int(n); i++ {
		d, err := decodeEntityDelta(r)
		if err != nil {
			return nil, err
		}
		p.Deltas = append(p.Deltas, d)
	}
	return &p, nil
}

// StateSnapshot is the full authoritative state. Sent unreliable; a client
// applies the newest one it sees.
type StateSnapshot struct {
	Tick     uint64
	Entities []EntityState
	Players  []PlayerState
}

func (*StateSnapshot) PacketType() Type { return TypeStateSnapshot }

func (p *StateSnapshot) encode(w *Writer) {
	w.WriteUint64(p.Tick)
	w.WriteUint16(uint16(len(p.Entities)))
	for _, e := range p.Entities {
		writeEntityState(w, e)
	}
	w.WriteUint16(uint16(len(p.Players)))
	for _, ps := range p.Players {
		ps.encodeTo(w)
	}
}

func decodeStateSnapshot(r *Reader) (Packet, error) {
	var p StateSnapshot
	var err error
	if p.Tick, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	p.Entities = make([]EntityState, 0, n)
	for i := 0; i < int(n); i++ {
		e, err := decodeEntityState(r)
		if err != nil {
			return nil, err
		}
		p.Entities = append(p.Entities, e)
	}
	m, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	p.Players = make([]PlayerState, 0, m)
	for i := 0; i < int(m); i++ {
		ps, err := decodePlayerState(r)
		if err != nil {
			return nil, err
		}
		p.Players = append(p.Players, ps)
	}
	return &p, nil
}

// ChatBroadcast relays a chat line to the session.
type ChatBroadcast struct {
	Channel  ChatChannel
	PlayerID uint32
	Text     string
}

func (*ChatBroadcast) PacketType() Type { return TypeChatBroadcast }

func (p *ChatBroadcast) encode(w *Writer) {
	w.WriteByte(byte(p.Channel))
	w.WriteUint32(p.PlayerID)
	w.WriteString(p.Text)
}

func decodeChatBroadcast(r *Reader) (Packet, error) {
	var p ChatBroadcast
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.Channel = ChatChannel(b)
	if p.PlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.Text, err = r.ReadString(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ErrorMessage rejects a request. RequestID is 0 when the error is not tied
// to a correlated request.
type ErrorMessage struct {
	Code      ErrorCode
	Message   string
	RequestID uint32
}

func (*ErrorMessage) PacketType() Type { return TypeError }

func (p *ErrorMessage) encode(w *Writer) {
	w.WriteByte(byte(p.Code))
	w.WriteString(p.Message)
	w.WriteUint32(p.RequestID)
}

func decodeErrorMessage(r *Reader) (Packet, error) {
	var p ErrorMessage
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.Code = ErrorCode(b)
	if p.Message, err = r.ReadString(); err != nil {
		return nil, err
	}
	if p.RequestID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ItemDropNotice announces a new drop on the field.
type ItemDropNotice struct {
	Drop DropState
}

func (*ItemDropNotice) PacketType() Type { return TypeItemDropNotice }

func (p *ItemDropNotice) encode(w *Writer) {
	p.Drop.encodeState(w)
}

func decodeItemDropNotice(r *Reader) (Packet, error) {
	s, err := decodeDropState(r)
	if err != nil {
		return nil, err
	}
	return &ItemDropNotice{Drop: s.(DropState)}, nil
}

// ItemCollectAck answers an ItemCollect. ItemID is the durable item id minted
// for the collected drop; Error is set when Success is false.
type ItemCollectAck struct {
	RequestID uint32
	Success   bool
	ItemID    uuid.UUID
	Error     ErrorCode
}

func (*ItemCollectAck) PacketType() Type { return TypeItemCollectAck }

func (p *ItemCollectAck) encode(w *Writer) {
	w.WriteUint32(p.RequestID)
	w.WriteBool(p.Success)
	w.WriteUUID(p.ItemID)
	w.WriteByte(byte(p.Error))
}

func decodeItemCollectAck(r *Reader) (Packet, error) {
	var p ItemCollectAck
	var err error
	if p.RequestID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.Success, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if p.ItemID, err = r.ReadUUID(); err != nil {
		return nil, err
	}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.Error = ErrorCode(b)
	return &p, nil
}

// GamePause pauses or resumes the session clock.
type GamePause struct {
	IsPaused bool
	Reason   string
}

func (*GamePause) PacketType() Type { return TypeGamePause }

func (p *GamePause) encode(w *Writer) {
	w.WriteBool(p.IsPaused)
	w.WriteString(p.Reason)
}

func decodeGamePause(r *Reader) (Packet, error) {
	var p GamePause
	var err error
	if p.IsPaused, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if p.Reason, err = r.ReadString(); err != nil {
		return nil, err
	}
	return &p, nil
}

// PlayerInputAck confirms the newest processed input sequence.
type PlayerInputAck struct {
	LastProcessedSequence uint32
}

func (*PlayerInputAck) PacketType() Type { return TypePlayerInputAck }

func (p *PlayerInputAck) encode(w *Writer) {
	w.WriteUint32(p.LastProcessedSequence)
}

func decodePlayerInputAck(r *Reader) (Packet, error) {
	seq, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return &PlayerInputAck{LastProcessedSequence: seq}, nil
}

// PlayerJoined announces a peer joining the session.
type PlayerJoined struct {
	PlayerID    uint32
	CharacterID uuid.UUID
	TeamID      byte
}

func (*PlayerJoined) PacketType() Type { return TypePlayerJoined }

func (p *PlayerJoined) encode(w *Writer) {
	w.WriteUint32(p.PlayerID)
	w.WriteUUID(p.CharacterID)
	w.WriteByte(p.TeamID)
}

func decodePlayerJoined(r *Reader) (Packet, error) {
	var p PlayerJoined
	var err error
	if p.PlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.CharacterID, err = r.ReadUUID(); err != nil {
		return nil, err
	}
	if p.TeamID, err = r.ReadByte(); err != nil {
		return nil, err
	}
	return &p, nil
}

// PlayerLeft announces a peer leaving the session.
type PlayerLeft struct {
	PlayerID uint32
	Reason   LeaveReason
}

func (*PlayerLeft) PacketType() Type { return TypePlayerLeft }

func (p *PlayerLeft) encode(w *Writer) {
	w.WriteUint32(p.PlayerID)
	w.WriteByte(byte(p.Reason))
}

func decodePlayerLeft(r *Reader) (Packet, error) {
	var p PlayerLeft
	var err error
	if p.PlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.Reason = LeaveReason(b)
	return &p, nil
}

// GoldUpdate pushes a player's authoritative gold balance.
type GoldUpdate struct {
	PlayerID uint32
	Gold     int64
}

func (*GoldUpdate) PacketType() Type { return TypeGoldUpdate }

func (p *GoldUpdate) encode(w *Writer) {
	w.WriteUint32(p.PlayerID)
	w.WriteInt64(p.Gold)
}

func decodeGoldUpdate(r *Reader) (Packet, error) {
	var p GoldUpdate
	var err error
	if p.PlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.Gold, err = r.ReadInt64(); err != nil {
		return nil, err
	}
	return &p, nil
}

// PlayerReady mirrors a ReadyState change to the whole session.
type PlayerReady struct {
	PlayerID uint32
	IsReady  bool
}

func (*PlayerReady) PacketType() Type { return TypePlayerReady }

func (p *PlayerReady) encode(w *Writer) {
	w.WriteUint32(p.PlayerID)
	w.WriteBool(p.IsReady)
}

func decodePlayerReady(r *Reader) (Packet, error) {
	var p PlayerReady
	var err error
	if p.PlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.IsReady, err = r.ReadBool(); err != nil {
		return nil, err
	}
	return &p, nil
}
