package protocol

import "github.com/google/uuid"

func init() {
	registerDecoder(TypePlayerInput, decodePlayerInput)
	registerDecoder(TypeTowerBuild, decodeTowerBuild)
	registerDecoder(TypeTowerUpgrade, decodeTowerUpgrade)
	registerDecoder(TypeTowerSell, decodeTowerSell)
	registerDecoder(TypeAbilityUse, decodeAbilityUse)
	registerDecoder(TypeReadyState, decodeReadyState)
	registerDecoder(TypeChatMessage, decodeChatMessage)
	registerDecoder(TypeItemCollect, decodeItemCollect)
}

// PlayerInput is the client's input frame. Actions is an opaque bitfield the
// session records; the sequence feeds PlayerInputAck.
type PlayerInput struct {
	Sequence uint32
	Actions  byte
}

func (*PlayerInput) PacketType() Type { return TypePlayerInput }

func (p *PlayerInput) encode(w *Writer) {
	w.WriteUint32(p.Sequence)
	w.WriteByte(p.Actions)
}

func decodePlayerInput(r *Reader) (Packet, error) {
	var p PlayerInput
	var err error
	if p.Sequence, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.Actions, err = r.ReadByte(); err != nil {
		return nil, err
	}
	return &p, nil
}

// TowerBuild places a durable tower on the grid. RequestID correlates the
// Error packet on rejection.
type TowerBuild struct {
	RequestID     uint32
	PlayerTowerID uuid.UUID
	TowerType     byte
	GX, GY        int16
}

func (*TowerBuild) PacketType() Type { return TypeTowerBuild }

func (p *TowerBuild) encode(w *Writer) {
	w.WriteUint32(p.RequestID)
	w.WriteUUID(p.PlayerTowerID)
	w.WriteByte(p.TowerType)
	w.WriteInt16(p.GX)
	w.WriteInt16(p.GY)
}

func decodeTowerBuild(r *Reader) (Packet, error) {
	var p TowerBuild
	var err error
	if p.RequestID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.PlayerTowerID, err = r.ReadUUID(); err != nil {
		return nil, err
	}
	if p.TowerType, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if p.GX, err = r.ReadInt16(); err != nil {
		return nil, err
	}
	if p.GY, err = r.ReadInt16(); err != nil {
		return nil, err
	}
	return &p, nil
}

// TowerUpgrade raises the level of a placed tower.
type TowerUpgrade struct {
	RequestID uint32
	EntityID  uint32
}

func (*TowerUpgrade) PacketType() Type { return TypeTowerUpgrade }

func (p *TowerUpgrade) encode(w *Writer) {
	w.WriteUint32(p.RequestID)
	w.WriteUint32(p.EntityID)
}

func decodeTowerUpgrade(r *Reader) (Packet, error) {
	var p TowerUpgrade
	var err error
	if p.RequestID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.EntityID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	return &p, nil
}

// TowerSell removes a placed tower and refunds part of its cost.
type TowerSell struct {
	RequestID uint32
	EntityID  uint32
}

func (*TowerSell) PacketType() Type { return TypeTowerSell }

func (p *TowerSell) encode(w *Writer) {
	w.WriteUint32(p.RequestID)
	w.WriteUint32(p.EntityID)
}

func decodeTowerSell(r *Reader) (Packet, error) {
	var p TowerSell
	var err error
	if p.RequestID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.EntityID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	return &p, nil
}

// AbilityUse triggers a player ability at a world position.
type AbilityUse struct {
	Ability byte
	TargetX float32
	TargetY float32
}

func (*AbilityUse) PacketType() Type { return TypeAbilityUse }

func (p *AbilityUse) encode(w *Writer) {
	w.WriteByte(p.Ability)
	w.WriteFloat32(p.TargetX)
	w.WriteFloat32(p.TargetY)
}

func decodeAbilityUse(r *Reader) (Packet, error) {
	var p AbilityUse
	var err error
	if p.Ability, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if p.TargetX, err = r.ReadFloat32(); err != nil {
		return nil, err
	}
	if p.TargetY, err = r.ReadFloat32(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ReadyState toggles the peer's ready flag during preparation.
type ReadyState struct {
	IsReady bool
}

func (*ReadyState) PacketType() Type { return TypeReadyState }

func (p *ReadyState) encode(w *Writer) {
	w.WriteBool(p.IsReady)
}

func decodeReadyState(r *Reader) (Packet, error) {
	b, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	return &ReadyState{IsReady: b}, nil
}

// ChatMessage sends a chat line to the session.
type ChatMessage struct {
	Channel ChatChannel
	Text    string
}

func (*ChatMessage) PacketType() Type { return TypeChatMessage }

func (p *ChatMessage) encode(w *Writer) {
	w.WriteByte(byte(p.Channel))
	w.WriteString(p.Text)
}

func decodeChatMessage(r *Reader) (Packet, error) {
	var p ChatMessage
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.Channel = ChatChannel(b)
	if p.Text, err = r.ReadString(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ItemCollect claims a dropped item by its drop entity id.
type ItemCollect struct {
	RequestID uint32
	DropID    uint32
}

func (*ItemCollect) PacketType() Type { return TypeItemCollect }

func (p *ItemCollect) encode(w *Writer) {
	w.WriteUint32(p.RequestID)
	w.WriteUint32(p.DropID)
}

func decodeItemCollect(r *Reader) (Packet, error) {
	var p ItemCollect
	var err error
	if p.RequestID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.DropID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	return &p, nil
}
