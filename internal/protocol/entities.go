package protocol

import "fmt"

// EntityKind discriminates EntityState layouts on the wire.
type EntityKind byte

const (
	KindTower EntityKind = 1
	KindUnit  EntityKind = 2
	KindDrop  EntityKind = 3
)

// EntityState is the full wire snapshot of one entity. Each kind carries its
// own layout behind a one-byte kind tag.
type EntityState interface {
	EntityKind() EntityKind
	encodeState(w *Writer)
}

func writeEntityState(w *Writer, s EntityState) {
	w.WriteByte(byte(s.EntityKind()))
	s.encodeState(w)
}

func decodeEntityState(r *Reader) (EntityState, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch EntityKind(kind) {
	case KindTower:
		return decodeTowerState(r)
	case KindUnit:
		return decodeUnitState(r)
	case KindDrop:
		return decodeDropState(r)
	}
	return nil, fmt.Errorf("unknown entity kind %d", kind)
}

// TowerState snapshots a placed tower.
type TowerState struct {
	EntityID      uint32
	TowerType     byte
	OwnerPlayerID uint32
	GX, GY        int16
	HP, MaxHP     int32
	UpgradeLevel  byte
	Damage        int32
	Range         float32
	AttackSpeed   float32
	DamageType    byte
}

func (TowerState) EntityKind() EntityKind { return KindTower }

func (s TowerState) encodeState(w *Writer) {
	w.WriteUint32(s.EntityID)
	w.WriteByte(s.TowerType)
	w.WriteUint32(s.OwnerPlayerID)
	w.WriteInt16(s.GX)
	w.WriteInt16(s.GY)
	w.WriteInt32(s.HP)
	w.WriteInt32(s.MaxHP)
	w.WriteByte(s.UpgradeLevel)
	w.WriteInt32(s.Damage)
	w.WriteFloat32(s.Range)
	w.WriteFloat32(s.AttackSpeed)
	w.WriteByte(s.DamageType)
}

func decodeTowerState(r *Reader) (EntityState, error) {
	var s TowerState
	var err error
	if s.EntityID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if s.TowerType, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if s.OwnerPlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if s.GX, err = r.ReadInt16(); err != nil {
		return nil, err
	}
	if s.GY, err = r.ReadInt16(); err != nil {
		return nil, err
	}
	if s.HP, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	if s.MaxHP, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	if s.UpgradeLevel, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if s.Damage, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	if s.Range, err = r.ReadFloat32(); err != nil {
		return nil, err
	}
	if s.AttackSpeed, err = r.ReadFloat32(); err != nil {
		return nil, err
	}
	if s.DamageType, err = r.ReadByte(); err != nil {
		return nil, err
	}
	return s, nil
}

// UnitState snapshots a walking unit.
type UnitState struct {
	EntityID     uint32
	UnitType     byte
	Rarity       byte
	Modifiers    uint16
	X, Y         float32
	Speed        float32
	HP, MaxHP    int32
	ShieldActive bool
}

func (UnitState) EntityKind() EntityKind { return KindUnit }

func (s UnitState) encodeState(w *Writer) {
	w.WriteUint32(s.EntityID)
	w.WriteByte(s.UnitType)
	w.WriteByte(s.Rarity)
	w.WriteUint16(s.Modifiers)
	w.WriteFloat32(s.X)
	w.WriteFloat32(s.Y)
	w.WriteFloat32(s.Speed)
	w.WriteInt32(s.HP)
	w.WriteInt32(s.MaxHP)
	w.WriteBool(s.ShieldActive)
}

func decodeUnitState(r *Reader) (EntityState, error) {
	var s UnitState
	var err error
	if s.EntityID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if s.UnitType, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if s.Rarity, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if s.Modifiers, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if s.X, err = r.ReadFloat32(); err != nil {
		return nil, err
	}
	if s.Y, err = r.ReadFloat32(); err != nil {
		return nil, err
	}
	if s.Speed, err = r.ReadFloat32(); err != nil {
		return nil, err
	}
	if s.HP, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	if s.MaxHP, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	if s.ShieldActive, err = r.ReadBool(); err != nil {
		return nil, err
	}
	return s, nil
}

// DropState snapshots an uncollected item drop.
type DropState struct {
	EntityID      uint32
	X, Y          float32
	ItemType      byte
	Rarity        byte
	ItemLevel     uint16
	OwnerPlayerID uint32
	Name          string
}

func (DropState) EntityKind() EntityKind { return KindDrop }

func (s DropState) encodeState(w *Writer) {
	w.WriteUint32(s.EntityID)
	w.WriteFloat32(s.X)
	w.WriteFloat32(s.Y)
	w.WriteByte(s.ItemType)
	w.WriteByte(s.Rarity)
	w.WriteUint16(s.ItemLevel)
	w.WriteUint32(s.OwnerPlayerID)
	w.WriteString(s.Name)
}

func decodeDropState(r *Reader) (EntityState, error) {
	var s DropState
	var err error
	if s.EntityID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if s.X, err = r.ReadFloat32(); err != nil {
		return nil, err
	}
	if s.Y, err = r.ReadFloat32(); err != nil {
		return nil, err
	}
	if s.ItemType, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if s.Rarity, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if s.ItemLevel, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if s.OwnerPlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if s.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	return s, nil
}

// PlayerState snapshots one player's public match state.
type PlayerState struct {
	PlayerID  uint32
	Gold      int64
	Lives     int32
	Score     int64
	TeamID    byte
	IsReady   bool
	Connected bool
}

func (s PlayerState) encodeTo(w *Writer) {
	w.WriteUint32(s.PlayerID)
	w.WriteInt64(s.Gold)
	w.WriteInt32(s.Lives)
	w.WriteInt64(s.Score)
	w.WriteByte(s.TeamID)
	w.WriteBool(s.IsReady)
	w.WriteBool(s.Connected)
}

func decodePlayerState(r *Reader) (PlayerState, error) {
	var s PlayerState
	var err error
	if s.PlayerID, err = r.ReadUint32(); err != nil {
		return s, err
	}
	if s.Gold, err = r.ReadInt64(); err != nil {
		return s, err
	}
	if s.Lives, err = r.ReadInt32(); err != nil {
		return s, err
	}
	if s.Score, err = r.ReadInt64(); err != nil {
		return s, err
	}
	if s.TeamID, err = r.ReadByte(); err != nil {
		return s, err
	}
	if s.IsReady, err = r.ReadBool(); err != nil {
		return s, err
	}
	if s.Connected, err = r.ReadBool(); err != nil {
		return s, err
	}
	return s, nil
}

// EntityDelta flag bits. Only flagged fields are present on the wire, in the
// order Position, Health, Rotation, Owner.
const (
	DeltaPosition byte = 1 << 0
	DeltaHealth   byte = 1 << 1
	DeltaRotation byte = 1 << 2
	DeltaOwner    byte = 1 << 3
)

// EntityDelta carries the changed fields of one entity for an EntityUpdate.
type EntityDelta struct {
	EntityID uint32
	Flags    byte
	X, Y     float32
	HP       int32
	Rotation float32
	Owner    uint32
}

func (d EntityDelta) encodeTo(w *Writer) {
	w.WriteUint32(d.EntityID)
	w.WriteByte(d.Flags)
	if d.Flags&DeltaPosition != 0 {
		w.WriteFloat32(d.X)
		w.WriteFloat32(d.Y)
	}
	if d.Flags&DeltaHealth != 0 {
		w.WriteInt32(d.HP)
	}
	if d.Flags&DeltaRotation != 0 {
		w.WriteFloat32(d.Rotation)
	}
	if d.Flags&DeltaOwner != 0 {
		w.WriteUint32(d.Owner)
	}
}

func decodeEntityDelta(r *Reader) (EntityDelta, error) {
	var d EntityDelta
	var err error
	if d.EntityID, err = r.ReadUint32(); err != nil {
		return d, err
	}
	if d.Flags, err = r.ReadByte(); err != nil {
		return d, err
	}
	if d.Flags&DeltaPosition != 0 {
		if d.X, err = r.ReadFloat32(); err != nil {
			return d, err
		}
		if d.Y, err = r.ReadFloat32(); err != nil {
			return d, err
		}
	}
	if d.Flags&DeltaHealth != 0 {
		if d.HP, err = r.ReadInt32(); err != nil {
			return d, err
		}
	}
	if d.Flags&DeltaRotation != 0 {
		if d.Rotation, err = r.ReadFloat32(); err != nil {
			return d, err
		}
	}
	if d.Flags&DeltaOwner != 0 {
		if d.Owner, err = r.ReadUint32(); err != nil {
			return d, err
		}
	}
	return d, nil
}
