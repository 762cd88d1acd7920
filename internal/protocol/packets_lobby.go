package protocol

import "github.com/google/uuid"

func init() {
	registerDecoder(TypePlayerDataRequest, decodePlayerDataRequest)
	registerDecoder(TypePlayerTowersResponse, decodePlayerTowersResponse)
	registerDecoder(TypePlayerItemsResponse, decodePlayerItemsResponse)
	registerDecoder(TypeRequestMatch, decodeRequestMatch)
	registerDecoder(TypeRequestMatchAck, decodeRequestMatchAck)
	registerDecoder(TypeReturnToLobby, decodeReturnToLobby)
}

// PlayerTowerInfo is one durable tower in the player's loadout.
type PlayerTowerInfo struct {
	PlayerTowerID uuid.UUID
	TowerType     byte
	Level         uint16
	XP            int64
}

func (t PlayerTowerInfo) encodeTo(w *Writer) {
	w.WriteUUID(t.PlayerTowerID)
	w.WriteByte(t.TowerType)
	w.WriteUint16(t.Level)
	w.WriteInt64(t.XP)
}

func decodePlayerTowerInfo(r *Reader) (PlayerTowerInfo, error) {
	var t PlayerTowerInfo
	var err error
	if t.PlayerTowerID, err = r.ReadUUID(); err != nil {
		return t, err
	}
	if t.TowerType, err = r.ReadByte(); err != nil {
		return t, err
	}
	if t.Level, err = r.ReadUint16(); err != nil {
		return t, err
	}
	if t.XP, err = r.ReadInt64(); err != nil {
		return t, err
	}
	return t, nil
}

// PlayerItemInfo is one durable item. EquippedTowerID is the zero UUID when
// the item sits in the stash.
type PlayerItemInfo struct {
	ItemID          uuid.UUID
	ItemType        byte
	Rarity          byte
	ItemLevel       uint16
	EquippedTowerID uuid.UUID
	Name            string
}

func (it PlayerItemInfo) encodeTo(w *Writer) {
	w.WriteUUID(it.ItemID)
	w.WriteByte(it.ItemType)
	w.WriteByte(it.Rarity)
	w.WriteUint16(it.ItemLevel)
	w.WriteUUID(it.EquippedTowerID)
	w.WriteString(it.Name)
}

func decodePlayerItemInfo(r *Reader) (PlayerItemInfo, error) {
	var it PlayerItemInfo
	var err error
	if it.ItemID, err = r.ReadUUID(); err != nil {
		return it, err
	}
	if it.ItemType, err = r.ReadByte(); err != nil {
		return it, err
	}
	if it.Rarity, err = r.ReadByte(); err != nil {
		return it, err
	}
	if it.ItemLevel, err = r.ReadUint16(); err != nil {
		return it, err
	}
	if it.EquippedTowerID, err = r.ReadUUID(); err != nil {
		return it, err
	}
	if it.Name, err = r.ReadString(); err != nil {
		return it, err
	}
	return it, nil
}

// PlayerDataRequest asks for the peer's durable loadout.
type PlayerDataRequest struct{}

func (*PlayerDataRequest) PacketType() Type { return TypePlayerDataRequest }

func (p *PlayerDataRequest) encode(w *Writer) {}

func decodePlayerDataRequest(r *Reader) (Packet, error) {
	return &PlayerDataRequest{}, nil
}

// PlayerTowersResponse lists the peer's durable towers.
type PlayerTowersResponse struct {
	Towers []PlayerTowerInfo
}

func (*PlayerTowersResponse) PacketType() Type { return TypePlayerTowersResponse }

func (p *PlayerTowersResponse) encode(w *Writer) {
	w.WriteUint16(uint16(len(p.Towers)))
	for _, t := range p.Towers {
		t.encodeTo(w)
	}
}

func decodePlayerTowersResponse(r *Reader) (Packet, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	p := PlayerTowersResponse{Towers: make([]PlayerTowerInfo, 0, n)}
	for i := 0; i < int(n); i++ {
		t, err := decodePlayerTowerInfo(r)
		if err != nil {
			return nil, err
		}
		p.Towers = append(p.Towers, t)
	}
	return &p, nil
}

// PlayerItemsResponse lists the peer's durable items.
type PlayerItemsResponse struct {
	Items []PlayerItemInfo
}

func (*PlayerItemsResponse) PacketType() Type { return TypePlayerItemsResponse }

func (p *PlayerItemsResponse) encode(w *Writer) {
	w.WriteUint16(uint16(len(p.Items)))
	for _, it := range p.Items {
		it.encodeTo(w)
	}
}

func decodePlayerItemsResponse(r *Reader) (Packet, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	p := PlayerItemsResponse{Items: make([]PlayerItemInfo, 0, n)}
	for i := 0; i < int(n); i++ {
		it, err := decodePlayerItemInfo(r)
		if err != nil {
			return nil, err
		}
		p.Items = append(p.Items, it)
	}
	return &p, nil
}

// RequestMatch asks the server to start a session in the given mode.
type RequestMatch struct {
	Mode MatchMode
}

func (*RequestMatch) PacketType() Type { return TypeRequestMatch }

func (p *RequestMatch) encode(w *Writer) {
	w.WriteByte(byte(p.Mode))
}

func decodeRequestMatch(r *Reader) (Packet, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return &RequestMatch{Mode: MatchMode(b)}, nil
}

// RequestMatchAck answers a RequestMatch. MatchID is set on success.
type RequestMatchAck struct {
	Success bool
	MatchID uuid.UUID
	Error   string
}

func (*RequestMatchAck) PacketType() Type { return TypeRequestMatchAck }

func (p *RequestMatchAck) encode(w *Writer) {
	w.WriteBool(p.Success)
	w.WriteUUID(p.MatchID)
	w.WriteString(p.Error)
}

func decodeRequestMatchAck(r *Reader) (Packet, error) {
	var p RequestMatchAck
	var err error
	if p.Success, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if p.MatchID, err = r.ReadUUID(); err != nil {
		return nil, err
	}
	if p.Error, err = r.ReadString(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ReturnToLobby moves the peer back to the lobby after a finished match.
type ReturnToLobby struct{}

func (*ReturnToLobby) PacketType() Type { return TypeReturnToLobby }

func (p *ReturnToLobby) encode(w *Writer) {}

func decodeReturnToLobby(r *Reader) (Packet, error) {
	return &ReturnToLobby{}, nil
}
