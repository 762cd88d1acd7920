package protocol

func init() {
	registerDecoder(TypeConnect, decodeConnect)
	registerDecoder(TypeConnectAck, decodeConnectAck)
	registerDecoder(TypeAuthResponse, decodeAuthResponse)
	registerDecoder(TypePing, decodePing)
	registerDecoder(TypePong, decodePong)
}

// Connect opens the session handshake. The token is the opaque value minted
// by the auth service; the server never parses it.
type Connect struct {
	ProtocolVersion uint16
	ConnectionToken string
}

func (*Connect) PacketType() Type { return TypeConnect }

func (p *Connect) encode(w *Writer) {
	w.WriteUint16(p.ProtocolVersion)
	w.WriteString(p.ConnectionToken)
}

func decodeConnect(r *Reader) (Packet, error) {
	var p Connect
	var err error
	if p.ProtocolVersion, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if p.ConnectionToken, err = r.ReadString(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ConnectAck confirms a successful handshake and pins the tick timeline.
type ConnectAck struct {
	PlayerID   uint32
	ServerTick uint64
	TickRate   byte
}

func (*ConnectAck) PacketType() Type { return TypeConnectAck }

func (p *ConnectAck) encode(w *Writer) {
	w.WriteUint32(p.PlayerID)
	w.WriteUint64(p.ServerTick)
	w.WriteByte(p.TickRate)
}

func decodeConnectAck(r *Reader) (Packet, error) {
	var p ConnectAck
	var err error
	if p.PlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.ServerTick, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	if p.TickRate, err = r.ReadByte(); err != nil {
		return nil, err
	}
	return &p, nil
}

// AuthResponse reports the handshake verdict. Error is empty on success.
type AuthResponse struct {
	Success bool
	Error   string
}

func (*AuthResponse) PacketType() Type { return TypeAuthResponse }

func (p *AuthResponse) encode(w *Writer) {
	w.WriteBool(p.Success)
	w.WriteString(p.Error)
}

func decodeAuthResponse(r *Reader) (Packet, error) {
	var p AuthResponse
	var err error
	if p.Success, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if p.Error, err = r.ReadString(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Ping carries the client's clock for RTT measurement.
type Ping struct {
	ClientTime int64
}

func (*Ping) PacketType() Type { return TypePing }

func (p *Ping) encode(w *Writer) {
	w.WriteInt64(p.ClientTime)
}

func decodePing(r *Reader) (Packet, error) {
	var p Ping
	var err error
	if p.ClientTime, err = r.ReadInt64(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Pong echoes the client clock and adds the server's.
type Pong struct {
	ClientTime int64
	ServerTime int64
}

func (*Pong) PacketType() Type { return TypePong }

func (p *Pong) encode(w *Writer) {
	w.WriteInt64(p.ClientTime)
	w.WriteInt64(p.ServerTime)
}

func decodePong(r *Reader) (Packet, error) {
	var p Pong
	var err error
	if p.ClientTime, err = r.ReadInt64(); err != nil {
		return nil, err
	}
	if p.ServerTime, err = r.ReadInt64(); err != nil {
		return nil, err
	}
	return &p, nil
}
