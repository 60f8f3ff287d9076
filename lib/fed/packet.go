package fed

import (
	"encoding/binary"
	"math"
)

type Type = byte

// Packet is a full postgres protocol v3 message: one type byte followed by a
// big endian length (which counts itself but not the type byte) and the
// payload. A Packet is always in wire form, so writing one is a single copy.
//
// Append methods return the updated packet the way append does. Reuse the
// same backing buffer across messages with Reset to avoid allocating per
// packet.
type Packet []byte

const headerSize = 5

func NewPacket(typ Type, payloadHint int) Packet {
	p := make(Packet, headerSize, headerSize+payloadHint)
	p[0] = typ
	binary.BigEndian.PutUint32(p[1:], 4)
	return p
}

// Reset reuses the packet's buffer for a new message of type typ.
func (T Packet) Reset(typ Type) Packet {
	p := T
	if cap(p) < headerSize {
		p = make(Packet, headerSize)
	}
	p = p[:headerSize]
	p[0] = typ
	binary.BigEndian.PutUint32(p[1:], 4)
	return p
}

func (T Packet) Type() Type {
	return T[0]
}

// Length is the length field as it appears on the wire (payload + 4).
func (T Packet) Length() int {
	return int(binary.BigEndian.Uint32(T[1:]))
}

func (T Packet) Payload() []byte {
	return T[headerSize:]
}

func (T Packet) Reader() PacketReader {
	return PacketReader(T.Payload())
}

func (T Packet) setLength() {
	binary.BigEndian.PutUint32(T[1:], uint32(len(T)-1))
}

func (T Packet) AppendUint8(v uint8) Packet {
	p := append(T, v)
	p.setLength()
	return p
}

func (T Packet) AppendUint16(v uint16) Packet {
	p := Packet(binary.BigEndian.AppendUint16(T, v))
	p.setLength()
	return p
}

func (T Packet) AppendUint32(v uint32) Packet {
	p := Packet(binary.BigEndian.AppendUint32(T, v))
	p.setLength()
	return p
}

func (T Packet) AppendUint64(v uint64) Packet {
	p := Packet(binary.BigEndian.AppendUint64(T, v))
	p.setLength()
	return p
}

func (T Packet) AppendInt8(v int8) Packet {
	return T.AppendUint8(uint8(v))
}

func (T Packet) AppendInt16(v int16) Packet {
	return T.AppendUint16(uint16(v))
}

func (T Packet) AppendInt32(v int32) Packet {
	return T.AppendUint32(uint32(v))
}

func (T Packet) AppendInt64(v int64) Packet {
	return T.AppendUint64(uint64(v))
}

func (T Packet) AppendFloat64(v float64) Packet {
	return T.AppendUint64(math.Float64bits(v))
}

// AppendString appends v with the protocol's NUL terminator.
func (T Packet) AppendString(v string) Packet {
	p := append(T, v...)
	p = append(p, 0)
	p.setLength()
	return p
}

func (T Packet) AppendBytes(v []byte) Packet {
	p := append(T, v...)
	p.setLength()
	return p
}
