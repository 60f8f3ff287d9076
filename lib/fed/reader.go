package fed

import (
	"encoding/binary"
	"math"
)

// PacketReader is a cursor over a packet payload. Reads advance the cursor
// and report whether enough bytes remained.
type PacketReader []byte

func (T *PacketReader) ReadUint8() (uint8, bool) {
	if len(*T) < 1 {
		return 0, false
	}
	v := (*T)[0]
	*T = (*T)[1:]
	return v, true
}

func (T *PacketReader) ReadUint16() (uint16, bool) {
	if len(*T) < 2 {
		return 0, false
	}
	v := binary.BigEndian.Uint16(*T)
	*T = (*T)[2:]
	return v, true
}

func (T *PacketReader) ReadUint32() (uint32, bool) {
	if len(*T) < 4 {
		return 0, false
	}
	v := binary.BigEndian.Uint32(*T)
	*T = (*T)[4:]
	return v, true
}

func (T *PacketReader) ReadUint64() (uint64, bool) {
	if len(*T) < 8 {
		return 0, false
	}
	v := binary.BigEndian.Uint64(*T)
	*T = (*T)[8:]
	return v, true
}

func (T *PacketReader) ReadInt8() (int8, bool) {
	v, ok := T.ReadUint8()
	return int8(v), ok
}

func (T *PacketReader) ReadInt16() (int16, bool) {
	v, ok := T.ReadUint16()
	return int16(v), ok
}

func (T *PacketReader) ReadInt32() (int32, bool) {
	v, ok := T.ReadUint32()
	return int32(v), ok
}

func (T *PacketReader) ReadInt64() (int64, bool) {
	v, ok := T.ReadUint64()
	return int64(v), ok
}

func (T *PacketReader) ReadFloat64() (float64, bool) {
	v, ok := T.ReadUint64()
	return math.Float64frombits(v), ok
}

// ReadString reads up to the next NUL terminator.
func (T *PacketReader) ReadString() (string, bool) {
	for i, b := range *T {
		if b == 0 {
			v := string((*T)[:i])
			*T = (*T)[i+1:]
			return v, true
		}
	}
	return "", false
}

func (T *PacketReader) ReadBytes(n int) ([]byte, bool) {
	if n < 0 || len(*T) < n {
		return nil, false
	}
	v := (*T)[:n]
	*T = (*T)[n:]
	return v, true
}

// Remaining returns the unread tail without advancing.
func (T *PacketReader) Remaining() []byte {
	return *T
}
