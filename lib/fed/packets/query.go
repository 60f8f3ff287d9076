package packets

import (
	"github.com/pglane/pglane/lib/fed"
)

type Query string

func (T *Query) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeQuery {
		return false
	}
	p := packet.Reader()
	query, ok := p.ReadString()
	if !ok {
		return false
	}
	*T = Query(query)
	return true
}

func (T *Query) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeQuery)
	return packet.AppendString(string(*T))
}

type CommandComplete string

func (T *CommandComplete) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeCommandComplete {
		return false
	}
	p := packet.Reader()
	tag, ok := p.ReadString()
	if !ok {
		return false
	}
	*T = CommandComplete(tag)
	return true
}

func (T *CommandComplete) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeCommandComplete)
	return packet.AppendString(string(*T))
}

// ReadyForQuery carries the backend transaction status: 'I' idle, 'T' in a
// transaction block, 'E' in a failed transaction block.
type ReadyForQuery byte

func (T *ReadyForQuery) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeReadyForQuery {
		return false
	}
	p := packet.Reader()
	state, ok := p.ReadUint8()
	if !ok {
		return false
	}
	*T = ReadyForQuery(state)
	return true
}

func (T *ReadyForQuery) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeReadyForQuery)
	return packet.AppendUint8(uint8(*T))
}

// RowDescription describes result columns. Only the fields the admin console
// needs are modeled; text format with generic oids is enough for SHOW output.
type RowDescription struct {
	Fields []RowField
}

type RowField struct {
	Name         string
	TableOID     int32
	TableAttr    int16
	TypeOID      int32
	TypeSize     int16
	TypeModifier int32
	Format       int16
}

func (T *RowDescription) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeRowDescription {
		return false
	}
	p := packet.Reader()
	count, ok := p.ReadInt16()
	if !ok {
		return false
	}
	T.Fields = T.Fields[:0]
	for i := int16(0); i < count; i++ {
		var field RowField
		if field.Name, ok = p.ReadString(); !ok {
			return false
		}
		if field.TableOID, ok = p.ReadInt32(); !ok {
			return false
		}
		if field.TableAttr, ok = p.ReadInt16(); !ok {
			return false
		}
		if field.TypeOID, ok = p.ReadInt32(); !ok {
			return false
		}
		if field.TypeSize, ok = p.ReadInt16(); !ok {
			return false
		}
		if field.TypeModifier, ok = p.ReadInt32(); !ok {
			return false
		}
		if field.Format, ok = p.ReadInt16(); !ok {
			return false
		}
		T.Fields = append(T.Fields, field)
	}
	return true
}

func (T *RowDescription) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeRowDescription)
	packet = packet.AppendInt16(int16(len(T.Fields)))
	for _, field := range T.Fields {
		packet = packet.AppendString(field.Name)
		packet = packet.AppendInt32(field.TableOID)
		packet = packet.AppendInt16(field.TableAttr)
		packet = packet.AppendInt32(field.TypeOID)
		packet = packet.AppendInt16(field.TypeSize)
		packet = packet.AppendInt32(field.TypeModifier)
		packet = packet.AppendInt16(field.Format)
	}
	return packet
}

// DataRow is one result row in text format. A nil value is SQL NULL.
type DataRow struct {
	Values [][]byte
}

func (T *DataRow) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeDataRow {
		return false
	}
	p := packet.Reader()
	count, ok := p.ReadInt16()
	if !ok {
		return false
	}
	T.Values = T.Values[:0]
	for i := int16(0); i < count; i++ {
		length, ok := p.ReadInt32()
		if !ok {
			return false
		}
		if length < 0 {
			T.Values = append(T.Values, nil)
			continue
		}
		value, ok := p.ReadBytes(int(length))
		if !ok {
			return false
		}
		T.Values = append(T.Values, value)
	}
	return true
}

func (T *DataRow) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeDataRow)
	packet = packet.AppendInt16(int16(len(T.Values)))
	for _, value := range T.Values {
		if value == nil {
			packet = packet.AppendInt32(-1)
			continue
		}
		packet = packet.AppendInt32(int32(len(value)))
		packet = packet.AppendBytes(value)
	}
	return packet
}
