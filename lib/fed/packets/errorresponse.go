package packets

import (
	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/perror"
)

type ErrorResponse struct {
	Error perror.Error
}

func (T *ErrorResponse) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeErrorResponse {
		return false
	}

	var severity perror.Severity
	var code perror.Code
	var message string
	var extra []perror.ExtraField

	p := packet.Reader()
	for {
		typ, ok := p.ReadUint8()
		if !ok {
			return false
		}
		if typ == 0 {
			break
		}
		value, ok := p.ReadString()
		if !ok {
			return false
		}
		switch typ {
		case 'S':
			severity = perror.Severity(value)
		case 'V':
			// non-localized severity, regenerated on encode
		case 'C':
			code = perror.Code(value)
		case 'M':
			message = value
		default:
			extra = append(extra, perror.ExtraField{
				Type:  perror.Extra(typ),
				Value: value,
			})
		}
	}

	T.Error = perror.New(severity, code, message, extra...)
	return true
}

func (T *ErrorResponse) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeErrorResponse)

	packet = packet.AppendUint8('S')
	packet = packet.AppendString(string(T.Error.Severity()))
	packet = packet.AppendUint8('V')
	packet = packet.AppendString(string(T.Error.Severity()))
	packet = packet.AppendUint8('C')
	packet = packet.AppendString(string(T.Error.Code()))
	packet = packet.AppendUint8('M')
	packet = packet.AppendString(T.Error.Message())

	for _, field := range T.Error.Extra() {
		packet = packet.AppendUint8(uint8(field.Type))
		packet = packet.AppendString(field.Value)
	}

	return packet.AppendUint8(0)
}
