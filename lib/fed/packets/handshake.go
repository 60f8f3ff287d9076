package packets

import (
	"github.com/pglane/pglane/lib/fed"
)

// special startup request codes, sent as the "minor version" with major 1234
const (
	RequestCodeCancel = 5678
	RequestCodeSSL    = 5679
	RequestCodeGSSAPI = 5680
)

type PasswordMessage struct {
	Password string
}

func (T *PasswordMessage) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypePasswordMessage {
		return false
	}
	p := packet.Reader()
	password, ok := p.ReadString()
	if !ok {
		return false
	}
	T.Password = password
	return true
}

func (T *PasswordMessage) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypePasswordMessage)
	return packet.AppendString(T.Password)
}

type SASLInitialResponse struct {
	Mechanism       string
	InitialResponse []byte
}

func (T *SASLInitialResponse) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeSASLInitialResponse {
		return false
	}
	p := packet.Reader()
	mechanism, ok := p.ReadString()
	if !ok {
		return false
	}
	length, ok := p.ReadInt32()
	if !ok {
		return false
	}
	T.Mechanism = mechanism
	if length < 0 {
		T.InitialResponse = nil
		return true
	}
	response, ok := p.ReadBytes(int(length))
	if !ok {
		return false
	}
	T.InitialResponse = append(T.InitialResponse[:0], response...)
	return true
}

func (T *SASLInitialResponse) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeSASLInitialResponse)
	packet = packet.AppendString(T.Mechanism)
	if T.InitialResponse == nil {
		return packet.AppendInt32(-1)
	}
	packet = packet.AppendInt32(int32(len(T.InitialResponse)))
	return packet.AppendBytes(T.InitialResponse)
}

// SASLResponse is the client's answer to a SASLContinue challenge.
type SASLResponse []byte

func (T *SASLResponse) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeSASLResponse {
		return false
	}
	*T = append((*T)[:0], packet.Payload()...)
	return true
}

func (T *SASLResponse) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeSASLResponse)
	return packet.AppendBytes(*T)
}

type NegotiateProtocolVersion struct {
	MinorVersion        int32
	UnrecognizedOptions []string
}

func (T *NegotiateProtocolVersion) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeNegotiateProtocolVersion {
		return false
	}
	p := packet.Reader()
	minor, ok := p.ReadInt32()
	if !ok {
		return false
	}
	count, ok := p.ReadInt32()
	if !ok {
		return false
	}
	T.MinorVersion = minor
	T.UnrecognizedOptions = T.UnrecognizedOptions[:0]
	for i := int32(0); i < count; i++ {
		option, ok := p.ReadString()
		if !ok {
			return false
		}
		T.UnrecognizedOptions = append(T.UnrecognizedOptions, option)
	}
	return true
}

func (T *NegotiateProtocolVersion) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeNegotiateProtocolVersion)
	packet = packet.AppendInt32(T.MinorVersion)
	packet = packet.AppendInt32(int32(len(T.UnrecognizedOptions)))
	for _, option := range T.UnrecognizedOptions {
		packet = packet.AppendString(option)
	}
	return packet
}

type BackendKeyData struct {
	ProcessID int32
	SecretKey int32
}

func (T *BackendKeyData) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeBackendKeyData {
		return false
	}
	p := packet.Reader()
	pid, ok := p.ReadInt32()
	if !ok {
		return false
	}
	key, ok := p.ReadInt32()
	if !ok {
		return false
	}
	T.ProcessID = pid
	T.SecretKey = key
	return true
}

func (T *BackendKeyData) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeBackendKeyData)
	packet = packet.AppendInt32(T.ProcessID)
	return packet.AppendInt32(T.SecretKey)
}

type ParameterStatus struct {
	Key   string
	Value string
}

func (T *ParameterStatus) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeParameterStatus {
		return false
	}
	p := packet.Reader()
	key, ok := p.ReadString()
	if !ok {
		return false
	}
	value, ok := p.ReadString()
	if !ok {
		return false
	}
	T.Key = key
	T.Value = value
	return true
}

func (T *ParameterStatus) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeParameterStatus)
	packet = packet.AppendString(T.Key)
	return packet.AppendString(T.Value)
}
