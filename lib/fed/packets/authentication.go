package packets

import (
	"github.com/pglane/pglane/lib/fed"
)

// authentication request subkinds, the payload of an 'R' message
const (
	AuthenticationModeOk                = 0
	AuthenticationModeCleartextPassword = 3
	AuthenticationModeMD5Password       = 5
	AuthenticationModeSASL              = 10
	AuthenticationModeSASLContinue      = 11
	AuthenticationModeSASLFinal         = 12
)

type AuthenticationOk struct{}

func (T *AuthenticationOk) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeAuthentication {
		return false
	}
	p := packet.Reader()
	mode, ok := p.ReadInt32()
	return ok && mode == AuthenticationModeOk
}

func (T *AuthenticationOk) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeAuthentication)
	return packet.AppendInt32(AuthenticationModeOk)
}

type AuthenticationCleartextPassword struct{}

func (T *AuthenticationCleartextPassword) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeAuthentication {
		return false
	}
	p := packet.Reader()
	mode, ok := p.ReadInt32()
	return ok && mode == AuthenticationModeCleartextPassword
}

func (T *AuthenticationCleartextPassword) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeAuthentication)
	return packet.AppendInt32(AuthenticationModeCleartextPassword)
}

type AuthenticationMD5 struct {
	Salt [4]byte
}

func (T *AuthenticationMD5) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeAuthentication {
		return false
	}
	p := packet.Reader()
	mode, ok := p.ReadInt32()
	if !ok || mode != AuthenticationModeMD5Password {
		return false
	}
	salt, ok := p.ReadBytes(4)
	if !ok {
		return false
	}
	copy(T.Salt[:], salt)
	return true
}

func (T *AuthenticationMD5) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeAuthentication)
	packet = packet.AppendInt32(AuthenticationModeMD5Password)
	return packet.AppendBytes(T.Salt[:])
}

// AuthenticationSASL advertises the server's SASL mechanisms.
type AuthenticationSASL struct {
	Mechanisms []string
}

func (T *AuthenticationSASL) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeAuthentication {
		return false
	}
	p := packet.Reader()
	mode, ok := p.ReadInt32()
	if !ok || mode != AuthenticationModeSASL {
		return false
	}
	T.Mechanisms = T.Mechanisms[:0]
	for {
		mechanism, ok := p.ReadString()
		if !ok {
			return false
		}
		if mechanism == "" {
			break
		}
		T.Mechanisms = append(T.Mechanisms, mechanism)
	}
	return true
}

func (T *AuthenticationSASL) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeAuthentication)
	packet = packet.AppendInt32(AuthenticationModeSASL)
	for _, mechanism := range T.Mechanisms {
		packet = packet.AppendString(mechanism)
	}
	return packet.AppendUint8(0)
}

type AuthenticationSASLContinue []byte

func (T *AuthenticationSASLContinue) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeAuthentication {
		return false
	}
	p := packet.Reader()
	mode, ok := p.ReadInt32()
	if !ok || mode != AuthenticationModeSASLContinue {
		return false
	}
	*T = append((*T)[:0], p.Remaining()...)
	return true
}

func (T *AuthenticationSASLContinue) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeAuthentication)
	packet = packet.AppendInt32(AuthenticationModeSASLContinue)
	return packet.AppendBytes(*T)
}

type AuthenticationSASLFinal []byte

func (T *AuthenticationSASLFinal) ReadFromPacket(packet fed.Packet) bool {
	if packet.Type() != TypeAuthentication {
		return false
	}
	p := packet.Reader()
	mode, ok := p.ReadInt32()
	if !ok || mode != AuthenticationModeSASLFinal {
		return false
	}
	*T = append((*T)[:0], p.Remaining()...)
	return true
}

func (T *AuthenticationSASLFinal) IntoPacket(packet fed.Packet) fed.Packet {
	packet = packet.Reset(TypeAuthentication)
	packet = packet.AppendInt32(AuthenticationModeSASLFinal)
	return packet.AppendBytes(*T)
}
