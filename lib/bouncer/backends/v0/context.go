package backends

import (
	"github.com/pglane/pglane/lib/fed"
)

// serverToPeerBinding relays packets between a server connection and an
// optional peer (the client). A dead peer never aborts the exchange: the
// server must always be walked back to ReadyForQuery so it can be reused,
// so peer failures are recorded and the peer dropped.
type serverToPeerBinding struct {
	Server    *fed.Conn
	Peer      *fed.Conn
	Packet    fed.Packet
	PeerError error
	TxState   byte
}

func (T *serverToPeerBinding) ServerRead() error {
	var err error
	T.Packet, err = T.Server.ReadPacket(true, T.Packet)
	return err
}

func (T *serverToPeerBinding) ServerWrite() error {
	return T.Server.WritePacket(T.Packet)
}

func (T *serverToPeerBinding) PeerOK() bool {
	return T.Peer != nil && T.PeerError == nil
}

func (T *serverToPeerBinding) PeerFail(err error) {
	T.Peer = nil
	T.PeerError = err
}

func (T *serverToPeerBinding) PeerRead() bool {
	if !T.PeerOK() {
		return false
	}
	var err error
	T.Packet, err = T.Peer.ReadPacket(true, T.Packet)
	if err != nil {
		T.PeerFail(err)
		return false
	}
	return true
}

func (T *serverToPeerBinding) PeerWrite() {
	if !T.PeerOK() {
		return
	}
	if err := T.Peer.WritePacket(T.Packet); err != nil {
		T.PeerFail(err)
	}
}
