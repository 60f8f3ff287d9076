package backends

import (
	"github.com/pglane/pglane/lib/fed"
)

// Cancel sends a CancelRequest on a fresh connection. The server closes the
// connection without replying, per protocol.
func Cancel(server *fed.Conn, key fed.BackendKey) error {
	packet := fed.NewPacket(0, 12)
	packet = packet.AppendUint16(1234)
	packet = packet.AppendUint16(5678)
	packet = packet.AppendInt32(key.ProcessID)
	packet = packet.AppendInt32(key.SecretKey)
	if err := server.WritePacket(packet); err != nil {
		return err
	}
	return server.Flush()
}
