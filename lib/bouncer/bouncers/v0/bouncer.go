package bouncers

import (
	backends "github.com/pglane/pglane/lib/bouncer/backends/v0"
	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/fed/packets"
	"github.com/pglane/pglane/lib/perror"
)

func clientFail(packet fed.Packet, client *fed.Conn, err perror.Error) fed.Packet {
	resp := packets.ErrorResponse{
		Error: err,
	}
	packet = resp.IntoPacket(packet)
	_ = client.WritePacket(packet)
	_ = client.Flush()
	return packet
}

// Bounce relays one client transaction onto server. Server trouble is
// reported to the client before being returned.
func Bounce(client, server *fed.Conn, initialPacket fed.Packet) (packet fed.Packet, clientError, serverError error) {
	packet, serverError, clientError = backends.Transaction(server, client, initialPacket)

	if clientError == nil && serverError != nil {
		packet = clientFail(packet, client, perror.Wrap(serverError))
	}

	return
}

// BounceStatement relays a single statement onto server, rejecting
// transaction blocks.
func BounceStatement(client, server *fed.Conn, initialPacket fed.Packet) (packet fed.Packet, clientError, serverError error) {
	var openTransaction bool
	packet, openTransaction, serverError, clientError = backends.Statement(server, client, initialPacket)

	if clientError == nil {
		if serverError != nil {
			packet = clientFail(packet, client, perror.Wrap(serverError))
		} else if openTransaction {
			// the server was already rolled back; the client is out of sync
			// with what it thinks its transaction state is, so hang up
			violation := perror.New(
				perror.FATAL,
				perror.FeatureNotSupported,
				"transaction blocks are not allowed in statement pooling mode",
			)
			packet = clientFail(packet, client, violation)
			clientError = perror.ToError(violation)
		}
	}

	return
}
