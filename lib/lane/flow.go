package lane

import (
	"strings"

	"github.com/google/uuid"

	backends "github.com/pglane/pglane/lib/bouncer/backends/v0"
	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/fed/packets"
	"github.com/pglane/pglane/lib/lane/metrics"
	"github.com/pglane/pglane/lib/lane/pool/spool"
	"github.com/pglane/pglane/lib/lane/router"
	"github.com/pglane/pglane/lib/util/slices"
	"github.com/pglane/pglane/lib/util/strutil"
)

// pair marks client and server busy with each other and brings the client's
// startup parameters in sync with the server.
func pair(tracked []strutil.CIString, client *Client, server *spool.Server, packet fed.Packet) (fed.Packet, error, error) {
	client.SetState(metrics.ConnStateActive, server.ID)
	server.SetState(metrics.ConnStateActive, client.ID)

	return syncInitialParameters(tracked, client, server, packet)
}

func syncInitialParameters(tracked []strutil.CIString, client *Client, server *spool.Server, packet fed.Packet) (fed.Packet, error, error) {
	clientParams := client.Conn.InitialParameters
	serverParams := server.Conn.InitialParameters

	for key, value := range clientParams {
		setServer := slices.Contains(tracked, key)

		// skip already matching params
		if serverParams[key] == value {
			setServer = false
		} else if !setServer {
			value = serverParams[key]
		}

		ps := packets.ParameterStatus{
			Key:   key.String(),
			Value: value,
		}
		packet = ps.IntoPacket(packet)
		if clientErr := client.Conn.WritePacket(packet); clientErr != nil {
			return packet, clientErr, nil
		}

		if !setServer {
			continue
		}

		if serverErr, _ := backends.SetParameter(server.Conn, nil, key, value); serverErr != nil {
			return packet, nil, serverErr
		}
	}

	for key, value := range serverParams {
		if _, ok := clientParams[key]; ok {
			continue
		}

		// the server reset query will restore these, only the client needs
		// to hear about them
		ps := packets.ParameterStatus{
			Key:   key.String(),
			Value: value,
		}
		packet = ps.IntoPacket(packet)
		if clientErr := client.Conn.WritePacket(packet); clientErr != nil {
			return packet, clientErr, nil
		}
	}

	return packet, nil, nil
}

func unpair(client *Client, server *spool.Server) {
	client.TransactionComplete()
	server.TransactionComplete()
	client.SetState(metrics.ConnStateIdle, uuid.Nil)
}

// sessionScoped reports whether a simple query establishes state that would
// silently vanish when the server is released after the transaction or
// statement.
func sessionScoped(query string) bool {
	keyword, rest := router.FirstKeyword(query)

	switch keyword {
	case "SET":
		// SET LOCAL is transaction scoped and safe
		next, _ := router.FirstKeyword(rest)
		return next != "LOCAL"
	case "PREPARE", "DEALLOCATE", "LISTEN", "UNLISTEN":
		return true
	case "CREATE":
		next, _ := router.FirstKeyword(rest)
		return next == "TEMP" || next == "TEMPORARY"
	case "SELECT":
		// advisory locks without xact scope outlive the statement
		upper := strings.ToUpper(rest)
		return strings.Contains(upper, "PG_ADVISORY_LOCK") && !strings.Contains(upper, "PG_ADVISORY_XACT_LOCK")
	default:
		return false
	}
}

// classifyPacket maps the first packet of a transaction to a routing class.
// Anything that is not a provably read only simple query goes to the
// primary.
func classifyPacket(packet fed.Packet) router.Classification {
	if packet.Type() != packets.TypeQuery {
		return router.ClassWrite
	}

	var q packets.Query
	if !q.ReadFromPacket(packet) {
		return router.ClassWrite
	}
	return router.Classify(string(q))
}
