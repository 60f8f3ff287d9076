package admin

import (
	"strconv"
	"strings"

	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/fed/packets"
	"github.com/pglane/pglane/lib/lane/metrics"
	"github.com/pglane/pglane/lib/lane/topology"
	"github.com/pglane/pglane/lib/perror"
)

// Version is reported by SHOW VERSION and the version subcommand.
const Version = "pglane 0.1.0"

// PoolStatus is one node's connection pool within a lane.
type PoolStatus struct {
	Address string
	Waiters int
	Metrics metrics.Pool
}

// LaneStatus is a point in time reading of one lane.
type LaneStatus struct {
	User     string
	Database string
	Mode     string

	Clients metrics.Pool
	Pools   []PoolStatus
}

// Source is what the console reports on.
type Source interface {
	Lanes() []LaneStatus
	Topology() *topology.Snapshot
	Primary() (string, uint64, bool)
}

// Serve runs the admin console for one authenticated client. Only the
// simple query protocol is spoken here.
func Serve(conn *fed.Conn, source Source) error {
	var packet fed.Packet

	rfq := packets.ReadyForQuery('I')
	packet = rfq.IntoPacket(packet)
	if err := conn.WritePacket(packet); err != nil {
		return err
	}

	for {
		var err error
		packet, err = conn.ReadPacket(true, packet)
		if err != nil {
			return err
		}

		switch packet.Type() {
		case packets.TypeTerminate:
			return nil
		case packets.TypeQuery:
			var q packets.Query
			if !q.ReadFromPacket(packet) {
				return packets.ErrInvalidFormat
			}
			packet, err = serveQuery(conn, source, packet, string(q))
			if err != nil {
				return err
			}
		default:
			packet = respondError(conn, packet, perror.New(
				perror.ERROR,
				perror.FeatureNotSupported,
				"unsupported packet type",
			))
		}

		rfq = packets.ReadyForQuery('I')
		packet = rfq.IntoPacket(packet)
		if err = conn.WritePacket(packet); err != nil {
			return err
		}
		if err = conn.Flush(); err != nil {
			return err
		}
	}
}

func serveQuery(conn *fed.Conn, source Source, packet fed.Packet, query string) (fed.Packet, error) {
	fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if len(fields) == 2 && strings.EqualFold(fields[0], "SHOW") {
		switch strings.ToUpper(fields[1]) {
		case "POOLS":
			return showPools(conn, source, packet)
		case "STATS":
			return showStats(conn, source, packet)
		case "SERVERS":
			return showServers(conn, source, packet)
		case "CLIENTS":
			return showClients(conn, source, packet)
		case "TOPOLOGY":
			return showTopology(conn, source, packet)
		case "VERSION":
			return writeRows(conn, packet, []string{"version"}, [][]string{{Version}})
		}
	}

	if len(fields) == 1 {
		switch strings.ToUpper(fields[0]) {
		// accepted for pgbouncer compatibility, servers are managed by the
		// topology monitor instead
		case "PAUSE", "RESUME", "RELOAD", "SHUTDOWN":
			complete := packets.CommandComplete(strings.ToUpper(fields[0]))
			packet = complete.IntoPacket(packet)
			return packet, conn.WritePacket(packet)
		}
	}

	return respondError(conn, packet, perror.New(
		perror.ERROR,
		perror.FeatureNotSupported,
		"unrecognized command",
		perror.ExtraField{
			Type:  perror.Hint,
			Value: "try SHOW POOLS, SHOW STATS, SHOW SERVERS, SHOW CLIENTS, SHOW TOPOLOGY or SHOW VERSION",
		},
	)), nil
}

func respondError(conn *fed.Conn, packet fed.Packet, err perror.Error) fed.Packet {
	resp := packets.ErrorResponse{
		Error: err,
	}
	packet = resp.IntoPacket(packet)
	_ = conn.WritePacket(packet)
	return packet
}

func writeRows(conn *fed.Conn, packet fed.Packet, columns []string, rows [][]string) (fed.Packet, error) {
	desc := packets.RowDescription{
		Fields: make([]packets.RowField, 0, len(columns)),
	}
	for _, column := range columns {
		desc.Fields = append(desc.Fields, packets.RowField{
			Name:         column,
			TypeOID:      25, // text
			TypeSize:     -1,
			TypeModifier: -1,
		})
	}
	packet = desc.IntoPacket(packet)
	if err := conn.WritePacket(packet); err != nil {
		return packet, err
	}

	for _, row := range rows {
		data := packets.DataRow{
			Values: make([][]byte, 0, len(row)),
		}
		for _, value := range row {
			data.Values = append(data.Values, []byte(value))
		}
		packet = data.IntoPacket(packet)
		if err := conn.WritePacket(packet); err != nil {
			return packet, err
		}
	}

	complete := packets.CommandComplete("SHOW " + strconv.Itoa(len(rows)))
	packet = complete.IntoPacket(packet)
	return packet, conn.WritePacket(packet)
}

func showPools(conn *fed.Conn, source Source, packet fed.Packet) (fed.Packet, error) {
	columns := []string{"database", "user", "mode", "address", "cl_active", "cl_waiting", "sv_active", "sv_idle", "sv_total", "waiters"}
	var rows [][]string

	for _, lane := range source.Lanes() {
		clients := lane.Clients.ClientsByState()
		for _, pool := range lane.Pools {
			servers := pool.Metrics.ServersByState()
			rows = append(rows, []string{
				lane.Database,
				lane.User,
				lane.Mode,
				pool.Address,
				strconv.Itoa(clients[metrics.ConnStateActive]),
				strconv.Itoa(clients[metrics.ConnStateAwaitingServer]),
				strconv.Itoa(servers[metrics.ConnStateActive]),
				strconv.Itoa(servers[metrics.ConnStateIdle]),
				strconv.Itoa(len(pool.Metrics.Servers)),
				strconv.Itoa(pool.Waiters),
			})
		}
	}

	return writeRows(conn, packet, columns, rows)
}

func showStats(conn *fed.Conn, source Source, packet fed.Packet) (fed.Packet, error) {
	columns := []string{"database", "user", "address", "transactions", "queries"}
	var rows [][]string

	for _, lane := range source.Lanes() {
		for _, pool := range lane.Pools {
			rows = append(rows, []string{
				lane.Database,
				lane.User,
				pool.Address,
				strconv.Itoa(pool.Metrics.TransactionCount()),
				strconv.Itoa(pool.Metrics.QueryCount()),
			})
		}
	}

	return writeRows(conn, packet, columns, rows)
}

func showServers(conn *fed.Conn, source Source, packet fed.Packet) (fed.Packet, error) {
	columns := []string{"database", "user", "address", "state", "since"}
	var rows [][]string

	for _, lane := range source.Lanes() {
		for _, pool := range lane.Pools {
			for _, server := range pool.Metrics.Servers {
				rows = append(rows, []string{
					lane.Database,
					lane.User,
					pool.Address,
					server.State.String(),
					server.Since.Format("2006-01-02 15:04:05"),
				})
			}
		}
	}

	return writeRows(conn, packet, columns, rows)
}

func showClients(conn *fed.Conn, source Source, packet fed.Packet) (fed.Packet, error) {
	columns := []string{"database", "user", "state", "since", "transactions", "queries"}
	var rows [][]string

	for _, lane := range source.Lanes() {
		for _, client := range lane.Clients.Clients {
			rows = append(rows, []string{
				lane.Database,
				lane.User,
				client.State.String(),
				client.Since.Format("2006-01-02 15:04:05"),
				strconv.Itoa(client.TransactionCount),
				strconv.Itoa(client.QueryCount),
			})
		}
	}

	return writeRows(conn, packet, columns, rows)
}

func showTopology(conn *fed.Conn, source Source, packet fed.Packet) (fed.Packet, error) {
	columns := []string{"address", "role", "health", "epoch", "confirmed_primary"}
	var rows [][]string

	snap := source.Topology()
	primary, _, _ := source.Primary()

	for _, node := range snap.Nodes {
		confirmed := ""
		if node.Address == primary {
			confirmed = "yes"
		}
		rows = append(rows, []string{
			node.Address,
			node.Role.String(),
			node.Health.String(),
			strconv.FormatUint(snap.Epoch, 10),
			confirmed,
		})
	}

	return writeRows(conn, packet, columns, rows)
}
