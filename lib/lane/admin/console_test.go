package admin

import (
	"net"
	"testing"
	"time"

	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/fed/packets"
	"github.com/pglane/pglane/lib/lane/topology"
)

type fakeSource struct {
	lanes []LaneStatus
	snap  *topology.Snapshot
}

func (T *fakeSource) Lanes() []LaneStatus {
	return T.lanes
}

func (T *fakeSource) Topology() *topology.Snapshot {
	return T.snap
}

func (T *fakeSource) Primary() (string, uint64, bool) {
	return "pg1:5432", T.snap.Epoch, true
}

var _ Source = (*fakeSource)(nil)

func testSource() *fakeSource {
	return &fakeSource{
		lanes: []LaneStatus{
			{
				User:     "app",
				Database: "appdb",
				Mode:     "transaction",
				Pools: []PoolStatus{
					{Address: "pg1:5432"},
					{Address: "pg2:5432"},
				},
			},
		},
		snap: &topology.Snapshot{
			Epoch: 7,
			Taken: time.Now(),
			Nodes: map[string]topology.Node{
				"pg1:5432": {Address: "pg1:5432", Role: topology.RolePrimary, Health: topology.HealthHealthy},
				"pg2:5432": {Address: "pg2:5432", Role: topology.RoleReplica, Health: topology.HealthHealthy},
			},
		},
	}
}

// exchange runs one SHOW command against the console and collects response
// packet types until ReadyForQuery.
func exchange(t *testing.T, query string) [][]string {
	t.Helper()

	clientNet, serverNet := net.Pipe()
	client := fed.NewConn(clientNet)
	server := fed.NewConn(serverNet)

	done := make(chan error, 1)
	go func() {
		done <- Serve(server, testSource())
	}()

	var packet fed.Packet
	var err error

	// initial ReadyForQuery
	packet, err = client.ReadPacket(true, packet)
	if err != nil {
		t.Fatal(err)
	}
	if packet.Type() != packets.TypeReadyForQuery {
		t.Fatalf("expected ReadyForQuery but got %c", packet.Type())
	}

	q := packets.Query(query)
	packet = q.IntoPacket(packet)
	if err = client.WritePacket(packet); err != nil {
		t.Fatal(err)
	}

	var rows [][]string
	for {
		packet, err = client.ReadPacket(true, packet)
		if err != nil {
			t.Fatal(err)
		}
		switch packet.Type() {
		case packets.TypeRowDescription, packets.TypeCommandComplete:
		case packets.TypeDataRow:
			var row packets.DataRow
			if !row.ReadFromPacket(packet) {
				t.Fatal("bad DataRow")
			}
			var values []string
			for _, value := range row.Values {
				values = append(values, string(value))
			}
			rows = append(rows, values)
		case packets.TypeErrorResponse:
			t.Fatal("unexpected error response")
		case packets.TypeReadyForQuery:
			terminate := fed.NewPacket(packets.TypeTerminate, 0)
			if err = client.WritePacket(terminate); err != nil {
				t.Fatal(err)
			}
			_ = client.Flush()
			if err = <-done; err != nil {
				t.Fatal(err)
			}
			_ = client.Close()
			return rows
		default:
			t.Fatalf("unexpected packet %c", packet.Type())
		}
	}
}

func TestConsole_ShowPools(t *testing.T) {
	rows := exchange(t, "SHOW POOLS")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows but got %d", len(rows))
	}
	if rows[0][0] != "appdb" || rows[0][1] != "app" || rows[0][2] != "transaction" {
		t.Errorf("unexpected first row %v", rows[0])
	}
}

func TestConsole_ShowTopology(t *testing.T) {
	rows := exchange(t, "SHOW TOPOLOGY")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows but got %d", len(rows))
	}
	for _, row := range rows {
		if row[3] != "7" {
			t.Errorf("expected epoch 7 but got %q", row[3])
		}
		switch row[0] {
		case "pg1:5432":
			if row[1] != "primary" || row[4] != "yes" {
				t.Errorf("unexpected primary row %v", row)
			}
		case "pg2:5432":
			if row[1] != "replica" || row[4] != "" {
				t.Errorf("unexpected replica row %v", row)
			}
		default:
			t.Errorf("unexpected node %q", row[0])
		}
	}
}

func TestConsole_ShowVersion(t *testing.T) {
	rows := exchange(t, "show version;")
	if len(rows) != 1 || rows[0][0] != Version {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestConsole_UnknownCommand(t *testing.T) {
	clientNet, serverNet := net.Pipe()
	client := fed.NewConn(clientNet)
	server := fed.NewConn(serverNet)

	go func() {
		_ = Serve(server, testSource())
	}()
	defer func() {
		_ = client.Close()
	}()

	var packet fed.Packet
	var err error

	packet, err = client.ReadPacket(true, packet)
	if err != nil {
		t.Fatal(err)
	}

	q := packets.Query("DROP TABLE users")
	packet = q.IntoPacket(packet)
	if err = client.WritePacket(packet); err != nil {
		t.Fatal(err)
	}

	packet, err = client.ReadPacket(true, packet)
	if err != nil {
		t.Fatal(err)
	}
	if packet.Type() != packets.TypeErrorResponse {
		t.Fatalf("expected ErrorResponse but got %c", packet.Type())
	}

	packet, err = client.ReadPacket(true, packet)
	if err != nil {
		t.Fatal(err)
	}
	if packet.Type() != packets.TypeReadyForQuery {
		t.Fatalf("expected ReadyForQuery but got %c", packet.Type())
	}
}
