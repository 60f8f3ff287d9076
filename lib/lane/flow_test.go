package lane

import (
	"testing"

	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/fed/packets"
	"github.com/pglane/pglane/lib/lane/router"
)

func TestSessionScoped(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"SET search_path = foo", true},
		{"set statement_timeout = '5s'", true},
		{"SET LOCAL statement_timeout = '5s'", false},
		{"PREPARE q AS SELECT 1", true},
		{"DEALLOCATE q", true},
		{"LISTEN events", true},
		{"UNLISTEN events", true},
		{"CREATE TEMP TABLE scratch (id int)", true},
		{"CREATE TEMPORARY TABLE scratch (id int)", true},
		{"CREATE TABLE durable (id int)", false},
		{"SELECT pg_advisory_lock(42)", true},
		{"SELECT pg_advisory_xact_lock(42)", false},
		{"SELECT 1", false},
		{"INSERT INTO t VALUES (1)", false},
		{"BEGIN", false},
	}

	for _, c := range cases {
		if got := sessionScoped(c.query); got != c.want {
			t.Errorf("sessionScoped(%q) = %v, want %v", c.query, got, c.want)
		}
	}
}

func TestClassifyPacket(t *testing.T) {
	q := packets.Query("SELECT 1")
	packet := q.IntoPacket(nil)
	if got := classifyPacket(packet); got != router.ClassRead {
		t.Errorf("expected simple select to classify as read but got %v", got)
	}

	q = packets.Query("UPDATE t SET x = 1")
	packet = q.IntoPacket(packet)
	if got := classifyPacket(packet); got != router.ClassWrite {
		t.Errorf("expected update to classify as write but got %v", got)
	}

	// extended protocol always goes to the primary
	parse := fed.NewPacket(packets.TypeParse, 0)
	if got := classifyPacket(parse); got != router.ClassWrite {
		t.Errorf("expected parse to classify as write but got %v", got)
	}
}
