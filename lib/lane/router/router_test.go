package router

import (
	"testing"
	"time"

	"github.com/pglane/pglane/lib/lane/topology"
	"github.com/pglane/pglane/lib/perror"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		query string
		want  Classification
	}{
		{"SELECT 1", ClassRead},
		{"select * from users where id = $1", ClassRead},
		{"  \n\tSELECT now()", ClassRead},
		{"-- comment\nSELECT 1", ClassRead},
		{"/* multi\nline */ SELECT 1", ClassRead},
		{"/* nested /* comment */ */ SELECT 1", ClassRead},
		{"SHOW server_version", ClassRead},
		{"VALUES (1), (2)", ClassRead},
		{"TABLE users", ClassRead},
		{"WITH recent AS (SELECT * FROM orders) SELECT * FROM recent", ClassRead},
		{"SELECT 1;", ClassRead},

		{"INSERT INTO users VALUES (1)", ClassWrite},
		{"UPDATE users SET name = 'x'", ClassWrite},
		{"DELETE FROM users", ClassWrite},
		{"BEGIN", ClassWrite},
		{"COMMIT", ClassWrite},
		{"SET search_path = foo", ClassWrite},
		{"TRUNCATE users", ClassWrite},
		{"CREATE TABLE t (id int)", ClassWrite},
		{"SELECT * FROM users FOR UPDATE", ClassWrite},
		{"SELECT * FROM users FOR UPDATE;", ClassWrite},
		{"SELECT * FROM users FOR NO KEY UPDATE", ClassWrite},
		{"SELECT * FROM users FOR SHARE", ClassWrite},
		{"WITH moved AS (DELETE FROM a RETURNING *) SELECT * FROM moved", ClassWrite},
		{"SELECT 1; DELETE FROM users", ClassWrite},
		{"", ClassWrite},
		{"-- just a comment", ClassWrite},
	}

	for _, c := range cases {
		if got := Classify(c.query); got != c.want {
			t.Errorf("Classify(%q) = %v, want %v", c.query, got, c.want)
		}
	}
}

func testSnapshot(epoch uint64, nodes map[string]topology.Node) *topology.Snapshot {
	return &topology.Snapshot{
		Epoch: epoch,
		Taken: time.Now(),
		Nodes: nodes,
	}
}

func healthyCluster() *topology.Snapshot {
	return testSnapshot(1, map[string]topology.Node{
		"primary:5432":  {Address: "primary:5432", Role: topology.RolePrimary, Health: topology.HealthHealthy},
		"replica1:5432": {Address: "replica1:5432", Role: topology.RoleReplica, Health: topology.HealthHealthy},
		"replica2:5432": {Address: "replica2:5432", Role: topology.RoleReplica, Health: topology.HealthHealthy},
	})
}

func TestRouter_WritesToPrimary(t *testing.T) {
	r := NewRouter(Config{})
	snap := healthyCluster()

	for i := 0; i < 10; i++ {
		decision, err := r.Route(ClassWrite, snap)
		if err != nil {
			t.Fatal(err)
		}
		if decision.Address != "primary:5432" {
			t.Errorf("expected write to primary but got %s", decision.Address)
		}
		if decision.Epoch != snap.Epoch {
			t.Errorf("expected epoch %d but got %d", snap.Epoch, decision.Epoch)
		}
	}
}

func TestRouter_WeightedReads(t *testing.T) {
	r := NewRouter(Config{
		Weights: map[string]int{
			"replica1:5432": 3,
			"replica2:5432": 1,
		},
	})
	snap := healthyCluster()

	counts := make(map[string]int)
	for i := 0; i < 400; i++ {
		decision, err := r.Route(ClassRead, snap)
		if err != nil {
			t.Fatal(err)
		}
		counts[decision.Address]++
	}

	// 3:1 split over 400 reads, within 10%
	if got := counts["replica1:5432"]; got < 270 || got > 330 {
		t.Errorf("expected replica1 around 300 but got %d", got)
	}
	if got := counts["replica2:5432"]; got < 70 || got > 130 {
		t.Errorf("expected replica2 around 100 but got %d", got)
	}
	if counts["primary:5432"] != 0 {
		t.Errorf("expected no reads on primary but got %d", counts["primary:5432"])
	}
}

func TestRouter_SkipsUnhealthyReplica(t *testing.T) {
	r := NewRouter(Config{})
	snap := testSnapshot(1, map[string]topology.Node{
		"primary:5432":  {Address: "primary:5432", Role: topology.RolePrimary, Health: topology.HealthHealthy},
		"replica1:5432": {Address: "replica1:5432", Role: topology.RoleReplica, Health: topology.HealthUnhealthy},
		"replica2:5432": {Address: "replica2:5432", Role: topology.RoleReplica, Health: topology.HealthHealthy},
	})

	for i := 0; i < 10; i++ {
		decision, err := r.Route(ClassRead, snap)
		if err != nil {
			t.Fatal(err)
		}
		if decision.Address != "replica2:5432" {
			t.Errorf("expected reads on replica2 but got %s", decision.Address)
		}
	}
}

func TestRouter_ReadsFallBackToPrimary(t *testing.T) {
	r := NewRouter(Config{})
	snap := testSnapshot(1, map[string]topology.Node{
		"primary:5432": {Address: "primary:5432", Role: topology.RolePrimary, Health: topology.HealthHealthy},
	})

	decision, err := r.Route(ClassRead, snap)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Address != "primary:5432" {
		t.Errorf("expected read on primary but got %s", decision.Address)
	}
}

func TestRouter_NoPrimary(t *testing.T) {
	r := NewRouter(Config{})
	snap := testSnapshot(1, map[string]topology.Node{
		"primary:5432": {Address: "primary:5432", Role: topology.RolePrimary, Health: topology.HealthUnhealthy},
	})

	_, err := r.Route(ClassWrite, snap)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Code() != perror.CannotConnectNow {
		t.Errorf("expected SQLSTATE %s but got %s", perror.CannotConnectNow, err.Code())
	}
}

func TestRouter_StaleSnapshot(t *testing.T) {
	r := NewRouter(Config{MaxStaleness: time.Second})
	snap := healthyCluster()
	snap.Taken = time.Now().Add(-2 * time.Second)

	// reads fall back to the primary
	decision, err := r.Route(ClassRead, snap)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Address != "primary:5432" {
		t.Errorf("expected stale read on primary but got %s", decision.Address)
	}

	// writes fail outright
	_, err = r.Route(ClassWrite, snap)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Code() != perror.ConnectionFailure {
		t.Errorf("expected SQLSTATE %s but got %s", perror.ConnectionFailure, err.Code())
	}
}

func TestRouter_RebuildOnEpochChange(t *testing.T) {
	r := NewRouter(Config{})
	snap := healthyCluster()

	if _, err := r.Route(ClassRead, snap); err != nil {
		t.Fatal(err)
	}

	// replica1 drops out at the next epoch
	next := testSnapshot(2, map[string]topology.Node{
		"primary:5432":  {Address: "primary:5432", Role: topology.RolePrimary, Health: topology.HealthHealthy},
		"replica2:5432": {Address: "replica2:5432", Role: topology.RoleReplica, Health: topology.HealthHealthy},
	})
	for i := 0; i < 10; i++ {
		decision, err := r.Route(ClassRead, next)
		if err != nil {
			t.Fatal(err)
		}
		if decision.Address != "replica2:5432" {
			t.Errorf("expected reads on replica2 but got %s", decision.Address)
		}
	}
}
