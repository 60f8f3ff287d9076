package topology

import (
	"errors"
	"testing"
)

var errProbe = errors.New("connection refused")

func testMonitor(nodes ...string) *Monitor {
	return NewMonitor(Config{
		Nodes:          nodes,
		SuspectAfter:   1,
		UnhealthyAfter: 3,
		RecoverAfter:   2,
	})
}

func TestMonitor_InitialUnknown(t *testing.T) {
	m := testMonitor("a:5432", "b:5432")

	snap := m.Latest()
	if snap.Epoch != 0 {
		t.Errorf("expected epoch 0 but got %d", snap.Epoch)
	}
	if _, ok := snap.Primary(); ok {
		t.Error("expected no primary before any probe")
	}
	for addr, node := range snap.Nodes {
		if node.Health != HealthUnknown {
			t.Errorf("expected %s unknown but got %v", addr, node.Health)
		}
	}
}

func TestMonitor_Discover(t *testing.T) {
	m := testMonitor("a:5432", "b:5432")

	m.Observe("a:5432", RolePrimary, nil)
	m.Observe("b:5432", RoleReplica, nil)

	snap := m.Latest()
	if snap.Epoch != 2 {
		t.Errorf("expected epoch 2 but got %d", snap.Epoch)
	}
	primary, ok := snap.Primary()
	if !ok || primary != "a:5432" {
		t.Errorf("expected primary a:5432 but got %q", primary)
	}
	replicas := snap.HealthyReplicas()
	if len(replicas) != 1 || replicas[0] != "b:5432" {
		t.Errorf("unexpected replicas %v", replicas)
	}
}

func TestMonitor_UnhealthyAfterMisses(t *testing.T) {
	m := testMonitor("a:5432")
	m.Observe("a:5432", RolePrimary, nil)

	m.Observe("a:5432", RoleUnknown, errProbe)
	if node := m.Latest().Nodes["a:5432"]; node.Health != HealthSuspect {
		t.Errorf("expected suspect after 1 miss but got %v", node.Health)
	}

	m.Observe("a:5432", RoleUnknown, errProbe)
	if node := m.Latest().Nodes["a:5432"]; node.Health != HealthSuspect {
		t.Errorf("expected still suspect after 2 misses but got %v", node.Health)
	}

	m.Observe("a:5432", RoleUnknown, errProbe)
	if node := m.Latest().Nodes["a:5432"]; node.Health != HealthUnhealthy {
		t.Errorf("expected unhealthy after 3 misses but got %v", node.Health)
	}

	if _, ok := m.Latest().Primary(); ok {
		t.Error("expected no primary while unhealthy")
	}
}

func TestMonitor_RecoverHysteresis(t *testing.T) {
	m := testMonitor("a:5432")
	for i := 0; i < 3; i++ {
		m.Observe("a:5432", RoleUnknown, errProbe)
	}
	if node := m.Latest().Nodes["a:5432"]; node.Health != HealthUnhealthy {
		t.Fatalf("expected unhealthy but got %v", node.Health)
	}

	// one good probe is not enough to trust the node again
	m.Observe("a:5432", RolePrimary, nil)
	if node := m.Latest().Nodes["a:5432"]; node.Health != HealthUnhealthy {
		t.Errorf("expected still unhealthy after 1 success but got %v", node.Health)
	}

	m.Observe("a:5432", RolePrimary, nil)
	if node := m.Latest().Nodes["a:5432"]; node.Health != HealthHealthy {
		t.Errorf("expected healthy after 2 successes but got %v", node.Health)
	}
}

func TestMonitor_EpochOnlyOnChange(t *testing.T) {
	m := testMonitor("a:5432")
	m.Observe("a:5432", RolePrimary, nil)

	epoch := m.Latest().Epoch
	for i := 0; i < 5; i++ {
		m.Observe("a:5432", RolePrimary, nil)
	}
	if got := m.Latest().Epoch; got != epoch {
		t.Errorf("expected epoch to stay %d but got %d", epoch, got)
	}

	m.Observe("a:5432", RoleReplica, nil)
	if got := m.Latest().Epoch; got != epoch+1 {
		t.Errorf("expected epoch %d after role change but got %d", epoch+1, got)
	}
}

func TestMonitor_Subscribe(t *testing.T) {
	m := testMonitor("a:5432")
	updates := m.Subscribe()

	m.Observe("a:5432", RolePrimary, nil)

	select {
	case <-updates:
	default:
		t.Error("expected a notification after a change")
	}

	m.Observe("a:5432", RolePrimary, nil)
	select {
	case <-updates:
		t.Error("expected no notification without a change")
	default:
	}
}
