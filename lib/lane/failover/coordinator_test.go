package failover

import (
	"sync"
	"testing"
	"time"

	"github.com/pglane/pglane/lib/lane/router"
	"github.com/pglane/pglane/lib/lane/topology"
)

type drainRecorder struct {
	mu      sync.Mutex
	drained []string
}

func (T *drainRecorder) Drain(address string, _ time.Duration) {
	T.mu.Lock()
	defer T.mu.Unlock()
	T.drained = append(T.drained, address)
}

func (T *drainRecorder) Drained() []string {
	T.mu.Lock()
	defer T.mu.Unlock()
	return append([]string(nil), T.drained...)
}

func snapshot(epoch uint64, nodes map[string]topology.Node) *topology.Snapshot {
	return &topology.Snapshot{
		Epoch: epoch,
		Taken: time.Now(),
		Nodes: nodes,
	}
}

func primaryAt(epoch uint64, addr string) *topology.Snapshot {
	return snapshot(epoch, map[string]topology.Node{
		addr: {Address: addr, Role: topology.RolePrimary, Health: topology.HealthHealthy},
	})
}

func waitForDrain(t *testing.T, pools *drainRecorder, want int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		drained := pools.Drained()
		if len(drained) >= want {
			return drained
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d drains, got %v", want, drained)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCoordinator_ConfirmPrimary(t *testing.T) {
	c := NewCoordinator(Config{})

	if _, _, ok := c.Primary(); ok {
		t.Error("expected no primary initially")
	}

	c.Apply(primaryAt(1, "a:5432"))

	primary, epoch, ok := c.Primary()
	if !ok || primary != "a:5432" || epoch != 1 {
		t.Errorf("expected a:5432 at epoch 1 but got %s at %d", primary, epoch)
	}
}

func TestCoordinator_DrainsOldPrimary(t *testing.T) {
	pools := new(drainRecorder)
	c := NewCoordinator(Config{Pools: pools})

	c.Apply(primaryAt(1, "a:5432"))
	c.Apply(primaryAt(2, "b:5432"))

	drained := waitForDrain(t, pools, 1)
	if drained[0] != "a:5432" {
		t.Errorf("expected a:5432 drained but got %v", drained)
	}

	primary, _, _ := c.Primary()
	if primary != "b:5432" {
		t.Errorf("expected new primary b:5432 but got %s", primary)
	}
}

func TestCoordinator_WritesFailWithoutPrimary(t *testing.T) {
	c := NewCoordinator(Config{})

	c.Apply(primaryAt(1, "a:5432"))

	// primary lost, nobody promoted yet
	c.Apply(snapshot(2, map[string]topology.Node{
		"a:5432": {Address: "a:5432", Role: topology.RolePrimary, Health: topology.HealthUnhealthy},
	}))

	if _, _, ok := c.Primary(); ok {
		t.Error("expected no confirmed primary")
	}

	err := c.ConfirmWrite(router.Decision{Address: "a:5432", Role: topology.RolePrimary, Epoch: 2})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestCoordinator_FencesStaleDecisions(t *testing.T) {
	c := NewCoordinator(Config{})

	c.Apply(primaryAt(1, "a:5432"))

	// a decision made before the failover
	stale := router.Decision{Address: "a:5432", Role: topology.RolePrimary, Epoch: 1}

	c.Apply(primaryAt(2, "b:5432"))

	if err := c.ConfirmWrite(stale); err == nil {
		t.Error("expected the stale decision to be rejected")
	}

	fresh := router.Decision{Address: "b:5432", Role: topology.RolePrimary, Epoch: 2}
	if err := c.ConfirmWrite(fresh); err != nil {
		t.Errorf("expected the fresh decision to pass but got %v", err)
	}
}

func TestCoordinator_IgnoresEpochRollback(t *testing.T) {
	c := NewCoordinator(Config{})

	c.Apply(primaryAt(1, "a:5432"))
	c.Apply(primaryAt(3, "b:5432"))

	// a late, out of order snapshot still naming the old primary
	c.Apply(primaryAt(2, "a:5432"))

	primary, epoch, _ := c.Primary()
	if primary != "b:5432" || epoch != 3 {
		t.Errorf("expected b:5432 at epoch 3 but got %s at %d", primary, epoch)
	}

	err := c.ConfirmWrite(router.Decision{Address: "a:5432", Role: topology.RolePrimary, Epoch: 2})
	if err == nil {
		t.Error("expected the old primary to stay fenced off")
	}
}
