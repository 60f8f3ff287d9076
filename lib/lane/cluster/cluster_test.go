package cluster

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/lane/pool"
	"github.com/pglane/pglane/lib/lane/pool/poolers/fifo"
	"github.com/pglane/pglane/lib/lane/pool/spool"
	"github.com/pglane/pglane/lib/lane/router"
	"github.com/pglane/pglane/lib/lane/topology"
)

var errNodeDown = errors.New("connection refused")

// fakeProber reports whatever role the test configured per address.
type fakeProber struct {
	mu    sync.Mutex
	roles map[string]topology.Role
	down  map[string]bool
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		roles: make(map[string]topology.Role),
		down:  make(map[string]bool),
	}
}

func (T *fakeProber) set(address string, role topology.Role, down bool) {
	T.mu.Lock()
	defer T.mu.Unlock()
	T.roles[address] = role
	T.down[address] = down
}

func (T *fakeProber) Probe(_ context.Context, address string) (topology.Role, error) {
	T.mu.Lock()
	defer T.mu.Unlock()
	if T.down[address] {
		return topology.RoleUnknown, errNodeDown
	}
	return T.roles[address], nil
}

var _ topology.Prober = (*fakeProber)(nil)

// pipeDialer hands out one side of a net.Pipe, no handshake.
type pipeDialer struct {
	mu    sync.Mutex
	peers []net.Conn
}

func (T *pipeDialer) Dial() (*fed.Conn, error) {
	client, server := net.Pipe()
	T.mu.Lock()
	T.peers = append(T.peers, server)
	T.mu.Unlock()
	return fed.NewConn(client), nil
}

func (T *pipeDialer) Cancel(_ fed.BackendKey) {}

func (T *pipeDialer) Close() {
	T.mu.Lock()
	defer T.mu.Unlock()
	for _, peer := range T.peers {
		_ = peer.Close()
	}
}

var _ pool.Dialer = (*pipeDialer)(nil)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func testCluster(t *testing.T, prober *fakeProber, nodes ...string) (*Cluster, context.CancelFunc) {
	t.Helper()

	dialer := new(pipeDialer)
	t.Cleanup(dialer.Close)

	monitor := topology.NewMonitor(topology.Config{
		Nodes:          nodes,
		Prober:         prober,
		Interval:       time.Millisecond,
		ProbeTimeout:   time.Second,
		SuspectAfter:   1,
		UnhealthyAfter: 3,
		RecoverAfter:   2,
	})

	c := NewCluster(Config{
		Monitor: monitor,
		Router:  router.NewRouter(router.Config{}),
		PoolConfig: func(string) spool.Config {
			return spool.Config{
				PoolerFactory:  fifo.Factory{},
				Dialer:         dialer,
				MaxConnections: 2,
				AcquireTimeout: 100 * time.Millisecond,
			}
		},
		GracePeriod: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		c.Close()
	})
	return c, cancel
}

func TestCluster_RoutesReadsAndWrites(t *testing.T) {
	prober := newFakeProber()
	prober.set("a:5432", topology.RolePrimary, false)
	prober.set("b:5432", topology.RoleReplica, false)

	c, _ := testCluster(t, prober, "a:5432", "b:5432")

	waitFor(t, "primary confirmation", func() bool {
		primary, _, ok := c.Primary()
		return ok && primary == "a:5432"
	})
	waitFor(t, "replica discovery", func() bool {
		return len(c.Latest().HealthyReplicas()) == 1
	})

	client := uuid.New()

	server, decision, err := c.AcquireWrite(client)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Address != "a:5432" {
		t.Errorf("expected write on a:5432 but got %s", decision.Address)
	}
	c.Release(decision, server)

	server, decision, err = c.AcquireRead(client)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Address != "b:5432" {
		t.Errorf("expected read on b:5432 but got %s", decision.Address)
	}
	c.Release(decision, server)
}

func TestCluster_FailoverPromotion(t *testing.T) {
	prober := newFakeProber()
	prober.set("a:5432", topology.RolePrimary, false)
	prober.set("b:5432", topology.RoleReplica, false)

	c, _ := testCluster(t, prober, "a:5432", "b:5432")

	waitFor(t, "primary confirmation", func() bool {
		primary, _, ok := c.Primary()
		return ok && primary == "a:5432"
	})

	epochBefore := c.Latest().Epoch

	// the primary dies
	prober.set("a:5432", topology.RoleUnknown, true)

	waitFor(t, "primary loss", func() bool {
		_, _, ok := c.Primary()
		return !ok
	})

	// writes fail fast while nobody is promoted
	if _, _, err := c.AcquireWrite(uuid.New()); err == nil {
		t.Error("expected writes to fail without a primary")
	}

	// reads still work against the replica
	server, decision, err := c.AcquireRead(uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if decision.Address != "b:5432" {
		t.Errorf("expected read on b:5432 but got %s", decision.Address)
	}
	c.Release(decision, server)

	// the replica is promoted
	prober.set("b:5432", topology.RolePrimary, false)

	waitFor(t, "promotion", func() bool {
		primary, _, ok := c.Primary()
		return ok && primary == "b:5432"
	})

	server, decision, err = c.AcquireWrite(uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if decision.Address != "b:5432" {
		t.Errorf("expected write on b:5432 but got %s", decision.Address)
	}
	if decision.Epoch <= epochBefore {
		t.Errorf("expected the epoch to advance past %d but got %d", epochBefore, decision.Epoch)
	}
	c.Release(decision, server)
}
