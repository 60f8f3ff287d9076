package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pglane/pglane/lib/lane/failover"
	"github.com/pglane/pglane/lib/lane/pool/spool"
	"github.com/pglane/pglane/lib/lane/router"
	"github.com/pglane/pglane/lib/lane/topology"
	"github.com/pglane/pglane/lib/perror"
)

func PoolExhausted() perror.Error {
	return perror.New(
		perror.ERROR,
		perror.TooManyConnections,
		"timed out waiting for a server connection, try again later",
	)
}

func BackendUnreachable(err error) perror.Error {
	return perror.New(
		perror.ERROR,
		perror.SqlclientUnableToEstablishSqlconnection,
		"backend unreachable: "+err.Error(),
	)
}

type Config struct {
	Monitor *topology.Monitor
	Router  *router.Router

	// PoolConfig builds the connection pool config for one node. The
	// returned config must carry a dialer bound to that address.
	PoolConfig func(address string) spool.Config

	// GracePeriod is handed to the failover coordinator for draining a
	// demoted primary.
	GracePeriod time.Duration

	Logger *zap.Logger
}

// Cluster owns one connection pool per backend node and routes acquisitions
// between them: writes to the confirmed primary, reads across healthy
// replicas.
type Cluster struct {
	config      Config
	coordinator *failover.Coordinator

	mu    sync.RWMutex
	pools map[string]*spool.Pool
}

func NewCluster(config Config) *Cluster {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	T := &Cluster{
		config: config,
		pools:  make(map[string]*spool.Pool),
	}
	T.coordinator = failover.NewCoordinator(failover.Config{
		Monitor:     config.Monitor,
		Pools:       T,
		GracePeriod: config.GracePeriod,
		Logger:      config.Logger,
	})
	return T
}

// Run drives the topology monitor and the failover coordinator until ctx is
// done.
func (T *Cluster) Run(ctx context.Context) {
	go T.coordinator.Run(ctx)
	T.config.Monitor.Run(ctx)
}

func (T *Cluster) pool(address string) *spool.Pool {
	T.mu.RLock()
	p, ok := T.pools[address]
	T.mu.RUnlock()
	if ok {
		return p
	}

	T.mu.Lock()
	defer T.mu.Unlock()
	if p, ok = T.pools[address]; ok {
		return p
	}
	p = spool.NewPool(T.config.PoolConfig(address))
	T.pools[address] = p
	return p
}

// AcquireRead returns a server on a healthy replica, falling back to the
// primary when no replica can serve.
func (T *Cluster) AcquireRead(client uuid.UUID) (*spool.Server, router.Decision, perror.Error) {
	return T.acquire(client, router.ClassRead)
}

// AcquireWrite returns a server on the confirmed primary. The routing
// decision is checked against the failover coordinator first so writes can
// never land on a demoted primary.
func (T *Cluster) AcquireWrite(client uuid.UUID) (*spool.Server, router.Decision, perror.Error) {
	return T.acquire(client, router.ClassWrite)
}

// Acquire routes by statement classification.
func (T *Cluster) Acquire(client uuid.UUID, class router.Classification) (*spool.Server, router.Decision, perror.Error) {
	return T.acquire(client, class)
}

func (T *Cluster) acquire(client uuid.UUID, class router.Classification) (*spool.Server, router.Decision, perror.Error) {
	// reads are idempotent to route, so one exhausted pool gets a second
	// chance on the next candidate. writes never retry.
	attempts := 1
	if class == router.ClassRead {
		attempts = 2
	}

	var decision router.Decision
	last := PoolExhausted()
	for i := 0; i < attempts; i++ {
		snap := T.config.Monitor.Latest()

		var err perror.Error
		decision, err = T.config.Router.Route(class, snap)
		if err != nil {
			return nil, decision, err
		}

		if class == router.ClassWrite {
			if err = T.coordinator.ConfirmWrite(decision); err != nil {
				return nil, decision, err
			}
		}

		p := T.pool(decision.Address)
		if server := p.Acquire(client); server != nil {
			return server, decision, nil
		}

		if dialErr := p.LastDialError(); dialErr != nil && p.ServerCount() == 0 {
			last = BackendUnreachable(dialErr)
		} else {
			last = PoolExhausted()
		}
	}
	return nil, decision, last
}

// Release hands a server back to the pool it came from.
func (T *Cluster) Release(decision router.Decision, server *spool.Server) {
	T.mu.RLock()
	p := T.pools[decision.Address]
	T.mu.RUnlock()
	if p != nil {
		p.Release(server)
	}
}

// Discard closes a broken server instead of returning it to its pool.
func (T *Cluster) Discard(decision router.Decision, server *spool.Server) {
	T.mu.RLock()
	p := T.pools[decision.Address]
	T.mu.RUnlock()
	if p != nil {
		p.RemoveServer(server)
	}
}

// Cancel forwards a query cancellation for a held server.
func (T *Cluster) Cancel(decision router.Decision, server *spool.Server) {
	T.mu.RLock()
	p := T.pools[decision.Address]
	T.mu.RUnlock()
	if p != nil {
		p.Cancel(server)
	}
}

// Drain empties one node's pool and forgets it. Implements the failover
// coordinator's pool set.
func (T *Cluster) Drain(address string, grace time.Duration) {
	T.mu.Lock()
	p := T.pools[address]
	delete(T.pools, address)
	T.mu.Unlock()

	if p == nil {
		return
	}

	T.config.Logger.Info("draining pool",
		zap.String("address", address),
		zap.Duration("grace", grace),
	)
	p.Drain(grace)
	p.Close()
}

// Primary returns the confirmed primary, if any.
func (T *Cluster) Primary() (string, uint64, bool) {
	return T.coordinator.Primary()
}

// Coordinator exposes the failover coordinator.
func (T *Cluster) Coordinator() *failover.Coordinator {
	return T.coordinator
}

// Latest returns the current topology snapshot.
func (T *Cluster) Latest() *topology.Snapshot {
	return T.config.Monitor.Latest()
}

// Pools returns the live pools keyed by address.
func (T *Cluster) Pools() map[string]*spool.Pool {
	T.mu.RLock()
	defer T.mu.RUnlock()

	pools := make(map[string]*spool.Pool, len(T.pools))
	for addr, p := range T.pools {
		pools[addr] = p
	}
	return pools
}

func (T *Cluster) Close() {
	T.mu.Lock()
	pools := T.pools
	T.pools = make(map[string]*spool.Pool)
	T.mu.Unlock()

	for _, p := range pools {
		p.Close()
	}
}
