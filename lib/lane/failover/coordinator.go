package failover

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pglane/pglane/lib/instrumentation/prom"
	"github.com/pglane/pglane/lib/lane/router"
	"github.com/pglane/pglane/lib/lane/topology"
	"github.com/pglane/pglane/lib/perror"
)

// Pools is the set of per-node connection pools the coordinator drains and
// redirects around.
type Pools interface {
	// Drain stops handing out connections for address, waiting up to grace
	// for in-flight work before closing stragglers.
	Drain(address string, grace time.Duration)
}

type Config struct {
	Monitor *topology.Monitor
	Pools   Pools

	// GracePeriod is how long a demoted primary's in-flight transactions
	// get to finish before their connections are closed.
	GracePeriod time.Duration

	Logger *zap.Logger
}

// Coordinator tracks which node is the confirmed primary. When the primary
// moves it drains the old primary's pool and fences off routing decisions
// made against earlier epochs.
type Coordinator struct {
	config Config

	mu      sync.Mutex
	primary string
	epoch   uint64
	seen    uint64
}

func NewCoordinator(config Config) *Coordinator {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	T := &Coordinator{
		config: config,
	}
	if config.Monitor != nil {
		T.Apply(config.Monitor.Latest())
	}
	return T
}

// Run applies topology updates until ctx is done.
func (T *Coordinator) Run(ctx context.Context) {
	updates := T.config.Monitor.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			T.Apply(T.config.Monitor.Latest())
		}
	}
}

// Apply folds one snapshot into the coordinator. Snapshots with an epoch at
// or below the last applied one are ignored so the confirmed primary can
// never move backwards.
func (T *Coordinator) Apply(snap *topology.Snapshot) {
	T.mu.Lock()

	if snap.Epoch < T.seen {
		T.mu.Unlock()
		return
	}
	T.seen = snap.Epoch

	newPrimary, _ := snap.Primary()
	old := T.primary
	if newPrimary == old {
		T.mu.Unlock()
		return
	}

	T.primary = newPrimary
	T.epoch = snap.Epoch
	T.mu.Unlock()

	if old != "" {
		prom.Topology.Failovers(prom.ClusterLabels{}).Inc()
		T.config.Logger.Warn("primary demoted",
			zap.String("old", old),
			zap.String("new", newPrimary),
			zap.Uint64("epoch", snap.Epoch),
		)
		if T.config.Pools != nil {
			go T.config.Pools.Drain(old, T.config.GracePeriod)
		}
	} else if newPrimary != "" {
		T.config.Logger.Info("primary confirmed",
			zap.String("address", newPrimary),
			zap.Uint64("epoch", snap.Epoch),
		)
	}
}

// Primary returns the confirmed primary and the epoch it was confirmed at.
func (T *Coordinator) Primary() (string, uint64, bool) {
	T.mu.Lock()
	defer T.mu.Unlock()
	return T.primary, T.epoch, T.primary != ""
}

// ConfirmWrite checks a routing decision against the confirmed primary.
// Decisions derived from an epoch older than the confirmation are rejected
// even if their snapshot still showed the old primary healthy.
func (T *Coordinator) ConfirmWrite(decision router.Decision) perror.Error {
	T.mu.Lock()
	defer T.mu.Unlock()

	if T.primary == "" {
		return router.NoPrimaryAvailable()
	}
	if decision.Epoch < T.epoch || decision.Address != T.primary {
		return perror.New(
			perror.ERROR,
			perror.ConnectionFailure,
			"routing decision predates the current primary",
		)
	}
	return nil
}
