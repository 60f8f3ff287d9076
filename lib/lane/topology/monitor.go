package topology

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pglane/pglane/lib/instrumentation/prom"
)

// Prober checks a single node: is it reachable, and is it a primary or a
// replica.
type Prober interface {
	Probe(ctx context.Context, address string) (Role, error)
}

type Config struct {
	Nodes []string

	Prober Prober

	// Interval is how often each node is probed.
	Interval time.Duration
	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration

	// SuspectAfter is how many consecutive missed probes mark a node
	// suspect, UnhealthyAfter how many mark it unhealthy.
	SuspectAfter   int
	UnhealthyAfter int
	// RecoverAfter is how many consecutive successful probes an unhealthy
	// node needs before it is healthy again.
	RecoverAfter int

	Logger *zap.Logger
}

type nodeState struct {
	role   Role
	health Health

	misses    int
	successes int
}

// Monitor probes the configured nodes and publishes immutable topology
// snapshots. Snapshot reads are lock free; updates are serialized.
type Monitor struct {
	config Config

	current atomic.Pointer[Snapshot]

	mu          sync.Mutex
	epoch       uint64
	nodes       map[string]*nodeState
	subscribers []chan struct{}
}

func NewMonitor(config Config) *Monitor {
	if config.Interval == 0 {
		config.Interval = 10 * time.Second
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	if config.SuspectAfter == 0 {
		config.SuspectAfter = 1
	}
	if config.UnhealthyAfter == 0 {
		config.UnhealthyAfter = 3
	}
	if config.RecoverAfter == 0 {
		config.RecoverAfter = 2
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	T := &Monitor{
		config: config,
		nodes:  make(map[string]*nodeState, len(config.Nodes)),
	}
	for _, addr := range config.Nodes {
		T.nodes[addr] = &nodeState{}
	}
	T.current.Store(T.snapshotLocked())
	return T
}

// Latest returns the current snapshot. The snapshot is immutable; callers
// may hold onto it.
func (T *Monitor) Latest() *Snapshot {
	return T.current.Load()
}

// Subscribe returns a channel that signals whenever a new epoch is
// published. Receivers read the snapshot with Latest.
func (T *Monitor) Subscribe() <-chan struct{} {
	T.mu.Lock()
	defer T.mu.Unlock()

	c := make(chan struct{}, 1)
	T.subscribers = append(T.subscribers, c)
	return c
}

// Observe feeds one probe result through the per-node state machine and
// publishes a new snapshot if the node's role or health changed.
func (T *Monitor) Observe(address string, role Role, err error) {
	T.mu.Lock()
	defer T.mu.Unlock()

	state, ok := T.nodes[address]
	if !ok {
		return
	}

	prev := *state

	if err != nil {
		state.successes = 0
		state.misses++

		switch {
		case state.misses >= T.config.UnhealthyAfter:
			state.health = HealthUnhealthy
		case state.misses >= T.config.SuspectAfter:
			if state.health == HealthHealthy || state.health == HealthUnknown {
				state.health = HealthSuspect
			}
		}
	} else {
		state.misses = 0
		state.successes++
		state.role = role

		switch state.health {
		case HealthUnknown, HealthSuspect:
			state.health = HealthHealthy
			state.successes = 0
		case HealthUnhealthy:
			if state.successes >= T.config.RecoverAfter {
				state.health = HealthHealthy
				state.successes = 0
			}
		}
	}

	if state.role != prev.role || state.health != prev.health {
		T.config.Logger.Info("node changed",
			zap.String("address", address),
			zap.Stringer("role", state.role),
			zap.Stringer("health", state.health),
		)
		prom.Topology.Transitions(prom.NodeLabels{
			Address: address,
			Health:  state.health.String(),
		}).Inc()

		T.epoch++
		prom.Topology.Epoch(prom.ClusterLabels{}).Set(float64(T.epoch))
		T.current.Store(T.snapshotLocked())

		for _, c := range T.subscribers {
			select {
			case c <- struct{}{}:
			default:
			}
		}
		return
	}

	// nothing changed, just refresh the snapshot's age
	snap := *T.current.Load()
	snap.Taken = time.Now()
	T.current.Store(&snap)
}

func (T *Monitor) snapshotLocked() *Snapshot {
	nodes := make(map[string]Node, len(T.nodes))
	for addr, state := range T.nodes {
		nodes[addr] = Node{
			Address: addr,
			Role:    state.role,
			Health:  state.health,
		}
	}
	return &Snapshot{
		Epoch: T.epoch,
		Taken: time.Now(),
		Nodes: nodes,
	}
}

// Run probes each node on its own ticker until ctx is done.
func (T *Monitor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, addr := range T.config.Nodes {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			T.probeLoop(ctx, addr)
		}(addr)
	}
	wg.Wait()
}

func (T *Monitor) probeLoop(ctx context.Context, address string) {
	ticker := time.NewTicker(T.config.Interval)
	defer ticker.Stop()

	for {
		T.probe(ctx, address)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (T *Monitor) probe(ctx context.Context, address string) {
	probeCtx, cancel := context.WithTimeout(ctx, T.config.ProbeTimeout)
	defer cancel()

	role, err := T.config.Prober.Probe(probeCtx, address)

	// shutting down, not a missed probe
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		T.config.Logger.Warn("probe failed",
			zap.String("address", address),
			zap.Error(err),
		)
	}
	T.Observe(address, role, err)
}
