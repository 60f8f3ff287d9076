package router

import (
	"sort"
	"sync"
	"time"

	"github.com/pglane/pglane/lib/lane/topology"
	"github.com/pglane/pglane/lib/perror"
)

func NoPrimaryAvailable() perror.Error {
	return perror.New(
		perror.ERROR,
		perror.CannotConnectNow,
		"no primary available",
	)
}

func StaleTopology(age time.Duration) perror.Error {
	return perror.New(
		perror.ERROR,
		perror.ConnectionFailure,
		"topology information is stale ("+age.String()+" old)",
	)
}

type Config struct {
	// Weights skews read routing between replicas. Nodes not listed get
	// weight 1; weight 0 excludes a node from read routing.
	Weights map[string]int

	// MaxStaleness bounds the age of the snapshot a routing decision may
	// rely on. Reads on a stale snapshot fall back to the primary; writes
	// fail. Zero means no bound.
	MaxStaleness time.Duration
}

// Decision names the node a statement should run on along with the topology
// epoch it was derived from.
type Decision struct {
	Address string
	Role    topology.Role
	Epoch   uint64
}

type wrrNode struct {
	address string
	weight  int
	current int
}

// Router picks a backend for each statement: the primary for writes, a
// healthy replica chosen by smooth weighted round robin for reads.
type Router struct {
	config Config

	mu    sync.Mutex
	epoch uint64
	nodes []wrrNode
	total int
}

func NewRouter(config Config) *Router {
	return &Router{
		config: config,
	}
}

// Route derives a decision from the statement class and the given snapshot.
func (T *Router) Route(class Classification, snap *topology.Snapshot) (Decision, perror.Error) {
	stale := T.config.MaxStaleness != 0 && snap.Age() > T.config.MaxStaleness

	if class == ClassWrite && stale {
		return Decision{}, StaleTopology(snap.Age())
	}

	if class == ClassRead && !stale {
		if addr, ok := T.nextReplica(snap); ok {
			return Decision{
				Address: addr,
				Role:    topology.RoleReplica,
				Epoch:   snap.Epoch,
			}, nil
		}
	}

	primary, ok := snap.Primary()
	if !ok {
		return Decision{}, NoPrimaryAvailable()
	}
	return Decision{
		Address: primary,
		Role:    topology.RolePrimary,
		Epoch:   snap.Epoch,
	}, nil
}

// nextReplica runs one round of smooth weighted round robin over the
// snapshot's healthy replicas.
func (T *Router) nextReplica(snap *topology.Snapshot) (string, bool) {
	T.mu.Lock()
	defer T.mu.Unlock()

	if T.nodes == nil || T.epoch != snap.Epoch {
		T.rebuild(snap)
	}

	if len(T.nodes) == 0 {
		return "", false
	}

	best := -1
	for i := range T.nodes {
		T.nodes[i].current += T.nodes[i].weight
		if best < 0 || T.nodes[i].current > T.nodes[best].current {
			best = i
		}
	}
	T.nodes[best].current -= T.total
	return T.nodes[best].address, true
}

func (T *Router) rebuild(snap *topology.Snapshot) {
	replicas := snap.HealthyReplicas()
	sort.Strings(replicas)

	T.epoch = snap.Epoch
	T.nodes = make([]wrrNode, 0, len(replicas))
	T.total = 0
	for _, addr := range replicas {
		weight := 1
		if w, ok := T.config.Weights[addr]; ok {
			weight = w
		}
		if weight <= 0 {
			continue
		}
		T.nodes = append(T.nodes, wrrNode{
			address: addr,
			weight:  weight,
		})
		T.total += weight
	}
}
