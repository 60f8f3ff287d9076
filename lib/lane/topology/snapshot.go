package topology

import (
	"time"
)

// Snapshot is an immutable view of the cluster at a point in time. A new
// snapshot is published whenever a node changes role or health, with a
// strictly increasing epoch.
type Snapshot struct {
	Epoch uint64
	Taken time.Time
	Nodes map[string]Node
}

// Primary returns the address of the healthy primary, if one is confirmed.
func (T *Snapshot) Primary() (string, bool) {
	for addr, node := range T.Nodes {
		if node.Role == RolePrimary && node.Health == HealthHealthy {
			return addr, true
		}
	}
	return "", false
}

// HealthyReplicas returns the addresses of all healthy replicas.
func (T *Snapshot) HealthyReplicas() []string {
	var replicas []string
	for addr, node := range T.Nodes {
		if node.Role == RoleReplica && node.Health == HealthHealthy {
			replicas = append(replicas, addr)
		}
	}
	return replicas
}

// Age reports how long ago the snapshot was taken.
func (T *Snapshot) Age() time.Duration {
	return time.Since(T.Taken)
}
