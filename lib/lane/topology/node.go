package topology

type Role int

const (
	RoleUnknown Role = iota
	RolePrimary
	RoleReplica
)

func (T Role) String() string {
	switch T {
	case RolePrimary:
		return "primary"
	case RoleReplica:
		return "replica"
	default:
		return "unknown"
	}
}

type Health int

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthSuspect
	HealthUnhealthy
)

func (T Health) String() string {
	switch T {
	case HealthHealthy:
		return "healthy"
	case HealthSuspect:
		return "suspect"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Node is one monitored postgres backend.
type Node struct {
	Address string
	Role    Role
	Health  Health
}
