package metrics

import (
	"time"

	"github.com/google/uuid"
)

// Conn is a point in time reading of one connection. Utilization counters
// accumulate since the previous read and are reset by it.
type Conn struct {
	Time time.Time

	State ConnState
	Peer  uuid.UUID
	Since time.Time

	Utilization [ConnStateCount]time.Duration

	TransactionCount int
	QueryCount       int
}
