package pool

import (
	"time"

	"github.com/google/uuid"
)

// Pooler decides which idle server a client gets and in which order waiting
// clients are served. It tracks ids only; the owning pool maps them back to
// connections.
type Pooler interface {
	AddClient(client uuid.UUID)
	DeleteClient(client uuid.UUID)

	AddServer(server uuid.UUID)
	DeleteServer(server uuid.UUID)

	// TryAcquire returns an idle server or uuid.Nil without waiting.
	TryAcquire(client uuid.UUID) uuid.UUID
	// Acquire blocks until a server is released or timeout passes. A zero
	// timeout waits forever. Returns uuid.Nil on timeout or close.
	Acquire(client uuid.UUID, timeout time.Duration) uuid.UUID
	Release(server uuid.UUID)

	// Waiting is signalled when a client begins waiting.
	Waiting() <-chan struct{}
	// Waiters returns the number of clients currently waiting.
	Waiters() int

	Close()
}

type PoolerFactory interface {
	NewPooler() Pooler
}
