package spool

import (
	"time"

	"go.uber.org/zap"

	"github.com/pglane/pglane/lib/lane/pool"
)

type Config struct {
	PoolerFactory pool.PoolerFactory
	Dialer        pool.Dialer

	// MinConnections is kept open even when idle.
	MinConnections int
	// MaxConnections caps the pool. 0 = unlimited.
	MaxConnections int

	// AcquireTimeout bounds how long a client may wait for a server.
	// 0 = wait forever.
	AcquireTimeout time.Duration

	// IdleTimeout scales down connections above MinConnections after they
	// sit idle this long. 0 = never.
	IdleTimeout time.Duration

	ReconnectInitialTime time.Duration
	ReconnectMaxTime     time.Duration

	// CheckQuery is run on a server that has been idle longer than
	// CheckDelay before it is handed to a client.
	CheckQuery string
	CheckDelay time.Duration

	// ResetQuery is run when a server is released.
	ResetQuery string

	Logger *zap.Logger
}
