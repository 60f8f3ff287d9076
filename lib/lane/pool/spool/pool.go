package spool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	backends "github.com/pglane/pglane/lib/bouncer/backends/v0"
	"github.com/pglane/pglane/lib/lane/metrics"
	"github.com/pglane/pglane/lib/lane/pool"
)

// Pool owns the server connections to a single backend node, scaling them
// between MinConnections and MaxConnections on demand.
type Pool struct {
	config Config
	pooler pool.Pooler

	closed    chan struct{}
	closeOnce sync.Once

	draining atomic.Bool
	dialErr  atomic.Pointer[error]

	// count tracks allocated connection slots, including dials in progress
	count   int
	countMu sync.Mutex

	servers map[uuid.UUID]*Server
	mu      sync.RWMutex
}

// MakePool creates a pool without starting its scale loop. ScaleLoop must be
// called if this is used instead of NewPool.
func MakePool(config Config) Pool {
	return Pool{
		config: config,
		pooler: config.PoolerFactory.NewPooler(),

		closed: make(chan struct{}),
	}
}

func NewPool(config Config) *Pool {
	p := MakePool(config)
	go p.ScaleLoop()

	initial := p.allocateInitial()
	for i := 0; i < initial; i++ {
		go p.scaleUpOnce()
	}

	return &p
}

func (T *Pool) allocateInitial() int {
	T.countMu.Lock()
	defer T.countMu.Unlock()

	if T.count >= T.config.MinConnections {
		return 0
	}
	amount := T.config.MinConnections - T.count
	T.count = T.config.MinConnections
	return amount
}

func (T *Pool) allocate() bool {
	T.countMu.Lock()
	defer T.countMu.Unlock()

	if T.config.MaxConnections != 0 && T.count >= T.config.MaxConnections {
		return false
	}
	T.count++
	return true
}

func (T *Pool) tryFree() bool {
	T.countMu.Lock()
	defer T.countMu.Unlock()

	if T.count <= T.config.MinConnections {
		return false
	}
	T.count--
	return true
}

func (T *Pool) free() {
	T.countMu.Lock()
	defer T.countMu.Unlock()

	T.count--
}

func (T *Pool) overMax() bool {
	T.countMu.Lock()
	defer T.countMu.Unlock()

	return T.config.MaxConnections != 0 && T.count > T.config.MaxConnections
}

// Resize changes the pool size bounds at runtime. The pool grows to the new
// minimum immediately; connections above the new maximum are closed as they
// are released.
func (T *Pool) Resize(min, max int) {
	T.countMu.Lock()
	T.config.MinConnections = min
	T.config.MaxConnections = max
	T.countMu.Unlock()

	initial := T.allocateInitial()
	for i := 0; i < initial; i++ {
		go T.scaleUpOnce()
	}
}

// scaleUpOnce dials one server for an already allocated slot.
func (T *Pool) scaleUpOnce() bool {
	conn, err := T.config.Dialer.Dial()
	if err != nil {
		T.config.Logger.Error("failed to dial server", zap.Error(err))
		T.dialErr.Store(&err)
		T.free()
		return false
	}
	T.dialErr.Store(nil)

	server := NewServer(conn)

	T.mu.Lock()
	if T.servers == nil {
		T.servers = make(map[uuid.UUID]*Server)
	}
	T.servers[server.ID] = server
	T.mu.Unlock()

	T.pooler.AddServer(server.ID)
	return true
}

func (T *Pool) scaleUp() bool {
	if T.draining.Load() {
		return false
	}
	if !T.allocate() {
		return false
	}
	return T.scaleUpOnce()
}

func (T *Pool) scaleDown(now time.Time) time.Duration {
	T.mu.RLock()
	var victims []*Server
	var m time.Duration
	for _, s := range T.servers {
		idle := s.Idle(now)
		if idle == 0 {
			continue
		}
		if idle > T.config.IdleTimeout {
			if T.tryFree() {
				victims = append(victims, s)
			}
		} else if idle > m {
			m = idle
		}
	}
	T.mu.RUnlock()

	for _, s := range victims {
		T.removeServer(s, false)
	}

	return T.config.IdleTimeout - m
}

func (T *Pool) ScaleLoop() {
	var idle *time.Timer
	var idleC <-chan time.Time
	if T.config.IdleTimeout != 0 {
		idle = time.NewTimer(T.config.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	var backoff *time.Timer
	defer func() {
		if backoff != nil {
			backoff.Stop()
		}
	}()
	var backoffC <-chan time.Time
	var backoffNext time.Duration

	for {
		var pending <-chan struct{}
		if backoffNext == 0 {
			pending = T.pooler.Waiting()
		}

		select {
		case <-T.closed:
			return
		case <-backoffC:
			if T.scaleUp() {
				backoffNext = 0
				continue
			}

			backoffNext *= 2
			if T.config.ReconnectMaxTime != 0 && backoffNext > T.config.ReconnectMaxTime {
				backoffNext = T.config.ReconnectMaxTime
			}
			backoff.Reset(backoffNext)
		case <-pending:
			// the waiter count drops the moment a server is granted, so
			// this dials at most one connection per waiter still queued
			ok := true
			for T.pooler.Waiters() > 0 {
				if !T.scaleUp() {
					ok = false
					break
				}
			}
			if ok {
				continue
			}

			backoffNext = T.config.ReconnectInitialTime
			if backoffNext != 0 {
				if backoff == nil {
					backoff = time.NewTimer(backoffNext)
					backoffC = backoff.C
				} else {
					backoff.Reset(backoffNext)
				}
			}
		case now := <-idleC:
			idle.Reset(T.scaleDown(now))
		}
	}
}

func (T *Pool) AddClient(client uuid.UUID) {
	T.pooler.AddClient(client)
}

func (T *Pool) RemoveClient(client uuid.UUID) {
	T.pooler.DeleteClient(client)
}

// checkServer runs the configured check query if the server has been idle
// long enough to be suspect. Reports whether the server is usable.
func (T *Pool) checkServer(server *Server, client uuid.UUID) bool {
	if T.config.CheckQuery == "" {
		return true
	}
	since, _, _ := server.GetState()
	if time.Since(since) < T.config.CheckDelay {
		return true
	}

	server.SetState(metrics.ConnStateRunningCheckQuery, client)
	if err, _ := backends.QueryString(server.Conn, nil, T.config.CheckQuery); err != nil {
		T.config.Logger.Warn("server failed check query, discarding",
			zap.String("addr", server.Conn.RemoteAddr().String()),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Acquire returns a server for client, waiting up to AcquireTimeout if none
// is idle. Returns nil if the pool is exhausted, draining, or closed.
func (T *Pool) Acquire(client uuid.UUID) *Server {
	for {
		serverID := T.pooler.TryAcquire(client)
		if serverID == uuid.Nil {
			// the pooler signals the scale loop once the waiter is queued
			serverID = T.pooler.Acquire(client, T.config.AcquireTimeout)
			if serverID == uuid.Nil {
				return nil
			}
		}

		T.mu.RLock()
		server, ok := T.servers[serverID]
		T.mu.RUnlock()

		if !ok {
			T.pooler.DeleteServer(serverID)
			continue
		}

		if !T.checkServer(server, client) {
			T.RemoveServer(server)
			continue
		}

		server.SetState(metrics.ConnStatePairing, client)
		return server
	}
}

// Release returns a server to the pool, running the reset query first.
func (T *Pool) Release(server *Server) {
	if T.draining.Load() || T.overMax() {
		T.RemoveServer(server)
		return
	}

	if T.config.ResetQuery != "" {
		server.SetState(metrics.ConnStateRunningResetQuery, uuid.Nil)

		if err, _ := backends.QueryString(server.Conn, nil, T.config.ResetQuery); err != nil {
			T.config.Logger.Error("failed to run reset query", zap.Error(err))
			T.RemoveServer(server)
			return
		}
	}

	server.SetState(metrics.ConnStateIdle, uuid.Nil)
	T.pooler.Release(server.ID)
}

func (T *Pool) removeServer(server *Server, free bool) {
	T.mu.Lock()
	_, ok := T.servers[server.ID]
	delete(T.servers, server.ID)
	T.mu.Unlock()

	if !ok {
		return
	}

	T.pooler.DeleteServer(server.ID)
	_ = server.Conn.Close()
	if free {
		T.free()
	}
}

// RemoveServer closes and forgets a server, freeing its slot.
func (T *Pool) RemoveServer(server *Server) {
	T.removeServer(server, true)
}

func (T *Pool) Cancel(server *Server) {
	T.config.Dialer.Cancel(server.Conn.BackendKey)
}

// LastDialError reports the most recent dial failure, nil once a dial has
// succeeded again.
func (T *Pool) LastDialError() error {
	if p := T.dialErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (T *Pool) Waiters() int {
	return T.pooler.Waiters()
}

func (T *Pool) ServerCount() int {
	T.mu.RLock()
	defer T.mu.RUnlock()
	return len(T.servers)
}

// Drain stops handing out servers and closes them as clients let go. It
// returns once the pool is empty or grace has passed; stragglers are closed
// forcibly.
func (T *Pool) Drain(grace time.Duration) {
	T.draining.Store(true)
	T.pooler.Close()

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if T.ServerCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	T.mu.Lock()
	remaining := make([]*Server, 0, len(T.servers))
	for _, server := range T.servers {
		remaining = append(remaining, server)
	}
	T.mu.Unlock()

	for _, server := range remaining {
		T.removeServer(server, true)
	}
}

func (T *Pool) ReadMetrics(m *metrics.Pool) {
	T.mu.RLock()
	defer T.mu.RUnlock()

	if m.Servers == nil {
		m.Servers = make(map[uuid.UUID]metrics.Conn)
	}
	for _, server := range T.servers {
		var s metrics.Conn
		server.ReadMetrics(&s)
		m.Servers[server.ID] = s
	}
}

func (T *Pool) Close() {
	T.closeOnce.Do(func() {
		close(T.closed)
		T.pooler.Close()

		T.mu.Lock()
		servers := make([]*Server, 0, len(T.servers))
		for _, server := range T.servers {
			servers = append(servers, server)
		}
		T.servers = nil
		T.mu.Unlock()

		for _, server := range servers {
			_ = server.Conn.Close()
		}
	})
}
