package fifo

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pglane/pglane/lib/lane/pool"
	"github.com/pglane/pglane/lib/util/pools"
	"github.com/pglane/pglane/lib/util/ring"
)

// Pooler hands out idle servers in the order they were released and serves
// waiting clients strictly first come first served.
type Pooler struct {
	waiting chan struct{}

	// recycled waiter channels
	pool pools.Locked[chan uuid.UUID]

	servers map[uuid.UUID]struct{}
	idle    ring.Ring[uuid.UUID]
	waiters ring.Ring[chan<- uuid.UUID]
	closed  bool
	mu      sync.Mutex
}

func NewPooler() *Pooler {
	return &Pooler{
		// buffered so a signal raised while the consumer is busy dialing
		// is latched instead of dropped
		waiting: make(chan struct{}, 1),
	}
}

func (*Pooler) AddClient(_ uuid.UUID) {}

func (*Pooler) DeleteClient(_ uuid.UUID) {}

func (T *Pooler) AddServer(server uuid.UUID) {
	T.mu.Lock()
	defer T.mu.Unlock()

	if T.servers == nil {
		T.servers = make(map[uuid.UUID]struct{})
	}
	T.servers[server] = struct{}{}

	T.release(server)
}

func (T *Pooler) DeleteServer(server uuid.UUID) {
	T.mu.Lock()
	defer T.mu.Unlock()

	count := T.idle.Length()
	for i := 0; i < count; i++ {
		id, _ := T.idle.PopFront()
		if id != server {
			T.idle.PushBack(id)
		}
	}

	delete(T.servers, server)
}

func (T *Pooler) TryAcquire(_ uuid.UUID) uuid.UUID {
	T.mu.Lock()
	defer T.mu.Unlock()

	if T.closed {
		return uuid.Nil
	}

	if server, ok := T.idle.PopFront(); ok {
		return server
	}
	return uuid.Nil
}

func (T *Pooler) Acquire(_ uuid.UUID, timeout time.Duration) uuid.UUID {
	ready := func() chan uuid.UUID {
		T.mu.Lock()
		defer T.mu.Unlock()

		if T.closed {
			return nil
		}

		ready, _ := T.pool.Get()
		if ready == nil {
			ready = make(chan uuid.UUID, 1)
		}
		T.waiters.PushBack(ready)

		select {
		case T.waiting <- struct{}{}:
		default:
		}

		return ready
	}()

	if ready == nil {
		return uuid.Nil
	}

	var timeoutC <-chan time.Time
	if timeout != 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case server, ok := <-ready:
		if ok {
			T.pool.Put(ready)
		}
		return server
	case <-timeoutC:
		return T.abandon(ready)
	}
}

// abandon removes ready from the waiter queue after a timeout. If a release
// already picked this waiter, the race is lost and the granted server is
// taken anyway.
func (T *Pooler) abandon(ready chan uuid.UUID) uuid.UUID {
	T.mu.Lock()
	defer T.mu.Unlock()

	count := T.waiters.Length()
	var found bool
	for i := 0; i < count; i++ {
		c, _ := T.waiters.PopFront()
		if c == ready {
			found = true
			// keep going so the remaining waiters stay in order
		} else {
			T.waiters.PushBack(c)
		}
	}

	if found {
		T.pool.Put(ready)
		return uuid.Nil
	}

	server, ok := <-ready
	if ok {
		T.pool.Put(ready)
	}
	return server
}

func (T *Pooler) release(server uuid.UUID) {
	if _, ok := T.servers[server]; !ok {
		return
	}

	if c, ok := T.waiters.PopFront(); ok {
		c <- server
		return
	}

	T.idle.PushBack(server)
}

func (T *Pooler) Release(server uuid.UUID) {
	T.mu.Lock()
	defer T.mu.Unlock()

	T.release(server)
}

func (T *Pooler) Waiting() <-chan struct{} {
	return T.waiting
}

func (T *Pooler) Waiters() int {
	T.mu.Lock()
	defer T.mu.Unlock()

	return T.waiters.Length()
}

func (T *Pooler) Close() {
	T.mu.Lock()
	defer T.mu.Unlock()

	T.closed = true
	clear(T.servers)
	T.idle.Clear()
	for c, ok := T.waiters.PopFront(); ok; c, ok = T.waiters.PopFront() {
		close(c)
	}
}

var _ pool.Pooler = (*Pooler)(nil)

type Factory struct{}

func (Factory) NewPooler() pool.Pooler {
	return NewPooler()
}

var _ pool.PoolerFactory = Factory{}
