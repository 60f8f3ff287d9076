package pools

import "sync"

// Pool is a simple free list.
type Pool[T any] []T

func (P *Pool[T]) Get() (T, bool) {
	if len(*P) == 0 {
		return *new(T), false
	}
	v := (*P)[len(*P)-1]
	*P = (*P)[:len(*P)-1]
	return v, true
}

func (P *Pool[T]) Put(v T) {
	*P = append(*P, v)
}

// Locked is a Pool safe for concurrent use.
type Locked[T any] struct {
	inner Pool[T]
	mu    sync.Mutex
}

func (L *Locked[T]) Get() (T, bool) {
	L.mu.Lock()
	defer L.mu.Unlock()
	return L.inner.Get()
}

func (L *Locked[T]) Put(v T) {
	L.mu.Lock()
	defer L.mu.Unlock()
	L.inner.Put(v)
}
