package fifo

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func waitForWaiters(t *testing.T, pooler *Pooler, count int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for pooler.Waiters() < count {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d waiters", count)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPooler_TryAcquire(t *testing.T) {
	pooler := NewPooler()
	defer pooler.Close()

	if pooler.TryAcquire(uuid.New()) != uuid.Nil {
		t.Error("expected no server")
	}

	server := uuid.New()
	pooler.AddServer(server)

	if got := pooler.TryAcquire(uuid.New()); got != server {
		t.Errorf("expected %v but got %v", server, got)
	}
	if pooler.TryAcquire(uuid.New()) != uuid.Nil {
		t.Error("expected server to be taken")
	}
}

func TestPooler_IdleOrder(t *testing.T) {
	pooler := NewPooler()
	defer pooler.Close()

	first := uuid.New()
	second := uuid.New()
	pooler.AddServer(first)
	pooler.AddServer(second)

	// idle servers are handed out in release order
	if got := pooler.TryAcquire(uuid.New()); got != first {
		t.Errorf("expected %v but got %v", first, got)
	}
	if got := pooler.TryAcquire(uuid.New()); got != second {
		t.Errorf("expected %v but got %v", second, got)
	}
}

func TestPooler_WaitersServedInOrder(t *testing.T) {
	pooler := NewPooler()
	defer pooler.Close()

	server := uuid.New()
	pooler.AddServer(server)

	// hold the only server so everyone after us waits
	if pooler.TryAcquire(uuid.New()) != server {
		t.Fatal("expected to get the server")
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := pooler.Acquire(uuid.New(), 0)
			if got != server {
				t.Errorf("expected %v but got %v", server, got)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			pooler.Release(server)
		}()
		// make sure this waiter is queued before starting the next
		waitForWaiters(t, pooler, i+1)
	}

	pooler.Release(server)
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("expected FIFO grant order but got %v", order)
		}
	}
}

func TestPooler_AcquireTimeout(t *testing.T) {
	pooler := NewPooler()
	defer pooler.Close()

	start := time.Now()
	got := pooler.Acquire(uuid.New(), 50*time.Millisecond)
	elapsed := time.Since(start)

	if got != uuid.Nil {
		t.Errorf("expected no server but got %v", got)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("timed out too early: %v", elapsed)
	}
	if pooler.Waiters() != 0 {
		t.Errorf("expected no waiters left but got %d", pooler.Waiters())
	}
}

func TestPooler_TimeoutLostRace(t *testing.T) {
	pooler := NewPooler()
	defer pooler.Close()

	done := make(chan uuid.UUID)
	go func() {
		done <- pooler.Acquire(uuid.New(), 10*time.Millisecond)
	}()
	waitForWaiters(t, pooler, 1)

	// wait for the timeout to be due, then release; whichever way the race
	// goes the waiter must win or the server must end up idle, never lost
	time.Sleep(20 * time.Millisecond)
	server := uuid.New()
	pooler.AddServer(server)

	got := <-done
	if got == uuid.Nil {
		if pooler.TryAcquire(uuid.New()) != server {
			t.Error("server was lost")
		}
	} else if got != server {
		t.Errorf("expected %v but got %v", server, got)
	}
}

func TestPooler_Close(t *testing.T) {
	pooler := NewPooler()
	pooler.AddServer(uuid.New())

	done := make(chan uuid.UUID)
	go func() {
		done <- pooler.Acquire(uuid.New(), 0)
	}()
	waitForWaiters(t, pooler, 1)

	pooler.Close()
	if got := <-done; got != uuid.Nil {
		t.Errorf("expected nil server after close but got %v", got)
	}
	if pooler.TryAcquire(uuid.New()) != uuid.Nil {
		t.Error("expected no server after close")
	}
}
