package lane

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/lane/metrics"
	"github.com/pglane/pglane/lib/lane/pool/spool"
	"github.com/pglane/pglane/lib/lane/router"
)

// Client is one connected frontend session.
type Client struct {
	ID   uuid.UUID
	Conn *fed.Conn

	txnCount   atomic.Int64
	queryCount atomic.Int64

	// the server currently held, if any
	server   *spool.Server
	decision router.Decision

	lastMetricsRead time.Time
	state           metrics.ConnState
	peer            uuid.UUID
	since           time.Time
	util            [metrics.ConnStateCount]time.Duration
	mu              sync.Mutex
}

func newClient(conn *fed.Conn) *Client {
	return &Client{
		ID:   uuid.New(),
		Conn: conn,

		state: metrics.ConnStateIdle,
		since: time.Now(),
	}
}

func (T *Client) SetState(state metrics.ConnState, peer uuid.UUID) {
	T.mu.Lock()
	defer T.mu.Unlock()

	now := time.Now()

	var since time.Duration
	if T.since.Before(T.lastMetricsRead) {
		since = now.Sub(T.lastMetricsRead)
	} else {
		since = now.Sub(T.since)
	}
	T.util[T.state] += since

	T.state = state
	T.peer = peer
	T.since = now
}

func (T *Client) GetState() (time.Time, metrics.ConnState, uuid.UUID) {
	T.mu.Lock()
	defer T.mu.Unlock()
	return T.since, T.state, T.peer
}

// setServer records the server this client is paired with so cancel
// requests can be forwarded.
func (T *Client) setServer(server *spool.Server, decision router.Decision) {
	T.mu.Lock()
	defer T.mu.Unlock()
	T.server = server
	T.decision = decision
}

func (T *Client) getServer() (*spool.Server, router.Decision) {
	T.mu.Lock()
	defer T.mu.Unlock()
	return T.server, T.decision
}

func (T *Client) TransactionComplete() {
	T.txnCount.Add(1)
}

func (T *Client) QueryComplete() {
	T.queryCount.Add(1)
}

func (T *Client) ReadMetrics(m *metrics.Conn) {
	T.mu.Lock()
	defer T.mu.Unlock()

	now := time.Now()

	m.Time = now

	m.State = T.state
	m.Peer = T.peer
	m.Since = T.since

	m.Utilization = T.util
	T.util = [metrics.ConnStateCount]time.Duration{}

	var since time.Duration
	if m.Since.Before(T.lastMetricsRead) {
		since = now.Sub(T.lastMetricsRead)
	} else {
		since = now.Sub(m.Since)
	}
	m.Utilization[m.State] += since

	m.TransactionCount = int(T.txnCount.Swap(0))
	m.QueryCount = int(T.queryCount.Swap(0))

	T.lastMetricsRead = now
}
