package lane

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	bouncers "github.com/pglane/pglane/lib/bouncer/bouncers/v0"
	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/fed/packets"
	"github.com/pglane/pglane/lib/instrumentation/prom"
	"github.com/pglane/pglane/lib/lane/cluster"
	"github.com/pglane/pglane/lib/lane/metrics"
	"github.com/pglane/pglane/lib/lane/pool/spool"
	"github.com/pglane/pglane/lib/lane/router"
	"github.com/pglane/pglane/lib/perror"
	"github.com/pglane/pglane/lib/util/strutil"
)

type Config struct {
	Mode PoolMode

	Cluster *cluster.Cluster

	// TrackedParameters are startup parameters synced to the server when a
	// client is paired. Everything else is reported to the client as the
	// server's value.
	TrackedParameters []strutil.CIString

	Logger *zap.Logger
}

// Lane multiplexes client sessions onto the cluster's server connections
// according to the configured pool mode.
type Lane struct {
	config Config

	mu           sync.RWMutex
	clients      map[uuid.UUID]*Client
	clientsByKey map[fed.BackendKey]*Client
}

func NewLane(config Config) *Lane {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Lane{
		config:       config,
		clients:      make(map[uuid.UUID]*Client),
		clientsByKey: make(map[fed.BackendKey]*Client),
	}
}

func (T *Lane) Mode() PoolMode {
	return T.config.Mode
}

func (T *Lane) Cluster() *cluster.Cluster {
	return T.config.Cluster
}

func (T *Lane) addClient(client *Client) {
	T.mu.Lock()
	defer T.mu.Unlock()

	T.clients[client.ID] = client
	T.clientsByKey[client.Conn.BackendKey] = client
}

func (T *Lane) removeClient(client *Client) {
	T.mu.Lock()
	defer T.mu.Unlock()

	delete(T.clients, client.ID)
	delete(T.clientsByKey, client.Conn.BackendKey)
}

// Cancel forwards a query cancellation to whichever server the keyed client
// is paired with.
func (T *Lane) Cancel(key fed.BackendKey) {
	T.mu.RLock()
	client, ok := T.clientsByKey[key]
	T.mu.RUnlock()
	if !ok {
		return
	}

	server, decision := client.getServer()
	if server == nil {
		return
	}
	T.config.Cluster.Cancel(decision, server)
}

func (T *Lane) acquire(client *Client, class router.Classification) (*spool.Server, router.Decision, perror.Error) {
	client.SetState(metrics.ConnStateAwaitingServer, uuid.Nil)

	start := time.Now()
	server, decision, err := T.config.Cluster.Acquire(client.ID, class)
	if err != nil {
		if err.Code() == perror.TooManyConnections {
			prom.Pool.Exhausted(prom.PoolLabels{Address: decision.Address}).Inc()
		}
		return nil, decision, err
	}

	labels := prom.PoolLabels{Address: decision.Address}
	prom.Pool.Acquired(labels).Inc()
	prom.Pool.Acquire(labels).Observe(float64(time.Since(start).Milliseconds()))
	prom.Router.Decisions(prom.RouteLabels{
		Class:   class.String(),
		Address: decision.Address,
	}).Inc()

	client.setServer(server, decision)
	return server, decision, nil
}

func (T *Lane) release(client *Client, server *spool.Server, decision router.Decision, broken bool) {
	client.setServer(nil, router.Decision{})
	unpair(client, server)

	if broken {
		T.config.Cluster.Discard(decision, server)
	} else {
		T.config.Cluster.Release(decision, server)
	}
}

// fail reports err to the client and hangs up.
func (T *Lane) fail(client *Client, packet fed.Packet, err perror.Error) fed.Packet {
	resp := packets.ErrorResponse{
		Error: err,
	}
	packet = resp.IntoPacket(packet)
	_ = client.Conn.WritePacket(packet)
	_ = client.Conn.Flush()
	return packet
}

// reject reports err to the client but keeps the session alive.
func (T *Lane) reject(client *Client, packet fed.Packet, err perror.Error) fed.Packet {
	resp := packets.ErrorResponse{
		Error: err,
	}
	packet = resp.IntoPacket(packet)
	_ = client.Conn.WritePacket(packet)

	rfq := packets.ReadyForQuery('I')
	packet = rfq.IntoPacket(packet)
	_ = client.Conn.WritePacket(packet)
	_ = client.Conn.Flush()
	return packet
}

// Serve runs one authenticated client session to completion.
func (T *Lane) Serve(conn *fed.Conn) error {
	client := newClient(conn)
	T.addClient(client)
	defer T.removeClient(client)

	var packet fed.Packet
	var server *spool.Server
	var decision router.Decision
	var serverBroken bool

	defer func() {
		if server != nil {
			T.release(client, server, decision, serverBroken)
			server = nil
		}
	}()

	// pair immediately so the client sees the server's parameter status
	// before its first ReadyForQuery
	loginClass := router.ClassRead
	if T.config.Mode == ModeSession {
		loginClass = router.ClassWrite
	}

	var perr perror.Error
	server, decision, perr = T.acquire(client, loginClass)
	if perr != nil {
		T.fail(client, packet, perr)
		return perror.ToError(perr)
	}

	var clientErr, serverErr error
	packet, clientErr, serverErr = pair(T.config.TrackedParameters, client, server, packet)
	if serverErr != nil {
		serverBroken = true
		return serverErr
	}
	if clientErr != nil {
		return clientErr
	}

	rfq := packets.ReadyForQuery('I')
	packet = rfq.IntoPacket(packet)
	if clientErr = client.Conn.WritePacket(packet); clientErr != nil {
		return clientErr
	}

	for {
		if server != nil && T.config.Mode != ModeSession {
			T.release(client, server, decision, false)
			server = nil
		}

		var err error
		packet, err = client.Conn.ReadPacket(true, packet)
		if err != nil {
			return err
		}

		if packet.Type() == packets.TypeTerminate {
			return nil
		}

		if T.config.Mode != ModeSession && packet.Type() == packets.TypeQuery {
			var q packets.Query
			if q.ReadFromPacket(packet) && sessionScoped(string(q)) {
				packet = T.reject(client, packet, perror.New(
					perror.ERROR,
					perror.FeatureNotSupported,
					"session state is not supported in "+T.config.Mode.String()+" pooling mode",
					perror.ExtraField{
						Type:  perror.Hint,
						Value: "server connections are reused between transactions; use SET LOCAL or session pooling",
					},
				))
				continue
			}
		}

		if server == nil {
			server, decision, perr = T.acquire(client, classifyPacket(packet))
			if perr != nil {
				packet = T.fail(client, packet, perr)
				return perror.ToError(perr)
			}

			packet, clientErr, serverErr = pair(T.config.TrackedParameters, client, server, packet)
			if serverErr != nil {
				serverBroken = true
				return serverErr
			}
			if clientErr != nil {
				return clientErr
			}
		}

		if T.config.Mode == ModeStatement {
			packet, clientErr, serverErr = bouncers.BounceStatement(client.Conn, server.Conn, packet)
		} else {
			packet, clientErr, serverErr = bouncers.Bounce(client.Conn, server.Conn, packet)
		}
		client.QueryComplete()
		server.QueryComplete()

		if serverErr != nil {
			serverBroken = true
			return serverErr
		}
		if clientErr != nil {
			return clientErr
		}
	}
}

// ReadClientMetrics folds this lane's client metrics into m.
func (T *Lane) ReadClientMetrics(m *metrics.Pool) {
	T.mu.RLock()
	defer T.mu.RUnlock()

	if m.Clients == nil {
		m.Clients = make(map[uuid.UUID]metrics.Conn)
	}
	for _, client := range T.clients {
		var c metrics.Conn
		client.ReadMetrics(&c)
		m.Clients[client.ID] = c
	}
}

// ReadMetrics folds this lane's client and server metrics into m.
func (T *Lane) ReadMetrics(m *metrics.Pool) {
	T.ReadClientMetrics(m)

	for _, p := range T.config.Cluster.Pools() {
		p.ReadMetrics(m)
	}
}
