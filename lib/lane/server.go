package lane

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pglane/pglane/lib/auth"
	frontends "github.com/pglane/pglane/lib/bouncer/frontends/v0"
	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/fed/packets"
	"github.com/pglane/pglane/lib/instrumentation/prom"
	"github.com/pglane/pglane/lib/lane/admin"
	"github.com/pglane/pglane/lib/lane/topology"
	"github.com/pglane/pglane/lib/perror"
	"github.com/pglane/pglane/lib/util/maps"
	"github.com/pglane/pglane/lib/util/strutil"
)

type ServerConfig struct {
	// Listen is the address to accept clients on, a unix socket path if it
	// starts with "/".
	Listen string

	SSLConfig *tls.Config

	// AllowedStartupParameters restricts client startup parameters. nil
	// allows everything.
	AllowedStartupParameters []strutil.CIString

	// Credentials looks up the password material for a user. nil means the
	// user is unknown.
	Credentials func(user string) auth.Credentials

	// AdminDatabase is the virtual database serving the console.
	AdminDatabase string

	Monitor *topology.Monitor

	Logger *zap.Logger
}

// Server accepts postgres clients and hands them to the lane matching their
// startup user and database.
type Server struct {
	config ServerConfig

	mu    sync.RWMutex
	lanes maps.TwoKey[string, string, *Lane]
}

func NewServer(config ServerConfig) *Server {
	if config.AdminDatabase == "" {
		config.AdminDatabase = "pglane"
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Server{
		config: config,
	}
}

func (T *Server) AddLane(user, database string, lane *Lane) {
	T.mu.Lock()
	defer T.mu.Unlock()
	T.lanes.Store(user, database, lane)
}

func (T *Server) lookupLane(user, database string) (*Lane, bool) {
	T.mu.RLock()
	defer T.mu.RUnlock()
	return T.lanes.Load(user, database)
}

func (T *Server) cancel(key fed.BackendKey) {
	T.mu.RLock()
	defer T.mu.RUnlock()
	T.lanes.Range(func(_, _ string, lane *Lane) bool {
		lane.Cancel(key)
		return true
	})
}

// ListenAndServe accepts clients until ctx is done.
func (T *Server) ListenAndServe(ctx context.Context) error {
	network := "tcp"
	if strings.HasPrefix(T.config.Listen, "/") {
		network = "unix"
	}

	listener, err := net.Listen(network, T.config.Listen)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	T.config.Logger.Info("listening", zap.String("address", T.config.Listen))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		prom.Listener.Incoming(prom.ListenerLabels{ListenAddr: T.config.Listen}).Inc()

		go T.serveConn(conn)
	}
}

func (T *Server) serveConn(netConn net.Conn) {
	labels := prom.ListenerLabels{ListenAddr: T.config.Listen}

	conn := fed.NewConn(netConn)
	defer func() {
		_ = conn.Close()
	}()

	params, packet, perr := frontends.Accept(conn, frontends.AcceptOptions{
		SSLConfig:                T.config.SSLConfig,
		AllowedStartupParameters: T.config.AllowedStartupParameters,
	})
	if perr != nil {
		return
	}

	if params.IsCanceling {
		T.cancel(params.CancelKey)
		return
	}

	var creds auth.Credentials
	if T.config.Credentials != nil {
		creds = T.config.Credentials(conn.User)
	}

	_, packet, perr = frontends.Authenticate(conn, packet, frontends.AuthenticateOptions{
		Credentials: creds,
	})
	if perr != nil {
		T.config.Logger.Debug("authentication failed",
			zap.String("user", conn.User),
			zap.Error(perror.ToError(perr)),
		)
		return
	}

	prom.Listener.Accepted(labels).Inc()
	prom.Listener.Client(labels).Inc()
	defer prom.Listener.Client(labels).Dec()

	var err error
	if conn.Database == T.config.AdminDatabase {
		err = admin.Serve(conn, T)
	} else {
		lane, ok := T.lookupLane(conn.User, conn.Database)
		if !ok {
			resp := perror.New(
				perror.FATAL,
				perror.InvalidCatalogName,
				"no lane configured for "+conn.User+"/"+conn.Database,
			)
			fedFail(conn, packet, resp)
			return
		}
		err = lane.Serve(conn)
	}

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		T.config.Logger.Debug("session ended",
			zap.String("user", conn.User),
			zap.String("database", conn.Database),
			zap.Error(err),
		)
	}
}

func fedFail(conn *fed.Conn, packet fed.Packet, err perror.Error) {
	resp := packets.ErrorResponse{
		Error: err,
	}
	packet = resp.IntoPacket(packet)
	_ = conn.WritePacket(packet)
	_ = conn.Flush()
}

// Lanes implements the admin console source.
func (T *Server) Lanes() []admin.LaneStatus {
	T.mu.RLock()
	defer T.mu.RUnlock()

	var lanes []admin.LaneStatus
	T.lanes.Range(func(user, database string, lane *Lane) bool {
		status := admin.LaneStatus{
			User:     user,
			Database: database,
			Mode:     lane.Mode().String(),
		}
		lane.ReadClientMetrics(&status.Clients)

		for addr, p := range lane.Cluster().Pools() {
			pool := admin.PoolStatus{
				Address: addr,
				Waiters: p.Waiters(),
			}
			p.ReadMetrics(&pool.Metrics)
			status.Pools = append(status.Pools, pool)
		}

		lanes = append(lanes, status)
		return true
	})
	return lanes
}

// Topology implements the admin console source.
func (T *Server) Topology() *topology.Snapshot {
	return T.config.Monitor.Latest()
}

// Primary implements the admin console source.
func (T *Server) Primary() (string, uint64, bool) {
	T.mu.RLock()
	defer T.mu.RUnlock()

	var primary string
	var epoch uint64
	var ok bool
	T.lanes.Range(func(_, _ string, lane *Lane) bool {
		primary, epoch, ok = lane.Cluster().Primary()
		return false
	})
	return primary, epoch, ok
}

var _ admin.Source = (*Server)(nil)
