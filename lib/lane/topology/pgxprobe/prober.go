package pgxprobe

import (
	"context"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"

	"github.com/pglane/pglane/lib/lane/topology"
)

// Prober asks a node whether it is in recovery over a short-lived pgx
// connection. A node in recovery is a replica, otherwise it is the primary.
type Prober struct {
	User     string
	Password string
	Database string
}

func (T *Prober) Probe(ctx context.Context, address string) (topology.Role, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host = address
		port = "5432"
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s sslmode=prefer",
		host, port, T.User, T.Database,
	)
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return topology.RoleUnknown, err
	}
	config.Password = T.Password

	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return topology.RoleUnknown, err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	var inRecovery bool
	if err = conn.QueryRow(ctx, "SELECT pg_is_in_recovery()").Scan(&inRecovery); err != nil {
		return topology.RoleUnknown, err
	}

	if inRecovery {
		return topology.RoleReplica, nil
	}
	return topology.RolePrimary, nil
}

var _ topology.Prober = (*Prober)(nil)
