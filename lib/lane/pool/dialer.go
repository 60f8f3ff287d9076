package pool

import (
	"crypto/tls"
	"net"
	"strings"

	"github.com/pglane/pglane/lib/auth"
	"github.com/pglane/pglane/lib/bouncer"
	backends "github.com/pglane/pglane/lib/bouncer/backends/v0"
	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/util/strutil"
)

// Dialer establishes authenticated server connections. It is an interface so
// pools can be tested without a postgres server behind them.
type Dialer interface {
	Dial() (*fed.Conn, error)
	Cancel(key fed.BackendKey)
}

// NetDialer dials a real postgres server over tcp, or a unix socket when
// Address starts with a slash.
type NetDialer struct {
	Address   string
	SSLMode   bouncer.SSLMode
	SSLConfig *tls.Config

	Username    string
	Credentials auth.Credentials
	Database    string
	Parameters  map[strutil.CIString]string
}

func (T *NetDialer) dial() (net.Conn, error) {
	if strings.HasPrefix(T.Address, "/") {
		return net.Dial("unix", T.Address)
	}
	return net.Dial("tcp", T.Address)
}

func (T *NetDialer) Dial() (*fed.Conn, error) {
	c, err := T.dial()
	if err != nil {
		return nil, err
	}
	conn := fed.NewConn(c)
	if err = backends.Accept(conn, backends.AcceptOptions{
		SSLMode:           T.SSLMode,
		SSLConfig:         T.SSLConfig,
		Username:          T.Username,
		Credentials:       T.Credentials,
		Database:          T.Database,
		StartupParameters: T.Parameters,
	}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (T *NetDialer) Cancel(key fed.BackendKey) {
	c, err := T.dial()
	if err != nil {
		return
	}
	conn := fed.NewConn(c)
	defer func() {
		_ = conn.Close()
	}()
	if err = backends.Cancel(conn, key); err != nil {
		return
	}

	// the server acknowledges by closing the connection
	_, _ = conn.ReadPacket(true, nil)
}

var _ Dialer = (*NetDialer)(nil)
