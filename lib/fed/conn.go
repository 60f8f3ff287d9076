package fed

import (
	"bufio"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/pglane/pglane/lib/util/slices"
	"github.com/pglane/pglane/lib/util/strutil"
)

var ErrPacketTooBig = errors.New("packet exceeds maximum allowed size")

// maxPacketLength bounds a single protocol message. Startup packets and simple
// queries are far below this; anything bigger is a corrupt stream.
const maxPacketLength = 512 * 1024 * 1024

// BackendKey is the cancellation key pair issued by a backend.
type BackendKey struct {
	ProcessID int32
	SecretKey int32
}

// Conn is one postgres protocol stream, client or server side. Writes are
// buffered; ReadPacket flushes pending writes first so a request/response
// exchange never deadlocks on an unflushed buffer.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer

	ssl bool

	// handshake results
	User              string
	Database          string
	InitialParameters map[strutil.CIString]string
	BackendKey        BackendKey
	Authenticated     bool
	Ready             bool
}

func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}
}

func (T *Conn) LocalAddr() net.Addr {
	return T.conn.LocalAddr()
}

func (T *Conn) RemoteAddr() net.Addr {
	return T.conn.RemoteAddr()
}

func (T *Conn) SSLEnabled() bool {
	return T.ssl
}

func (T *Conn) Flush() error {
	return T.w.Flush()
}

// ReadPacket reads the next message into buf, reusing its backing buffer.
// Typed selects between regular messages and the untyped startup form; the
// returned packet of an untyped message has Type zero.
func (T *Conn) ReadPacket(typed bool, buf Packet) (Packet, error) {
	if err := T.Flush(); err != nil {
		return buf, err
	}

	p := buf.Reset(0)

	if typed {
		typ, err := T.r.ReadByte()
		if err != nil {
			return p, err
		}
		p[0] = typ
	}

	if _, err := io.ReadFull(T.r, p[1:headerSize]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return p, err
	}

	length := int(binary.BigEndian.Uint32(p[1:headerSize]))
	if length < 4 || length > maxPacketLength {
		return p, ErrPacketTooBig
	}

	p = Packet(slices.Resize([]byte(p), headerSize+length-4))
	if _, err := io.ReadFull(T.r, p.Payload()); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return p, err
	}
	return p, nil
}

// WritePacket queues packet into the write buffer. Packets with Type zero are
// written in the untyped startup form.
func (T *Conn) WritePacket(packet Packet) error {
	if packet.Type() == 0 {
		_, err := T.w.Write(packet[1:])
		return err
	}
	_, err := T.w.Write(packet)
	return err
}

// ReadByte reads a single raw byte, bypassing packet framing. Used for the
// one byte SSLRequest response.
func (T *Conn) ReadByte() (byte, error) {
	if err := T.Flush(); err != nil {
		return 0, err
	}
	return T.r.ReadByte()
}

// WriteByte writes a single raw byte, bypassing packet framing.
func (T *Conn) WriteByte(b byte) error {
	return T.w.WriteByte(b)
}

func (T *Conn) enableSSL(conn net.Conn) {
	T.conn = conn
	T.r.Reset(conn)
	T.w.Reset(conn)
	T.ssl = true
}

// EnableSSLClient upgrades the connection with a client side TLS handshake.
// The SSLRequest exchange must already be complete.
func (T *Conn) EnableSSLClient(config *tls.Config) error {
	if err := T.Flush(); err != nil {
		return err
	}
	sslConn := tls.Client(T.conn, config)
	if err := sslConn.Handshake(); err != nil {
		return err
	}
	T.enableSSL(sslConn)
	return nil
}

// EnableSSLServer upgrades the connection with a server side TLS handshake.
func (T *Conn) EnableSSLServer(config *tls.Config) error {
	if err := T.Flush(); err != nil {
		return err
	}
	sslConn := tls.Server(T.conn, config)
	if err := sslConn.Handshake(); err != nil {
		return err
	}
	T.enableSSL(sslConn)
	return nil
}

func (T *Conn) Close() error {
	flushErr := T.w.Flush()
	closeErr := T.conn.Close()
	if closeErr != nil {
		return closeErr
	}
	return flushErr
}
