package frontends

import (
	"crypto/tls"
	"strings"

	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/fed/packets"
	"github.com/pglane/pglane/lib/perror"
	"github.com/pglane/pglane/lib/util/strutil"
)

type AcceptOptions struct {
	SSLConfig *tls.Config
	// AllowedStartupParameters restricts which parameters clients may set in
	// their startup packet. nil allows everything.
	AllowedStartupParameters []strutil.CIString
}

type AcceptParams struct {
	// IsCanceling is set when the client sent a CancelRequest instead of a
	// startup packet. CancelKey holds the target.
	IsCanceling bool
	CancelKey   fed.BackendKey

	SSLEnabled bool
}

func fail(packet fed.Packet, conn *fed.Conn, err perror.Error) fed.Packet {
	resp := packets.ErrorResponse{
		Error: err,
	}
	packet = resp.IntoPacket(packet)
	_ = conn.WritePacket(packet)
	_ = conn.Flush()
	return packet
}

func startup(conn *fed.Conn, packet fed.Packet, options AcceptOptions, params *AcceptParams) (done bool, next fed.Packet, err perror.Error) {
	next = packet

	var err2 error
	next, err2 = conn.ReadPacket(false, next)
	if err2 != nil {
		err = perror.Wrap(err2)
		return
	}

	p := next.Reader()
	majorVersion, ok := p.ReadUint16()
	if !ok {
		err = perror.New(perror.FATAL, perror.ProtocolViolation, "Bad startup packet format")
		return
	}
	minorVersion, ok := p.ReadUint16()
	if !ok {
		err = perror.New(perror.FATAL, perror.ProtocolViolation, "Bad startup packet format")
		return
	}

	if majorVersion == 1234 {
		switch minorVersion {
		case packets.RequestCodeCancel:
			pid, ok := p.ReadInt32()
			if !ok {
				err = perror.New(perror.FATAL, perror.ProtocolViolation, "Bad cancel request format")
				return
			}
			key, ok := p.ReadInt32()
			if !ok {
				err = perror.New(perror.FATAL, perror.ProtocolViolation, "Bad cancel request format")
				return
			}
			params.IsCanceling = true
			params.CancelKey = fed.BackendKey{
				ProcessID: pid,
				SecretKey: key,
			}
			return true, next, nil
		case packets.RequestCodeSSL:
			if options.SSLConfig == nil || params.SSLEnabled {
				if err2 = conn.WriteByte('N'); err2 != nil {
					err = perror.Wrap(err2)
					return
				}
				return false, next, nil
			}
			if err2 = conn.WriteByte('S'); err2 != nil {
				err = perror.Wrap(err2)
				return
			}
			if err2 = conn.EnableSSLServer(options.SSLConfig); err2 != nil {
				err = perror.Wrap(err2)
				return
			}
			params.SSLEnabled = true
			return false, next, nil
		case packets.RequestCodeGSSAPI:
			if err2 = conn.WriteByte('N'); err2 != nil {
				err = perror.Wrap(err2)
				return
			}
			return false, next, nil
		default:
			err = perror.New(perror.FATAL, perror.ProtocolViolation, "Unknown request code")
			return
		}
	}

	if majorVersion != 3 {
		err = perror.New(perror.FATAL, perror.ProtocolViolation, "Unsupported protocol version")
		return
	}

	var unsupportedOptions []string

	for {
		key, ok := p.ReadString()
		if !ok {
			err = perror.New(perror.FATAL, perror.ProtocolViolation, "Bad startup packet format")
			return
		}
		if key == "" {
			break
		}

		value, ok := p.ReadString()
		if !ok {
			err = perror.New(perror.FATAL, perror.ProtocolViolation, "Bad startup packet format")
			return
		}

		switch key {
		case "user":
			conn.User = value
		case "database":
			conn.Database = value
		case "replication":
			err = perror.New(perror.FATAL, perror.FeatureNotSupported, "Replication mode is not supported")
			return
		default:
			if strings.HasPrefix(key, "_pq_.") {
				unsupportedOptions = append(unsupportedOptions, key)
				continue
			}
			ikey := strutil.MakeCIString(key)
			if options.AllowedStartupParameters != nil && !containsCI(options.AllowedStartupParameters, ikey) {
				err = perror.New(
					perror.FATAL,
					perror.FeatureNotSupported,
					`Startup parameter "`+key+`" is not allowed`,
				)
				return
			}
			if conn.InitialParameters == nil {
				conn.InitialParameters = make(map[strutil.CIString]string)
			}
			conn.InitialParameters[ikey] = value
		}
	}

	if minorVersion != 0 || len(unsupportedOptions) > 0 {
		negotiate := packets.NegotiateProtocolVersion{
			MinorVersion:        0,
			UnrecognizedOptions: unsupportedOptions,
		}
		next = negotiate.IntoPacket(next)
		if err2 = conn.WritePacket(next); err2 != nil {
			err = perror.Wrap(err2)
			return
		}
	}

	if conn.User == "" {
		err = perror.New(perror.FATAL, perror.InvalidAuthorizationSpecification, "User is required")
		return
	}
	if conn.Database == "" {
		conn.Database = conn.User
	}

	return true, next, nil
}

func containsCI(haystack []strutil.CIString, needle strutil.CIString) bool {
	for _, hay := range haystack {
		if hay == needle {
			return true
		}
	}
	return false
}

// Accept performs the startup phase of a client connection: SSL negotiation
// and the startup packet, through to (but not including) authentication. On
// success conn.User and conn.Database are populated.
func Accept(conn *fed.Conn, options AcceptOptions) (AcceptParams, fed.Packet, perror.Error) {
	var params AcceptParams
	var packet fed.Packet

	for {
		done, next, err := startup(conn, packet, options, &params)
		packet = next
		if err != nil {
			packet = fail(packet, conn, err)
			return AcceptParams{}, packet, err
		}
		if done {
			return params, packet, nil
		}
	}
}
