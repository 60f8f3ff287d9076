package backends

import (
	"crypto/tls"
	"errors"
	"io"

	"github.com/pglane/pglane/lib/auth"
	"github.com/pglane/pglane/lib/bouncer"
	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/fed/packets"
	"github.com/pglane/pglane/lib/perror"
	"github.com/pglane/pglane/lib/util/strutil"
)

type AcceptOptions struct {
	SSLMode           bouncer.SSLMode
	SSLConfig         *tls.Config
	Username          string
	Credentials       auth.Credentials
	Database          string
	StartupParameters map[strutil.CIString]string
}

type acceptContext struct {
	Conn    *fed.Conn
	Packet  fed.Packet
	Options AcceptOptions
}

func authenticationSASLChallenge(ctx *acceptContext, encoder auth.SASLEncoder) (done bool, err error) {
	ctx.Packet, err = ctx.Conn.ReadPacket(true, ctx.Packet)
	if err != nil {
		return
	}

	if ctx.Packet.Type() != packets.TypeAuthentication {
		err = ErrUnexpectedPacket
		return
	}

	p := ctx.Packet.Reader()
	method, ok := p.ReadInt32()
	if !ok {
		err = ErrBadFormat
		return
	}

	switch method {
	case packets.AuthenticationModeSASLContinue:
		var response []byte
		response, err = encoder.Write(p.Remaining())
		if err != nil {
			return
		}

		resp := packets.SASLResponse(response)
		ctx.Packet = resp.IntoPacket(ctx.Packet)
		err = ctx.Conn.WritePacket(ctx.Packet)
		return
	case packets.AuthenticationModeSASLFinal:
		_, err = encoder.Write(p.Remaining())
		if err != io.EOF {
			if err == nil {
				err = errors.New("expected end of SASL conversation")
			}
			return
		}
		return true, nil
	default:
		err = ErrUnexpectedPacket
		return
	}
}

func authenticationSASL(ctx *acceptContext, mechanisms []string, creds auth.SASLClient) error {
	mechanism, encoder, err := creds.EncodeSASL(mechanisms)
	if err != nil {
		return err
	}
	initialResponse, err := encoder.Write(nil)
	if err != nil {
		return err
	}

	saslInitialResponse := packets.SASLInitialResponse{
		Mechanism:       mechanism,
		InitialResponse: initialResponse,
	}
	ctx.Packet = saslInitialResponse.IntoPacket(ctx.Packet)
	if err = ctx.Conn.WritePacket(ctx.Packet); err != nil {
		return err
	}

	for {
		done, err := authenticationSASLChallenge(ctx, encoder)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func writePassword(ctx *acceptContext, password string) error {
	pw := packets.PasswordMessage{
		Password: password,
	}
	ctx.Packet = pw.IntoPacket(ctx.Packet)
	return ctx.Conn.WritePacket(ctx.Packet)
}

func authentication(ctx *acceptContext) (done bool, err error) {
	p := ctx.Packet.Reader()
	method, ok := p.ReadInt32()
	if !ok {
		err = ErrBadFormat
		return
	}

	switch method {
	case packets.AuthenticationModeOk:
		return true, nil
	case packets.AuthenticationModeCleartextPassword:
		c, ok := ctx.Options.Credentials.(auth.CleartextClient)
		if !ok {
			return false, auth.ErrMethodNotSupported
		}
		return false, writePassword(ctx, c.EncodeCleartext())
	case packets.AuthenticationModeMD5Password:
		var md5 packets.AuthenticationMD5
		if !md5.ReadFromPacket(ctx.Packet) {
			err = ErrBadFormat
			return
		}
		c, ok := ctx.Options.Credentials.(auth.MD5Client)
		if !ok {
			return false, auth.ErrMethodNotSupported
		}
		return false, writePassword(ctx, c.EncodeMD5(md5.Salt))
	case packets.AuthenticationModeSASL:
		var sasl packets.AuthenticationSASL
		if !sasl.ReadFromPacket(ctx.Packet) {
			err = ErrBadFormat
			return
		}
		c, ok := ctx.Options.Credentials.(auth.SASLClient)
		if !ok {
			return false, auth.ErrMethodNotSupported
		}
		return false, authenticationSASL(ctx, sasl.Mechanisms, c)
	default:
		return false, auth.ErrMethodNotSupported
	}
}

func startup0(ctx *acceptContext) (done bool, err error) {
	ctx.Packet, err = ctx.Conn.ReadPacket(true, ctx.Packet)
	if err != nil {
		return
	}

	switch ctx.Packet.Type() {
	case packets.TypeErrorResponse:
		var resp packets.ErrorResponse
		if !resp.ReadFromPacket(ctx.Packet) {
			err = ErrBadFormat
		} else {
			err = perror.ToError(resp.Error)
		}
		return
	case packets.TypeAuthentication:
		return authentication(ctx)
	case packets.TypeNegotiateProtocolVersion:
		err = errors.New("server wanted to negotiate protocol version")
		return
	default:
		err = ErrUnexpectedPacket
		return
	}
}

func startup1(ctx *acceptContext) (done bool, err error) {
	ctx.Packet, err = ctx.Conn.ReadPacket(true, ctx.Packet)
	if err != nil {
		return
	}

	switch ctx.Packet.Type() {
	case packets.TypeBackendKeyData:
		var keyData packets.BackendKeyData
		if !keyData.ReadFromPacket(ctx.Packet) {
			err = ErrBadFormat
			return
		}
		ctx.Conn.BackendKey = fed.BackendKey{
			ProcessID: keyData.ProcessID,
			SecretKey: keyData.SecretKey,
		}
		return false, nil
	case packets.TypeParameterStatus:
		var ps packets.ParameterStatus
		if !ps.ReadFromPacket(ctx.Packet) {
			err = ErrBadFormat
			return
		}
		if ctx.Conn.InitialParameters == nil {
			ctx.Conn.InitialParameters = make(map[strutil.CIString]string)
		}
		ctx.Conn.InitialParameters[strutil.MakeCIString(ps.Key)] = ps.Value
		return false, nil
	case packets.TypeReadyForQuery:
		return true, nil
	case packets.TypeErrorResponse:
		var resp packets.ErrorResponse
		if !resp.ReadFromPacket(ctx.Packet) {
			err = ErrBadFormat
		} else {
			err = perror.ToError(resp.Error)
		}
		return
	case packets.TypeNoticeResponse:
		return false, nil
	default:
		err = ErrUnexpectedPacket
		return
	}
}

func enableSSL(ctx *acceptContext) (bool, error) {
	ctx.Packet = ctx.Packet.Reset(0)
	ctx.Packet = ctx.Packet.AppendUint16(1234)
	ctx.Packet = ctx.Packet.AppendUint16(packets.RequestCodeSSL)
	if err := ctx.Conn.WritePacket(ctx.Packet); err != nil {
		return false, err
	}

	yn, err := ctx.Conn.ReadByte()
	if err != nil {
		return false, err
	}
	if yn != 'S' {
		return false, nil
	}

	if err = ctx.Conn.EnableSSLClient(ctx.Options.SSLConfig); err != nil {
		return false, err
	}
	return true, nil
}

func accept(ctx *acceptContext) error {
	username := ctx.Options.Username
	if ctx.Options.Database == "" {
		ctx.Options.Database = username
	}

	if ctx.Options.SSLMode.ShouldAttempt() {
		sslEnabled, err := enableSSL(ctx)
		if err != nil {
			return err
		}
		if !sslEnabled && ctx.Options.SSLMode.IsRequired() {
			return errors.New("server rejected SSL encryption")
		}
	}

	ctx.Packet = ctx.Packet.Reset(0)
	ctx.Packet = ctx.Packet.AppendUint16(3)
	ctx.Packet = ctx.Packet.AppendUint16(0)
	ctx.Packet = ctx.Packet.AppendString("user")
	ctx.Packet = ctx.Packet.AppendString(username)
	ctx.Packet = ctx.Packet.AppendString("database")
	ctx.Packet = ctx.Packet.AppendString(ctx.Options.Database)
	for key, value := range ctx.Options.StartupParameters {
		ctx.Packet = ctx.Packet.AppendString(key.String())
		ctx.Packet = ctx.Packet.AppendString(value)
	}
	ctx.Packet = ctx.Packet.AppendUint8(0)

	if err := ctx.Conn.WritePacket(ctx.Packet); err != nil {
		return err
	}

	for {
		done, err := startup0(ctx)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}

	for {
		done, err := startup1(ctx)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}

	ctx.Conn.User = username
	ctx.Conn.Database = ctx.Options.Database
	ctx.Conn.Authenticated = true
	ctx.Conn.Ready = true
	return nil
}

// Accept performs the client side handshake against a real postgres server:
// optional SSL, startup, authentication, and the parameter burst through the
// first ReadyForQuery.
func Accept(conn *fed.Conn, options AcceptOptions) error {
	ctx := acceptContext{
		Conn:    conn,
		Options: options,
	}
	return accept(&ctx)
}
