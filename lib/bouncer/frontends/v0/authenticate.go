package frontends

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/pglane/pglane/lib/auth"
	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/fed/packets"
	"github.com/pglane/pglane/lib/perror"
)

type AuthenticateOptions struct {
	Credentials auth.Credentials
}

type AuthenticateParams struct {
	BackendKey fed.BackendKey
}

func authenticationSASLInitial(conn *fed.Conn, packet fed.Packet, creds auth.SASLServer) (tool auth.SASLVerifier, resp []byte, done bool, next fed.Packet, err perror.Error) {
	next = packet

	var err2 error
	next, err2 = conn.ReadPacket(true, next)
	if err2 != nil {
		err = perror.Wrap(err2)
		return
	}

	var initialResponse packets.SASLInitialResponse
	if !initialResponse.ReadFromPacket(next) {
		err = perror.New(perror.FATAL, perror.ProtocolViolation, "Expected SASLInitialResponse")
		return
	}

	tool, err2 = creds.VerifySASL(initialResponse.Mechanism)
	if err2 != nil {
		err = perror.Wrap(err2)
		return
	}

	resp, err2 = tool.Write(initialResponse.InitialResponse)
	if err2 != nil {
		if err2 == io.EOF {
			done = true
			return
		}
		err = perror.New(perror.FATAL, perror.InvalidPassword, err2.Error())
		return
	}
	return
}

func authenticationSASLContinue(conn *fed.Conn, packet fed.Packet, tool auth.SASLVerifier) (resp []byte, done bool, next fed.Packet, err perror.Error) {
	next = packet

	var err2 error
	next, err2 = conn.ReadPacket(true, next)
	if err2 != nil {
		err = perror.Wrap(err2)
		return
	}

	var authResp packets.SASLResponse
	if !authResp.ReadFromPacket(next) {
		err = perror.New(perror.FATAL, perror.ProtocolViolation, "Expected SASLResponse")
		return
	}

	resp, err2 = tool.Write(authResp)
	if err2 != nil {
		if err2 == io.EOF {
			done = true
			return
		}
		err = perror.New(perror.FATAL, perror.InvalidPassword, err2.Error())
		return
	}
	return
}

func authenticationSASL(conn *fed.Conn, packet fed.Packet, creds auth.SASLServer) (fed.Packet, perror.Error) {
	saslInitial := packets.AuthenticationSASL{
		Mechanisms: creds.SupportedSASLMechanisms(),
	}
	packet = saslInitial.IntoPacket(packet)
	if err := perror.Wrap(conn.WritePacket(packet)); err != nil {
		return packet, err
	}

	tool, resp, done, packet, err := authenticationSASLInitial(conn, packet, creds)
	if err != nil {
		return packet, err
	}

	for {
		if done {
			final := packets.AuthenticationSASLFinal(resp)
			packet = final.IntoPacket(packet)
			if err := perror.Wrap(conn.WritePacket(packet)); err != nil {
				return packet, err
			}
			return packet, nil
		}

		cont := packets.AuthenticationSASLContinue(resp)
		packet = cont.IntoPacket(packet)
		if err := perror.Wrap(conn.WritePacket(packet)); err != nil {
			return packet, err
		}

		resp, done, packet, err = authenticationSASLContinue(conn, packet, tool)
		if err != nil {
			return packet, err
		}
	}
}

func authenticationMD5(conn *fed.Conn, packet fed.Packet, creds auth.MD5Server) (fed.Packet, perror.Error) {
	var salt [4]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return packet, perror.Wrap(err)
	}

	md5Initial := packets.AuthenticationMD5{
		Salt: salt,
	}
	packet = md5Initial.IntoPacket(packet)
	if err := conn.WritePacket(packet); err != nil {
		return packet, perror.Wrap(err)
	}

	packet, err := conn.ReadPacket(true, packet)
	if err != nil {
		return packet, perror.Wrap(err)
	}

	var pw packets.PasswordMessage
	if !pw.ReadFromPacket(packet) {
		return packet, perror.New(perror.FATAL, perror.ProtocolViolation, "Expected PasswordMessage")
	}

	if err := creds.VerifyMD5(salt, pw.Password); err != nil {
		return packet, perror.New(perror.FATAL, perror.InvalidPassword, "Invalid password")
	}
	return packet, nil
}

func authenticationCleartext(conn *fed.Conn, packet fed.Packet, creds auth.CleartextServer) (fed.Packet, perror.Error) {
	request := packets.AuthenticationCleartextPassword{}
	packet = request.IntoPacket(packet)
	if err := conn.WritePacket(packet); err != nil {
		return packet, perror.Wrap(err)
	}

	packet, err := conn.ReadPacket(true, packet)
	if err != nil {
		return packet, perror.Wrap(err)
	}

	var pw packets.PasswordMessage
	if !pw.ReadFromPacket(packet) {
		return packet, perror.New(perror.FATAL, perror.ProtocolViolation, "Expected PasswordMessage")
	}

	if err := creds.VerifyCleartext(pw.Password); err != nil {
		return packet, perror.New(perror.FATAL, perror.InvalidPassword, "Invalid password")
	}
	return packet, nil
}

func authenticate(conn *fed.Conn, packet fed.Packet, options AuthenticateOptions, params *AuthenticateParams) (fed.Packet, perror.Error) {
	var err perror.Error
	switch creds := options.Credentials.(type) {
	case nil:
		return packet, perror.New(
			perror.FATAL,
			perror.InvalidPassword,
			`password authentication failed for user "`+conn.User+`"`,
		)
	case auth.SASLServer:
		packet, err = authenticationSASL(conn, packet, creds)
	case auth.MD5Server:
		packet, err = authenticationMD5(conn, packet, creds)
	case auth.CleartextServer:
		packet, err = authenticationCleartext(conn, packet, creds)
	default:
		err = perror.New(perror.FATAL, perror.InternalError, "Auth method not supported")
	}
	if err != nil {
		return packet, err
	}

	authOk := packets.AuthenticationOk{}
	packet = authOk.IntoPacket(packet)
	if err := perror.Wrap(conn.WritePacket(packet)); err != nil {
		return packet, err
	}

	// issue a cancellation key for this client
	var key [8]byte
	if _, err2 := rand.Read(key[:]); err2 != nil {
		return packet, perror.Wrap(err2)
	}
	params.BackendKey = fed.BackendKey{
		ProcessID: int32(binary.BigEndian.Uint32(key[:4])),
		SecretKey: int32(binary.BigEndian.Uint32(key[4:])),
	}

	keyData := packets.BackendKeyData{
		ProcessID: params.BackendKey.ProcessID,
		SecretKey: params.BackendKey.SecretKey,
	}
	packet = keyData.IntoPacket(packet)
	if err := perror.Wrap(conn.WritePacket(packet)); err != nil {
		return packet, err
	}

	conn.Authenticated = true
	return packet, nil
}

// Authenticate runs the server side of password authentication and, on
// success, issues the client its cancellation key.
func Authenticate(conn *fed.Conn, packet fed.Packet, options AuthenticateOptions) (AuthenticateParams, fed.Packet, perror.Error) {
	var params AuthenticateParams
	packet, err := authenticate(conn, packet, options, &params)
	if err != nil {
		packet = fail(packet, conn, err)
		return AuthenticateParams{}, packet, err
	}
	return params, packet, nil
}
