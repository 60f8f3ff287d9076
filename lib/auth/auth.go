package auth

import "errors"

var (
	ErrMethodNotSupported        = errors.New("auth method not supported")
	ErrFailed                    = errors.New("auth failed")
	ErrSASLMechanismNotSupported = errors.New("SASL mechanism not supported")
)

// Credentials is a marker for anything that can take part in an
// authentication exchange. The concrete capabilities are expressed by the
// more specific interfaces below; callers type switch on whichever side and
// method they need.
type Credentials interface {
	Credentials()
}

type CleartextClient interface {
	Credentials

	EncodeCleartext() string
}

type CleartextServer interface {
	Credentials

	VerifyCleartext(value string) error
}

type MD5Client interface {
	Credentials

	EncodeMD5(salt [4]byte) string
}

type MD5Server interface {
	Credentials

	VerifyMD5(salt [4]byte, value string) error
}

type SASLMechanism = string

const (
	ScramSHA256 SASLMechanism = "SCRAM-SHA-256"
)

// SASLEncoder produces the client messages of a SASL conversation. Write is
// fed each server challenge and returns the response; io.EOF marks a
// completed conversation.
type SASLEncoder interface {
	Write([]byte) ([]byte, error)
}

// SASLVerifier is the server half of a SASL conversation.
type SASLVerifier interface {
	Write(bytes []byte) ([]byte, error)
}

type SASLClient interface {
	Credentials

	EncodeSASL(mechanisms []SASLMechanism) (SASLMechanism, SASLEncoder, error)
}

type SASLServer interface {
	Credentials

	SupportedSASLMechanisms() []SASLMechanism

	VerifySASL(mechanism SASLMechanism) (SASLVerifier, error)
}
