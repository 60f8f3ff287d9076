package packets

import (
	"errors"

	"github.com/pglane/pglane/lib/fed"
)

var (
	ErrUnexpectedPacket = errors.New("unexpected packet")
	ErrInvalidFormat    = errors.New("invalid packet format")
)

const (
	TypeAuthentication           = 'R'
	TypeBackendKeyData           = 'K'
	TypeBind                     = 'B'
	TypeBindComplete             = '2'
	TypeClose                    = 'C'
	TypeCloseComplete            = '3'
	TypeCommandComplete          = 'C'
	TypeCopyBothResponse         = 'W'
	TypeCopyData                 = 'd'
	TypeCopyDone                 = 'c'
	TypeCopyFail                 = 'f'
	TypeCopyInResponse           = 'G'
	TypeCopyOutResponse          = 'H'
	TypeDataRow                  = 'D'
	TypeDescribe                 = 'D'
	TypeEmptyQueryResponse       = 'I'
	TypeErrorResponse            = 'E'
	TypeExecute                  = 'E'
	TypeFlush                    = 'H'
	TypeFunctionCall             = 'F'
	TypeFunctionCallResponse     = 'V'
	TypeNegotiateProtocolVersion = 'v'
	TypeNoData                   = 'n'
	TypeNoticeResponse           = 'N'
	TypeNotificationResponse     = 'A'
	TypeParameterDescription     = 't'
	TypeParameterStatus          = 'S'
	TypeParse                    = 'P'
	TypeParseComplete            = '1'
	TypePasswordMessage          = 'p'
	TypePortalSuspended          = 's'
	TypeQuery                    = 'Q'
	TypeReadyForQuery            = 'Z'
	TypeRowDescription           = 'T'
	TypeSASLInitialResponse      = 'p'
	TypeSASLResponse             = 'p'
	TypeSync                     = 'S'
	TypeTerminate                = 'X'
)

// Packet codecs decode from and encode into a fed.Packet, reusing its buffer.
type Packet interface {
	ReadFromPacket(packet fed.Packet) bool
	IntoPacket(packet fed.Packet) fed.Packet
}
