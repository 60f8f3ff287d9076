package backends

import (
	"strings"

	"github.com/pglane/pglane/lib/fed"
	"github.com/pglane/pglane/lib/fed/packets"
	"github.com/pglane/pglane/lib/util/strutil"
)

func copyIn(ctx *serverToPeerBinding) error {
	ctx.PeerWrite()

	for {
		if !ctx.PeerRead() {
			copyFail := ctx.Packet.Reset(packets.TypeCopyFail)
			ctx.Packet = copyFail.AppendString("peer failed")
			return ctx.ServerWrite()
		}

		switch ctx.Packet.Type() {
		case packets.TypeCopyData:
			if err := ctx.ServerWrite(); err != nil {
				return err
			}
		case packets.TypeCopyDone, packets.TypeCopyFail:
			return ctx.ServerWrite()
		default:
			ctx.PeerFail(ErrUnexpectedPacket)
		}
	}
}

func copyOut(ctx *serverToPeerBinding) error {
	ctx.PeerWrite()

	for {
		if err := ctx.ServerRead(); err != nil {
			return err
		}

		switch ctx.Packet.Type() {
		case packets.TypeCopyData,
			packets.TypeNoticeResponse,
			packets.TypeParameterStatus,
			packets.TypeNotificationResponse:
			ctx.PeerWrite()
		case packets.TypeCopyDone, packets.TypeErrorResponse:
			ctx.PeerWrite()
			return nil
		default:
			return ErrUnexpectedPacket
		}
	}
}

func query(ctx *serverToPeerBinding) error {
	if err := ctx.ServerWrite(); err != nil {
		return err
	}

	for {
		if err := ctx.ServerRead(); err != nil {
			return err
		}

		switch ctx.Packet.Type() {
		case packets.TypeCommandComplete,
			packets.TypeRowDescription,
			packets.TypeDataRow,
			packets.TypeEmptyQueryResponse,
			packets.TypeErrorResponse,
			packets.TypeNoticeResponse,
			packets.TypeParameterStatus,
			packets.TypeNotificationResponse:
			ctx.PeerWrite()
		case packets.TypeCopyInResponse:
			if err := copyIn(ctx); err != nil {
				return err
			}
		case packets.TypeCopyOutResponse:
			if err := copyOut(ctx); err != nil {
				return err
			}
		case packets.TypeReadyForQuery:
			var rfq packets.ReadyForQuery
			if !rfq.ReadFromPacket(ctx.Packet) {
				return ErrBadFormat
			}
			ctx.TxState = byte(rfq)
			ctx.PeerWrite()
			return nil
		default:
			return ErrUnexpectedPacket
		}
	}
}

func queryString(ctx *serverToPeerBinding, q string) error {
	qq := packets.Query(q)
	ctx.Packet = qq.IntoPacket(ctx.Packet)
	return query(ctx)
}

// QueryString runs a simple query on server, relaying results to peer if one
// is bound. The first error is the server's, the second the peer's; a peer
// error alone leaves the server healthy.
func QueryString(server, peer *fed.Conn, query string) (err, peerError error) {
	ctx := serverToPeerBinding{
		Server: server,
		Peer:   peer,
	}
	err = queryString(&ctx, query)
	peerError = ctx.PeerError
	return
}

// SetParameter runs SET name = 'value' on server.
func SetParameter(server, peer *fed.Conn, name strutil.CIString, value string) (err, peerError error) {
	var q strings.Builder
	escapedName := strutil.Escape(name.String(), '"')
	escapedValue := strutil.Escape(value, '\'')
	q.Grow(len("SET  = ") + len(escapedName) + len(escapedValue))
	q.WriteString("SET ")
	q.WriteString(escapedName)
	q.WriteString(" = ")
	q.WriteString(escapedValue)

	return QueryString(server, peer, q.String())
}

func functionCall(ctx *serverToPeerBinding) error {
	if err := ctx.ServerWrite(); err != nil {
		return err
	}

	for {
		if err := ctx.ServerRead(); err != nil {
			return err
		}

		switch ctx.Packet.Type() {
		case packets.TypeErrorResponse,
			packets.TypeFunctionCallResponse,
			packets.TypeNoticeResponse,
			packets.TypeParameterStatus,
			packets.TypeNotificationResponse:
			ctx.PeerWrite()
		case packets.TypeReadyForQuery:
			var rfq packets.ReadyForQuery
			if !rfq.ReadFromPacket(ctx.Packet) {
				return ErrBadFormat
			}
			ctx.TxState = byte(rfq)
			ctx.PeerWrite()
			return nil
		default:
			return ErrUnexpectedPacket
		}
	}
}

func sync(ctx *serverToPeerBinding) (bool, error) {
	if err := ctx.ServerWrite(); err != nil {
		return false, err
	}

	for {
		if err := ctx.ServerRead(); err != nil {
			return false, err
		}

		switch ctx.Packet.Type() {
		case packets.TypeParseComplete,
			packets.TypeBindComplete,
			packets.TypeCloseComplete,
			packets.TypeErrorResponse,
			packets.TypeRowDescription,
			packets.TypeNoData,
			packets.TypeParameterDescription,

			packets.TypeCommandComplete,
			packets.TypeDataRow,
			packets.TypeEmptyQueryResponse,
			packets.TypePortalSuspended,

			packets.TypeNoticeResponse,
			packets.TypeParameterStatus,
			packets.TypeNotificationResponse:
			ctx.PeerWrite()
		case packets.TypeCopyInResponse:
			if err := copyIn(ctx); err != nil {
				return false, err
			}
			return false, nil
		case packets.TypeCopyOutResponse:
			if err := copyOut(ctx); err != nil {
				return false, err
			}
		case packets.TypeReadyForQuery:
			var rfq packets.ReadyForQuery
			if !rfq.ReadFromPacket(ctx.Packet) {
				return false, ErrBadFormat
			}
			ctx.TxState = byte(rfq)
			ctx.PeerWrite()
			return true, nil
		default:
			return false, ErrUnexpectedPacket
		}
	}
}

// extendedQuery relays extended query protocol messages until the client's
// Sync completes. If the client dies partway, a Sync is injected so the
// server lands back on ReadyForQuery.
func extendedQuery(ctx *serverToPeerBinding) error {
	if err := ctx.ServerWrite(); err != nil {
		return err
	}

	for {
		if !ctx.PeerRead() {
			for {
				ctx.Packet = ctx.Packet.Reset(packets.TypeSync)
				ok, err := sync(ctx)
				if err != nil {
					return err
				}
				if ok {
					return nil
				}
			}
		}

		switch ctx.Packet.Type() {
		case packets.TypeSync:
			ok, err := sync(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		case packets.TypeParse, packets.TypeBind, packets.TypeClose, packets.TypeDescribe, packets.TypeExecute, packets.TypeFlush:
			if err := ctx.ServerWrite(); err != nil {
				return err
			}
		default:
			ctx.PeerFail(ErrUnexpectedPacket)
		}
	}
}

func transactionUnit(ctx *serverToPeerBinding) error {
	switch ctx.Packet.Type() {
	case packets.TypeQuery:
		return query(ctx)
	case packets.TypeFunctionCall:
		return functionCall(ctx)
	case packets.TypeSync:
		// client sync outside of extended query, answer directly
		rfq := packets.ReadyForQuery(ctx.TxState)
		ctx.Packet = rfq.IntoPacket(ctx.Packet)
		ctx.PeerWrite()
		return nil
	case packets.TypeParse, packets.TypeBind, packets.TypeClose, packets.TypeDescribe, packets.TypeExecute, packets.TypeFlush:
		return extendedQuery(ctx)
	default:
		ctx.PeerFail(ErrUnexpectedPacket)
		return nil
	}
}

func transaction(ctx *serverToPeerBinding) error {
	for {
		if err := transactionUnit(ctx); err != nil {
			return err
		}

		if ctx.TxState == 'I' {
			return nil
		}

		if !ctx.PeerRead() {
			// client died mid transaction, roll the server back
			if err := queryString(ctx, "ABORT;"); err != nil {
				return err
			}
			if ctx.TxState != 'I' {
				return ErrUnexpectedPacket
			}
			return nil
		}
	}
}

// Transaction relays one full client transaction starting at initialPacket,
// leaving the server idle. A peer failure mid transaction aborts on the
// server and is reported as peerError.
func Transaction(server, peer *fed.Conn, initialPacket fed.Packet) (packet fed.Packet, err, peerError error) {
	ctx := serverToPeerBinding{
		Server: server,
		Peer:   peer,
		Packet: initialPacket,
		// server was idle before this transaction
		TxState: 'I',
	}
	err = transaction(&ctx)
	if err == nil && ctx.PeerOK() {
		if e := peer.Flush(); e != nil {
			ctx.PeerFail(e)
		}
	}
	return ctx.Packet, err, ctx.PeerError
}

// Statement relays a single protocol unit starting at initialPacket. If the
// unit leaves a transaction open on the server it is rolled back and
// openTransaction is reported, so callers can reject transaction blocks.
func Statement(server, peer *fed.Conn, initialPacket fed.Packet) (packet fed.Packet, openTransaction bool, err, peerError error) {
	ctx := serverToPeerBinding{
		Server:  server,
		Peer:    peer,
		Packet:  initialPacket,
		TxState: 'I',
	}
	err = transactionUnit(&ctx)
	if err == nil && ctx.TxState != 'I' {
		openTransaction = true
		err = queryString(&ctx, "ABORT;")
	}
	if err == nil && ctx.PeerOK() {
		if e := peer.Flush(); e != nil {
			ctx.PeerFail(e)
		}
	}
	return ctx.Packet, openTransaction, err, ctx.PeerError
}
