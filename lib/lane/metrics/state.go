package metrics

type ConnState int

const (
	ConnStateIdle ConnState = iota
	ConnStateActive
	ConnStateAwaitingServer
	ConnStatePairing
	ConnStateRunningResetQuery
	ConnStateRunningCheckQuery

	ConnStateCount
)

var connStateString = [ConnStateCount]string{
	ConnStateIdle:              "idle",
	ConnStateActive:            "active",
	ConnStateAwaitingServer:    "waiting",
	ConnStatePairing:           "pairing",
	ConnStateRunningResetQuery: "reset query",
	ConnStateRunningCheckQuery: "check query",
}

func (T ConnState) String() string {
	return connStateString[T]
}
