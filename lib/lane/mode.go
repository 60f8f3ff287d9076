package lane

import (
	"encoding/json"
	"fmt"
)

// PoolMode decides when a client gives its server connection back.
type PoolMode int

const (
	// ModeSession holds the server from login to disconnect.
	ModeSession PoolMode = iota
	// ModeTransaction holds the server for the duration of one transaction.
	ModeTransaction
	// ModeStatement holds the server for a single statement. Transaction
	// blocks are not allowed.
	ModeStatement
)

func (T PoolMode) String() string {
	switch T {
	case ModeSession:
		return "session"
	case ModeTransaction:
		return "transaction"
	case ModeStatement:
		return "statement"
	default:
		return fmt.Sprintf("PoolMode(%d)", int(T))
	}
}

func (T *PoolMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "session":
		*T = ModeSession
	case "transaction":
		*T = ModeTransaction
	case "statement":
		*T = ModeStatement
	default:
		return fmt.Errorf("unknown pool mode: %s", text)
	}
	return nil
}

func (T *PoolMode) UnmarshalINI(bytes []byte) error {
	return T.UnmarshalText(bytes)
}

func (T *PoolMode) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	return T.UnmarshalText([]byte(s))
}

func (T PoolMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(T.String())
}
