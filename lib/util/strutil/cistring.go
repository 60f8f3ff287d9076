package strutil

import (
	"encoding/json"
	"strings"
)

// CIString is a case-insensitive string. Postgres treats most identifiers
// (usernames, database names) case-insensitively, so keys into pools and
// credential maps use this.
type CIString struct {
	value string
}

func MakeCIString(value string) CIString {
	return CIString{
		strings.ToLower(value),
	}
}

func (T *CIString) String() string {
	return T.value
}

func (T *CIString) MarshalJSON() ([]byte, error) {
	return json.Marshal(T.value)
}

func (T *CIString) UnmarshalJSON(bytes []byte) error {
	var value string
	if err := json.Unmarshal(bytes, &value); err != nil {
		return err
	}
	*T = MakeCIString(value)
	return nil
}

func (T *CIString) UnmarshalINI(bytes []byte) error {
	*T = MakeCIString(string(bytes))
	return nil
}

var _ json.Marshaler = (*CIString)(nil)
var _ json.Unmarshaler = (*CIString)(nil)
