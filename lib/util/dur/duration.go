package dur

import (
	"encoding/json"
	"strconv"
	"time"
)

// Duration is a time.Duration that unmarshals from "30s" style strings in
// JSON and INI, or from a bare number of seconds the way pgbouncer configs
// write delays.
type Duration time.Duration

func (T Duration) Duration() time.Duration {
	return time.Duration(T)
}

func (T *Duration) UnmarshalJSON(bytes []byte) error {
	var str string
	if err := json.Unmarshal(bytes, &str); err == nil {
		d, err := time.ParseDuration(str)
		if err != nil {
			return err
		}
		*T = Duration(d)
		return nil
	}

	var num float64
	if err := json.Unmarshal(bytes, &num); err != nil {
		return err
	}
	*T = Duration(num * float64(time.Second))
	return nil
}

func (T *Duration) UnmarshalINI(bytes []byte) error {
	if secs, err := strconv.ParseFloat(string(bytes), 64); err == nil {
		*T = Duration(secs * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(string(bytes))
	if err != nil {
		return err
	}
	*T = Duration(d)
	return nil
}

var _ json.Unmarshaler = (*Duration)(nil)
