package api

import (
	"encoding/json"
	"strings"
)

// envelope is the {success, message, ...} object every endpoint answers with.
type envelope struct {
	Success *bool
	Message string
	Fields  map[string]json.RawMessage
	raw     json.RawMessage
}

func (e *envelope) success() bool { return e.Success != nil && *e.Success }

func (e *envelope) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	e.Fields = fields
	e.raw = append(json.RawMessage(nil), b...)

	if v, ok := fields["success"]; ok {
		ok, err := parseFlag(v)
		if err != nil {
			return err
		}
		e.Success = &ok
	}
	for _, key := range []string{"message", "error"} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		var msg string
		if json.Unmarshal(v, &msg) == nil && msg != "" {
			e.Message = msg
			break
		}
	}
	return nil
}

// parseFlag accepts true/false and the "1"/"0"/"true" forms PHP emits.
func parseFlag(v json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, nil
	}
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return n != 0, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "ok", "yes":
		return true, nil
	}
	return false, nil
}
