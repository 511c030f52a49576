// Package wire normalizes inbound payloads at the transport boundary.
//
// The server emits the same logical field under either snake_case or
// camelCase depending on which backend path produced the message. One decode
// function per message type resolves the aliases here so business logic
// never carries a ?? fallback chain.
// FUNCTIONAL DISCOVERY: the explicit snake_case key wins when both aliases
// are present in the same object
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// object is one parsed JSON object with alias-aware field access.
type object map[string]json.RawMessage

func parse(raw []byte) (object, error) {
	if len(raw) == 0 {
		return object{}, nil
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}
	return o, nil
}

// raw returns the first present alias, in preference order.
func (o object) raw(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := o[k]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

// has reports whether any alias is present, including an explicit null.
// TECHNICAL DISCOVERY: an explicit null clears a field; an absent field
// leaves it untouched - the distinction matters for partial patches
func (o object) has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := o[k]; ok {
			return true
		}
	}
	return false
}

func (o object) str(keys ...string) (string, bool) {
	v, ok := o.raw(keys...)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func (o object) int64(keys ...string) (int64, bool) {
	v, ok := o.raw(keys...)
	if !ok {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, false
	}
	return n, true
}

func (o object) float64(keys ...string) (float64, bool) {
	v, ok := o.raw(keys...)
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, false
	}
	return f, true
}

func (o object) boolean(keys ...string) (bool, bool) {
	v, ok := o.raw(keys...)
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false, false
	}
	return b, true
}

func (o object) ints(keys ...string) ([]int, bool) {
	v, ok := o.raw(keys...)
	if !ok {
		return nil, false
	}
	var ns []int
	if err := json.Unmarshal(v, &ns); err != nil {
		return nil, false
	}
	return ns, true
}

func (o object) int64s(keys ...string) ([]int64, bool) {
	v, ok := o.raw(keys...)
	if !ok {
		return nil, false
	}
	var ns []int64
	if err := json.Unmarshal(v, &ns); err != nil {
		return nil, false
	}
	return ns, true
}

func (o object) timestamp(keys ...string) (time.Time, bool) {
	s, ok := o.str(keys...)
	if !ok {
		return time.Time{}, false
	}
	// FUNCTIONAL DISCOVERY: some backend paths drop the zone suffix
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
