package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Slot is one state cell. Present is false when the cell does not exist at
// all, which is different from a present cell holding JSON null.
type Slot struct {
	Present bool
	Raw     json.RawMessage
}

// Absent returns the empty slot.
func Absent() Slot {
	return Slot{}
}

// Some returns a present slot holding raw.
func Some(raw json.RawMessage) Slot {
	return Slot{Present: true, Raw: raw}
}

// Equal reports whether two slots hold the same canonical value. Two absent
// slots are equal; an absent slot never equals a present one, even null.
func (s Slot) Equal(o Slot) bool {
	if s.Present != o.Present {
		return false
	}
	if !s.Present {
		return true
	}
	return Equal(s.Raw, o.Raw)
}

// Equal compares two raw JSON values by their canonical encoding. Invalid JSON
// on either side falls back to byte comparison.
func Equal(a, b json.RawMessage) bool {
	ca, errA := Canonicalize(a)
	cb, errB := Canonicalize(b)
	if errA != nil || errB != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca, cb)
}

// State maps hook ids to their persisted JSON value.
type State map[string]json.RawMessage

// Lookup returns the slot for id.
func (s State) Lookup(id string) Slot {
	raw, ok := s[id]
	if !ok {
		return Absent()
	}
	return Some(raw)
}

// Clone returns a copy of s. Raw values are immutable by convention and are
// shared.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}

// Set stores v under id after marshalling it canonically.
func (s State) Set(id string, v any) error {
	raw, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Errorf("state %q: %w", id, err)
	}
	s[id] = raw
	return nil
}
