package models

import (
	"encoding/json"
	"fmt"
)

// TriState is a three-valued preference: don't care, required, or must not.
type TriState int8

const (
	TriAny      TriState = 0
	TriRequired TriState = 1
	TriExcluded TriState = -1
)

// TriFromBool maps true to TriRequired and false to TriExcluded.
func TriFromBool(b bool) TriState {
	if b {
		return TriRequired
	}
	return TriExcluded
}

// Ptr returns a pointer to t, for building partial updates.
func (t TriState) Ptr() *TriState {
	return &t
}

func (t TriState) String() string {
	switch t {
	case TriRequired:
		return "required"
	case TriExcluded:
		return "excluded"
	default:
		return "any"
	}
}

// Accepts reports whether a property attribute satisfies the preference.
func (t TriState) Accepts(v bool) bool {
	switch t {
	case TriRequired:
		return v
	case TriExcluded:
		return !v
	default:
		return true
	}
}

// MarshalJSON encodes TriAny as null and the others as booleans.
func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case TriRequired:
		return []byte("true"), nil
	case TriExcluded:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (t *TriState) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = TriAny
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("tri-state must be true, false or null: %w", err)
	}
	*t = TriFromBool(b)
	return nil
}
