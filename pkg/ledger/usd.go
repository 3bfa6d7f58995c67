package ledger

import (
	"bytes"
	"encoding/json"
	"math"
)

// USD is an optional dollar value. The zero value is unresolved, which is
// distinct from a resolved value of 0.
type USD struct {
	value    float64
	resolved bool
}

// Resolved wraps a priced value.
func Resolved(v float64) USD {
	return USD{value: v, resolved: true}
}

// Unresolved returns the "no price available" state.
func Unresolved() USD {
	return USD{}
}

// Get returns the value and whether it was resolved.
func (u USD) Get() (float64, bool) {
	return u.value, u.resolved
}

// IsResolved reports whether a price was found.
func (u USD) IsResolved() bool {
	return u.resolved
}

// Or returns the value, or fallback when unresolved.
func (u USD) Or(fallback float64) float64 {
	if !u.resolved {
		return fallback
	}
	return u.value
}

// MarshalJSON encodes unresolved values as null.
func (u USD) MarshalJSON() ([]byte, error) {
	if !u.resolved || math.IsNaN(u.value) || math.IsInf(u.value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(u.value)
}

// UnmarshalJSON accepts a number or null.
func (u *USD) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*u = Unresolved()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*u = Resolved(v)
	return nil
}
