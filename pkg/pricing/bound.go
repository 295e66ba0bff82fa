package pricing

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Bound is the upper bound of a tier: either a concrete quantity or unbounded.
//
// On the wire (JSON, YAML, SQL) an unbounded value is written as 0.
type Bound struct {
	value   uint64
	bounded bool
}

// Bounded returns a bound at n
func Bounded(n uint64) Bound {
	return Bound{value: n, bounded: true}
}

// Unbounded returns a bound that absorbs any quantity
func Unbounded() Bound {
	return Bound{}
}

// BoundFromWire decodes the 0 = unbounded convention
func BoundFromWire(n uint64) Bound {
	if n == 0 {
		return Unbounded()
	}
	return Bounded(n)
}

// Wire encodes the bound with the 0 = unbounded convention
func (b Bound) Wire() uint64 {
	if !b.bounded {
		return 0
	}
	return b.value
}

// IsUnbounded reports whether the bound absorbs any quantity
func (b Bound) IsUnbounded() bool {
	return !b.bounded
}

// Value returns the concrete bound and whether it is bounded
func (b Bound) Value() (uint64, bool) {
	return b.value, b.bounded
}

// Covers reports whether q falls at or below the bound
func (b Bound) Covers(q uint64) bool {
	return !b.bounded || q <= b.value
}

func (b Bound) String() string {
	if !b.bounded {
		return "unbounded"
	}
	return strconv.FormatUint(b.value, 10)
}

// MarshalJSON implements json.Marshaler
func (b Bound) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Wire())
}

// UnmarshalJSON implements json.Unmarshaler
func (b *Bound) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid tier bound %s: %w", string(data), err)
	}
	*b = BoundFromWire(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (b Bound) MarshalYAML() (interface{}, error) {
	return b.Wire(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (b *Bound) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n uint64
	if err := unmarshal(&n); err != nil {
		return fmt.Errorf("invalid tier bound: %w", err)
	}
	*b = BoundFromWire(n)
	return nil
}
