package types

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Amount is an arbitrary-precision token amount in the smallest denomination.
// Amounts cross the RPC boundary as decimal strings, never as floats.
type Amount struct {
	i big.Int
}

// NewAmount creates an Amount from an int64.
func NewAmount(v int64) Amount {
	var a Amount
	a.i.SetInt64(v)
	return a
}

// AmountFromBig creates an Amount from a big.Int (copied, not aliased).
func AmountFromBig(v *big.Int) Amount {
	var a Amount
	if v != nil {
		a.i.Set(v)
	}
	return a
}

// ParseAmount parses a base-10 amount string.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if _, ok := a.i.SetString(s, 10); !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return a, nil
}

// Big returns a copy of the underlying big.Int.
func (a Amount) Big() *big.Int {
	return new(big.Int).Set(&a.i)
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.i.Add(&a.i, &b.i)
	return out
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	var out Amount
	out.i.Sub(&a.i, &b.i)
	return out
}

// Div returns a / d using integer (truncating) division.
func (a Amount) Div(d int64) Amount {
	var out Amount
	out.i.Div(&a.i, big.NewInt(d))
	return out
}

// Cmp compares a and b, returning -1, 0, or +1.
func (a Amount) Cmp(b Amount) int {
	return a.i.Cmp(&b.i)
}

// Sign returns -1, 0, or +1 depending on the sign of the amount.
func (a Amount) Sign() int {
	return a.i.Sign()
}

// IsZero returns true if the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.i.Sign() == 0
}

// String returns the base-10 representation.
func (a Amount) String() string {
	return a.i.String()
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.i.String())
}

// UnmarshalJSON decodes a decimal string into an amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		a.i.SetInt64(0)
		return nil
	}
	if _, ok := a.i.SetString(s, 10); !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	return nil
}
