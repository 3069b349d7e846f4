// Package address models 32-byte ledger addresses and the two deterministic derivations
// Anchor's IDL tooling uses to place its metadata account.
package address

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Size is the byte length of every ledger address.
const Size = 32

var ErrInvalidAddress = errors.New("invalid address")

// Address names an account or program on the ledger.
type Address [Size]byte

// Parse decodes the base58 text form. Anything that is not valid base58 or does not decode to
// exactly 32 bytes is rejected with ErrInvalidAddress.
func Parse(s string) (Address, error) {
	var a Address
	if s == "" {
		return a, fmt.Errorf("%w: empty string", ErrInvalidAddress)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if len(raw) != Size {
		return a, fmt.Errorf("%w: %q decodes to %d bytes, want %d", ErrInvalidAddress, s, len(raw), Size)
	}

	copy(a[:], raw)
	return a, nil
}

// MustParse is Parse for compile-time constants; it panics on bad input.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromBytes copies b into an Address.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Size {
		return a, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidAddress, len(b), Size)
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, a[:])
	return b
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
