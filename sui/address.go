// Package sui is a small client for the Sui network: JSON-RPC access, the
// faucet, BCS transaction encoding and Ed25519 intent signing.
package sui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmcleod/suilink/internal/util"
)

// AddressLength is the byte length of a Sui address or object ID.
const AddressLength = 32

// Address is a Sui account address or object ID.
type Address [AddressLength]byte

// ErrInvalidAddress is returned by ParseAddress for malformed addresses.
var ErrInvalidAddress = errors.New("invalid address")

// ParseAddress parses a 0x-prefixed hex address, left-padding short forms
// such as 0x2.
func ParseAddress(s string) (Address, error) {
	var a Address
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return a, fmt.Errorf("%w: %q must start with 0x", ErrInvalidAddress, s)
	}
	hexPart := trimmed[2:]
	if hexPart == "" || len(hexPart) > AddressLength*2 {
		return a, fmt.Errorf("%w: %q has invalid length", ErrInvalidAddress, s)
	}
	b, err := util.HexDecode(hexPart)
	if err != nil {
		return a, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}
	copy(a[:], util.LeftPad(b, AddressLength))
	return a, nil
}

// MustParseAddress is ParseAddress for constants; it panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the canonical 0x-prefixed 64 hex character form.
func (a Address) String() string {
	return "0x" + util.HexEncode(a[:])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// NormalizeAddress returns the canonical form of s.
func NormalizeAddress(s string) (string, error) {
	a, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}
