// Package types defines the core value types shared by the VM and the scenario runner.
//
// Addresses are 32 bytes. An address whose first 8 bytes are zero designates a
// smart contract; every other address is a user account. Addresses render as
// lowercase hex and can be converted to and from their bech32 ("erd1...") form.
package types

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Size constants for core types.
const (
	AddressSize = 32
	HashSize    = 32

	// SCAddressZeroPrefix is the number of leading zero bytes that mark a contract address.
	SCAddressZeroPrefix = 8

	// AddressHRP is the human readable part of bech32 addresses.
	AddressHRP = "erd"
)

var (
	// ErrInvalidAddress is returned when an address has invalid length.
	ErrInvalidAddress = errors.New("invalid address: must be 32 bytes")

	// ErrInvalidHash is returned when a hash has invalid length.
	ErrInvalidHash = errors.New("invalid hash: must be 32 bytes")

	// ErrInvalidBech32 is returned when a bech32 string does not decode to an address.
	ErrInvalidBech32 = errors.New("invalid bech32 address")
)

// Address identifies an account.
type Address [AddressSize]byte

// AddressFromBytes creates an Address from a byte slice.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromHex parses a hex-encoded address.
func AddressFromHex(s string) (Address, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, errors.Wrap(err, "hex decode")
	}
	return AddressFromBytes(data)
}

// AddressFromBech32 parses a bech32-encoded address with the "erd" prefix.
func AddressFromBech32(s string) (Address, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return Address{}, errors.Wrap(err, "bech32 decode")
	}
	if hrp != AddressHRP {
		return Address{}, errors.Wrapf(ErrInvalidBech32, "unexpected prefix %q", hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, errors.Wrap(err, "bech32 convert bits")
	}
	addr, err := AddressFromBytes(raw)
	if err != nil {
		return Address{}, ErrInvalidBech32
	}
	return addr, nil
}

// MustAddressFromHex parses a hex address or panics. Used for package-level constants.
func MustAddressFromHex(s string) Address {
	a, err := AddressFromHex(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsSmartContract reports whether the address designates a contract.
func (a Address) IsSmartContract() bool {
	for _, b := range a[:SCAddressZeroPrefix] {
		if b != 0 {
			return false
		}
	}
	return true
}

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte {
	return a[:]
}

// TopEncode returns the raw 32 bytes; addresses encode the same way top-level and nested.
func (a Address) TopEncode() ([]byte, error) {
	return a[:], nil
}

// Hex returns the hex-encoded representation.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bech32 returns the bech32 representation.
func (a Address) Bech32() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return ""
	}
	s, err := bech32.Encode(AddressHRP, conv)
	if err != nil {
		return ""
	}
	return s
}

// String returns a readable form of the address. Addresses built from
// printable names (as scenario files do) are shown as such.
func (a Address) String() string {
	if name, ok := a.printableName(); ok {
		if a.IsSmartContract() {
			return "sc:" + name
		}
		return "address:" + name
	}
	return "0x" + a.Hex()
}

func (a Address) printableName() (string, bool) {
	raw := a[:]
	if a.IsSmartContract() {
		raw = a[SCAddressZeroPrefix:]
	}
	end := len(raw)
	for end > 0 && raw[end-1] == '_' {
		end--
	}
	if end == 0 {
		return "", false
	}
	for _, b := range raw[:end] {
		if b < 0x20 || b > 0x7e {
			return "", false
		}
	}
	return string(raw[:end]), true
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte("0x" + a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) > 2 && s[:2] == "0x" {
		s = s[2:]
	}
	parsed, err := AddressFromHex(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Hash represents a 32-byte transaction hash.
type Hash [HashSize]byte

// HashFromBase58 parses a base58-encoded hash.
func HashFromBase58(s string) (Hash, error) {
	var h Hash
	data, err := base58.Decode(s)
	if err != nil {
		return h, errors.Wrap(err, "base58 decode")
	}
	if len(data) != HashSize {
		return h, ErrInvalidHash
	}
	copy(h[:], data)
	return h, nil
}

// HashFromBytes creates a Hash from a byte slice.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, ErrInvalidHash
	}
	copy(h[:], b)
	return h, nil
}

// String returns the base58-encoded representation.
func (h Hash) String() string {
	return base58.Encode(h[:])
}

// Hex returns the hex-encoded representation.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte {
	return h[:]
}
