// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package address

import (
	"encoding/hex"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"

	"github.com/facetroute/facetd/fault"
)

// Length - number of bytes in an address
const Length = 20

// length of the checksum appended for base58 display
const checksumLength = 4

// Address - the type for a module address
// stored as a fixed byte array
// represented as hex text for JSON encoding
// represented as base58 with checksum for display
// to convert to bytes just use a[:]
type Address [Length]byte

// Zero - the all-zero address, never a valid target
var Zero Address

// IsZero - check for the all-zero address
func (address Address) IsZero() bool {
	return address == Zero
}

// String - base58 with 4 byte SHA3-256 checksum for use by the fmt package (for %s)
func (address Address) String() string {
	checksum := sha3.Sum256(address[:])
	buffer := make([]byte, 0, Length+checksumLength)
	buffer = append(buffer, address[:]...)
	buffer = append(buffer, checksum[:checksumLength]...)
	return base58.Encode(buffer)
}

// GoString - base58 representation for use by the fmt package (for %#v)
func (address Address) GoString() string {
	return "<address:" + address.String() + ">"
}

// MarshalText - convert address to hex text
func (address Address) MarshalText() ([]byte, error) {
	buffer := make([]byte, hex.EncodedLen(len(address)))
	hex.Encode(buffer, address[:])
	return buffer, nil
}

// UnmarshalText - convert hex text into an address
func (address *Address) UnmarshalText(s []byte) error {
	if Length != hex.DecodedLen(len(s)) {
		return fault.NotAddress
	}
	byteCount, err := hex.Decode(address[:], s)
	if nil != err {
		return err
	}
	if Length != byteCount {
		return fault.NotAddress
	}
	return nil
}

// FromBytes - convert and validate a binary byte slice to an address
func FromBytes(address *Address, buffer []byte) error {
	if Length != len(buffer) {
		return fault.NotAddress
	}
	copy(address[:], buffer)
	return nil
}

// FromHexString - convert and validate a hex string to an address
func FromHexString(s string) (Address, error) {
	var a Address
	err := a.UnmarshalText([]byte(s))
	return a, err
}

// FromBase58 - convert and validate a base58 display string to an address
func FromBase58(s string) (Address, error) {
	var a Address
	buffer, err := base58.Decode(s)
	if nil != err {
		return a, fault.NotAddress
	}
	if Length+checksumLength != len(buffer) {
		return a, fault.NotAddress
	}
	checksum := sha3.Sum256(buffer[:Length])
	for i := 0; i < checksumLength; i += 1 {
		if buffer[Length+i] != checksum[i] {
			return a, fault.NotAddress
		}
	}
	copy(a[:], buffer[:Length])
	return a, nil
}
