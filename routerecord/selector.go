// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package routerecord

import (
	"encoding/hex"

	"github.com/facetroute/facetd/fault"
)

// SelectorLength - number of bytes in a selector
const SelectorLength = 4

// Selector - the 4 byte function identifier keyed by the dispatcher
// represented as hex text for JSON encoding
type Selector [SelectorLength]byte

// IsZero - check for the all-zero selector
func (selector Selector) IsZero() bool {
	return selector == Selector{}
}

// String - convert a selector to hex for use by the fmt package (for %s)
func (selector Selector) String() string {
	return hex.EncodeToString(selector[:])
}

// MarshalText - convert selector to hex text
func (selector Selector) MarshalText() ([]byte, error) {
	buffer := make([]byte, hex.EncodedLen(len(selector)))
	hex.Encode(buffer, selector[:])
	return buffer, nil
}

// UnmarshalText - convert hex text into a selector
func (selector *Selector) UnmarshalText(s []byte) error {
	if SelectorLength != hex.DecodedLen(len(s)) {
		return fault.NotDigest
	}
	byteCount, err := hex.Decode(selector[:], s)
	if nil != err {
		return err
	}
	if SelectorLength != byteCount {
		return fault.NotDigest
	}
	return nil
}

// SelectorFromHexString - convert and validate a hex string to a selector
func SelectorFromHexString(s string) (Selector, error) {
	var sel Selector
	err := sel.UnmarshalText([]byte(s))
	return sel, err
}
