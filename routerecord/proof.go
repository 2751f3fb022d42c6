// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package routerecord

import (
	"strconv"

	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
)

// Positions - the proof position bitfield
//
// bit i (LSB first) set means sibling i is the left operand;
// represented as a hex string in JSON so large bitfields survive
// JSON number precision
type Positions uint64

// MarshalText - convert positions to hex text
func (positions Positions) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(positions), 16)), nil
}

// UnmarshalText - convert hex text into positions
func (positions *Positions) UnmarshalText(s []byte) error {
	value, err := strconv.ParseUint(string(s), 16, 64)
	if nil != err {
		return fault.ExcessPositionBits
	}
	*positions = Positions(value)
	return nil
}

// ProvedRoute - a route together with its membership proof
//
// the route fields are embedded so the JSON form matches the manifest
// artifact: selector, moduleAddress, codeIdentity, proof, positions
type ProvedRoute struct {
	Route
	Siblings  []digest.Digest `json:"proof"`
	Positions Positions       `json:"positions"`
}
