// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package routerecord

import (
	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/digest"
)

// Packed - a packed record ready for hashing
type Packed []byte

// Route - a binding from a selector to a module and its committed code identity
type Route struct {
	Selector      Selector        `json:"selector"`
	ModuleAddress address.Address `json:"moduleAddress"`
	CodeIdentity  digest.Digest   `json:"codeIdentity"`
}

// RoutePackedLength - selector + address + code identity
const RoutePackedLength = SelectorLength + address.Length + digest.Length

// Pack - canonical fixed width leaf encoding of a route
func (route *Route) Pack() Packed {
	buffer := make([]byte, 0, RoutePackedLength)
	buffer = append(buffer, route.Selector[:]...)
	buffer = append(buffer, route.ModuleAddress[:]...)
	buffer = append(buffer, route.CodeIdentity[:]...)
	return buffer
}

// PackRoute - canonical leaf encoding from separate fields
func PackRoute(selector Selector, moduleAddress address.Address, codeIdentity digest.Digest) Packed {
	r := Route{
		Selector:      selector,
		ModuleAddress: moduleAddress,
		CodeIdentity:  codeIdentity,
	}
	return r.Pack()
}
