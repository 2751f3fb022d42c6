// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package merkle

import (
	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/routerecord"
)

// RouteLeaf - the canonical leaf digest for a route
func RouteLeaf(selector routerecord.Selector, moduleAddress address.Address, codeIdentity digest.Digest) digest.Digest {
	return NewLeaf(routerecord.PackRoute(selector, moduleAddress, codeIdentity))
}

// VerifyRoute - compute the canonical route leaf and verify its membership
func VerifyRoute(selector routerecord.Selector, moduleAddress address.Address, codeIdentity digest.Digest, siblings []digest.Digest, positions uint64, root digest.Digest) (bool, error) {
	return Verify(RouteLeaf(selector, moduleAddress, codeIdentity), siblings, positions, root)
}
