// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"github.com/bitmark-inc/logger"
	"golang.org/x/time/rate"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/merkle"
	"github.com/facetroute/facetd/registry"
	"github.com/facetroute/facetd/routerecord"
)

// Routes - route and facet queries
type Routes struct {
	log     *logger.L
	limiter *rate.Limiter
}

// limits for facet listing
const maximumListCount = 100

// ---

// ResolveArguments - selector to look up
type ResolveArguments struct {
	Selector routerecord.Selector `json:"selector"`
}

// ResolveReply - the registered route
type ResolveReply struct {
	Selector        routerecord.Selector `json:"selector"`
	ModuleAddress   address.Address      `json:"moduleAddress"`
	CodeIdentity    digest.Digest        `json:"codeIdentity"`
	RegisteredEpoch uint64               `json:"registeredEpoch"`
}

// Resolve - look up the route for a selector
func (routes *Routes) Resolve(arguments *ResolveArguments, reply *ResolveReply) error {
	if err := rateLimit(routes.limiter); nil != err {
		return err
	}

	entry, err := registry.Resolve(arguments.Selector)
	if nil != err {
		return err
	}
	reply.Selector = arguments.Selector
	reply.ModuleAddress = entry.ModuleAddress
	reply.CodeIdentity = entry.CodeIdentity
	reply.RegisteredEpoch = entry.RegisteredEpoch
	return nil
}

// ---

// FacetArguments - module address to describe
type FacetArguments struct {
	ModuleAddress address.Address `json:"moduleAddress"`
}

// FacetReply - the module descriptor
type FacetReply struct {
	ModuleAddress   address.Address        `json:"moduleAddress"`
	Selectors       []routerecord.Selector `json:"selectors"`
	Active          bool                   `json:"active"`
	RegisteredEpoch uint64                 `json:"registeredEpoch"`
}

// Facet - describe one module
func (routes *Routes) Facet(arguments *FacetArguments, reply *FacetReply) error {
	if err := rateLimit(routes.limiter); nil != err {
		return err
	}

	info, err := registry.Facet(arguments.ModuleAddress)
	if nil != err {
		return err
	}
	reply.ModuleAddress = info.ModuleAddress
	reply.Selectors = info.Selectors
	reply.Active = info.Active
	reply.RegisteredEpoch = info.RegisteredEpoch
	return nil
}

// ---

// ListArguments - pagination: start is exclusive, zero to begin
type ListArguments struct {
	Start address.Address `json:"start"`
	Count int             `json:"count"`
}

// ListReply - one page of facet addresses
type ListReply struct {
	Facets []address.Address `json:"facets"`
}

// List - paginated facet address listing
func (routes *Routes) List(arguments *ListArguments, reply *ListReply) error {
	if err := rateLimitN(routes.limiter, arguments.Count, maximumListCount); nil != err {
		return err
	}

	facets, err := registry.ListFacets(arguments.Start, arguments.Count)
	if nil != err {
		return err
	}
	reply.Facets = facets
	return nil
}

// ---

// VerifyArguments - an independent proof check
type VerifyArguments struct {
	Selector      routerecord.Selector  `json:"selector"`
	ModuleAddress address.Address       `json:"moduleAddress"`
	CodeIdentity  digest.Digest         `json:"codeIdentity"`
	Siblings      []digest.Digest       `json:"proof"`
	Positions     routerecord.Positions `json:"positions"`
	Root          digest.Digest         `json:"root"`
}

// VerifyReply - proof validity
type VerifyReply struct {
	OK bool `json:"ok"`
}

// Verify - check a route proof against any root
func (routes *Routes) Verify(arguments *VerifyArguments, reply *VerifyReply) error {
	if err := rateLimit(routes.limiter); nil != err {
		return err
	}

	ok, err := merkle.VerifyRoute(arguments.Selector, arguments.ModuleAddress,
		arguments.CodeIdentity, arguments.Siblings, uint64(arguments.Positions), arguments.Root)
	if nil != err {
		return err
	}
	reply.OK = ok
	return nil
}
