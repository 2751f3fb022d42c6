// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package routerecord - canonical encodings for routes and manifest headers
//
// a route binds a 4 byte selector to a module address and the digest of
// the module code that was current when the manifest was built
//
// packed encodings are fixed width with all integers big endian, so two
// distinct records can never produce the same bytes
package routerecord
