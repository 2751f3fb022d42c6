// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storage - maintain the on-disk data store
//
// one leveldb database partitioned into pools by a single byte key
// prefix; each pool has exactly one authorised writer package
//
//	R → routes          written only by registry
//	F → facets          written only by registry
//	C → staged chunks   written only by chunk (append only)
//	X → content index   written only by chunk (append only)
//	E → epoch state     written only by epoch
//	G → governance      written only by governance
//	H → manifest headers written only by epoch on activation
//	S → shared dispatch state, the namespace facet handlers receive
//	Z → reserved for testing
package storage
