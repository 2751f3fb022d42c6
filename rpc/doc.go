// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rpc - JSON-RPC operational surface
//
// read queries are open; mutating calls additionally carry an
// operator token that is verified against the argon2 hash held in the
// configuration.  every handler owns a rate limiter.
package rpc
