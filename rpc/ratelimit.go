// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/facetroute/facetd/fault"
)

// reserve n slots and wait out the imposed delay
func waitReservation(limiter *rate.Limiter, n int) error {
	r := limiter.ReserveN(time.Now(), n)
	if !r.OK() {
		return fault.RateLimiting
	}
	time.Sleep(r.Delay())
	return nil
}

// limiting for a single request
func rateLimit(limiter *rate.Limiter) error {
	return waitReservation(limiter, 1)
}

// limiting for a multiple request
//
// an out of range count is charged as a single request and rejected
func rateLimitN(limiter *rate.Limiter, count int, maximumCount int) error {
	if count <= 0 || count > maximumCount {
		if err := waitReservation(limiter, 1); nil != err {
			return err
		}
		return fault.InvalidCount
	}
	return waitReservation(limiter, count)
}
