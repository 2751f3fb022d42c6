// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dispatcher

import (
	"encoding/binary"
	"sort"

	"github.com/bitmark-inc/logger"

	"github.com/facetroute/facetd/storage"
)

// stagedState - a write buffer in front of a storage pool
//
// handler writes collect here and only reach the underlying pool on
// commit; reads see the buffered writes first.  a dispatch that fails
// simply drops the buffer, so no partial state is ever persisted
type stagedState struct {
	base    storage.Handle
	puts    map[string][]byte
	deletes map[string]struct{}
}

func newStagedState(base storage.Handle) *stagedState {
	return &stagedState{
		base:    base,
		puts:    make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Put - buffer a key/value pair
func (s *stagedState) Put(key []byte, value []byte) {
	buffered := make([]byte, len(value))
	copy(buffered, value)
	s.puts[string(key)] = buffered
	delete(s.deletes, string(key))
}

// Delete - buffer the removal of a key
func (s *stagedState) Delete(key []byte) {
	delete(s.puts, string(key))
	s.deletes[string(key)] = struct{}{}
}

// Get - read a value, buffered writes shadow the pool
//
// returns nil if the key was not found
func (s *stagedState) Get(key []byte) []byte {
	if _, ok := s.deletes[string(key)]; ok {
		return nil
	}
	if value, ok := s.puts[string(key)]; ok {
		buffered := make([]byte, len(value))
		copy(buffered, value)
		return buffered
	}
	return s.base.Get(key)
}

// GetN - read a record and decode first 8 bytes as big endian uint64
//
// second parameter is false if record was not found
// panics if not 8 (or more) bytes in the record
func (s *stagedState) GetN(key []byte) (uint64, bool) {
	buffer := s.Get(key)
	if nil == buffer {
		return 0, false
	}
	if len(buffer) < 8 {
		logger.Panicf("stagedState.GetN truncated record for: %x: %s", key, buffer)
	}
	return binary.BigEndian.Uint64(buffer[:8]), true
}

// Has - check if a key exists
func (s *stagedState) Has(key []byte) bool {
	if _, ok := s.deletes[string(key)]; ok {
		return false
	}
	if _, ok := s.puts[string(key)]; ok {
		return true
	}
	return s.base.Has(key)
}

// Count - number of records visible through the buffer
func (s *stagedState) Count() int {
	n := 0
	s.Range(func(_ []byte, _ []byte) bool {
		n += 1
		return true
	})
	return n
}

// Range - iterate the merged view in key order
//
// the callback receives copies; returning false stops the iteration
func (s *stagedState) Range(fn func(key []byte, value []byte) bool) {
	merged := make(map[string][]byte)
	s.base.Range(func(key []byte, value []byte) bool {
		merged[string(key)] = value
		return true
	})
	for key := range s.deletes {
		delete(merged, key)
	}
	for key, value := range s.puts {
		merged[key] = value
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := merged[key]
		buffered := make([]byte, len(value))
		copy(buffered, value)
		if !fn([]byte(key), buffered) {
			return
		}
	}
}

// commit - flush the buffered writes to the underlying pool
func (s *stagedState) commit() {
	for key := range s.deletes {
		s.base.Delete([]byte(key))
	}
	for key, value := range s.puts {
		s.base.Put([]byte(key), value)
	}
}
