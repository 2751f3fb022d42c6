// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package configuration

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"io"

	argon2 "github.com/bitmark-inc/go-argon2"

	"github.com/facetroute/facetd/fault"
)

// operator tokens are never stored; the configuration holds an argon2
// hash and a salt, and each mutating RPC call presents the token for
// re-hashing

const saltSize = 16

// Salt - random bytes mixed into the operator token hash
type Salt [saltSize]byte

// MakeSalt - create a new random salt
func MakeSalt() (*Salt, error) {
	salt := new(Salt)
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return salt, err
	}
	return salt, nil
}

// Bytes - convert a binary salt to byte slice
func (salt Salt) Bytes() []byte {
	return salt[:]
}

// String - convert a binary salt to hex string for use by the fmt package (for %s)
func (salt Salt) String() string {
	return hex.EncodeToString(salt.Bytes())
}

// MarshalText - convert salt to hex text
func (salt Salt) MarshalText() ([]byte, error) {
	size := hex.EncodedLen(saltSize)
	buffer := make([]byte, size)
	hex.Encode(buffer, salt.Bytes())
	return buffer, nil
}

// UnmarshalText - convert hex text into a salt
func (salt *Salt) UnmarshalText(s []byte) error {
	buffer := make([]byte, hex.DecodedLen(len(s)))
	byteCount, err := hex.Decode(buffer, s)
	if nil != err {
		return err
	}
	if saltSize != byteCount {
		return fault.InvalidOperatorToken
	}
	copy(salt[:], buffer)
	return nil
}

// hashing parameters fixed so stored hashes stay verifiable
func argonContext() *argon2.Context {
	return &argon2.Context{
		Iterations:  5,
		Memory:      1 << 16,
		Parallelism: 4,
		HashLen:     32,
		Mode:        argon2.ModeArgon2i,
		Version:     argon2.Version13,
	}
}

// HashOperatorToken - derive the storable hex hash of a token
func HashOperatorToken(token string, salt *Salt) (string, error) {
	hash, err := argon2.Hash(argonContext(), []byte(token), salt.Bytes())
	if nil != err {
		return "", err
	}
	return hex.EncodeToString(hash), nil
}

// VerifyOperatorToken - check a presented token against the stored hash
func VerifyOperatorToken(token string, saltHex string, hashHex string) error {
	if "" == token || "" == saltHex || "" == hashHex {
		return fault.InvalidOperatorToken
	}

	salt := &Salt{}
	if err := salt.UnmarshalText([]byte(saltHex)); nil != err {
		return fault.InvalidOperatorToken
	}
	expected, err := hex.DecodeString(hashHex)
	if nil != err {
		return fault.InvalidOperatorToken
	}

	hash, err := argon2.Hash(argonContext(), []byte(token), salt.Bytes())
	if nil != err {
		return fault.InvalidOperatorToken
	}
	if 1 != subtle.ConstantTimeCompare(hash, expected) {
		return fault.InvalidOperatorToken
	}
	return nil
}
