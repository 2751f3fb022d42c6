// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fault

// GenericError - error base
type GenericError string

// to allow for different classes of errors
type (
	AccessError   GenericError
	ExistsError   GenericError
	InvalidError  GenericError
	LengthError   GenericError
	NotFoundError GenericError
	ProcessError  GenericError
	StateError    GenericError
)

// common errors - keep in alphabetic order
var (
	ActivationNotReady           = StateError("activation delay has not elapsed")
	AlreadyInitialised           = ExistsError("already initialised")
	AlreadyPending               = ExistsError("a manifest root is already pending")
	AlreadyStaged                = ExistsError("chunk content is already staged")
	BadEpoch                     = InvalidError("epoch must exceed the active epoch")
	BatchTooLarge                = LengthError("route batch is too large")
	CertificateFileAlreadyExists = ExistsError("certificate file already exists")
	ChunkEmpty                   = LengthError("chunk content is empty")
	ChunkNotFound                = NotFoundError("chunk not found")
	ChunkTooLarge                = LengthError("chunk content exceeds maximum size")
	CodehashMismatch             = ProcessError("live code hash does not match route")
	ConfigurationIsNotATable     = InvalidError("configuration script must return a table")
	DuplicateSelector            = ExistsError("duplicate selector in batch")
	ExcessPositionBits           = InvalidError("position bits exceed proof length")
	FeeMismatch                  = InvalidError("attached fee does not match tier fee")
	Frozen                       = StateError("governance is frozen")
	HeaderNotFound               = NotFoundError("manifest header not found")
	InvalidCount                 = InvalidError("invalid count")
	InvalidDelay                 = InvalidError("activation delay out of bounds")
	InvalidFeeTier               = InvalidError("invalid fee tier")
	InvalidHeaderLength          = LengthError("invalid header length")
	InvalidLoggerChannel         = InvalidError("invalid logger channel")
	InvalidOperatorToken         = AccessError("invalid operator token")
	InvalidProof                 = ProcessError("proof does not verify against root")
	InvalidStructPointer         = InvalidError("invalid struct pointer")
	KeyFileAlreadyExists         = ExistsError("key file already exists")
	ManifestHashMismatch         = InvalidError("manifest hash mismatch")
	MissingParameters            = LengthError("missing parameters")
	NoHandler                    = NotFoundError("no handler for module")
	NoPendingRoot                = NotFoundError("no pending manifest root")
	NoQueuedRotation             = NotFoundError("no queued governance rotation")
	NoRoute                      = NotFoundError("no route for selector")
	NotAddress                   = InvalidError("not an address")
	NotDigest                    = InvalidError("not a digest")
	NotGovernor                  = AccessError("caller is not the governor")
	NotGuardian                  = AccessError("caller is not the guardian")
	NotInitialised               = NotFoundError("not initialised")
	Paused                       = StateError("system is paused")
	ProofTooDeep                 = LengthError("proof exceeds maximum depth")
	RateLimiting                 = ProcessError("rate limiting")
	ReentrantCall                = ProcessError("reentrant call rejected")
	ReturnDataTooLarge           = LengthError("return data exceeds configured cap")
	RootZero                     = InvalidError("manifest root is zero")
	RotationNotReady             = StateError("rotation delay has not elapsed")
	RotationPending              = ExistsError("a governance rotation is already queued")
	WrongDatabaseVersion         = ProcessError("database version mismatch")
	ZeroAddress                  = InvalidError("zero address is not allowed")
	ZeroCode                     = NotFoundError("module has zero or empty code")
	ZeroSelector                 = InvalidError("zero selector is not allowed")
)

// Error - the error interface base method
func (e GenericError) Error() string { return string(e) }

// the error interface methods
func (e AccessError) Error() string   { return string(e) }
func (e ExistsError) Error() string   { return string(e) }
func (e InvalidError) Error() string  { return string(e) }
func (e LengthError) Error() string   { return string(e) }
func (e NotFoundError) Error() string { return string(e) }
func (e ProcessError) Error() string  { return string(e) }
func (e StateError) Error() string    { return string(e) }

// determine the class of an error
func IsErrAccess(e error) bool   { _, ok := e.(AccessError); return ok }
func IsErrExists(e error) bool   { _, ok := e.(ExistsError); return ok }
func IsErrInvalid(e error) bool  { _, ok := e.(InvalidError); return ok }
func IsErrLength(e error) bool   { _, ok := e.(LengthError); return ok }
func IsErrNotFound(e error) bool { _, ok := e.(NotFoundError); return ok }
func IsErrProcess(e error) bool  { _, ok := e.(ProcessError); return ok }
func IsErrState(e error) bool    { _, ok := e.(StateError); return ok }
