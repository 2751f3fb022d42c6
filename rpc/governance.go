// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"time"

	"github.com/bitmark-inc/logger"
	"golang.org/x/time/rate"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/epoch"
	"github.com/facetroute/facetd/governance"
	"github.com/facetroute/facetd/registry"
	"github.com/facetroute/facetd/routerecord"
)

// Governance - mutating governance calls
//
// every call carries the operator token and the acting address; the
// token gates access to the node, the address is what the governance
// role checks run against
type Governance struct {
	log     *logger.L
	limiter *rate.Limiter
}

// limits for route batches
const maximumRouteCount = registry.MaximumBatchSize

// ---

// CommitArguments - commit a new manifest root
type CommitArguments struct {
	OperatorToken string          `json:"operatorToken"`
	Caller        address.Address `json:"caller"`
	Root          digest.Digest   `json:"root"`
	Epoch         uint64          `json:"epoch"`
}

// CommitReply - the resulting pending state
type CommitReply struct {
	PendingRoot  digest.Digest `json:"pendingRoot"`
	PendingEpoch uint64        `json:"pendingEpoch"`
	ReadyAt      uint64        `json:"readyAt"`
}

// CommitRoot - record a root as pending
func (gov *Governance) CommitRoot(arguments *CommitArguments, reply *CommitReply) error {
	if err := rateLimit(gov.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	err := epoch.CommitRoot(arguments.Caller, arguments.Root, arguments.Epoch)
	if nil != err {
		return err
	}

	status := epoch.GetStatus()
	reply.PendingRoot = status.PendingRoot
	reply.PendingEpoch = status.PendingEpoch
	reply.ReadyAt = status.PendingReadyAt
	return nil
}

// ---

// ActivateArguments - activate the pending root
//
// the proved route set must accompany the activation so the registry
// can be rebuilt and every proof verified against the new root
type ActivateArguments struct {
	OperatorToken string                    `json:"operatorToken"`
	Routes        []routerecord.ProvedRoute `json:"routes"`
}

// ActivateReply - the newly active state
type ActivateReply struct {
	ActiveRoot   digest.Digest `json:"activeRoot"`
	ActiveEpoch  uint64        `json:"activeEpoch"`
	ManifestHash digest.Digest `json:"manifestHash"`
}

// Activate - promote the pending root
func (gov *Governance) Activate(arguments *ActivateArguments, reply *ActivateReply) error {
	if err := rateLimitN(gov.limiter, len(arguments.Routes), maximumRouteCount); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	manifestHash, err := epoch.ActivateCommittedRoot(arguments.Routes)
	if nil != err {
		return err
	}

	reply.ActiveRoot = epoch.ActiveRoot()
	reply.ActiveEpoch = epoch.ActiveEpoch()
	reply.ManifestHash = manifestHash
	return nil
}

// ---

// ApplyArguments - incremental proved batch against the active root
type ApplyArguments struct {
	OperatorToken string                    `json:"operatorToken"`
	Caller        address.Address           `json:"caller"`
	Routes        []routerecord.ProvedRoute `json:"routes"`
	Root          digest.Digest             `json:"root"`
	Epoch         uint64                    `json:"epoch"`
}

// ApplyReply - resulting registry size
type ApplyReply struct {
	RouteCount int `json:"routeCount"`
}

// ApplyRoutes - apply an incremental route batch
func (gov *Governance) ApplyRoutes(arguments *ApplyArguments, reply *ApplyReply) error {
	if err := rateLimitN(gov.limiter, len(arguments.Routes), maximumRouteCount); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	err := registry.Apply(arguments.Caller, arguments.Routes, arguments.Root, arguments.Epoch)
	if nil != err {
		return err
	}
	reply.RouteCount = registry.RouteCount()
	return nil
}

// ---

// RemoveArguments - selectors to withdraw
type RemoveArguments struct {
	OperatorToken string                 `json:"operatorToken"`
	Caller        address.Address        `json:"caller"`
	Selectors     []routerecord.Selector `json:"selectors"`
}

// RemoveReply - resulting registry size
type RemoveReply struct {
	RouteCount int `json:"routeCount"`
}

// RemoveRoutes - withdraw routes
func (gov *Governance) RemoveRoutes(arguments *RemoveArguments, reply *RemoveReply) error {
	if err := rateLimitN(gov.limiter, len(arguments.Selectors), maximumRouteCount); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	err := registry.Remove(arguments.Caller, arguments.Selectors)
	if nil != err {
		return err
	}
	reply.RouteCount = registry.RouteCount()
	return nil
}

// ---

// DelayArguments - new activation delay in seconds
type DelayArguments struct {
	OperatorToken string          `json:"operatorToken"`
	Caller        address.Address `json:"caller"`
	Seconds       uint64          `json:"seconds"`
}

// DelayReply - acknowledgement
type DelayReply struct {
	Seconds uint64 `json:"seconds"`
}

// SetActivationDelay - change the pending window for future commits
func (gov *Governance) SetActivationDelay(arguments *DelayArguments, reply *DelayReply) error {
	if err := rateLimit(gov.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	err := epoch.SetActivationDelay(arguments.Caller, secondsToDuration(arguments.Seconds))
	if nil != err {
		return err
	}
	reply.Seconds = arguments.Seconds
	return nil
}

// ---

// ControlArguments - freeze / pause / unpause / execute rotation
type ControlArguments struct {
	OperatorToken string          `json:"operatorToken"`
	Caller        address.Address `json:"caller"`
}

// ControlReply - the governance state after the call
type ControlReply struct {
	Frozen bool `json:"frozen"`
	Paused bool `json:"paused"`
}

// Freeze - permanently halt all further commits and activations
func (gov *Governance) Freeze(arguments *ControlArguments, reply *ControlReply) error {
	if err := rateLimit(gov.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	if err := governance.Freeze(arguments.Caller); nil != err {
		return err
	}
	return controlState(reply)
}

// Pause - guardian emergency stop
func (gov *Governance) Pause(arguments *ControlArguments, reply *ControlReply) error {
	if err := rateLimit(gov.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	if err := governance.Pause(arguments.Caller); nil != err {
		return err
	}
	return controlState(reply)
}

// Unpause - lift the emergency stop
func (gov *Governance) Unpause(arguments *ControlArguments, reply *ControlReply) error {
	if err := rateLimit(gov.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	if err := governance.Unpause(arguments.Caller); nil != err {
		return err
	}
	return controlState(reply)
}

// ---

// RotateArguments - queue a governor rotation
type RotateArguments struct {
	OperatorToken string          `json:"operatorToken"`
	Caller        address.Address `json:"caller"`
	NewGovernor   address.Address `json:"newGovernor"`
}

// RotateReply - current roles after the call
type RotateReply struct {
	Governor address.Address `json:"governor"`
	Guardian address.Address `json:"guardian"`
}

// QueueRotation - queue the delayed governor handover
func (gov *Governance) QueueRotation(arguments *RotateArguments, reply *RotateReply) error {
	if err := rateLimit(gov.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	err := governance.QueueRotateGovernance(arguments.Caller, arguments.NewGovernor)
	if nil != err {
		return err
	}
	return roleState(reply)
}

// ExecuteRotation - complete a queued handover once its delay elapsed
func (gov *Governance) ExecuteRotation(arguments *ControlArguments, reply *RotateReply) error {
	if err := rateLimit(gov.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	if err := governance.ExecuteRotateGovernance(); nil != err {
		return err
	}
	return roleState(reply)
}

// GuardianArguments - replace the guardian
type GuardianArguments struct {
	OperatorToken string          `json:"operatorToken"`
	Caller        address.Address `json:"caller"`
	NewGuardian   address.Address `json:"newGuardian"`
}

// SetGuardian - replace the guardian immediately
func (gov *Governance) SetGuardian(arguments *GuardianArguments, reply *RotateReply) error {
	if err := rateLimit(gov.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	if err := governance.SetGuardian(arguments.Caller, arguments.NewGuardian); nil != err {
		return err
	}
	return roleState(reply)
}

// internal: delays arrive on the wire as whole seconds
func secondsToDuration(seconds uint64) time.Duration {
	return time.Duration(seconds) * time.Second
}

// internal: fill a control reply
func controlState(reply *ControlReply) error {
	reply.Frozen = governance.IsFrozen()
	reply.Paused = governance.IsPaused()
	return nil
}

// internal: fill a role reply
func roleState(reply *RotateReply) error {
	reply.Governor = governance.Governor()
	reply.Guardian = governance.Guardian()
	return nil
}
