// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"encoding/hex"

	"github.com/bitmark-inc/logger"
	"golang.org/x/time/rate"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/chunk"
	"github.com/facetroute/facetd/digest"
)

// Chunks - deterministic deployment calls
type Chunks struct {
	log     *logger.L
	limiter *rate.Limiter
}

// limits for batch staging
const maximumStageCount = chunk.MaximumBatchSize

// content travels as hex so requests stay printable JSON
type hexContent string

func (h hexContent) bytes() ([]byte, error) {
	return hex.DecodeString(string(h))
}

// ---

// PredictArguments - content to predict an address for
type PredictArguments struct {
	Content hexContent `json:"content"`
}

// PredictReply - the deterministic address
type PredictReply struct {
	Address     address.Address `json:"address"`
	ContentHash digest.Digest   `json:"contentHash"`
}

// Predict - compute the deployment address without staging
func (chunks *Chunks) Predict(arguments *PredictArguments, reply *PredictReply) error {
	if err := rateLimit(chunks.limiter); nil != err {
		return err
	}

	content, err := arguments.Content.bytes()
	if nil != err {
		return err
	}
	deployed, contentHash, err := chunk.Predict(content)
	if nil != err {
		return err
	}
	reply.Address = deployed
	reply.ContentHash = contentHash
	return nil
}

// ---

// StageArguments - content to stage with its fee
type StageArguments struct {
	OperatorToken string          `json:"operatorToken"`
	Caller        address.Address `json:"caller"`
	Content       hexContent      `json:"content"`
	Fee           uint64          `json:"fee"`
}

// StageReply - where the content now lives
type StageReply struct {
	Address address.Address `json:"address"`
}

// Stage - stage one chunk
func (chunks *Chunks) Stage(arguments *StageArguments, reply *StageReply) error {
	if err := rateLimit(chunks.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	content, err := arguments.Content.bytes()
	if nil != err {
		return err
	}
	deployed, err := chunk.Stage(arguments.Caller, content, arguments.Fee)
	if nil != err {
		return err
	}
	reply.Address = deployed
	return nil
}

// ---

// StageBatchArguments - several chunks staged all-or-nothing
type StageBatchArguments struct {
	OperatorToken string          `json:"operatorToken"`
	Caller        address.Address `json:"caller"`
	Contents      []hexContent    `json:"contents"`
	Fee           uint64          `json:"fee"`
}

// StageBatchReply - the addresses, in argument order
type StageBatchReply struct {
	Addresses []address.Address `json:"addresses"`
}

// StageBatch - stage several chunks
func (chunks *Chunks) StageBatch(arguments *StageBatchArguments, reply *StageBatchReply) error {
	if err := rateLimitN(chunks.limiter, len(arguments.Contents), maximumStageCount); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	contents := make([][]byte, len(arguments.Contents))
	for i, h := range arguments.Contents {
		content, err := h.bytes()
		if nil != err {
			return err
		}
		contents[i] = content
	}

	addresses, err := chunk.StageBatch(arguments.Caller, contents, arguments.Fee)
	if nil != err {
		return err
	}
	reply.Addresses = addresses
	return nil
}

// ---

// FeeArguments - whose fee to query
type FeeArguments struct {
	Caller address.Address `json:"caller"`
}

// FeeReply - tier and fee for the caller
type FeeReply struct {
	Tier uint8  `json:"tier"`
	Fee  uint64 `json:"fee"`
}

// Fee - the caller's staging fee
func (chunks *Chunks) Fee(arguments *FeeArguments, reply *FeeReply) error {
	if err := rateLimit(chunks.limiter); nil != err {
		return err
	}

	reply.Tier = chunk.Tier(arguments.Caller)
	reply.Fee = chunk.GetDeploymentFee(arguments.Caller)
	return nil
}

// ---

// TierFeeArguments - set a tier's fee
type TierFeeArguments struct {
	OperatorToken string          `json:"operatorToken"`
	Caller        address.Address `json:"caller"`
	Tier          uint8           `json:"tier"`
	Fee           uint64          `json:"fee"`
}

// TierFeeReply - acknowledgement
type TierFeeReply struct {
	Tier uint8  `json:"tier"`
	Fee  uint64 `json:"fee"`
}

// SetTierFee - set the per-chunk fee for one tier
func (chunks *Chunks) SetTierFee(arguments *TierFeeArguments, reply *TierFeeReply) error {
	if err := rateLimit(chunks.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	err := chunk.SetTierFee(arguments.Caller, arguments.Tier, arguments.Fee)
	if nil != err {
		return err
	}
	reply.Tier = arguments.Tier
	reply.Fee = arguments.Fee
	return nil
}

// ---

// CallerTierArguments - assign an account to a tier
type CallerTierArguments struct {
	OperatorToken string          `json:"operatorToken"`
	Caller        address.Address `json:"caller"`
	Account       address.Address `json:"account"`
	Tier          uint8           `json:"tier"`
}

// SetCallerTier - assign an account to a fee tier
func (chunks *Chunks) SetCallerTier(arguments *CallerTierArguments, reply *TierFeeReply) error {
	if err := rateLimit(chunks.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	err := chunk.SetCallerTier(arguments.Caller, arguments.Account, arguments.Tier)
	if nil != err {
		return err
	}
	reply.Tier = arguments.Tier
	reply.Fee = chunk.GetDeploymentFee(arguments.Account)
	return nil
}

// ---

// ModeArguments - toggle idempotent staging
type ModeArguments struct {
	OperatorToken string          `json:"operatorToken"`
	Caller        address.Address `json:"caller"`
	Idempotent    bool            `json:"idempotent"`
}

// ModeReply - acknowledgement
type ModeReply struct {
	Idempotent bool `json:"idempotent"`
}

// SetIdempotentMode - toggle whether repeat staging is a no-op
func (chunks *Chunks) SetIdempotentMode(arguments *ModeArguments, reply *ModeReply) error {
	if err := rateLimit(chunks.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	err := chunk.SetIdempotentMode(arguments.Caller, arguments.Idempotent)
	if nil != err {
		return err
	}
	reply.Idempotent = arguments.Idempotent
	return nil
}

// ---

// WithdrawArguments - collect accumulated fees
type WithdrawArguments struct {
	OperatorToken string          `json:"operatorToken"`
	Caller        address.Address `json:"caller"`
}

// WithdrawReply - the amount withdrawn
type WithdrawReply struct {
	Amount uint64 `json:"amount"`
}

// Withdraw - zero the collected fee balance
func (chunks *Chunks) Withdraw(arguments *WithdrawArguments, reply *WithdrawReply) error {
	if err := rateLimit(chunks.limiter); nil != err {
		return err
	}
	if err := verifyOperator(arguments.OperatorToken); nil != err {
		return err
	}

	amount, err := chunk.WithdrawFees(arguments.Caller)
	if nil != err {
		return err
	}
	reply.Amount = amount
	return nil
}

// ---

// ChunkInfoArguments - lookup by content hash
type ChunkInfoArguments struct {
	ContentHash digest.Digest `json:"contentHash"`
}

// ChunkInfoReply - the staged record
type ChunkInfoReply struct {
	Info chunk.Info `json:"info"`
}

// Info - describe one staged chunk
func (chunks *Chunks) Info(arguments *ChunkInfoArguments, reply *ChunkInfoReply) error {
	if err := rateLimit(chunks.limiter); nil != err {
		return err
	}

	info, err := chunk.Chunk(arguments.ContentHash)
	if nil != err {
		return err
	}
	reply.Info = info
	return nil
}
