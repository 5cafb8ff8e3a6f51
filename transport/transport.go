/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package transport names the external interfaces this core talks
// through, without implementing any of them. The gRPC adapters, peer
// gossip transports, and wire framing are explicitly out of scope per
// SPEC_FULL §1; this package exists so the rest of the core can depend
// on a stable contract instead of a concrete network stack.
package transport

import (
	"context"

	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/proto"
)

// TxStatus is the lifecycle state a submitted transaction's hash maps
// to, queried by clients after Submit's synchronous stateless check.
type TxStatus int

const (
	// StatusUnknown is returned for a hash the node has never seen.
	StatusUnknown TxStatus = iota
	// StatusStatelessFailed means the stateless check rejected the
	// transaction; it was never enqueued.
	StatusStatelessFailed
	// StatusEnqueued means the transaction is pending in the Ordering
	// Gate's queue.
	StatusEnqueued
	// StatusRejected means the transaction was dropped by the Stateful
	// Validator.
	StatusRejected
	// StatusCommitted means the transaction is part of a committed block.
	StatusCommitted
)

// CommandSubmitter is the command-surface unary RPC contract named in
// SPEC_FULL §6: accept a transaction, confirm stateless validity and
// enqueue. Submit returns the status only, not the transaction's hash;
// Status takes a hash the caller computes from the transaction.
type CommandSubmitter interface {
	Submit(ctx context.Context, tx *model.Transaction) (TxStatus, error)
	Status(ctx context.Context, txHash hash.Hash) (TxStatus, error)
}

// Query is a signed read request against the WSV: account balance,
// account info, account transactions, or signatories.
type Query struct {
	Kind      QueryKind
	Account   proto.AccountAddress
	Requester *proto.Peer
	Signature model.Signature
}

// QueryKind enumerates the read surfaces SPEC_FULL §6 names.
type QueryKind int

const (
	QueryAccountBalance QueryKind = iota
	QueryAccountInfo
	QueryAccountTransactions
	QuerySignatories
)

// QueryHandler answers signed queries against the live WSV.
type QueryHandler interface {
	Handle(ctx context.Context, q *Query) (interface{}, error)
}

// ProposalGossip is the ordering transport: gossip of transactions and
// proposals among peers.
type ProposalGossip interface {
	BroadcastTransaction(ctx context.Context, tx *model.Transaction) error
	BroadcastProposal(ctx context.Context, p *model.Proposal) error
	Transactions() <-chan *model.Transaction
	Proposals() <-chan *model.Proposal
}

// ConsensusTransport is the consensus transport: votes and commits
// among peers, consumed by a consensus.Gate implementation.
type ConsensusTransport interface {
	BroadcastVote(height uint32, candidate hash.Hash) error
	Votes() <-chan Vote
}

// Vote mirrors consensus.Vote at the transport boundary so this
// package does not need to import consensus.
type Vote struct {
	Height  uint32
	Hash    hash.Hash
	VoterID proto.NodeID
}

// BlockLoader fetches a ranged span of committed blocks by height.
type BlockLoader interface {
	FetchBlocks(ctx context.Context, fromHeight, toHeight uint32) ([]*model.Block, error)
}
