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

package app

import (
	"context"
	"sync"

	"github.com/ledgerkit/ledgerd/consensus"
	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/proto"
	"github.com/ledgerkit/ledgerd/transport"
	"github.com/pkg/errors"
)

// errNoPeersConfigured is returned by noBlocksLoader, the Synchronizer's
// default fetch path when no transport.BlockLoader has been injected.
var errNoPeersConfigured = errors.New("no peer block loader configured")

// candidateTracker remembers the most recently produced candidate block
// per height, so the Synchronizer can check whether a consensus commit
// matches what this node already assembled, per SPEC_FULL §4.7.
type candidateTracker struct {
	mu       sync.Mutex
	byHeight map[uint32]*model.Block
}

func newCandidateTracker() *candidateTracker {
	return &candidateTracker{byHeight: map[uint32]*model.Block{}}
}

func (c *candidateTracker) put(b *model.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byHeight[b.Height] = b
}

func (c *candidateTracker) drop(height uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byHeight, height)
}

// CandidateAt implements synchronizer.Candidates.
func (c *candidateTracker) CandidateAt(height uint32) *model.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byHeight[height]
}

// statusTracker answers transport.CommandSubmitter.Status queries for
// transactions this node has seen, independent of how they resolved.
type statusTracker struct {
	mu     sync.Mutex
	byHash map[hash.Hash]transport.TxStatus
}

func newStatusTracker() *statusTracker {
	return &statusTracker{byHash: map[hash.Hash]transport.TxStatus{}}
}

func (s *statusTracker) set(h hash.Hash, status transport.TxStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHash[h] = status
}

func (s *statusTracker) get(h hash.Hash) transport.TxStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.byHash[h]; ok {
		return st
	}
	return transport.StatusUnknown
}

// consensusTransportAdapter upcasts an injected transport.ConsensusTransport
// to the consensus.Transport interface HashVotingGate depends on. The two
// are structurally identical but nominally distinct types (consensus
// deliberately does not import transport, so it stays usable without a
// network stack in tests), so votes are copied across a bridging channel
// rather than the adapter satisfying both interfaces directly.
type consensusTransportAdapter struct {
	inner transport.ConsensusTransport
	votes chan consensus.Vote
}

func newConsensusTransportAdapter(inner transport.ConsensusTransport) *consensusTransportAdapter {
	a := &consensusTransportAdapter{inner: inner, votes: make(chan consensus.Vote, 32)}
	go a.pump()
	return a
}

func (a *consensusTransportAdapter) pump() {
	defer close(a.votes)
	for v := range a.inner.Votes() {
		a.votes <- consensus.Vote{Height: v.Height, Hash: v.Hash, VoterID: v.VoterID}
	}
}

func (a *consensusTransportAdapter) BroadcastVote(height uint32, candidate hash.Hash) error {
	return a.inner.BroadcastVote(height, candidate)
}

func (a *consensusTransportAdapter) Votes() <-chan consensus.Vote { return a.votes }

// loopbackTransport is the Consensus Transport default for a node
// running without any peers wired in: every broadcast vote is
// immediately replayed back as this node's own ballot, so a one-node
// peer set (this node alone, added to the WSV at genesis) can still
// reach its own quorum of one.
type loopbackTransport struct {
	peers consensus.PeerSetSource
	votes chan consensus.Vote
}

func newLoopbackTransport(peers consensus.PeerSetSource) *loopbackTransport {
	return &loopbackTransport{peers: peers, votes: make(chan consensus.Vote, 32)}
}

func (t *loopbackTransport) BroadcastVote(height uint32, candidate hash.Hash) error {
	voter := proto.NodeID("self")
	if set, err := t.peers.PeerSet(); err == nil && len(set.Peers) > 0 {
		voter = set.Peers[0].ID
	}
	select {
	case t.votes <- consensus.Vote{Height: height, Hash: candidate, VoterID: voter}:
	default:
	}
	return nil
}

func (t *loopbackTransport) Votes() <-chan consensus.Vote { return t.votes }

// noBlocksLoader is the BlockLoader default when no peer fetch path has
// been wired in: it always reports nothing to fetch, which surfaces as
// a bounded retry failure (ErrSyncFailed) rather than a silent hang.
type noBlocksLoader struct{}

func (noBlocksLoader) FetchBlocks(ctx context.Context, fromHeight, toHeight uint32) ([]*model.Block, error) {
	return nil, errNoPeersConfigured
}
