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

// Package consensus drives agreement among peers on the hash of the
// next block. Gate is the contract SPEC_FULL §4.6 demands of any
// implementation; HashVotingGate is the one concrete, non-BFT
// implementation this core ships, grounded on the teacher's kayak
// round-based commit idiom (kayak/runner.go) without its Raft log.
package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/ledgerkit/ledgerd/proto"
	"github.com/ledgerkit/ledgerd/utils/log"
)

// Committed is one (height, hash) agreement emitted by a Gate.
type Committed struct {
	Height uint32
	Hash   hash.Hash
}

// Gate is the abstraction SPEC_FULL §4.6 requires: safety (no two
// honest peers observe different committed hashes for one height),
// liveness (a quorum-received candidate eventually commits), and
// idempotence (re-offering an already-committed height is a no-op).
type Gate interface {
	// Propose offers a local candidate hash for height. It does not
	// block for commitment; the result surfaces on Commits().
	Propose(height uint32, candidate hash.Hash) error
	// Commits is the single-consumer stream of agreed (height, hash)
	// pairs.
	Commits() <-chan Committed
}

// PeerSetSource supplies the current peer set so the gate can recompute
// its quorum threshold block by block, since membership can change.
type PeerSetSource interface {
	PeerSet() (*proto.PeerSet, error)
}

// Transport is the minimal peer broadcast/receive surface this
// reference gate needs; the real network implementation lives outside
// the core and is named only by this interface (SPEC_FULL §6).
type Transport interface {
	BroadcastVote(height uint32, candidate hash.Hash) error
	Votes() <-chan Vote
}

// Vote is one peer's ballot for a height's candidate hash.
type Vote struct {
	Height    uint32
	Hash      hash.Hash
	VoterID   proto.NodeID
}

// HashVotingGate is a round-based hash-voting quorum gate: each round
// broadcasts the local candidate, tallies votes per (height, hash), and
// commits the first hash to reach ⌊2n/3⌋+1 votes. It assumes an honest
// quorum; it is not a BFT proof, per SPEC_FULL §1's Non-goals.
type HashVotingGate struct {
	peers     PeerSetSource
	transport Transport
	round     time.Duration

	mu        sync.Mutex
	committed map[uint32]hash.Hash
	tally     map[uint32]map[hash.Hash]map[proto.NodeID]struct{}
	candidate map[uint32]hash.Hash

	out chan Committed
}

// NewHashVotingGate constructs a gate that runs voting rounds of
// roundTimeout, the consensus round timeout named in SPEC_FULL §6.
func NewHashVotingGate(peers PeerSetSource, transport Transport, roundTimeout time.Duration) *HashVotingGate {
	return &HashVotingGate{
		peers:     peers,
		transport: transport,
		round:     roundTimeout,
		committed: map[uint32]hash.Hash{},
		tally:     map[uint32]map[hash.Hash]map[proto.NodeID]struct{}{},
		candidate: map[uint32]hash.Hash{},
		out:       make(chan Committed, 1),
	}
}

// Commits implements Gate.
func (g *HashVotingGate) Commits() <-chan Committed { return g.out }

// Propose implements Gate. Idempotent: re-proposing for an already
// committed height is a no-op.
func (g *HashVotingGate) Propose(height uint32, candidate hash.Hash) error {
	g.mu.Lock()
	if _, done := g.committed[height]; done {
		g.mu.Unlock()
		return nil
	}
	g.candidate[height] = candidate
	g.mu.Unlock()
	return g.transport.BroadcastVote(height, candidate)
}

// Run consumes votes from the transport and runs the per-round timeout
// restart logic until ctx is canceled, per SPEC_FULL §4.6.1/§5.
func (g *HashVotingGate) Run(ctx context.Context) {
	ticker := time.NewTicker(g.round)
	defer ticker.Stop()
	defer close(g.out)

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-g.transport.Votes():
			if !ok {
				return
			}
			g.recordVote(v)
		case <-ticker.C:
			g.restartTimedOutRounds()
		}
	}
}

func (g *HashVotingGate) recordVote(v Vote) {
	g.mu.Lock()

	if _, done := g.committed[v.Height]; done {
		g.mu.Unlock()
		return
	}

	byHash, ok := g.tally[v.Height]
	if !ok {
		byHash = map[hash.Hash]map[proto.NodeID]struct{}{}
		g.tally[v.Height] = byHash
	}
	voters, ok := byHash[v.Hash]
	if !ok {
		voters = map[proto.NodeID]struct{}{}
		byHash[v.Hash] = voters
	}
	voters[v.VoterID] = struct{}{}

	quorum := g.quorum()
	if quorum == 0 || len(voters) < quorum {
		g.mu.Unlock()
		return
	}

	g.committed[v.Height] = v.Hash
	delete(g.tally, v.Height)
	delete(g.candidate, v.Height)
	g.mu.Unlock()

	log.WithField("height", v.Height).WithField("hash", v.Hash.Short(8)).Infof("consensus gate committed height")
	g.out <- Committed{Height: v.Height, Hash: v.Hash}
}

func (g *HashVotingGate) quorum() int {
	set, err := g.peers.PeerSet()
	if err != nil || set == nil {
		return 0
	}
	return set.Quorum()
}

// restartTimedOutRounds re-broadcasts any still-open height's current
// candidate. A round that has since received a newer candidate (via a
// fresh Propose call) re-broadcasts that one instead, per SPEC_FULL §4.6.1.
func (g *HashVotingGate) restartTimedOutRounds() {
	g.mu.Lock()
	open := make(map[uint32]hash.Hash, len(g.candidate))
	for h, c := range g.candidate {
		if _, done := g.committed[h]; !done {
			open[h] = c
		}
	}
	g.mu.Unlock()

	for height, candidate := range open {
		if err := g.transport.BroadcastVote(height, candidate); err != nil {
			log.WithField("height", height).WithError(err).Warnf("consensus gate failed to rebroadcast candidate")
		}
	}
}
