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

// Package ordering batches accepted transactions into height-ordered
// proposals, bounded by count and time. Grounded on the teacher's
// blockproducer/txpool.go queueing idiom, adapted from a single mempool
// into a height-aware emission gate.
package ordering

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/utils/log"
	"github.com/pkg/errors"
)

// ErrBackpressure is returned by Submit when the pending queue is at
// high-water, per SPEC_FULL §4.4 and Open Question (b) in §9.
var ErrBackpressure = errors.New("ordering gate backpressure")

// Default parameters named in SPEC_FULL §4.4.
const (
	DefaultMaxTxPerProposal = 10
	DefaultProposalInterval = 5 * time.Second
	// DefaultDuplicateWindow is the number of trailing heights a
	// transaction hash is remembered for duplicate suppression.
	DefaultDuplicateWindow = 50
	// highWaterMultiple bounds the queue beyond maxTxPerProposal before
	// Submit starts rejecting with Backpressure.
	highWaterMultiple = 4
)

// Gate batches transactions into proposals. Callers receive proposals
// over Proposals(); Submit is the only mutation entrypoint and is safe
// for concurrent use.
type Gate struct {
	maxTxPerProposal int
	proposalInterval time.Duration
	highWater        int
	duplicateWindow  int

	mu      sync.Mutex
	pending []model.Transaction
	seen    map[hash.Hash]uint32 // tx hash -> height last seen at, for window-based dedup
	height  uint32
	out     chan *model.Proposal
	trigger chan struct{}
}

// New constructs a Gate seeded with startHeight, the chain's current
// height as reported by Storage; the gate assigns height+1 to its first
// emitted proposal.
func New(startHeight uint32, maxTxPerProposal int, proposalInterval time.Duration) *Gate {
	if maxTxPerProposal <= 0 {
		maxTxPerProposal = DefaultMaxTxPerProposal
	}
	if proposalInterval <= 0 {
		proposalInterval = DefaultProposalInterval
	}
	return &Gate{
		maxTxPerProposal: maxTxPerProposal,
		proposalInterval: proposalInterval,
		highWater:        maxTxPerProposal * highWaterMultiple,
		duplicateWindow:  DefaultDuplicateWindow,
		seen:             map[hash.Hash]uint32{},
		height:           startHeight,
		out:              make(chan *model.Proposal, 1),
		trigger:          make(chan struct{}, 1),
	}
}

// Proposals is the single-consumer output stream of cut proposals.
func (g *Gate) Proposals() <-chan *model.Proposal {
	return g.out
}

// Submit enqueues tx for the next proposal. Duplicate transactions
// (already queued, or seen in a proposal within the trailing duplicate
// window) are dropped silently, matching SPEC_FULL §4.4.
func (g *Gate) Submit(tx *model.Transaction) error {
	h, err := tx.Hash()
	if err != nil {
		return errors.Wrap(err, "hash transaction")
	}

	g.mu.Lock()
	if seenAt, ok := g.seen[h]; ok && g.height-seenAt <= uint32(g.duplicateWindow) {
		g.mu.Unlock()
		log.WithField("hash", h.Short(8)).Debugf("ordering gate dropped duplicate transaction")
		return nil
	}
	if len(g.pending) >= g.highWater {
		g.mu.Unlock()
		return ErrBackpressure
	}

	g.pending = append(g.pending, *tx)
	g.seen[h] = g.height
	full := len(g.pending) >= g.maxTxPerProposal
	g.mu.Unlock()

	if full {
		select {
		case g.trigger <- struct{}{}:
		default:
		}
	}
	return nil
}

// Run drives the periodic/size-triggered emission loop until ctx is
// canceled. It is meant to run in its own worker goroutine, per
// SPEC_FULL §5. Emission is triggered either by the proposalInterval
// ticker or by Submit signaling that the queue has reached
// maxTxPerProposal, whichever comes first — the emission rule in
// SPEC_FULL §4.4.
func (g *Gate) Run(ctx context.Context) {
	ticker := time.NewTicker(g.proposalInterval)
	defer ticker.Stop()
	defer close(g.out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.maybeEmit()
		case <-g.trigger:
			g.maybeEmit()
			ticker.Reset(g.proposalInterval)
		}
	}
}

// maybeEmit cuts a proposal if the queue is non-empty.
func (g *Gate) maybeEmit() {
	g.mu.Lock()
	if len(g.pending) == 0 {
		g.mu.Unlock()
		return
	}
	batch := g.pending
	if len(batch) > g.maxTxPerProposal {
		batch = batch[:g.maxTxPerProposal]
		g.pending = g.pending[g.maxTxPerProposal:]
	} else {
		g.pending = nil
	}
	g.height++
	height := g.height
	g.mu.Unlock()

	g.out <- &model.Proposal{Height: height, Transactions: batch}
	log.WithField("height", height).WithField("count", len(batch)).Infof("ordering gate emitted proposal")
}
