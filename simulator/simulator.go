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

// Package simulator turns verified proposals into candidate blocks.
// Grounded on the teacher's blockproducer package (last-block cache,
// candidate assembly) adapted from its rxcpp-style pipeline (seen in
// original_source/irohad/simulator/impl/simulator.cpp) into two
// single-producer Go channels.
package simulator

import (
	"context"
	"time"

	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/utils/log"
	"github.com/ledgerkit/ledgerd/validation"
	"github.com/pkg/errors"
)

// ErrChainLag means the proposal's height does not immediately follow
// the cached last_block; the Synchronizer is expected to repair this.
var ErrChainLag = errors.New("simulator detected chain lag")

// blockQuery is the narrow read surface the Simulator needs from
// Storage: fetch a committed block by height.
type blockQuery interface {
	BlockAt(height uint32) (*model.Block, error)
}

// OpenTemporaryView opens a fresh scratch WSV view per proposal, so
// stateful validation never contends with the exclusive mutable view.
// It is a function type rather than a one-method interface so callers
// can adapt Storage.CreateTemporaryView's concrete return type with a
// plain closure instead of a hand-written wrapper struct.
type OpenTemporaryView func() (TemporaryView, error)

// TemporaryView is the surface validation.StatefulValidator needs,
// re-declared here to avoid importing storage directly.
type TemporaryView interface {
	model.ExecutionContext
	Savepoint(name string) error
	RollbackTo(name string) error
	ReleaseSavepoint(name string) error
	Discard() error
}

// Clock supplies coordinated chain time for candidate blocks, so
// created_ts is never left as a zero stub, per SPEC_FULL §4.5 / §9
// Open Question (a).
type Clock func() time.Time

// Simulator consumes proposals from the Ordering Gate, produces
// verified proposals on stream A, and is the sole producer of candidate
// blocks on stream B.
type Simulator struct {
	blocks     blockQuery
	openView   OpenTemporaryView
	validator  *validation.StatefulValidator
	clock      Clock

	lastBlock *model.Block

	streamA chan *model.VerifiedProposal
	streamB chan *model.Block
}

// New constructs a Simulator. validator may be nil, in which case a
// default StatefulValidator with no rejection counter is used.
func New(blocks blockQuery, openView OpenTemporaryView, validator *validation.StatefulValidator, clock Clock) *Simulator {
	if validator == nil {
		validator = &validation.StatefulValidator{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Simulator{
		blocks:    blocks,
		openView:  openView,
		validator: validator,
		clock:     clock,
		streamA:   make(chan *model.VerifiedProposal, 1),
		streamB:   make(chan *model.Block, 1),
	}
}

// VerifiedProposals is stream A.
func (s *Simulator) VerifiedProposals() <-chan *model.VerifiedProposal { return s.streamA }

// CandidateBlocks is stream B.
func (s *Simulator) CandidateBlocks() <-chan *model.Block { return s.streamB }

// Run consumes proposals from in until ctx is canceled or in is closed.
func (s *Simulator) Run(ctx context.Context, in <-chan *model.Proposal) {
	defer close(s.streamA)
	defer close(s.streamB)

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-in:
			if !ok {
				return
			}
			s.process(ctx, p)
		}
	}
}

func (s *Simulator) process(ctx context.Context, p *model.Proposal) {
	prev, err := s.resolveLastBlock(p.Height)
	if err != nil {
		log.WithField("height", p.Height).WithError(err).Debugf("simulator dropped proposal")
		return
	}

	view, err := s.openView()
	if err != nil {
		log.WithField("height", p.Height).WithError(err).Errorf("simulator could not open temporary view")
		return
	}
	defer view.Discard()

	verified, rejected, err := s.validator.Validate(view, p)
	if err != nil {
		log.WithField("height", p.Height).WithError(err).Errorf("stateful validation failed")
		return
	}
	for _, r := range rejected {
		log.WithField("height", p.Height).WithField("txIndex", r.TxIndex).WithError(r.Err).Debugf("transaction rejected during stateful validation")
	}

	select {
	case s.streamA <- verified:
	case <-ctx.Done():
		return
	}

	candidate, err := model.NewBlock(p.Height, prev.Hash, verified.Transactions, s.clock())
	if err != nil {
		log.WithField("height", p.Height).WithError(err).Errorf("simulator failed to assemble candidate block")
		return
	}
	s.lastBlock = candidate

	select {
	case s.streamB <- candidate:
	case <-ctx.Done():
	}
}

// resolveLastBlock fetches last_block at proposal.height-1, preferring
// the in-memory cache and falling back to Storage, per SPEC_FULL §4.5.
func (s *Simulator) resolveLastBlock(proposalHeight uint32) (*model.Block, error) {
	if proposalHeight == 1 {
		// Genesis: no parent block exists; the zero hash chains the
		// first candidate.
		return &model.Block{Height: 0}, nil
	}
	if s.lastBlock != nil && s.lastBlock.Height+1 == proposalHeight {
		return s.lastBlock, nil
	}
	b, err := s.blocks.BlockAt(proposalHeight - 1)
	if err != nil {
		return nil, errors.Wrap(err, "query last block")
	}
	if b == nil || b.Height+1 != proposalHeight {
		return nil, ErrChainLag
	}
	s.lastBlock = b
	return b, nil
}
