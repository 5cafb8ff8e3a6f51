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

package synchronizer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ledgerkit/ledgerd/consensus"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/transport"
	"github.com/ledgerkit/ledgerd/utils/log"
	"github.com/pkg/errors"
)

// ErrSyncFailed is emitted after the bounded retry count is exhausted,
// per SPEC_FULL §7.
var ErrSyncFailed = errors.New("synchronizer exhausted peer fetch retries")

// BlockLoader is an alias for transport.BlockLoader: the Synchronizer
// fetches peer blocks through the same contract a gRPC client would
// implement, so there is exactly one definition of "fetch a block span"
// in the module.
type BlockLoader = transport.BlockLoader

// Storage is the narrow, function-valued surface Synchronizer needs
// from storage.Storage. It is a struct of closures rather than a
// one-method-per-call interface because Storage.CreateMutableView and
// Storage.Commit return and accept the concrete *storage.MutableWSV
// type; a plain closure lets the caller upcast to MutableView at the
// wiring site without a hand-written adapter struct.
type Storage struct {
	CreateMutableView func() (MutableView, error)
	Commit            func(MutableView) error
	BlockAt           func(height uint32) (*model.Block, error)
	Head              func() (uint32, error)
}

// MutableView is the narrow surface Synchronizer needs from a mutable
// WSV view, re-declared here to avoid importing storage directly.
type MutableView interface {
	model.ExecutionContext
	Stage(b *model.Block) error
	Discard() error
}

// Event is what Synchronizer emits for each height it resolves.
type Event struct {
	Height uint32
	Block  *model.Block
	Err    error // non-nil only for a terminal SyncFailed
}

// Candidates is the narrow surface Synchronizer needs to look up a
// locally produced candidate block for a height still awaiting
// consensus.
type Candidates interface {
	CandidateAt(height uint32) *model.Block
}

// Synchronizer reacts to Consensus Gate commits: promoting the local
// candidate when its hash matches, or fetching and replaying from
// peers otherwise.
type Synchronizer struct {
	storage    *Storage
	candidates Candidates
	loader     BlockLoader
	validator  *ChainValidator
	retries    int
	fetchTimeout time.Duration

	out chan Event
}

// New constructs a Synchronizer. retries and fetchTimeout default to
// SPEC_FULL §5's bounded retry count of 3 with exponential backoff.
func New(storage *Storage, candidates Candidates, loader BlockLoader, validator *ChainValidator, retries int, fetchTimeout time.Duration) *Synchronizer {
	if retries <= 0 {
		retries = 3
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 2 * time.Second
	}
	return &Synchronizer{
		storage:      storage,
		candidates:   candidates,
		loader:       loader,
		validator:    validator,
		retries:      retries,
		fetchTimeout: fetchTimeout,
		out:          make(chan Event, 1),
	}
}

// Events is the single-consumer stream of resolved heights.
func (s *Synchronizer) Events() <-chan Event { return s.out }

// Run consumes consensus commits until ctx is canceled or commits is
// closed.
func (s *Synchronizer) Run(ctx context.Context, commits <-chan consensus.Committed) {
	defer close(s.out)
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-commits:
			if !ok {
				return
			}
			s.handle(ctx, c)
		}
	}
}

func (s *Synchronizer) handle(ctx context.Context, c consensus.Committed) {
	if cand := s.candidates.CandidateAt(c.Height); cand != nil && cand.Hash.IsEqual(&c.Hash) {
		if err := s.stageAndCommit(cand); err != nil {
			s.emit(Event{Height: c.Height, Err: err})
			return
		}
		s.emit(Event{Height: c.Height, Block: cand})
		return
	}

	log.WithField("height", c.Height).Infof("synchronizer disagrees with local candidate, fetching from peers")
	blocks, err := s.fetchWithRetry(ctx, c.Height)
	if err != nil {
		s.emit(Event{Height: c.Height, Err: errors.Wrap(ErrSyncFailed, err.Error())})
		return
	}

	prev, err := s.storage.BlockAt(blocks[0].Height - 1)
	if err != nil {
		s.emit(Event{Height: c.Height, Err: err})
		return
	}
	if prev == nil {
		prev = &model.Block{}
	}
	if err := s.validator.ValidateChain(prev, blocks); err != nil {
		s.emit(Event{Height: c.Height, Err: err})
		return
	}

	mv, err := s.storage.CreateMutableView()
	if err != nil {
		s.emit(Event{Height: c.Height, Err: err})
		return
	}
	for _, b := range blocks {
		if err := mv.Stage(b); err != nil {
			mv.Discard()
			s.emit(Event{Height: b.Height, Err: err})
			return
		}
	}
	if err := s.storage.Commit(mv); err != nil {
		s.emit(Event{Height: c.Height, Err: err})
		return
	}
	s.emit(Event{Height: c.Height, Block: blocks[len(blocks)-1]})
}

func (s *Synchronizer) stageAndCommit(b *model.Block) error {
	mv, err := s.storage.CreateMutableView()
	if err != nil {
		return err
	}
	if err := mv.Stage(b); err != nil {
		mv.Discard()
		return err
	}
	return s.storage.Commit(mv)
}

// fetchWithRetry fetches height (and any missing predecessors back to
// the local head) using a bounded exponential backoff, per SPEC_FULL §5.
func (s *Synchronizer) fetchWithRetry(ctx context.Context, height uint32) ([]*model.Block, error) {
	head, err := s.storage.Head()
	if err != nil {
		return nil, err
	}

	var blocks []*model.Block
	op := func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
		fetched, err := s.loader.FetchBlocks(fetchCtx, head+1, height)
		if err != nil {
			return err
		}
		blocks = fetched
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.retries))
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (s *Synchronizer) emit(e Event) {
	s.out <- e
}
