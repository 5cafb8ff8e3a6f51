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

// Package app wires the Ordering Gate, Simulator, Consensus Gate,
// Synchronizer and Storage into one running node. Grounded on the
// teacher's cmd/covenantsqld/bootstrap.go runNode staged-construction
// sequence and original_source/irohad/main/service.cpp's Application::init
// call order: build leaves first (Storage, metrics), then the pipeline
// stages that depend on them, then wire cross-stage subscriptions last.
package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/ledgerkit/ledgerd/conf"
	"github.com/ledgerkit/ledgerd/consensus"
	"github.com/ledgerkit/ledgerd/crypto/asymmetric"
	"github.com/ledgerkit/ledgerd/metric"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/ordering"
	"github.com/ledgerkit/ledgerd/pcs"
	"github.com/ledgerkit/ledgerd/simulator"
	"github.com/ledgerkit/ledgerd/storage"
	"github.com/ledgerkit/ledgerd/synchronizer"
	"github.com/ledgerkit/ledgerd/transport"
	"github.com/ledgerkit/ledgerd/utils/log"
	"github.com/ledgerkit/ledgerd/validation"
	"github.com/pkg/errors"
)

// Application owns every component of the node and the goroutines that
// connect them. Its zero value is not usable; construct with New.
type Application struct {
	cfg     *conf.Config
	storage *storage.Storage
	metrics *metric.Registry
	hub     *pcs.Hub
	key     *asymmetric.PrivateKey

	stateless  *validation.StatelessValidator
	ordering   *ordering.Gate
	sim        *simulator.Simulator
	consensus  *consensus.HashVotingGate
	sync       *synchronizer.Synchronizer
	candidates *candidateTracker
	statuses   *statusTracker

	gossip transport.ProposalGossip
	loader transport.BlockLoader

	commitsForSync chan consensus.Committed

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds every leaf component (Storage, the metrics registry, the
// identity keypair) and every pipeline stage that depends only on them.
// It does not yet start anything; call Init to wire in the network
// adapters, then Run.
func New(cfg *conf.Config) (*Application, error) {
	log.SetLevel(cfg.LogLevel)

	log.Infof("loading node identity")
	key, err := asymmetric.LoadOrCreatePrivateKey(cfg.KeyPairPath)
	if err != nil {
		return nil, errors.Wrap(err, "load node identity")
	}

	log.Infof("opening storage")
	st, err := storage.Open(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open storage")
	}

	if err := seedGenesis(st, cfg); err != nil {
		st.Close()
		return nil, errors.Wrap(err, "seed genesis block")
	}

	metrics := metric.NewRegistry()

	head, err := st.Head()
	if err != nil {
		st.Close()
		return nil, errors.Wrap(err, "query chain head")
	}

	log.Infof("wiring pipeline stages")
	orderingGate := ordering.New(head, cfg.MaxTxPerProposal, cfg.ProposalInterval)

	statefulValidator := &validation.StatefulValidator{Rejections: metrics}
	openView := func() (simulator.TemporaryView, error) {
		return st.CreateTemporaryView()
	}
	sim := simulator.New(st, openView, statefulValidator, nil)

	candidates := newCandidateTracker()

	syncStorage := &synchronizer.Storage{
		CreateMutableView: func() (synchronizer.MutableView, error) {
			return st.CreateMutableView()
		},
		Commit: func(mv synchronizer.MutableView) error {
			return st.Commit(mv.(*storage.MutableWSV))
		},
		BlockAt: st.BlockAt,
		Head:    st.Head,
	}
	chainValidator := synchronizer.NewChainValidator(st.WSVQuery())

	a := &Application{
		cfg:        cfg,
		storage:    st,
		metrics:    metrics,
		hub:        pcs.New(),
		key:        key,
		stateless:  validation.NewStatelessValidator(),
		ordering:   orderingGate,
		sim:        sim,
		candidates: candidates,
		statuses:   newStatusTracker(),
	}
	a.consensus = consensus.NewHashVotingGate(st.WSVQuery(), newLoopbackTransport(st.WSVQuery()), cfg.ConsensusRoundTimeout)
	a.sync = synchronizer.New(syncStorage, candidates, nil, chainValidator, cfg.PeerFetchRetries, cfg.PeerFetchTimeout)
	return a, nil
}

// Init injects the network adapters this core names only by interface
// (SPEC_FULL §1/§6). Any adapter left nil keeps its standalone default:
// a loopback Consensus Transport that self-votes (letting a single-node
// deployment reach quorum on its own), no peer gossip, and a BlockLoader
// that always reports nothing fetchable.
func (a *Application) Init(ct transport.ConsensusTransport, gossip transport.ProposalGossip, loader transport.BlockLoader) error {
	if ct != nil {
		a.consensus = consensus.NewHashVotingGate(a.storage.WSVQuery(), newConsensusTransportAdapter(ct), a.cfg.ConsensusRoundTimeout)
	}
	a.gossip = gossip
	a.loader = loader
	if loader == nil {
		loader = noBlocksLoader{}
	}
	syncStorage := &synchronizer.Storage{
		CreateMutableView: func() (synchronizer.MutableView, error) {
			return a.storage.CreateMutableView()
		},
		Commit: func(mv synchronizer.MutableView) error {
			return a.storage.Commit(mv.(*storage.MutableWSV))
		},
		BlockAt: a.storage.BlockAt,
		Head:    a.storage.Head,
	}
	a.sync = synchronizer.New(syncStorage, a.candidates, loader, synchronizer.NewChainValidator(a.storage.WSVQuery()), a.cfg.PeerFetchRetries, a.cfg.PeerFetchTimeout)
	return nil
}

// Run starts every worker goroutine and the cross-stage forwarding that
// connects them, and blocks until ctx is canceled.
func (a *Application) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.commitsForSync = make(chan consensus.Committed, 1)

	a.spawn(func() { a.ordering.Run(runCtx) })
	a.spawn(func() { a.sim.Run(runCtx, a.ordering.Proposals()) })
	a.spawn(func() { a.consensus.Run(runCtx) })
	a.spawn(func() { a.forwardVerifiedProposals(runCtx) })
	a.spawn(func() { a.forwardCandidates(runCtx) })
	a.spawn(func() { a.forwardCommits(runCtx) })
	a.spawn(func() { a.sync.Run(runCtx, a.commitsForSync) })
	a.spawn(func() { a.forwardSyncEvents(runCtx) })
	if a.gossip != nil {
		a.spawn(func() { a.forwardGossipTransactions(runCtx) })
		a.spawn(func() { a.forwardGossipProposals(runCtx) })
	}

	<-runCtx.Done()
	a.wg.Wait()
}

func (a *Application) spawn(f func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		f()
	}()
}

// MetricsHandler exposes the node's prometheus registry over HTTP.
func (a *Application) MetricsHandler() http.Handler {
	return a.metrics.Handler()
}

// Shutdown cancels every worker and releases the storage handles. Safe
// to call once Run has returned or is about to.
func (a *Application) Shutdown() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.hub.Close()
	return a.storage.Close()
}

func (a *Application) forwardVerifiedProposals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case vp, ok := <-a.sim.VerifiedProposals():
			if !ok {
				return
			}
			for _, tx := range vp.Transactions {
				if h, err := tx.Hash(); err == nil {
					a.statuses.set(h, transport.StatusEnqueued)
				}
			}
		}
	}
}

func (a *Application) forwardCandidates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-a.sim.CandidateBlocks():
			if !ok {
				return
			}
			if sig, err := model.Sign(a.key, b.Hash[:]); err == nil {
				b.AddSignature(*sig)
			} else {
				log.WithField("height", b.Height).WithError(err).Errorf("failed to sign candidate block")
			}
			a.candidates.put(b)
			a.metrics.ProposalsEmitted.Inc()
			if err := a.consensus.Propose(b.Height, b.Hash); err != nil {
				log.WithField("height", b.Height).WithError(err).Warnf("failed to propose candidate to consensus gate")
			}
		}
	}
}

func (a *Application) forwardCommits(ctx context.Context) {
	defer close(a.commitsForSync)
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-a.consensus.Commits():
			if !ok {
				return
			}
			a.hub.PublishCommit(c)
			select {
			case a.commitsForSync <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (a *Application) forwardSyncEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-a.sync.Events():
			if !ok {
				return
			}
			if e.Err != nil {
				log.WithField("height", e.Height).WithError(e.Err).Errorf("synchronizer failed to resolve height")
				continue
			}
			for _, tx := range e.Block.Transactions {
				if h, err := tx.Hash(); err == nil {
					a.statuses.set(h, transport.StatusCommitted)
				}
			}
			a.candidates.drop(e.Height)
		}
	}
}

func (a *Application) forwardGossipTransactions(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tx, ok := <-a.gossip.Transactions():
			if !ok {
				return
			}
			if err := a.ordering.Submit(tx); err != nil {
				log.WithError(err).Debugf("dropped gossiped transaction")
			}
		}
	}
}

func (a *Application) forwardGossipProposals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-a.gossip.Proposals():
			if !ok {
				return
			}
			a.hub.PublishProposal(p)
		}
	}
}
