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

// Package pcs is the Peer Communication Service: a fan-out hub exposing
// proposal and commit event streams to any number of external
// subscribers. Grounded on the teacher's chainbus/bus.go pub/sub idiom,
// adapted from topic-string routing to two fixed, typed event kinds.
package pcs

import (
	"sync"

	"github.com/ledgerkit/ledgerd/consensus"
	"github.com/ledgerkit/ledgerd/model"
)

// subscriberBuffer bounds how far a slow subscriber can lag; once its
// buffer is full, newly published events are dropped for it, so one
// stalled subscriber can't back up the hub for everyone else.
const subscriberBuffer = 32

// Hub fans proposal and commit events out to every subscriber connected
// at emission time. Late subscribers do not see events emitted before
// they subscribed, per SPEC_FULL §4.8.
type Hub struct {
	mu              sync.RWMutex
	proposalSubs    map[int]chan *model.Proposal
	commitSubs      map[int]chan consensus.Committed
	nextSubID       int
}

// New constructs an empty Hub.
func New() *Hub {
	return &Hub{
		proposalSubs: map[int]chan *model.Proposal{},
		commitSubs:   map[int]chan consensus.Committed{},
	}
}

// OnProposal returns a channel the caller receives every subsequently
// emitted proposal on, plus an unsubscribe function.
func (h *Hub) OnProposal() (<-chan *model.Proposal, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSubID
	h.nextSubID++
	ch := make(chan *model.Proposal, subscriberBuffer)
	h.proposalSubs[id] = ch
	return ch, func() { h.unsubscribeProposal(id) }
}

// OnCommit returns a channel the caller receives every subsequently
// emitted commit on, plus an unsubscribe function.
func (h *Hub) OnCommit() (<-chan consensus.Committed, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSubID
	h.nextSubID++
	ch := make(chan consensus.Committed, subscriberBuffer)
	h.commitSubs[id] = ch
	return ch, func() { h.unsubscribeCommit(id) }
}

func (h *Hub) unsubscribeProposal(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.proposalSubs[id]; ok {
		close(ch)
		delete(h.proposalSubs, id)
	}
}

func (h *Hub) unsubscribeCommit(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.commitSubs[id]; ok {
		close(ch)
		delete(h.commitSubs, id)
	}
}

// PublishProposal fans p out to every current proposal subscriber. A
// subscriber whose buffer is full drops the event rather than stalling
// the publisher.
func (h *Hub) PublishProposal(p *model.Proposal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.proposalSubs {
		select {
		case ch <- p:
		default:
		}
	}
}

// PublishCommit fans c out to every current commit subscriber.
func (h *Hub) PublishCommit(c consensus.Committed) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.commitSubs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Close shuts down every outstanding subscriber channel, for node
// shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.proposalSubs {
		close(ch)
		delete(h.proposalSubs, id)
	}
	for id, ch := range h.commitSubs {
		close(ch)
		delete(h.commitSubs, id)
	}
}
