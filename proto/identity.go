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

// Package proto holds the identity types shared by the WSV peer table, the
// Consensus Gate and the Chain Validator. It deliberately does not define
// any wire framing — that belongs to the transport adapters named only by
// interface in transport.
package proto

import "github.com/ledgerkit/ledgerd/crypto/asymmetric"

// NodeID identifies a peer on the network, derived from its public key by
// the collaborator responsible for node admission (out of this core's
// scope; this type only carries the identifier).
type NodeID string

// AccountAddress identifies an account in the WSV.
type AccountAddress string

// Peer is one member of the current consensus peer set.
type Peer struct {
	ID        NodeID
	Address   string
	PublicKey *asymmetric.PublicKey
}

// PeerSet is the ordered peer list used to compute quorum thresholds. Peer
// set membership can change block by block, per SPEC_FULL §4.7.
type PeerSet struct {
	Peers []Peer
}

// Quorum returns the minimum vote count needed for a 2n/3+1 majority over
// the current peer set, matching the Consensus Gate's voting rule.
func (s *PeerSet) Quorum() int {
	n := len(s.Peers)
	if n == 0 {
		return 0
	}
	return (2*n)/3 + 1
}

// IndexOf returns the position of id in the peer set, or -1 if absent.
func (s *PeerSet) IndexOf(id NodeID) int {
	for i, p := range s.Peers {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// ByID looks up a peer by its NodeID.
func (s *PeerSet) ByID(id NodeID) (Peer, bool) {
	for _, p := range s.Peers {
		if p.ID == id {
			return p, true
		}
	}
	return Peer{}, false
}
