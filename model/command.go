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

package model

import (
	"github.com/ledgerkit/ledgerd/proto"
)

// Command is a closed union of the five WSV mutations this core supports.
// Exactly one payload field is set; Apply dispatches on which. A tagged
// union of optional pointers keeps the type msgpack-friendly without
// resorting to interface registration, unlike the teacher's txpool, which
// could lean on hsp-generated codecs for its own closed set.
type Command struct {
	CreateAccount    *CreateAccount    `codec:"1,omitempty"`
	TransferAsset    *TransferAsset    `codec:"2,omitempty"`
	AddSignatory     *AddSignatory     `codec:"3,omitempty"`
	SetAccountQuorum *SetAccountQuorum `codec:"4,omitempty"`
	AddPeer          *AddPeer          `codec:"5,omitempty"`
}

// Apply executes the set payload against ctx. Commands never retry a
// partial mutation: on error the caller must discard ctx's pending state,
// per SPEC_FULL §4.3's sequential-application invariant.
func (c *Command) Apply(ctx ExecutionContext) error {
	switch {
	case c.CreateAccount != nil:
		return c.CreateAccount.apply(ctx)
	case c.TransferAsset != nil:
		return c.TransferAsset.apply(ctx)
	case c.AddSignatory != nil:
		return c.AddSignatory.apply(ctx)
	case c.SetAccountQuorum != nil:
		return c.SetAccountQuorum.apply(ctx)
	case c.AddPeer != nil:
		return c.AddPeer.apply(ctx)
	default:
		return ErrUnknownCommand
	}
}

// CreateAccount registers a new account with an initial quorum and
// signatory set. Balances is normally left nil at runtime (new accounts
// start empty and receive funds only via TransferAsset); genesis seeding
// is the one caller that sets it directly, since no source account can
// pre-exist to transfer from before the first block.
type CreateAccount struct {
	Address     proto.AccountAddress
	Quorum      uint32
	Signatories []Signatory
	Balances    map[string]uint64
}

func (c *CreateAccount) apply(ctx ExecutionContext) error {
	if _, err := ctx.GetAccount(c.Address); err == nil {
		return ErrAccountExists
	}
	if c.Quorum == 0 {
		return ErrInvalidQuorum
	}
	balances := c.Balances
	if balances == nil {
		balances = map[string]uint64{}
	}
	return ctx.PutAccount(&Account{
		Address:     c.Address,
		Balances:    balances,
		Quorum:      c.Quorum,
		Signatories: c.Signatories,
	})
}

// TransferAsset moves amount units of asset from Source to Destination.
type TransferAsset struct {
	Source      proto.AccountAddress
	Destination proto.AccountAddress
	Asset       string
	Amount      uint64
}

func (c *TransferAsset) apply(ctx ExecutionContext) error {
	src, err := ctx.GetAccount(c.Source)
	if err != nil {
		return err
	}
	dst, err := ctx.GetAccount(c.Destination)
	if err != nil {
		return err
	}
	if src.Balances[c.Asset] < c.Amount {
		return ErrInsufficientBalance
	}
	src.Balances[c.Asset] -= c.Amount
	if dst.Balances == nil {
		dst.Balances = map[string]uint64{}
	}
	dst.Balances[c.Asset] += c.Amount
	if err := ctx.PutAccount(src); err != nil {
		return err
	}
	return ctx.PutAccount(dst)
}

// AddSignatory adds a weighted signing key to an account.
type AddSignatory struct {
	Account   proto.AccountAddress
	Signatory Signatory
}

func (c *AddSignatory) apply(ctx ExecutionContext) error {
	acc, err := ctx.GetAccount(c.Account)
	if err != nil {
		return err
	}
	acc.Signatories = append(acc.Signatories, c.Signatory)
	return ctx.PutAccount(acc)
}

// SetAccountQuorum changes the signature weight an account requires.
type SetAccountQuorum struct {
	Account proto.AccountAddress
	Quorum  uint32
}

func (c *SetAccountQuorum) apply(ctx ExecutionContext) error {
	if c.Quorum == 0 {
		return ErrInvalidQuorum
	}
	acc, err := ctx.GetAccount(c.Account)
	if err != nil {
		return err
	}
	acc.Quorum = c.Quorum
	return ctx.PutAccount(acc)
}

// AddPeer admits a new peer into the current consensus peer set.
type AddPeer struct {
	Peer proto.Peer
}

func (c *AddPeer) apply(ctx ExecutionContext) error {
	return ctx.AddPeer(c.Peer)
}
