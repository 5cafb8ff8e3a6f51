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

package storage

import (
	"database/sql"

	"github.com/ledgerkit/ledgerd/crypto/asymmetric"
	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/proto"
	"github.com/pkg/errors"
)

// queryer is the subset of *sql.DB/*sql.Tx this package needs, so the
// same account/peer helpers serve read-only, temporary and mutable views.
type queryer interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func getAccount(q queryer, addr proto.AccountAddress) (*model.Account, error) {
	row := q.QueryRow(`SELECT quorum FROM accounts WHERE address = ?`, string(addr))
	var quorum uint32
	if err := row.Scan(&quorum); err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "query account")
	}

	acc := &model.Account{
		Address:  addr,
		Quorum:   quorum,
		Balances: map[string]uint64{},
	}

	balRows, err := q.Query(`SELECT asset, amount FROM balances WHERE account = ?`, string(addr))
	if err != nil {
		return nil, errors.Wrap(err, "query balances")
	}
	defer balRows.Close()
	for balRows.Next() {
		var asset string
		var amount uint64
		if err := balRows.Scan(&asset, &amount); err != nil {
			return nil, errors.Wrap(err, "scan balance")
		}
		acc.Balances[asset] = amount
	}

	sigRows, err := q.Query(`SELECT public_key, weight FROM signatories WHERE account = ?`, string(addr))
	if err != nil {
		return nil, errors.Wrap(err, "query signatories")
	}
	defer sigRows.Close()
	for sigRows.Next() {
		var raw []byte
		var weight uint32
		if err := sigRows.Scan(&raw, &weight); err != nil {
			return nil, errors.Wrap(err, "scan signatory")
		}
		pub, err := asymmetric.ParsePublicKey(raw)
		if err != nil {
			return nil, errors.Wrap(err, "parse signatory key")
		}
		acc.Signatories = append(acc.Signatories, model.Signatory{PublicKey: pub, Weight: weight})
	}
	return acc, nil
}

func putAccount(q queryer, acc *model.Account) error {
	if _, err := q.Exec(`INSERT INTO accounts(address, quorum) VALUES(?, ?)
		ON CONFLICT(address) DO UPDATE SET quorum=excluded.quorum`,
		string(acc.Address), acc.Quorum); err != nil {
		return errors.Wrap(err, "upsert account")
	}
	if _, err := q.Exec(`DELETE FROM balances WHERE account = ?`, string(acc.Address)); err != nil {
		return errors.Wrap(err, "clear balances")
	}
	for asset, amount := range acc.Balances {
		if _, err := q.Exec(`INSERT INTO balances(account, asset, amount) VALUES(?, ?, ?)`,
			string(acc.Address), asset, amount); err != nil {
			return errors.Wrap(err, "insert balance")
		}
	}
	if _, err := q.Exec(`DELETE FROM signatories WHERE account = ?`, string(acc.Address)); err != nil {
		return errors.Wrap(err, "clear signatories")
	}
	for _, s := range acc.Signatories {
		if _, err := q.Exec(`INSERT INTO signatories(account, public_key, weight) VALUES(?, ?, ?)`,
			string(acc.Address), s.PublicKey.Serialize(), s.Weight); err != nil {
			return errors.Wrap(err, "insert signatory")
		}
	}
	return nil
}

func peerSet(q queryer) (*proto.PeerSet, error) {
	rows, err := q.Query(`SELECT id, address, public_key FROM peers ORDER BY seq ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "query peers")
	}
	defer rows.Close()
	set := &proto.PeerSet{}
	for rows.Next() {
		var id, addr string
		var raw []byte
		if err := rows.Scan(&id, &addr, &raw); err != nil {
			return nil, errors.Wrap(err, "scan peer")
		}
		pub, err := asymmetric.ParsePublicKey(raw)
		if err != nil {
			return nil, errors.Wrap(err, "parse peer key")
		}
		set.Peers = append(set.Peers, proto.Peer{ID: proto.NodeID(id), Address: addr, PublicKey: pub})
	}
	return set, nil
}

func addPeer(q queryer, p proto.Peer) error {
	var seq int
	row := q.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM peers`)
	if err := row.Scan(&seq); err != nil {
		return errors.Wrap(err, "query peer seq")
	}
	_, err := q.Exec(`INSERT INTO peers(id, address, public_key, seq) VALUES(?, ?, ?, ?)`,
		string(p.ID), p.Address, p.PublicKey.Serialize(), seq+1)
	return errors.Wrap(err, "insert peer")
}

// ReadOnlyWSV is a cheap handle for concurrent, lock-free reads, backed
// by its own `mode=ro` connection per SPEC_FULL §4.1.
type ReadOnlyWSV struct {
	db *sql.DB
}

func (v *ReadOnlyWSV) GetAccount(addr proto.AccountAddress) (*model.Account, error) { return getAccount(v.db, addr) }
func (v *ReadOnlyWSV) PeerSet() (*proto.PeerSet, error)                             { return peerSet(v.db) }

// TemporaryWSV is a scratch branch for stateful validation: a backend
// transaction that is always rolled back, never committed.
type TemporaryWSV struct {
	tx       *sql.Tx
	released bool
}

func (v *TemporaryWSV) GetAccount(addr proto.AccountAddress) (*model.Account, error) { return getAccount(v.tx, addr) }
func (v *TemporaryWSV) PutAccount(acc *model.Account) error                          { return putAccount(v.tx, acc) }
func (v *TemporaryWSV) PeerSet() (*proto.PeerSet, error)                             { return peerSet(v.tx) }
func (v *TemporaryWSV) AddPeer(p proto.Peer) error                                   { return addPeer(v.tx, p) }

// Discard rolls back the scratch transaction. Safe to call more than
// once.
func (v *TemporaryWSV) Discard() error {
	if v.released {
		return nil
	}
	v.released = true
	return v.tx.Rollback()
}

// Savepoint opens a named SQL savepoint, letting the Stateful Validator
// undo one failing transaction's partial effects without discarding the
// whole temporary view, per SPEC_FULL §4.3's non-contagious-failure rule.
func (v *TemporaryWSV) Savepoint(name string) error {
	_, err := v.tx.Exec("SAVEPOINT " + name)
	return errors.Wrap(err, "open savepoint")
}

// RollbackTo undoes everything since Savepoint(name) without discarding
// the rest of the view's accumulated state.
func (v *TemporaryWSV) RollbackTo(name string) error {
	_, err := v.tx.Exec("ROLLBACK TO SAVEPOINT " + name)
	return errors.Wrap(err, "rollback to savepoint")
}

// ReleaseSavepoint commits the named savepoint into its parent
// transaction (still not the backend commit — the view as a whole is
// never committed).
func (v *TemporaryWSV) ReleaseSavepoint(name string) error {
	_, err := v.tx.Exec("RELEASE SAVEPOINT " + name)
	return errors.Wrap(err, "release savepoint")
}

// MutableWSV is the single exclusive writer branch used to stage a
// commit. Created only through Storage.CreateMutableView.
type MutableWSV struct {
	tx           *sql.Tx
	TopBlockHash hash.Hash
	stagedBlocks []*model.Block
	released     bool
}

func (v *MutableWSV) GetAccount(addr proto.AccountAddress) (*model.Account, error) { return getAccount(v.tx, addr) }
func (v *MutableWSV) PutAccount(acc *model.Account) error                          { return putAccount(v.tx, acc) }
func (v *MutableWSV) PeerSet() (*proto.PeerSet, error)                             { return peerSet(v.tx) }
func (v *MutableWSV) AddPeer(p proto.Peer) error                                   { return addPeer(v.tx, p) }

// Stage queues a block's commands for application as part of this
// view's eventual commit, applying them immediately against the backing
// transaction so later staged blocks see earlier ones' effects.
func (v *MutableWSV) Stage(b *model.Block) error {
	for i, tx := range b.Transactions {
		for j, cmd := range tx.Commands {
			c := cmd
			if err := c.Apply(v); err != nil {
				return errors.Wrapf(err, "apply block %d tx %d cmd %d", b.Height, i, j)
			}
		}
	}
	v.stagedBlocks = append(v.stagedBlocks, b)
	return nil
}

// Discard rolls back without committing, leaving the WSV untouched.
func (v *MutableWSV) Discard() error {
	if v.released {
		return nil
	}
	v.released = true
	return v.tx.Rollback()
}
