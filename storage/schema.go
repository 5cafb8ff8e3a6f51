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

// wsvSchema is issued against a fresh WSV database. It mirrors the
// teacher's storageProcedure DDL batching: one statement list applied
// with a single Exec at open time.
const wsvSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	address TEXT PRIMARY KEY,
	quorum INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS signatories (
	account TEXT NOT NULL,
	public_key BLOB NOT NULL,
	weight INTEGER NOT NULL,
	PRIMARY KEY (account, public_key),
	FOREIGN KEY (account) REFERENCES accounts(address)
);

CREATE TABLE IF NOT EXISTS balances (
	account TEXT NOT NULL,
	asset TEXT NOT NULL,
	amount INTEGER NOT NULL,
	PRIMARY KEY (account, asset),
	FOREIGN KEY (account) REFERENCES accounts(address)
);

CREATE TABLE IF NOT EXISTS asset_definitions (
	name TEXT PRIMARY KEY,
	precision INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS permissions (
	account TEXT NOT NULL,
	permission TEXT NOT NULL,
	PRIMARY KEY (account, permission),
	FOREIGN KEY (account) REFERENCES accounts(address)
);

CREATE TABLE IF NOT EXISTS peers (
	id TEXT PRIMARY KEY,
	address TEXT NOT NULL,
	public_key BLOB NOT NULL,
	seq INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chain_meta (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
);
`
