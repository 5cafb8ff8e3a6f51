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

// Package conf loads the node's YAML configuration file, mirroring the
// teacher's conf/config.go.
package conf

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config is every input this core consults. There are no environment
// variable fallbacks: everything lives here, per SPEC_FULL §6.
type Config struct {
	// WSVPath is the sqlite DSN for the relational World-State-View.
	WSVPath string `yaml:"WSVPath"`
	// BlockIndexPath is the goleveldb directory backing the block store's
	// height → (file, hash) secondary index.
	BlockIndexPath string `yaml:"BlockIndexPath"`
	// BlockStoreDir holds one flat file per committed block.
	BlockStoreDir string `yaml:"BlockStoreDir"`

	// ListenAddress is where this node's peer transports bind.
	ListenAddress string `yaml:"ListenAddress"`
	// KeyPairPath is the key file holding this node's private key: a hash
	// integrity prefix followed by the raw secp256k1 key bytes.
	KeyPairPath string `yaml:"KeyPairPath"`

	// MaxTxPerProposal bounds an Ordering Gate batch. Default 10.
	MaxTxPerProposal int `yaml:"MaxTxPerProposal"`
	// ProposalInterval bounds how long the Ordering Gate waits before
	// cutting a partial batch. Default 5s.
	ProposalInterval time.Duration `yaml:"ProposalInterval"`
	// ConsensusRoundTimeout bounds one Consensus Gate voting round.
	ConsensusRoundTimeout time.Duration `yaml:"ConsensusRoundTimeout"`
	// PeerFetchTimeout bounds a single Synchronizer fetch attempt.
	PeerFetchTimeout time.Duration `yaml:"PeerFetchTimeout"`
	// PeerFetchRetries bounds the Synchronizer's backoff retry count.
	PeerFetchRetries int `yaml:"PeerFetchRetries"`

	// LogLevel is one of the logrus level names.
	LogLevel string `yaml:"LogLevel"`
	// MetricListenAddress, if non-empty, exposes a prometheus /metrics
	// endpoint for the metric package's collectors.
	MetricListenAddress string `yaml:"MetricListenAddress"`

	// Genesis seeds the WSV's initial accounts and peers directly, without
	// writing a block. It is skipped when the WSV already holds its first
	// account (or, with no accounts, its peer set).
	Genesis GenesisConfig `yaml:"Genesis"`
}

// GenesisAccount declares one account to exist from height 1 onward,
// skipping the normal CreateAccount quorum-gated path since no creator
// account can pre-exist to submit it.
type GenesisAccount struct {
	Address     string            `yaml:"Address"`
	Quorum      uint32            `yaml:"Quorum"`
	Signatories []string          `yaml:"Signatories"` // hex-encoded compressed public keys
	Balances    map[string]uint64 `yaml:"Balances"`
}

// GenesisPeer declares one member of the consensus peer set from height 1
// onward.
type GenesisPeer struct {
	ID        string `yaml:"ID"`
	Address   string `yaml:"Address"`
	PublicKey string `yaml:"PublicKey"` // hex-encoded compressed public key
}

// GenesisConfig is the trusted, out-of-band state every node in a
// deployment must agree on before any transaction can be submitted.
type GenesisConfig struct {
	CreatedAt time.Time        `yaml:"CreatedAt"`
	Accounts  []GenesisAccount `yaml:"Accounts"`
	Peers     []GenesisPeer    `yaml:"Peers"`
}

// defaults fills in every zero-valued field this core requires to have a
// sane default, matching the defaults named in SPEC_FULL §4.4 and §5.
func (c *Config) defaults() {
	if c.MaxTxPerProposal == 0 {
		c.MaxTxPerProposal = 10
	}
	if c.ProposalInterval == 0 {
		c.ProposalInterval = 5 * time.Second
	}
	if c.ConsensusRoundTimeout == 0 {
		c.ConsensusRoundTimeout = 3 * time.Second
	}
	if c.PeerFetchTimeout == 0 {
		c.PeerFetchTimeout = 2 * time.Second
	}
	if c.PeerFetchRetries == 0 {
		c.PeerFetchRetries = 3
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// LoadConfig reads and parses the YAML file at path, applying defaults
// to any field the file left unset.
func LoadConfig(path string) (*Config, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	c := &Config{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}
	c.defaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.WSVPath == "" {
		return errors.New("WSVPath is required")
	}
	if c.BlockIndexPath == "" {
		return errors.New("BlockIndexPath is required")
	}
	if c.BlockStoreDir == "" {
		return errors.New("BlockStoreDir is required")
	}
	if c.KeyPairPath == "" {
		return errors.New("KeyPairPath is required")
	}
	return nil
}
