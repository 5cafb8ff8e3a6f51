package conf

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, body string) string {
	dir, err := ioutil.TempDir("", "ledgerd-conf")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, ioutil.WriteFile(p, []byte(body), 0600))
	return p
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	p := writeTemp(t, `
WSVPath: /tmp/wsv.db
BlockIndexPath: /tmp/blockindex
BlockStoreDir: /tmp/blocks
KeyPairPath: /tmp/node.key
`)
	c, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, 10, c.MaxTxPerProposal)
	require.Equal(t, 5*time.Second, c.ProposalInterval)
	require.Equal(t, 3, c.PeerFetchRetries)
	require.Equal(t, "info", c.LogLevel)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	p := writeTemp(t, `
WSVPath: /tmp/wsv.db
BlockIndexPath: /tmp/blockindex
BlockStoreDir: /tmp/blocks
KeyPairPath: /tmp/node.key
MaxTxPerProposal: 25
ProposalInterval: 750ms
LogLevel: debug
`)
	c, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, 25, c.MaxTxPerProposal)
	require.Equal(t, 750*time.Millisecond, c.ProposalInterval)
	require.Equal(t, "debug", c.LogLevel)
}

func TestLoadConfigMissingRequiredField(t *testing.T) {
	p := writeTemp(t, `
WSVPath: /tmp/wsv.db
`)
	_, err := LoadConfig(p)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	require.Error(t, err)
}

func TestLoadConfigParsesGenesis(t *testing.T) {
	p := writeTemp(t, `
WSVPath: /tmp/wsv.db
BlockIndexPath: /tmp/blockindex
BlockStoreDir: /tmp/blocks
KeyPairPath: /tmp/node.key
Genesis:
  Accounts:
    - Address: alice
      Quorum: 1
      Signatories: ["02aa"]
      Balances:
        USD: 100
  Peers:
    - ID: node1
      Address: 127.0.0.1:4000
      PublicKey: "02bb"
`)
	c, err := LoadConfig(p)
	require.NoError(t, err)
	require.Len(t, c.Genesis.Accounts, 1)
	require.Equal(t, "alice", c.Genesis.Accounts[0].Address)
	require.EqualValues(t, 100, c.Genesis.Accounts[0].Balances["USD"])
	require.Len(t, c.Genesis.Peers, 1)
	require.Equal(t, "node1", c.Genesis.Peers[0].ID)
}
