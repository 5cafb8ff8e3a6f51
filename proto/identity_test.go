package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeerSetQuorum(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 3},
		{4, 3},
		{7, 5},
	}
	for _, c := range cases {
		set := &PeerSet{}
		for i := 0; i < c.n; i++ {
			set.Peers = append(set.Peers, Peer{ID: NodeID(string(rune('a' + i)))})
		}
		require.Equal(t, c.want, set.Quorum(), "n=%d", c.n)
	}
}

func TestPeerSetIndexOfAndByID(t *testing.T) {
	set := &PeerSet{Peers: []Peer{{ID: "a"}, {ID: "b"}, {ID: "c"}}}

	require.Equal(t, 1, set.IndexOf("b"))
	require.Equal(t, -1, set.IndexOf("z"))

	p, ok := set.ByID("c")
	require.True(t, ok)
	require.Equal(t, NodeID("c"), p.ID)

	_, ok = set.ByID("z")
	require.False(t, ok)
}
