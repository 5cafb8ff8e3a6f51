package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerkit/ledgerd/crypto/hash"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHashVotingGateScenarios(t *testing.T) {
	Convey("Given a hash voting gate over four peers", t, func() {
		transport := newFakeTransport()
		gate := NewHashVotingGate(&fakePeers{n: 4}, transport, time.Hour) // quorum = floor(8/3)+1 = 3

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go gate.Run(ctx)

		h := hash.THashH([]byte("block-1"))

		Convey("When fewer than quorum votes arrive for a height", func() {
			transport.votes <- Vote{Height: 1, Hash: h, VoterID: "a"}
			transport.votes <- Vote{Height: 1, Hash: h, VoterID: "b"}

			Convey("Then the height does not commit", func() {
				select {
				case <-gate.Commits():
					t.Fatal("committed before quorum reached")
				case <-time.After(50 * time.Millisecond):
				}
			})
		})

		Convey("When quorum votes arrive for the same hash", func() {
			transport.votes <- Vote{Height: 1, Hash: h, VoterID: "a"}
			transport.votes <- Vote{Height: 1, Hash: h, VoterID: "b"}
			transport.votes <- Vote{Height: 1, Hash: h, VoterID: "c"}

			Convey("Then the gate commits that hash at that height", func() {
				select {
				case c := <-gate.Commits():
					So(c.Height, ShouldEqual, uint32(1))
					So(c.Hash.IsEqual(&h), ShouldBeTrue)
				case <-time.After(time.Second):
					t.Fatal("timed out waiting for commit")
				}
			})
		})

		Convey("When the same voter casts the same vote twice", func() {
			transport.votes <- Vote{Height: 1, Hash: h, VoterID: "a"}
			transport.votes <- Vote{Height: 1, Hash: h, VoterID: "a"}
			transport.votes <- Vote{Height: 1, Hash: h, VoterID: "a"}

			Convey("Then it is tallied once, not three times", func() {
				select {
				case <-gate.Commits():
					t.Fatal("a single voter's repeated vote should never reach quorum alone")
				case <-time.After(50 * time.Millisecond):
				}
			})
		})
	})

	Convey("Given a hash voting gate over a single peer", t, func() {
		transport := newFakeTransport()
		gate := NewHashVotingGate(&fakePeers{n: 1}, transport, time.Hour) // quorum = 1

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go gate.Run(ctx)

		h := hash.THashH([]byte("block-1"))

		Convey("When the height has already committed", func() {
			transport.votes <- Vote{Height: 1, Hash: h, VoterID: "a"}
			select {
			case <-gate.Commits():
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for first commit")
			}

			Convey("Then re-proposing it is a no-op", func() {
				So(gate.Propose(1, h), ShouldBeNil)

				select {
				case <-gate.Commits():
					t.Fatal("re-proposing an already-committed height must not emit again")
				case <-time.After(100 * time.Millisecond):
				}
			})

			Convey("Then a second vote for it never emits a second commit", func() {
				transport.votes <- Vote{Height: 1, Hash: h, VoterID: "a"}

				select {
				case <-gate.Commits():
					t.Fatal("second commit for the same height should be a no-op")
				case <-time.After(100 * time.Millisecond):
				}
			})
		})
	})
}
