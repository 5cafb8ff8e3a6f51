package validation

import (
	"testing"
	"time"

	"github.com/ledgerkit/ledgerd/crypto/asymmetric"
	"github.com/ledgerkit/ledgerd/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStatelessValidatorScenarios(t *testing.T) {
	Convey("Given a stateless validator with the default skew window", t, func() {
		v := NewStatelessValidator()
		priv, _, err := asymmetric.GenerateKeyPair()
		So(err, ShouldBeNil)

		Convey("When a transaction has commands, a signature and a fresh timestamp", func() {
			tx := model.Transaction{
				Creator:   "alice",
				CreatedAt: time.Now(),
				Commands:  []model.Command{{CreateAccount: &model.CreateAccount{Address: "alice", Quorum: 1}}},
			}
			So(tx.AddSignature(priv), ShouldBeNil)

			Convey("Then it passes validation", func() {
				So(v.Validate(&tx), ShouldBeNil)
			})
		})

		Convey("When a transaction carries no commands", func() {
			tx := model.Transaction{Creator: "alice", CreatedAt: time.Now()}
			So(tx.AddSignature(priv), ShouldBeNil)

			Convey("Then it is rejected as empty", func() {
				So(v.Validate(&tx), ShouldEqual, ErrEmptyCommands)
			})
		})

		Convey("When a transaction's timestamp is far outside the skew window", func() {
			tx := model.Transaction{
				Creator:   "alice",
				CreatedAt: time.Now().Add(-48 * time.Hour),
				Commands:  []model.Command{{CreateAccount: &model.CreateAccount{Address: "alice", Quorum: 1}}},
			}
			So(tx.AddSignature(priv), ShouldBeNil)

			Convey("Then it is rejected for clock skew", func() {
				So(v.Validate(&tx), ShouldEqual, ErrTimestampSkew)
			})
		})

		Convey("When a signature is tampered with after signing", func() {
			tx := model.Transaction{
				Creator:   "alice",
				CreatedAt: time.Now(),
				Commands:  []model.Command{{CreateAccount: &model.CreateAccount{Address: "alice", Quorum: 1}}},
			}
			So(tx.AddSignature(priv), ShouldBeNil)
			tx.Signatures[0].Value[0] ^= 0xFF

			Convey("Then validation fails", func() {
				So(v.Validate(&tx), ShouldNotBeNil)
			})
		})
	})
}

func TestStatefulValidatorScenarios(t *testing.T) {
	Convey("Given a temporary view with a funded alice and an empty bob", t, func() {
		view := newMemView()
		privA, _, _ := asymmetric.GenerateKeyPair()
		alice := &model.Account{
			Address:     "alice",
			Quorum:      1,
			Balances:    map[string]uint64{"base": 100},
			Signatories: []model.Signatory{{PublicKey: privA.PubKey(), Weight: 1}},
		}
		bob := &model.Account{Address: "bob", Quorum: 1, Balances: map[string]uint64{}}
		So(view.PutAccount(alice), ShouldBeNil)
		So(view.PutAccount(bob), ShouldBeNil)

		sv := &StatefulValidator{}

		Convey("When a proposal mixes one affordable and one overdrawn transfer from alice", func() {
			ok := model.Transaction{
				Creator:   "alice",
				CreatedAt: time.Now(),
				Commands:  []model.Command{{TransferAsset: &model.TransferAsset{Source: "alice", Destination: "bob", Asset: "base", Amount: 50}}},
			}
			So(ok.AddSignature(privA), ShouldBeNil)
			overdrawn := model.Transaction{
				Creator:   "alice",
				CreatedAt: time.Now(),
				Commands:  []model.Command{{TransferAsset: &model.TransferAsset{Source: "alice", Destination: "bob", Asset: "base", Amount: 100}}},
			}
			So(overdrawn.AddSignature(privA), ShouldBeNil)

			vp, rejections, err := sv.Validate(view, &model.Proposal{Height: 1, Transactions: []model.Transaction{ok, overdrawn}})

			Convey("Then only the affordable one survives, without poisoning the view for the rest", func() {
				So(err, ShouldBeNil)
				So(len(vp.Transactions), ShouldEqual, 1)
				So(len(rejections), ShouldEqual, 1)
				So(rejections[0].TxIndex, ShouldEqual, 1)

				a, _ := view.GetAccount("alice")
				b, _ := view.GetAccount("bob")
				So(a.Balances["base"], ShouldEqual, uint64(50))
				So(b.Balances["base"], ShouldEqual, uint64(50))
			})
		})

		Convey("When a transaction's creator does not exist in the view", func() {
			priv, _, _ := asymmetric.GenerateKeyPair()
			tx := model.Transaction{
				Creator:   "ghost",
				CreatedAt: time.Now(),
				Commands:  []model.Command{{CreateAccount: &model.CreateAccount{Address: "ghost", Quorum: 1}}},
			}
			So(tx.AddSignature(priv), ShouldBeNil)

			vp, rejections, err := sv.Validate(view, &model.Proposal{Height: 1, Transactions: []model.Transaction{tx}})

			Convey("Then it is rejected and nothing is admitted", func() {
				So(err, ShouldBeNil)
				So(len(vp.Transactions), ShouldEqual, 0)
				So(len(rejections), ShouldEqual, 1)
			})
		})
	})
}
