package dealer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sg777/pangea/pkg/chain"
	"github.com/sg777/pangea/pkg/chain/chaintest"
	"github.com/sg777/pangea/pkg/config"
	"github.com/sg777/pangea/pkg/logging"
	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/storage"
	"github.com/sg777/pangea/pkg/vdxf"
)

const testGameID = "ffeeddccbbaa9988ffeeddccbbaa9988ffeeddccbbaa9988ffeeddccbbaa9988"

func keyID(name string) string {
	return chaintest.VdxfID(vdxf.DefaultKeyPrefix + name)
}

type joinFixture struct {
	daemon *chaintest.Daemon
	dealer *Dealer
}

func newJoinFixture(t *testing.T) *joinFixture {
	t.Helper()
	d := chaintest.New(config.DefaultParentFQN)
	t.Cleanup(d.Close)

	d.AddIdentity("t1", "RTable", true)
	d.AddIdentity("d1", "RDealer", true)
	d.AddIdentity("cashier", "RCashier", false)
	d.AppendRaw("t1", keyID(vdxf.KeyTGameID), []byte(testGameID))

	logBackend, err := logging.NewLogBackend(logging.LogConfig{DebugLevel: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { logBackend.Close() })

	db, err := storage.NewDB(t.TempDir() + "/pangea.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Dealer{
		MaxPlayers: 2,
		BigBlind:   poker.DefaultBigBlind,
		MinStake:   poker.DefaultMinStake,
		MaxStake:   poker.DefaultMaxStake,
		DealerID:   "d1",
		CashierID:  "cashier",
		TableID:    "t1",
		Keys: config.Keys{
			ParentFQN:  config.DefaultParentFQN,
			CashiersID: "cashier",
			DealersID:  config.DefaultDealersID,
		},
	}
	client := d.Client()
	cmm := vdxf.New(client, "", config.DefaultParentFQN, logBackend.Logger("VDXF"))
	dlr := New(cfg, client, cmm, db, nil, logBackend.Logger("DLR"))
	dlr.table.StartBlock = 5
	dlr.view = poker.NewView(cmm, "t1", 5)
	return &joinFixture{daemon: d, dealer: dlr}
}

// seedJoin registers a player identity with a payin and join request.
func (f *joinFixture) seedJoin(pid, payinTx string, amount float64) {
	f.daemon.AddIdentity(pid, "R"+pid, false)
	f.daemon.AddTx(payinTx, 10, []chaintest.TxOut{
		{Value: amount, N: 0, Addresses: []string{"RCashier"}},
	})
	f.daemon.AppendEntry(pid, keyID(vdxf.KeyPJoinRequest), &poker.JoinRequest{
		DealerID: "d1", TableID: "t1", CashierID: "cashier", PayinTx: payinTx,
	})
}

func (f *joinFixture) playerInfo(t *testing.T) *poker.PlayerInfo {
	t.Helper()
	info, err := f.dealer.view.PlayerInfo()
	require.NoError(t, err)
	return info
}

func TestPollJoinsSeatsValidPlayer(t *testing.T) {
	f := newJoinFixture(t)
	f.seedJoin("p1", "payin1", 0.5)

	require.NoError(t, f.dealer.pollJoins())

	info := f.playerInfo(t)
	require.Equal(t, 1, info.NumPlayers)
	require.Equal(t, "p1", info.Players[0].VerusPID)
	require.Equal(t, "payin1", info.Players[0].PayinTx)
	require.Equal(t, []float64{0.5}, info.PayinAmounts)
}

func TestPollJoinsIsIdempotent(t *testing.T) {
	// Processing the same join request twice adds the player exactly once,
	// and a second request from a seated player is ignored.
	f := newJoinFixture(t)
	f.seedJoin("p1", "payin1", 0.5)

	require.NoError(t, f.dealer.pollJoins())
	require.NoError(t, f.dealer.pollJoins())
	require.Equal(t, 1, f.playerInfo(t).NumPlayers)

	f.daemon.AddTx("payin2", 12, []chaintest.TxOut{
		{Value: 0.5, N: 0, Addresses: []string{"RCashier"}},
	})
	f.daemon.AppendEntry("p1", keyID(vdxf.KeyPJoinRequest), &poker.JoinRequest{
		DealerID: "d1", TableID: "t1", CashierID: "cashier", PayinTx: "payin2",
	})
	require.NoError(t, f.dealer.pollJoins())
	require.Equal(t, 1, f.playerInfo(t).NumPlayers)
}

func TestPollJoinsRejectsOldPayin(t *testing.T) {
	f := newJoinFixture(t)
	f.daemon.AddIdentity("p1", "RP1", false)
	// The payin confirmed before the table's start_block.
	f.daemon.AddTx("stale", 2, []chaintest.TxOut{
		{Value: 0.5, N: 0, Addresses: []string{"RCashier"}},
	})
	f.daemon.AppendEntry("p1", keyID(vdxf.KeyPJoinRequest), &poker.JoinRequest{
		DealerID: "d1", TableID: "t1", CashierID: "cashier", PayinTx: "stale",
	})

	require.NoError(t, f.dealer.pollJoins())
	require.Zero(t, f.playerInfo(t).NumPlayers)
}

func TestPollJoinsIgnoresOtherTables(t *testing.T) {
	f := newJoinFixture(t)
	f.daemon.AddIdentity("p1", "RP1", false)
	f.daemon.AddTx("payin1", 10, []chaintest.TxOut{
		{Value: 0.5, N: 0, Addresses: []string{"RCashier"}},
	})
	f.daemon.AppendEntry("p1", keyID(vdxf.KeyPJoinRequest), &poker.JoinRequest{
		DealerID: "d1", TableID: "other-table", CashierID: "cashier", PayinTx: "payin1",
	})

	require.NoError(t, f.dealer.pollJoins())
	require.Zero(t, f.playerInfo(t).NumPlayers)
}

func TestPollJoinsAdvancesWhenFull(t *testing.T) {
	f := newJoinFixture(t)
	f.seedJoin("p1", "payin1", 0.5)
	f.seedJoin("p2", "payin2", 0.6)

	require.NoError(t, f.dealer.pollJoins())

	info := f.playerInfo(t)
	require.Equal(t, 2, info.NumPlayers)

	state, err := f.dealer.view.State()
	require.NoError(t, err)
	require.Equal(t, poker.StatePlayersJoined, state)
}

func TestPayinAmountSumsCashierOutputs(t *testing.T) {
	vouts := []chain.TxOutput{
		{Value: 0.3, N: 0},
		{Value: 0.2, N: 1},
		{Value: 0.9, N: 2},
	}
	vouts[0].ScriptPubKey.Addresses = []string{"RCashier"}
	vouts[1].ScriptPubKey.Addresses = []string{"RCashier"}
	vouts[2].ScriptPubKey.Addresses = []string{"RChange"}

	require.InDelta(t, 0.5, payinAmount(vouts, "RCashier"), 1e-9)
	require.Zero(t, payinAmount(vouts, "RUnknown"))
}
