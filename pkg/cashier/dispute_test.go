package cashier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sg777/pangea/pkg/chain/chaintest"
	"github.com/sg777/pangea/pkg/config"
	"github.com/sg777/pangea/pkg/logging"
	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/storage"
	"github.com/sg777/pangea/pkg/vdxf"
)

const (
	testGameID  = "aabbccdd00112233aabbccdd00112233aabbccdd00112233aabbccdd00112233"
	testTableID = "t1"
	testPayin   = "payintx1"
)

// keyID derives the same vdxf id the fake daemon hands out for a namespaced
// poker key.
func keyID(name string) string {
	return chaintest.VdxfID(vdxf.DefaultKeyPrefix + name)
}

type disputeFixture struct {
	daemon  *chaintest.Daemon
	cashier *Cashier
	db      *storage.DB
}

// newDisputeFixture seeds a chain where player p1 paid in at block 10 and
// the hand stopped at the given state. The daemon starts at height 100, so
// the payin is old enough to refund.
func newDisputeFixture(t *testing.T, state poker.GameState) *disputeFixture {
	t.Helper()

	d := chaintest.New(config.DefaultParentFQN)
	t.Cleanup(d.Close)

	d.AddIdentity("cashier", "RCashier", true)
	d.AddIdentity("p1", "RP1", false)
	d.AddIdentity(testTableID, "RTable", false)

	// Table hand context.
	d.AppendRaw(testTableID, keyID(vdxf.KeyTGameID), []byte(testGameID))
	d.AppendEntry(testTableID, keyID(vdxf.KeyTTableInfo+"."+testGameID), &poker.Table{
		MaxPlayers: 2, BigBlind: 0.02, MinStake: 0.5, MaxStake: 2,
		TableID: testTableID, DealerID: "d1", CashierID: "cashier", StartBlock: 5,
	})
	d.AppendEntry(testTableID, keyID(vdxf.KeyTGameInfo+"."+testGameID),
		&poker.GameInfo{GameState: state})

	// The player's escrowed payin and dispute context.
	d.AddTx(testPayin, 10, []chaintest.TxOut{{Value: 0.5, N: 0, Addresses: []string{"RCashier"}}})
	d.AppendEntry("p1", keyID(vdxf.KeyPGameHistory+"."+testGameID), &poker.GameHistory{
		PayinTx: testPayin, TableID: testTableID, GameID: testGameID,
		Amount: 0.5, JoinBlock: 10, PlayerID: 0,
	})
	d.AppendEntry("p1", keyID(vdxf.KeyPDisputeRequest+"."+testGameID), &poker.DisputeRequest{
		PayinTx: testPayin, TableID: testTableID, GameID: testGameID,
		Reason: "game_aborted", RequestBlock: 90, PlayerID: "p1",
	})

	logBackend, err := logging.NewLogBackend(logging.LogConfig{DebugLevel: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { logBackend.Close() })

	db, err := storage.NewDB(t.TempDir() + "/pangea.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := d.Client()
	cfg := &config.Cashier{
		CashierID: "cashier",
		Keys: config.Keys{
			ParentFQN:  config.DefaultParentFQN,
			CashiersID: "cashier",
			DealersID:  config.DefaultDealersID,
		},
	}
	cmm := vdxf.New(client, "", config.DefaultParentFQN, logBackend.Logger("VDXF"))
	c := New(cfg, client, cmm, db, nil, logBackend.Logger("CSHR"))
	return &disputeFixture{daemon: d, cashier: c, db: db}
}

func (f *disputeFixture) result(t *testing.T) *poker.DisputeResult {
	t.Helper()
	resultKey := keyID(vdxf.KeyCDisputeResult + "." + testGameID + ".p1")
	var result poker.DisputeResult
	err := f.cashier.cmm.GetLatestJSON("cashier", resultKey, 0, &result)
	require.NoError(t, err)
	return &result
}

func TestDisputeRefundsAbortedGame(t *testing.T) {
	f := newDisputeFixture(t, poker.StateDeckShufflingD)

	n, err := f.cashier.PollDisputes()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	result := f.result(t)
	require.Equal(t, poker.DisputeRefunded, result.Status)
	require.Equal(t, reasonAbortedRefund, result.Reason)
	require.NotEmpty(t, result.PayoutTx)

	sends := f.daemon.Sends()
	require.Len(t, sends, 1)
	require.Equal(t, 0.5, sends[0].Amount)
	require.Equal(t, "p1."+config.DefaultParentFQN, sends[0].Dest)

	// The verdict is on-chain; the same request is never answered twice.
	n, err = f.cashier.PollDisputes()
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, f.daemon.Sends(), 1)
}

func TestDisputeRejectedWhenPayinSpent(t *testing.T) {
	f := newDisputeFixture(t, poker.StateDeckShufflingD)
	f.daemon.SpendTx(testPayin)

	n, err := f.cashier.PollDisputes()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	result := f.result(t)
	require.Equal(t, poker.DisputeRejected, result.Status)
	require.Equal(t, reasonPayinSpent, result.Reason)
	require.Empty(t, f.daemon.Sends(), "no funds move on a rejected dispute")
}

func TestDisputeRejectedWhenSettled(t *testing.T) {
	f := newDisputeFixture(t, poker.StateSettlementComplete)

	n, err := f.cashier.PollDisputes()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	result := f.result(t)
	require.Equal(t, poker.DisputeRejected, result.Status)
	require.Equal(t, reasonAlreadySettled, result.Reason)
}

func TestDisputeRejectedWhileGameActive(t *testing.T) {
	f := newDisputeFixture(t, poker.StateRoundBetting)

	// Re-seed the history so the payin is fresh: age < the dispute window.
	f.daemon.AppendEntry("p1", keyID(vdxf.KeyPGameHistory+"."+testGameID), &poker.GameHistory{
		PayinTx: testPayin, TableID: testTableID, GameID: testGameID,
		Amount: 0.5, JoinBlock: f.daemon.Height() - 5, PlayerID: 0,
	})

	n, err := f.cashier.PollDisputes()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	result := f.result(t)
	require.Equal(t, poker.DisputeRejected, result.Status)
	require.Equal(t, reasonStillActive, result.Reason)
}

func TestDisputePaysPendingSettlement(t *testing.T) {
	f := newDisputeFixture(t, poker.StateSettlementPending)
	f.daemon.AppendEntry(testTableID, keyID(vdxf.KeyTSettlementInfo+"."+testGameID),
		&poker.SettlementInfo{
			Status:        poker.SettlementPending,
			PlayerIDs:     []string{"p1", "p2"},
			SettleAmounts: []float64{0.52, 0.48},
		})

	n, err := f.cashier.PollDisputes()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	result := f.result(t)
	require.Equal(t, poker.DisputePaid, result.Status)
	require.Equal(t, reasonSettlementPaid, result.Reason)

	sends := f.daemon.Sends()
	require.Len(t, sends, 1)
	require.Equal(t, 0.52, sends[0].Amount)
}
