package player

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

const testGameID = "00112233445566770011223344556677001122334455667700112233445566ff"

func keyID(name string) string {
	return chaintest.VdxfID(vdxf.DefaultKeyPrefix + name)
}

func newTestPlayer(t *testing.T) (*Player, *chaintest.Daemon) {
	t.Helper()
	d := chaintest.New(config.DefaultParentFQN)
	t.Cleanup(d.Close)

	d.AddIdentity("p1", "RP1", true)
	d.AddIdentity("cashier", "RCashier", false)

	logBackend, err := logging.NewLogBackend(logging.LogConfig{DebugLevel: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { logBackend.Close() })

	db, err := storage.NewDB(t.TempDir() + "/pangea.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := d.Client()
	cfg := &config.Player{
		VerusPID: "p1",
		TableID:  "t1",
		Keys: config.Keys{
			ParentFQN:  config.DefaultParentFQN,
			CashiersID: "cashier",
			DealersID:  config.DefaultDealersID,
		},
	}
	cmm := vdxf.New(client, "", config.DefaultParentFQN, logBackend.Logger("VDXF"))
	return New(cfg, client, cmm, db, nil, logBackend.Logger("PLYR")), d
}

func TestHandPosition(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.table = &poker.Table{MaxPlayers: 2}

	// Hole card ids interleave players: id = pos*players + player.
	require.Equal(t, 0, p.handPosition(0, poker.HoleCard))
	require.Equal(t, 0, p.handPosition(1, poker.HoleCard))
	require.Equal(t, 1, p.handPosition(2, poker.HoleCard))
	require.Equal(t, 1, p.handPosition(3, poker.HoleCard))

	require.Equal(t, 2, p.handPosition(4, poker.FlopCard1))
	require.Equal(t, 3, p.handPosition(5, poker.FlopCard2))
	require.Equal(t, 4, p.handPosition(6, poker.FlopCard3))
	require.Equal(t, 5, p.handPosition(7, poker.TurnCard))
	require.Equal(t, 6, p.handPosition(8, poker.RiverCard))

	require.Equal(t, -1, p.handPosition(99, poker.HoleCard))
}

func TestRaiseDisputeRequiresHistory(t *testing.T) {
	p, _ := newTestPlayer(t)
	err := p.RaiseDispute(testGameID, "game_aborted")
	require.Error(t, err, "no game history recorded for the hand")
}

func TestRaiseDisputeAndReadVerdict(t *testing.T) {
	p, d := newTestPlayer(t)

	d.AddTx("payintx1", 10, []chaintest.TxOut{{Value: 0.5, Addresses: []string{"RCashier"}}})
	d.AppendEntry("p1", keyID(vdxf.KeyPGameHistory+"."+testGameID), &poker.GameHistory{
		PayinTx: "payintx1", TableID: "t1", GameID: testGameID,
		Amount: 0.5, JoinBlock: 10,
	})

	require.NoError(t, p.RaiseDispute(testGameID, "game_aborted"))

	// The request landed on our identity.
	var req poker.DisputeRequest
	reqKey := keyID(vdxf.KeyPDisputeRequest + "." + testGameID)
	require.NoError(t, p.cmm.GetLatestJSON("p1", reqKey, 0, &req))
	require.Equal(t, "payintx1", req.PayinTx)
	require.Equal(t, "game_aborted", req.Reason)
	require.Equal(t, "p1", req.PlayerID)

	// No verdict yet.
	result, err := p.CheckDisputeResult(testGameID)
	require.NoError(t, err)
	require.Nil(t, result)

	// The cashier publishes one; the player observes it.
	d.AppendEntry("cashier", keyID(vdxf.KeyCDisputeResult+"."+testGameID+".p1"),
		&poker.DisputeResult{
			PlayerID: "p1", GameID: testGameID,
			Status: poker.DisputeRefunded, Reason: "game_aborted_refund",
		})
	result, err = p.CheckDisputeResult(testGameID)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, poker.DisputeRefunded, result.Status)
}
