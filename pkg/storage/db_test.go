package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "pangea.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPlayerDeckInfoRoundTrip(t *testing.T) {
	db := newTestDB(t)

	info := &PlayerDeckInfo{
		GameID:         "gid1",
		TableID:        "t1",
		PlayerID:       1,
		PlayerPriv:     "aa",
		PlayerDeckPriv: []string{"01", "02", "03"},
	}
	require.NoError(t, db.SavePlayerDeckInfo(info))

	got, err := db.LoadPlayerDeckInfo("gid1")
	require.NoError(t, err)
	require.Equal(t, info, got)

	_, err = db.LoadPlayerDeckInfo("missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSaveIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	info := &PlayerDeckInfo{GameID: "gid1", TableID: "t1", PlayerPriv: "aa",
		PlayerDeckPriv: []string{"01"}}
	require.NoError(t, db.SavePlayerDeckInfo(info))
	info.PlayerPriv = "bb"
	require.NoError(t, db.SavePlayerDeckInfo(info))

	got, err := db.LoadPlayerDeckInfo("gid1")
	require.NoError(t, err)
	require.Equal(t, "bb", got.PlayerPriv)
}

func TestPlayerLocalStateRoundTrip(t *testing.T) {
	db := newTestDB(t)

	state := &PlayerLocalState{
		GameID:            "gid1",
		TableID:           "t1",
		PayinTx:           "tx1",
		PlayerID:          0,
		DecodedCards:      []int{5, 12, -1, -1, -1, -1, -1},
		CardsDecodedCount: 2,
		LastCardID:        2,
		LastGameState:     9,
	}
	require.NoError(t, db.SavePlayerLocalState(state))

	got, err := db.LoadPlayerLocalState("gid1")
	require.NoError(t, err)
	require.Equal(t, state, got)
}

func TestDealerAndCashierDeckRoundTrip(t *testing.T) {
	db := newTestDB(t)

	dealer := &DealerDeckInfo{
		GameID:         "gid1",
		Perm:           []int{2, 0, 1},
		DealerDeckPriv: []string{"0a", "0b", "0c"},
	}
	require.NoError(t, db.SaveDealerDeckInfo(dealer))
	gotDealer, err := db.LoadDealerDeckInfo("gid1")
	require.NoError(t, err)
	require.Equal(t, dealer, gotDealer)

	cashier := &CashierDeckInfo{
		GameID:          "gid1",
		PlayerID:        1,
		Perm:            []int{1, 2, 0},
		CashierDeckPriv: []string{"1a", "1b", "1c"},
	}
	require.NoError(t, db.SaveCashierDeckInfo(cashier))
	gotCashier, err := db.LoadCashierDeckInfo("gid1", 1)
	require.NoError(t, err)
	require.Equal(t, cashier, gotCashier)

	_, err = db.LoadCashierDeckInfo("gid1", 2)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDisputeHistory(t *testing.T) {
	db := newTestDB(t)

	rec := &DisputeRecord{
		GameID:        "gid1",
		PlayerID:      "p1",
		PayinTx:       "tx1",
		Status:        "refunded",
		Reason:        "game_aborted_refund",
		PayoutTx:      "payout1",
		ResolvedBlock: 1234,
	}
	require.NoError(t, db.SaveDispute(rec))
	// Re-resolving the same dispute overwrites, never duplicates.
	require.NoError(t, db.SaveDispute(rec))

	recs, err := db.ListDisputes()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, rec, recs[0])
}
