package poker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableValidate(t *testing.T) {
	table := Table{
		MaxPlayers: 2,
		BigBlind:   DefaultBigBlind,
		MinStake:   DefaultMinStake,
		MaxStake:   DefaultMaxStake,
		TableID:    "t1",
		DealerID:   "d1",
		CashierID:  "cashier",
	}
	require.NoError(t, table.Validate())

	bad := table
	bad.MaxPlayers = 1
	require.Error(t, bad.Validate())

	bad = table
	bad.CashierID = ""
	require.Error(t, bad.Validate())

	bad = table
	bad.MaxStake = bad.MinStake / 2
	require.Error(t, bad.Validate())
}

func TestPlayerInfoAddKeepsArraysInSync(t *testing.T) {
	var info PlayerInfo
	require.NoError(t, info.Add(Seat{VerusPID: "p1", PayinTx: "tx1", PayinAmount: 0.5}))
	require.NoError(t, info.Add(Seat{VerusPID: "p2", PayinTx: "tx2", PayinAmount: 0.6}))

	require.Equal(t, 2, info.NumPlayers)
	require.Len(t, info.Players, 2)
	require.Len(t, info.PayinAmounts, 2)
	require.Equal(t, 0, info.Players[0].Slot)
	require.Equal(t, 1, info.Players[1].Slot)
	require.Equal(t, []float64{0.5, 0.6}, info.PayinAmounts)
}

func TestPlayerInfoRejectsDuplicateSeat(t *testing.T) {
	// The same join request processed twice seats the player exactly once.
	var info PlayerInfo
	require.NoError(t, info.Add(Seat{VerusPID: "p1", PayinTx: "tx1", PayinAmount: 0.5}))
	err := info.Add(Seat{VerusPID: "p1", PayinTx: "tx2", PayinAmount: 0.5})
	require.Error(t, err)
	require.Equal(t, 1, info.NumPlayers)
}

func TestBoardCards(t *testing.T) {
	b := NewBoardCards()
	require.Empty(t, b.Revealed())
	require.Equal(t, -1, b.Get(TurnCard))

	b.Set(FlopCard1, 3)
	b.Set(FlopCard2, 17)
	b.Set(FlopCard3, 25)
	b.Set(TurnCard, 40)
	require.Equal(t, []int{3, 17, 25, 40}, b.Revealed())
	require.Equal(t, 40, b.Get(TurnCard))
	require.Equal(t, -1, b.Get(RiverCard))
}
