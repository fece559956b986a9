package poker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestVars() *Vars {
	return NewVars([]float64{0.5, 0.5}, DefaultSmallBlind, DefaultBigBlind)
}

func TestBlindsAndCallFlow(t *testing.T) {
	v := newTestVars()

	// Small blind from seat 0.
	v.Turn = 0
	v.ProcessAction(BettingAction{Action: ActionBet, Amount: 0.01, Round: 0})
	require.InDelta(t, 0.01, v.Pot, 1e-9)
	require.InDelta(t, 0.49, v.Funds[0], 1e-9)

	// Big blind from seat 1.
	v.Turn = 1
	v.ProcessAction(BettingAction{Action: ActionBigBlind, Amount: 0.02, Round: 0})
	require.InDelta(t, 0.03, v.Pot, 1e-9)

	// Seat 0 calls the difference.
	v.Turn = 0
	v.ProcessAction(BettingAction{Action: ActionCall, Round: 0})
	require.InDelta(t, 0.04, v.Pot, 1e-9)
	require.InDelta(t, v.BetAmounts[0][0], v.BetAmounts[1][0], 1e-9)

	// All bets match: the round is complete.
	require.Equal(t, -1, v.NextTurn())
}

func TestPotMatchesContributions(t *testing.T) {
	v := newTestVars()
	v.Turn = 0
	v.ProcessAction(BettingAction{Action: ActionBet, Amount: 0.01})
	v.Turn = 1
	v.ProcessAction(BettingAction{Action: ActionRaise, Amount: 0.05})
	v.Turn = 0
	v.ProcessAction(BettingAction{Action: ActionCall})

	var sum float64
	for p := 0; p < v.NumPlayers; p++ {
		for r := 0; r < MaxRounds; r++ {
			sum += v.BetAmounts[p][r]
		}
	}
	require.InDelta(t, v.Pot, sum, 1e-9, "pot equals the sum of published bets")

	for p := 0; p < v.NumPlayers; p++ {
		require.InDelta(t, v.IniFunds[p], v.Funds[p]+v.BetAmounts[p][0], 1e-9)
		require.LessOrEqual(t, v.Funds[p], v.IniFunds[p], "funds never grow within a hand")
	}
}

func TestOverbetCoercedToAllin(t *testing.T) {
	v := newTestVars()
	v.Turn = 0
	v.ProcessAction(BettingAction{Action: ActionRaise, Amount: 2.0})

	require.Equal(t, ActionAllin, v.Actions[0][0])
	require.Zero(t, v.Funds[0])
	require.InDelta(t, 0.5, v.BetAmounts[0][0], 1e-9, "bet capped at available funds")
}

func TestFoldPersistsAcrossRounds(t *testing.T) {
	v := newTestVars()
	v.Turn = 0
	v.ProcessAction(BettingAction{Action: ActionFold})
	require.True(t, v.Folded(0))
	v.Round = 2
	require.True(t, v.Folded(0))
	require.Equal(t, 1, v.PlayersLeft())
}

func TestNextTurnSkipsFoldedAndAllin(t *testing.T) {
	v := NewVars([]float64{0.5, 0.5, 0.5}, DefaultSmallBlind, DefaultBigBlind)
	v.Turn = 0
	v.ProcessAction(BettingAction{Action: ActionBet, Amount: 0.1})
	v.Turn = 1
	v.ProcessAction(BettingAction{Action: ActionFold})
	// Seat 2 has not acted and trails the max bet.
	require.Equal(t, 2, v.NextTurn())

	v.Turn = 2
	v.ProcessAction(BettingAction{Action: ActionAllin})
	// Seat 2 overbet all-in; seat 0 trails and must act again.
	require.Equal(t, 0, v.NextTurn())

	v.Turn = 0
	v.ProcessAction(BettingAction{Action: ActionCall})
	require.Equal(t, -1, v.NextTurn())
}

func TestTurnTimeoutRequiresBothThresholds(t *testing.T) {
	v := newTestVars()
	now := time.Now()
	v.StartTurn(now, 1000)

	// Neither elapsed.
	require.False(t, v.TurnTimedOut(now.Add(10*time.Second), 1002))
	// Only the clock elapsed.
	require.False(t, v.TurnTimedOut(now.Add(90*time.Second), 1003))
	// Only the blocks elapsed.
	require.False(t, v.TurnTimedOut(now.Add(30*time.Second), 1010))
	// Both elapsed.
	require.True(t, v.TurnTimedOut(now.Add(61*time.Second), 1006))
}

func TestSnapshotPossibilities(t *testing.T) {
	v := newTestVars()
	v.Turn = 0

	sb := v.Snapshot(ActionSmallBlind)
	require.Equal(t, []string{ActionBet}, sb.Possibilities)
	require.InDelta(t, DefaultSmallBlind, sb.MinAmount, 1e-9)

	v.ProcessAction(BettingAction{Action: ActionBet, Amount: 0.01})
	v.Turn = 1
	regular := v.Snapshot(ActionRoundBetting)
	require.Contains(t, regular.Possibilities, ActionCall)
	require.NotContains(t, regular.Possibilities, ActionCheck)
	require.InDelta(t, 0.01, regular.MinAmount, 1e-9)

	v.ProcessAction(BettingAction{Action: ActionCall})
	matched := v.Snapshot(ActionRoundBetting)
	require.Contains(t, matched.Possibilities, ActionCheck)
}

func TestRoundChips(t *testing.T) {
	require.Equal(t, 0.1, RoundChips(0.1))
	// Float artifacts snap back to 8 decimals.
	require.Equal(t, 0.3, RoundChips(0.1+0.2))
}
