package poker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScheduleTwoPlayerOrder(t *testing.T) {
	s := NewSchedule(2)

	// Two hole cards per player, dealt round-robin.
	want := []Deal{
		{Player: 0, CardID: 0, CardType: HoleCard},
		{Player: 1, CardID: 1, CardType: HoleCard},
		{Player: 0, CardID: 2, CardType: HoleCard},
		{Player: 1, CardID: 3, CardType: HoleCard},
		{Player: -1, CardID: 4, CardType: FlopCard1},
		{Player: -1, CardID: 5, CardType: FlopCard2},
		{Player: -1, CardID: 6, CardType: FlopCard3},
		{Player: -1, CardID: 7, CardType: TurnCard},
		{Player: -1, CardID: 8, CardType: RiverCard},
	}

	for i, expected := range want {
		deal, ok := s.Next()
		require.True(t, ok, "deal %d", i)
		require.Equal(t, expected, deal, "deal %d", i)
		s.MarkDealt(deal)
	}

	_, ok := s.Next()
	require.False(t, ok, "all cards dealt")
	require.True(t, s.AllDealt())
}

func TestScheduleStreetBoundaries(t *testing.T) {
	s := NewSchedule(2)

	for i := 0; i < 4; i++ {
		deal, _ := s.Next()
		s.MarkDealt(deal)
	}
	require.True(t, s.HoleCardsDone())
	require.False(t, s.StreetDone(FlopCard1))

	for i := 0; i < 3; i++ {
		deal, _ := s.Next()
		s.MarkDealt(deal)
	}
	require.True(t, s.StreetDone(FlopCard3))
	require.False(t, s.StreetDone(TurnCard))

	deal, _ := s.Next()
	require.Equal(t, TurnCard, deal.CardType)
}

func TestCardTypeCommunity(t *testing.T) {
	require.False(t, HoleCard.IsCommunity())
	require.True(t, FlopCard2.IsCommunity())
	require.True(t, RiverCard.IsCommunity())
	require.False(t, BurnCard.IsCommunity())
}
