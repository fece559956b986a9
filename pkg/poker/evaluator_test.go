package poker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Card codes: suit-major, faces 2..A within each suit, suits ♣ ♦ ♥ ♠.
func card(face, suit int) int { return suit*13 + face }

func TestCardName(t *testing.T) {
	require.Equal(t, "2♣", CardName(0))
	require.Equal(t, "A♣", CardName(12))
	require.Equal(t, "2♦", CardName(13))
	require.Equal(t, "A♠", CardName(51))
	require.Equal(t, "??", CardName(-1))
	require.Equal(t, "??", CardName(52))
}

func TestWinnersHighPairBeatsLowPair(t *testing.T) {
	e := HandEvaluator{}
	board := []int{card(0, 0), card(5, 1), card(7, 2), card(9, 3), card(11, 0)}
	holes := map[int][]int{
		0: {card(12, 1), card(12, 2)}, // pair of aces
		1: {card(1, 1), card(1, 2)},   // pair of threes
	}
	winners, err := e.Winners(holes, board)
	require.NoError(t, err)
	require.Equal(t, []int{0}, winners)
}

func TestWinnersSplitPot(t *testing.T) {
	e := HandEvaluator{}
	// The board plays for both: straight 6..10.
	board := []int{card(4, 0), card(5, 1), card(6, 2), card(7, 3), card(8, 0)}
	holes := map[int][]int{
		0: {card(0, 1), card(1, 2)},
		1: {card(0, 3), card(1, 0)},
	}
	winners, err := e.Winners(holes, board)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, winners)
}

func TestWinnersFlushBeatsStraight(t *testing.T) {
	e := HandEvaluator{}
	board := []int{card(4, 0), card(5, 0), card(6, 0), card(7, 1), card(8, 2)}
	holes := map[int][]int{
		0: {card(9, 1), card(3, 2)},  // straight using the board
		1: {card(0, 0), card(11, 0)}, // club flush
	}
	winners, err := e.Winners(holes, board)
	require.NoError(t, err)
	require.Equal(t, []int{1}, winners)
}

func TestWinnersRejectsShortHands(t *testing.T) {
	e := HandEvaluator{}
	_, err := e.Winners(map[int][]int{0: {1, 2}}, []int{3})
	require.Error(t, err)

	_, err = e.Winners(map[int][]int{}, nil)
	require.Error(t, err)
}

func TestHandRankString(t *testing.T) {
	desc, err := HandRankString([]int{card(12, 0), card(12, 1), card(12, 2), card(12, 3), card(0, 0)})
	require.NoError(t, err)
	require.NotEmpty(t, desc)
}
