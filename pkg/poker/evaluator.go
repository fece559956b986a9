package poker

import (
	"fmt"

	"github.com/chehsunliu/poker"
)

// Card values on the wire are integers in [0, 51]: suit-major, faces 2..A
// within each suit, suits ordered clubs, diamonds, hearts, spades.

var cardFaces = [13]string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}
var cardSuits = [4]string{"♣", "♦", "♥", "♠"}

// CardName formats a 0-51 card value for display.
func CardName(value int) string {
	if value < 0 || value > 51 {
		return "??"
	}
	return cardFaces[value%13] + cardSuits[value/13]
}

// Evaluator ranks hands at showdown. Implementations return the winning
// seat indexes (several on a split pot) given each live player's hole cards
// and the board.
type Evaluator interface {
	Winners(holeCards map[int][]int, board []int) ([]int, error)
}

// HandEvaluator ranks hands with the chehsunliu/poker evaluator, where lower
// rank values are better.
type HandEvaluator struct{}

func toLibCard(value int) (poker.Card, error) {
	if value < 0 || value > 51 {
		var zero poker.Card
		return zero, fmt.Errorf("poker: card value %d out of range", value)
	}
	faces := "23456789TJQKA"
	suits := "cdhs"
	cs := string([]byte{faces[value%13], suits[value/13]})
	return poker.NewCard(cs), nil
}

// Winners evaluates each seat's best five-card hand from its hole cards plus
// the board and returns every seat tied for the lowest (best) rank.
func (HandEvaluator) Winners(holeCards map[int][]int, board []int) ([]int, error) {
	if len(holeCards) == 0 {
		return nil, fmt.Errorf("poker: no hands to evaluate")
	}

	best := int32(-1)
	var winners []int
	for seat, hole := range holeCards {
		all := make([]poker.Card, 0, len(hole)+len(board))
		for _, v := range append(append([]int{}, hole...), board...) {
			c, err := toLibCard(v)
			if err != nil {
				return nil, err
			}
			all = append(all, c)
		}
		if len(all) < 5 {
			return nil, fmt.Errorf("poker: seat %d has only %d cards", seat, len(all))
		}
		rank := poker.Evaluate(all)
		switch {
		case best == -1 || rank < best:
			best = rank
			winners = []int{seat}
		case rank == best:
			winners = append(winners, seat)
		}
	}

	// Deterministic order keeps settlement records stable.
	for i := 1; i < len(winners); i++ {
		for j := i; j > 0 && winners[j-1] > winners[j]; j-- {
			winners[j-1], winners[j] = winners[j], winners[j-1]
		}
	}
	return winners, nil
}

// HandRankString describes the best hand the given cards make.
func HandRankString(cards []int) (string, error) {
	libCards := make([]poker.Card, 0, len(cards))
	for _, v := range cards {
		c, err := toLibCard(v)
		if err != nil {
			return "", err
		}
		libCards = append(libCards, c)
	}
	if len(libCards) < 5 {
		return "", fmt.Errorf("poker: need at least 5 cards, got %d", len(libCards))
	}
	return poker.RankString(poker.Evaluate(libCards)), nil
}
