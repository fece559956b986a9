package dealer

import (
	"errors"

	"github.com/sg777/pangea/pkg/gui"
	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/vdxf"
)

// Commission the dealer declares on pot winnings, as a fraction.
const defaultCommission = 0.0

// handleShowdown determines the winners and publishes the settlement record
// with status pending; the cashier executes the payouts.
func (d *Dealer) handleShowdown() error {
	settlement, err := d.view.Settlement()
	if err != nil {
		return err
	}
	if settlement != nil {
		return nil // already published; waiting on the cashier
	}
	if err := d.ensureGame(); err != nil {
		return err
	}

	winners, err := d.determineWinners()
	if err != nil {
		return err
	}
	if winners == nil {
		return nil // waiting on hole-card reveals
	}

	// Each seat recovers its unspent funds; the pot, less the declared
	// commission, splits across the winners.
	amounts := make([]float64, d.players.NumPlayers)
	for i := range amounts {
		amounts[i] = d.vars.Funds[i]
	}
	pot := poker.RoundChips(d.vars.Pot * (1 - defaultCommission))
	share := poker.RoundChips(pot / float64(len(winners)))
	for _, w := range winners {
		amounts[w] = poker.AddChips(amounts[w], share)
	}

	record := &poker.SettlementInfo{
		Status:        poker.SettlementPending,
		PlayerIDs:     d.players.IDs(),
		SettleAmounts: amounts,
	}
	if err := d.view.PutTable(vdxf.KeyTSettlementInfo, record); err != nil {
		return err
	}
	if err := d.view.AppendState(poker.StateSettlementPending, nil); err != nil {
		return err
	}
	if d.gui != nil {
		d.gui.Send(gui.FinalInfo(record))
	}
	d.log.Infof("Settlement published: winners=%v pot=%.4f", winners, d.vars.Pot)
	return nil
}

// determineWinners evaluates the live players' revealed hole cards against
// the board. Returns nil (no error) while reveals are still outstanding.
// With one live player the evaluation is skipped.
func (d *Dealer) determineWinners() ([]int, error) {
	var live []int
	for slot := range d.players.Players {
		if !d.vars.Folded(slot) {
			live = append(live, slot)
		}
	}
	if len(live) == 0 {
		return nil, errors.New("dealer: no live players at showdown")
	}
	if len(live) == 1 {
		return live, nil
	}

	board, err := d.view.BoardCards()
	if err != nil {
		return nil, err
	}
	boardCards := board.Revealed()

	holes := make(map[int][]int, len(live))
	for _, slot := range live {
		pid := d.players.Players[slot].VerusPID
		var reveal poker.DecodedCard
		err := d.view.Get(pid, vdxf.KeyPDecodedCard, &reveal)
		if err != nil {
			if errors.Is(err, vdxf.ErrKeyNotFound) {
				return nil, nil
			}
			return nil, err
		}
		if reveal.CardType != poker.HoleCard || len(reveal.HoleCards) != poker.NumHoleCards {
			return nil, nil // still waiting for this seat's showdown reveal
		}
		holes[slot] = reveal.HoleCards
	}

	return d.eval.Winners(holes, boardCards)
}
