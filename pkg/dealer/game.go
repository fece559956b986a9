package dealer

import (
	"errors"
	"fmt"
	"time"

	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/vdxf"
)

// handleReveal waits for the targeted player (every live player for a
// community card) to echo REVEAL_CARD_P_DONE, then advances the schedule.
// A laggard that exceeds the reveal timeout is folded out and skipped.
func (d *Dealer) handleReveal() error {
	if err := d.ensureGame(); err != nil {
		return err
	}
	if d.pending == nil {
		// Resuming: reconstruct the outstanding request from the chain and
		// catch the schedule up to it.
		info, err := d.view.StateInfo()
		if err != nil || info == nil {
			return err
		}
		for {
			deal, ok := d.schedule.Next()
			if !ok || deal.CardID >= info.CardID {
				break
			}
			d.schedule.MarkDealt(deal)
		}
		d.pending = &poker.Deal{Player: info.PlayerID, CardID: info.CardID, CardType: info.CardType}
		d.revealStart = time.Now()
		if h, err := d.chain.GetBlockCount(); err == nil {
			d.revealHeight = h
		}
	}
	deal := *d.pending

	done, err := d.revealConfirmed(deal)
	if err != nil {
		return err
	}
	if !done {
		if d.revealTimedOut() {
			if deal.Player >= 0 {
				d.log.Warnf("Reveal timeout: player %d folded out of the hand", deal.Player)
				d.vars.FoldOut(deal.Player)
			} else {
				d.log.Warnf("Reveal timeout on community card %d", deal.CardID)
			}
			return d.advanceAfterReveal(deal)
		}
		return nil
	}

	if deal.CardType.IsCommunity() {
		if err := d.updateBoardCards(deal.CardType); err != nil {
			return err
		}
	}
	return d.advanceAfterReveal(deal)
}

// revealConfirmed checks the targeted players' identities for a matching
// REVEAL_CARD_P_DONE echo.
func (d *Dealer) revealConfirmed(deal poker.Deal) (bool, error) {
	targets := []int{deal.Player}
	if deal.Player < 0 {
		targets = targets[:0]
		for slot := range d.players.Players {
			if !d.vars.Folded(slot) {
				targets = append(targets, slot)
			}
		}
	}
	for _, slot := range targets {
		pid := d.players.Players[slot].VerusPID
		state, err := d.view.StateOf(pid)
		if err != nil {
			return false, err
		}
		if state != poker.StateRevealCardPDone {
			return false, nil
		}
		info, err := d.view.StateInfoOf(pid)
		if err != nil {
			return false, err
		}
		if info == nil || info.CardID != deal.CardID {
			return false, nil
		}
	}
	return true, nil
}

func (d *Dealer) revealTimedOut() bool {
	height, err := d.chain.GetBlockCount()
	if err != nil {
		return false
	}
	elapsedSecs := time.Since(d.revealStart).Seconds()
	elapsedBlocks := height - d.revealHeight
	return elapsedSecs >= poker.TurnTimeoutSecs && elapsedBlocks >= poker.TurnTimeoutBlocks
}

// advanceAfterReveal marks the slot dealt and either requests the next card
// or opens a betting round, per the street boundaries.
func (d *Dealer) advanceAfterReveal(deal poker.Deal) error {
	d.schedule.MarkDealt(deal)
	d.pending = nil

	if !d.schedule.StreetDone(deal.CardType) {
		return d.dealNextCard()
	}

	switch deal.CardType {
	case poker.RiverCard:
		d.log.Infof("All cards dealt, final betting round")
		return d.writeBettingRound()
	case poker.HoleCard:
		d.log.Infof("All hole cards dealt, opening preflop betting")
		return d.smallBlind()
	default:
		d.log.Infof("Street %s complete, betting round %d", deal.CardType, d.vars.Round)
		return d.writeBettingRound()
	}
}

// updateBoardCards polls every live player's claimed value for the community
// card; on full agreement the board advances, on disagreement the hand
// aborts.
func (d *Dealer) updateBoardCards(ct poker.CardType) error {
	consensus := -1
	confirmed := 0
	for slot, seat := range d.players.Players {
		if d.vars.Folded(slot) {
			confirmed++
			continue
		}
		var decoded poker.DecodedCard
		err := d.view.Get(seat.VerusPID, vdxf.KeyPDecodedCard, &decoded)
		if err != nil {
			if errors.Is(err, vdxf.ErrKeyNotFound) {
				return nil // not everyone has published yet
			}
			return err
		}
		if decoded.CardType != ct {
			return nil
		}
		switch {
		case consensus == -1:
			consensus = decoded.CardValue
			confirmed++
		case decoded.CardValue == consensus:
			confirmed++
		default:
			d.log.Errorf("Player %s decoded %s as %d, others saw %d",
				seat.VerusPID, ct, decoded.CardValue, consensus)
			return fmt.Errorf("%w: community card disagreement on %s", ErrHandAborted, ct)
		}
	}
	if confirmed < d.players.NumPlayers {
		return nil
	}

	board, err := d.view.BoardCards()
	if err != nil {
		return err
	}
	board.Set(ct, consensus)
	if err := d.view.PutTable(vdxf.KeyTBoardCards, board); err != nil {
		return err
	}
	d.log.Infof("Board card %s confirmed as %s by all players", ct, poker.CardName(consensus))
	return nil
}

// smallBlind opens the preflop betting round with the small blind on the
// dealer seat.
func (d *Dealer) smallBlind() error {
	d.vars.LastTurn = d.vars.Dealer
	d.vars.Turn = d.vars.Dealer % d.vars.NumPlayers
	if err := d.writeBettingState(poker.ActionSmallBlind); err != nil {
		return err
	}
	return d.view.AppendState(poker.StateRoundBetting, &poker.GameStateInfo{
		PlayerID: d.vars.Turn,
	})
}

// writeBettingRound opens a post-flop betting round from the dealer seat.
func (d *Dealer) writeBettingRound() error {
	d.vars.Turn = d.vars.Dealer % d.vars.NumPlayers
	if err := d.writeBettingState(poker.ActionRoundBetting); err != nil {
		return err
	}
	return d.view.AppendState(poker.StateRoundBetting, &poker.GameStateInfo{
		PlayerID: d.vars.Turn,
	})
}

// writeBettingState stamps the turn timeout anchors and publishes
// t_betting_state for the current turn.
func (d *Dealer) writeBettingState(action string) error {
	height, err := d.chain.GetBlockCount()
	if err != nil {
		return err
	}
	d.vars.StartTurn(time.Now(), height)
	state := d.vars.Snapshot(action)
	d.log.Infof("Betting: turn=%d round=%d pot=%.4f action=%s",
		state.CurrentTurn, state.Round, state.Pot, action)
	return d.view.PutTable(vdxf.KeyTBettingState, state)
}

// handleRoundBetting polls the current seat's betting action, synthesizing a
// fold when the turn timeout has elapsed, and advances the turn or the street.
func (d *Dealer) handleRoundBetting() error {
	if d.vars == nil {
		if err := d.ensureGame(); err != nil {
			return err
		}
		// Resumed directly into betting; rebuild the turn anchors from the
		// published betting state.
		if bs, err := d.view.BettingState(); err == nil && bs != nil {
			d.vars.Turn = bs.CurrentTurn
			d.vars.Round = bs.Round
			d.vars.Pot = bs.Pot
			d.vars.LastTurn = bs.LastTurn
			d.vars.TurnStartTime = bs.TurnStartTime
			d.vars.TurnStartBlock = bs.TurnStartBlock
			for i := 0; i < d.vars.NumPlayers && i < len(bs.BetAmounts); i++ {
				d.vars.BetAmounts[i][bs.Round] = bs.BetAmounts[i]
				d.vars.Funds[i] = bs.PlayerFunds[i]
			}
		} else {
			height, _ := d.chain.GetBlockCount()
			d.vars.StartTurn(time.Now(), height)
		}
	}

	action, err := d.pollPlayerAction(d.vars.Turn)
	if err != nil {
		return err
	}
	if action == nil {
		height, err := d.chain.GetBlockCount()
		if err != nil {
			return err
		}
		if !d.vars.TurnTimedOut(time.Now(), height) {
			return nil
		}
		d.log.Warnf("Turn timeout: auto-folding player %d", d.vars.Turn)
		action = &poker.BettingAction{Action: poker.ActionFold, Round: d.vars.Round, Auto: true}
	}

	d.vars.ProcessAction(*action)

	next := d.vars.NextTurn()
	if next == -1 {
		return d.endBettingRound()
	}

	d.vars.LastTurn = d.vars.Turn
	d.vars.Turn = next
	nextAction := poker.ActionRoundBetting
	if d.vars.Round == 0 && d.vars.Actions[next][0] == poker.ActionNone &&
		next == (d.vars.Dealer+1)%d.vars.NumPlayers {
		nextAction = poker.ActionBigBlind
	}
	return d.writeBettingState(nextAction)
}

// pollPlayerAction reads the current seat's p_betting_action, nil when the
// player has not acted for this round yet.
func (d *Dealer) pollPlayerAction(slot int) (*poker.BettingAction, error) {
	pid := d.players.Players[slot].VerusPID
	var action poker.BettingAction
	err := d.view.Get(pid, vdxf.KeyPBettingAction, &action)
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if action.Round != d.vars.Round || action.TurnID != d.vars.TurnStartTime {
		return nil, nil // stale action from an earlier round or turn
	}
	return &action, nil
}

// endBettingRound closes the round: deal the next street, or go to showdown
// when the rounds are exhausted or the hand is down to one player.
func (d *Dealer) endBettingRound() error {
	d.vars.Round++
	d.vars.Turn = d.vars.Dealer

	if d.vars.Round >= poker.MaxRounds || d.vars.PlayersLeft() < 2 {
		d.log.Infof("Betting complete, proceeding to showdown")
		return d.view.AppendState(poker.StateShowdown, nil)
	}
	d.log.Infof("Round %d complete, dealing next street", d.vars.Round)
	return d.dealNextCard()
}
