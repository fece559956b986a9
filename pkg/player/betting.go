package player

import (
	"github.com/sg777/pangea/pkg/gui"
	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/vdxf"
)

// handleBetting reads t_betting_state and, when it is our turn, produces an
// action: blinds post automatically, auto mode calls or checks, GUI mode
// defers to the front-end.
func (p *Player) handleBetting() error {
	state, err := p.view.BettingState()
	if err != nil || state == nil {
		return err
	}
	if state.CurrentTurn != p.slot {
		return nil
	}
	if p.lastRound > state.Round {
		return nil
	}
	if p.alreadyActed(state) {
		return nil
	}

	p.log.Infof("Our turn: action=%s round=%d pot=%.4f to-call=%.4f",
		state.Action, state.Round, state.Pot, state.MinAmount)

	if p.gui != nil {
		p.gui.Send(gui.BettingRound(p.slot, state))
	}

	switch state.Action {
	case poker.ActionSmallBlind, poker.ActionBigBlind:
		// Blinds are mandatory.
		return p.writeAction(poker.ActionBet, state.MinAmount, state)
	}

	if p.mode == ModeGUI {
		return p.awaitGUIAction(state)
	}

	// Auto mode: call when facing a bet, otherwise check.
	if state.MinAmount > 0 {
		return p.writeAction(poker.ActionCall, state.MinAmount, state)
	}
	return p.writeAction(poker.ActionCheck, 0, state)
}

// alreadyActed reports whether our published action already answers this
// turn, so the dealer is still processing it.
func (p *Player) alreadyActed(state *poker.BettingState) bool {
	var action poker.BettingAction
	err := p.view.Get(p.cfg.VerusPID, vdxf.KeyPBettingAction, &action)
	if err != nil {
		return false
	}
	return action.Round == state.Round && action.TurnID == state.TurnStartTime
}

// awaitGUIAction drains pending GUI messages for a betting decision; returns
// without acting when none has arrived yet (the poll loop retries).
func (p *Player) awaitGUIAction(state *poker.BettingState) error {
	for {
		select {
		case msg := <-p.gui.Incoming():
			if msg["method"] != gui.MethodBettingView {
				continue
			}
			action, _ := msg["action"].(string)
			amount, _ := msg["amount"].(float64)
			if action == "" {
				continue
			}
			return p.writeAction(action, amount, state)
		default:
			return nil
		}
	}
}

// writeAction publishes p_betting_action answering the given betting state.
func (p *Player) writeAction(action string, amount float64, state *poker.BettingState) error {
	p.log.Infof("Betting action: %s %.4f (round %d)", action, amount, state.Round)
	err := p.view.Put(p.cfg.VerusPID, vdxf.KeyPBettingAction, &poker.BettingAction{
		Action: action,
		Amount: poker.RoundChips(amount),
		Round:  state.Round,
		TurnID: state.TurnStartTime,
	})
	if err != nil {
		return err
	}
	p.lastRound = state.Round
	p.saveLocalState()
	return nil
}
