package player

import (
	"errors"
	"fmt"

	"github.com/sg777/pangea/pkg/cards"
	"github.com/sg777/pangea/pkg/gui"
	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/vdxf"
)

// handPosition maps a wire card id to the player's hand position: hole cards
// 0..1, then flop, turn, river at 2..6.
func (p *Player) handPosition(cardID int, ct poker.CardType) int {
	if ct == poker.HoleCard {
		pos := cardID / p.table.MaxPlayers
		if pos < poker.NumHoleCards {
			return pos
		}
		return -1
	}
	if ct.IsCommunity() {
		return poker.NumHoleCards + int(ct-poker.FlopCard1)
	}
	return -1
}

// handleReveal services a REVEAL_CARD request addressed to this seat (or to
// all seats for a community card): wait for the cashier's blinding value,
// decode, record the value and echo REVEAL_CARD_P_DONE.
func (p *Player) handleReveal() error {
	info, err := p.view.StateInfo()
	if err != nil || info == nil {
		return err
	}
	if info.PlayerID != p.slot && info.PlayerID != -1 {
		return nil // not addressed to us
	}

	pos := p.handPosition(info.CardID, info.CardType)
	if pos >= 0 && p.decoded[pos] >= 0 {
		return p.echoRevealDone(info) // already decoded; re-echo for the dealer
	}

	// Community cards may already be agreed on the board.
	if info.CardType.IsCommunity() {
		board, err := p.view.BoardCards()
		if err == nil {
			if v := board.Get(info.CardType); v >= 0 {
				p.recordCard(pos, info, v)
				return p.echoRevealDone(info)
			}
		}
	}

	bv, err := p.view.CardBV()
	if err != nil {
		return err
	}
	if bv == nil || bv.CardID != info.CardID || bv.PlayerID != info.PlayerID {
		p.log.Debugf("Cashier has not revealed the blinding value yet")
		return nil
	}

	value, err := p.decodeCard(info, bv)
	if err != nil {
		return err
	}
	p.log.Infof("Card revealed: %s (%s, card %d)", poker.CardName(value), info.CardType, info.CardID)
	p.recordCard(pos, info, value)

	if info.CardType.IsCommunity() {
		decoded := &poker.DecodedCard{
			CardID:    info.CardID,
			CardType:  info.CardType,
			CardValue: value,
		}
		if err := p.view.Put(p.cfg.VerusPID, vdxf.KeyPDecodedCard, decoded); err != nil {
			return err
		}
	}
	return p.echoRevealDone(info)
}

// decodeCard runs Phase R against our cashier-blinded deck.
func (p *Player) decodeCard(info *poker.GameStateInfo, bv *poker.CardBV) (int, error) {
	var blinded cards.BlindedDeck
	if err := p.view.GetTable(vdxf.BlinderDeckKey(p.slot), &blinded); err != nil {
		return -1, err
	}
	if err := blinded.Validate(cards.NumCards); err != nil {
		return -1, err
	}
	if info.CardID >= len(blinded.Cards) {
		return -1, fmt.Errorf("player: card id %d out of range", info.CardID)
	}

	// For community cards the bv record carries one entry per seat.
	bvIdx := 0
	if info.PlayerID == -1 {
		bvIdx = p.slot
	}
	if bvIdx >= len(bv.BV) {
		return -1, fmt.Errorf("player: bv vector too short (%d entries)", len(bv.BV))
	}
	blindingValue, err := cards.ParseScalar(bv.BV[bvIdx])
	if err != nil {
		return -1, err
	}

	var dealerPoints []cards.Scalar
	if err := p.view.GetTable(vdxf.KeyTDDeck, &dealerPoints); err != nil {
		return -1, err
	}

	return p.deck.Decode(blinded.Cards[info.CardID], blindingValue,
		blinded.GHash[info.CardID], dealerPoints)
}

func (p *Player) recordCard(pos int, info *poker.GameStateInfo, value int) {
	if pos >= 0 && pos < len(p.decoded) {
		p.decoded[pos] = value
	}
	p.lastCardID = info.CardID
	p.saveLocalState()

	if p.gui == nil {
		return
	}
	if info.CardType == poker.HoleCard && pos == 1 && p.decoded[0] >= 0 {
		p.gui.Send(gui.DealHoleCards(p.decoded[0], p.decoded[1], 0))
	} else if info.CardType.IsCommunity() {
		var board []int
		for i := poker.NumHoleCards; i < poker.HandSize; i++ {
			if p.decoded[i] >= 0 {
				board = append(board, p.decoded[i])
			}
		}
		p.gui.Send(gui.DealBoard(board))
	}
}

// echoRevealDone advances our identity to REVEAL_CARD_P_DONE carrying the
// same (player_id, card_id) so the dealer sees the confirmation.
func (p *Player) echoRevealDone(info *poker.GameStateInfo) error {
	own, err := p.view.StateInfoOf(p.cfg.VerusPID)
	if err == nil && own != nil && own.CardID == info.CardID {
		state, serr := p.view.StateOf(p.cfg.VerusPID)
		if serr == nil && state == poker.StateRevealCardPDone {
			return nil // already echoed
		}
	}
	return p.view.AppendStateTo(p.cfg.VerusPID, poker.StateRevealCardPDone, info)
}

// handleShowdown reveals our hole cards for winner determination.
func (p *Player) handleShowdown() error {
	if p.decoded[0] < 0 || p.decoded[1] < 0 {
		return nil // folded before hole cards or nothing to reveal
	}
	var existing poker.DecodedCard
	err := p.view.Get(p.cfg.VerusPID, vdxf.KeyPDecodedCard, &existing)
	if err == nil && existing.CardType == poker.HoleCard && len(existing.HoleCards) == poker.NumHoleCards {
		return nil // already revealed
	}
	if err != nil && !errors.Is(err, vdxf.ErrKeyNotFound) {
		return err
	}

	reveal := &poker.DecodedCard{
		CardID:    -1,
		CardType:  poker.HoleCard,
		HoleCards: []int{p.decoded[0], p.decoded[1]},
	}
	p.log.Infof("Showdown: revealing hole cards %s %s",
		poker.CardName(p.decoded[0]), poker.CardName(p.decoded[1]))
	return p.view.Put(p.cfg.VerusPID, vdxf.KeyPDecodedCard, reveal)
}
