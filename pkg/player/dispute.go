package player

import (
	"errors"
	"fmt"

	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/vdxf"
)

// RaiseDispute publishes a p_dispute_request for the hand. The cashier
// decides it against the unspent-payin test and the game state; the verdict
// appears under c_dispute_result.<game_id>.<player_id>.
func (p *Player) RaiseDispute(gameID, reason string) error {
	histKey, err := p.cmm.DataKeyID(vdxf.KeyPGameHistory, gameID)
	if err != nil {
		return err
	}
	var history poker.GameHistory
	if err := p.cmm.GetLatestJSON(p.cfg.VerusPID, histKey, 0, &history); err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return fmt.Errorf("player: no game history for %s, cannot dispute", gameID)
		}
		return err
	}
	if history.PayinTx == "" || history.TableID == "" {
		return errors.New("player: game history missing payin_tx or table_id")
	}

	height, err := p.chain.GetBlockCount()
	if err != nil {
		return err
	}
	req := &poker.DisputeRequest{
		PayinTx:      history.PayinTx,
		TableID:      history.TableID,
		GameID:       gameID,
		Reason:       reason,
		RequestBlock: height,
		PlayerID:     p.cfg.VerusPID,
	}

	reqKey, err := p.cmm.DataKeyID(vdxf.KeyPDisputeRequest, gameID)
	if err != nil {
		return err
	}
	if err := p.cmm.AppendJSON(p.cfg.VerusPID, reqKey, req); err != nil {
		return err
	}
	p.log.Infof("Dispute raised for game %s: %s", gameID, reason)
	return nil
}

// CheckDisputeResult reads the cashier's verdict for the hand, nil when not
// yet decided.
func (p *Player) CheckDisputeResult(gameID string) (*poker.DisputeResult, error) {
	resultKey, err := p.cmm.DataKeyID(vdxf.KeyCDisputeResult, gameID+"."+p.cfg.VerusPID)
	if err != nil {
		return nil, err
	}
	var result poker.DisputeResult
	err = p.cmm.GetLatestJSON(p.cfg.Keys.CashiersID, resultKey, 0, &result)
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}
