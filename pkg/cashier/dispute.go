package cashier

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/storage"
	"github.com/sg777/pangea/pkg/vdxf"
)

// Dispute result reasons.
const (
	reasonPayinSpent     = "payin_tx_already_spent"
	reasonAlreadySettled = "game_already_settled"
	reasonSettlementPaid = "settlement_processed"
	reasonPayoutFailed   = "payout_failed"
	reasonZeroAmount     = "zero_amount_due"
	reasonNoSettlement   = "no_settlement_info"
	reasonStillActive    = "game_still_active"
	reasonAbortedRefund  = "game_aborted_refund"
	reasonRefundFailed   = "refund_failed"
	reasonNoAmount       = "no_amount_to_refund"
)

// candidates returns the player identities the dispute poller scans. The
// seated players are always included; the fixed p1..p9 names cover players
// whose joins were never accepted.
// TODO: replace the fixed list with an on-chain player registry.
func (c *Cashier) candidates() []string {
	names := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9"}
	if c.view == nil {
		return names
	}
	players, err := c.view.PlayerInfo()
	if err != nil {
		return names
	}
	for _, pid := range players.IDs() {
		found := false
		for _, n := range names {
			if n == pid {
				found = true
				break
			}
		}
		if !found {
			names = append(names, pid)
		}
	}
	return names
}

// disputeLoop is the always-on background poller. It scans candidate player
// identities for dispute requests and answers each exactly once. It touches
// only dispute keys, so no locking against the game loop is needed beyond
// the chain's RPC serialization.
func (c *Cashier) disputeLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(10 * time.Second):
		}
		if n, err := c.PollDisputes(); err != nil {
			c.log.Warnf("Dispute poll: %v", err)
		} else if n > 0 {
			c.log.Infof("Resolved %d dispute(s)", n)
		}
	}
}

// PollDisputes scans for unanswered dispute requests and resolves them.
// Returns the number processed.
func (c *Cashier) PollDisputes() (int, error) {
	height, err := c.chain.GetBlockCount()
	if err != nil {
		return 0, err
	}
	bootstrap := height - 200
	if c.table != nil && c.table.StartBlock > 0 {
		bootstrap = c.table.StartBlock - 200
	}
	if bootstrap < 0 {
		bootstrap = 0
	}

	processed := 0
	for _, candidate := range c.candidates() {
		if !c.chain.IdentityExists(c.cmm.FQN(candidate)) {
			continue
		}
		entries, err := c.cmm.RawEntries(candidate, bootstrap)
		if err != nil {
			continue
		}
		reqKeys, err := c.disputeRequestKeys(entries)
		if err != nil {
			continue
		}
		for _, keyID := range reqKeys {
			list := entries[keyID]
			if len(list) == 0 {
				continue
			}
			raw, err := hex.DecodeString(list[len(list)-1])
			if err != nil {
				continue
			}
			var req poker.DisputeRequest
			if err := json.Unmarshal(raw, &req); err != nil || req.GameID == "" {
				continue
			}
			if req.PlayerID == "" {
				req.PlayerID = candidate
			}

			answered, err := c.disputeAnswered(req.GameID, req.PlayerID)
			if err != nil || answered {
				continue
			}
			if err := c.resolveDispute(&req); err != nil {
				c.log.Errorf("Resolving dispute from %s: %v", req.PlayerID, err)
				continue
			}
			processed++
		}
	}
	return processed, nil
}

// disputeRequestKeys finds the vdxf ids in an identity's multimap that are
// p_dispute_request keys. Key ids are opaque hashes, so the candidate game
// ids come from the entries themselves: each decoded request names its game,
// and the derived key id must appear in the map.
func (c *Cashier) disputeRequestKeys(entries map[string][]string) ([]string, error) {
	var keys []string
	for keyID, list := range entries {
		if len(list) == 0 {
			continue
		}
		raw, err := hex.DecodeString(list[len(list)-1])
		if err != nil {
			continue
		}
		var req poker.DisputeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		if req.GameID == "" || req.PayinTx == "" || req.Reason == "" {
			continue
		}
		expected, err := c.cmm.DataKeyID(vdxf.KeyPDisputeRequest, req.GameID)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(expected, keyID) {
			keys = append(keys, keyID)
		}
	}
	return keys, nil
}

func (c *Cashier) disputeAnswered(gameID, playerID string) (bool, error) {
	resultKey, err := c.cmm.DataKeyID(vdxf.KeyCDisputeResult, gameID+"."+playerID)
	if err != nil {
		return false, err
	}
	err = c.cmm.GetLatestJSON(c.cfg.Keys.CashiersID, resultKey, 0, &poker.DisputeResult{})
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// resolveDispute decides one dispute:
//  1. spent payin → rejected;
//  2. game settled → rejected;
//  3. settlement pending → pay the owed amount now;
//  4. otherwise refund the full payin once it is old enough, per the
//     dispute timeout.
func (c *Cashier) resolveDispute(req *poker.DisputeRequest) error {
	c.log.Infof("Processing dispute: player=%s game=%s reason=%s",
		req.PlayerID, req.GameID, req.Reason)

	result := &poker.DisputeResult{
		PlayerID: req.PlayerID,
		GameID:   req.GameID,
	}

	unspent, err := c.payinUnspent(req.PayinTx)
	if err != nil {
		return err
	}

	switch {
	case !unspent:
		result.Status = poker.DisputeRejected
		result.Reason = reasonPayinSpent

	default:
		state, sameGame := c.disputedGameState(req)
		switch {
		case sameGame && state == poker.StateSettlementComplete:
			result.Status = poker.DisputeRejected
			result.Reason = reasonAlreadySettled

		case sameGame && state == poker.StateSettlementPending:
			c.settleDisputed(req, result)

		default:
			c.refundIfAborted(req, state, result)
		}
	}

	return c.publishDisputeResult(req, result)
}

// payinUnspent tests whether any output of the payin transaction is still in
// the UTXO set. This test is the serialization boundary: a payin is
// eligible for settlement or refund, never both.
func (c *Cashier) payinUnspent(payinTx string) (bool, error) {
	tx, err := c.chain.GetRawTransaction(payinTx)
	if err != nil {
		return false, err
	}
	for _, out := range tx.Vout {
		unspent, err := c.chain.TxOutUnspent(payinTx, out.N)
		if err != nil {
			return false, err
		}
		if unspent {
			return true, nil
		}
	}
	return false, nil
}

// disputedGameState returns the table's state when the disputed game id is
// still the table's current hand.
func (c *Cashier) disputedGameState(req *poker.DisputeRequest) (poker.GameState, bool) {
	view := poker.NewView(c.cmm, req.TableID, 0)
	gid, err := view.GameID()
	if err != nil || gid != req.GameID {
		return poker.StateZeroized, false
	}
	if t, err := view.TableInfo(); err == nil {
		view.HeightStart = t.StartBlock
	}
	state, err := view.State()
	if err != nil {
		return poker.StateZeroized, false
	}
	return state, true
}

// settleDisputed pays the disputing player its settlement share immediately.
func (c *Cashier) settleDisputed(req *poker.DisputeRequest, result *poker.DisputeResult) {
	view := poker.NewView(c.cmm, req.TableID, 0)
	if t, err := view.TableInfo(); err == nil {
		view.HeightStart = t.StartBlock
	}
	settlement, err := view.Settlement()
	if err != nil || settlement == nil {
		result.Status = poker.DisputeRejected
		result.Reason = reasonNoSettlement
		return
	}

	for i, pid := range settlement.PlayerIDs {
		if pid != req.PlayerID || i >= len(settlement.SettleAmounts) {
			continue
		}
		amount := settlement.SettleAmounts[i]
		if amount <= 0 {
			result.Status = poker.DisputePaid
			result.Reason = reasonZeroAmount
			return
		}
		txid, err := c.payout(req, amount, "dispute_settlement")
		if err != nil {
			c.log.Errorf("Dispute settlement payout failed: %v", err)
			result.Status = poker.DisputeRejected
			result.Reason = reasonPayoutFailed
			return
		}
		result.Status = poker.DisputePaid
		result.Reason = reasonSettlementPaid
		result.PayoutTx = txid
		return
	}
	result.Status = poker.DisputeRejected
	result.Reason = reasonNoSettlement
}

// refundIfAborted refunds the full payin when the hand has stalled long
// enough, per the dispute timeout; younger disputes on live games are
// rejected.
func (c *Cashier) refundIfAborted(req *poker.DisputeRequest, state poker.GameState,
	result *poker.DisputeResult) {

	height, err := c.chain.GetBlockCount()
	if err != nil {
		result.Status = poker.DisputeRejected
		result.Reason = reasonRefundFailed
		return
	}

	var history poker.GameHistory
	histKey, err := c.cmm.DataKeyID(vdxf.KeyPGameHistory, req.GameID)
	if err == nil {
		if gerr := c.cmm.GetLatestJSON(req.PlayerID, histKey, 0, &history); gerr != nil {
			history = poker.GameHistory{}
		}
	}

	payinAge := height - history.JoinBlock
	if payinAge < poker.DisputeTimeoutBlocks && state != poker.StateZeroized {
		result.Status = poker.DisputeRejected
		result.Reason = reasonStillActive
		c.log.Infof("Game still active (payin age %d blocks), dispute rejected", payinAge)
		return
	}

	if history.Amount <= 0 {
		result.Status = poker.DisputeRejected
		result.Reason = reasonNoAmount
		return
	}

	txid, err := c.payout(req, history.Amount, "dispute_refund")
	if err != nil {
		c.log.Errorf("Dispute refund failed: %v", err)
		result.Status = poker.DisputeRejected
		result.Reason = reasonRefundFailed
		return
	}
	result.Status = poker.DisputeRefunded
	result.Reason = reasonAbortedRefund
	result.PayoutTx = txid
}

func (c *Cashier) payout(req *poker.DisputeRequest, amount float64, kind string) (string, error) {
	opid, err := c.chain.SendCurrency(c.cmm.FQN(c.cfg.CashierID), c.cmm.FQN(req.PlayerID),
		amount, map[string]interface{}{
			"type":    kind,
			"game_id": req.GameID,
		})
	if err != nil {
		return "", err
	}
	return c.chain.WaitForOperation(opid)
}

// publishDisputeResult writes the verdict under
// c_dispute_result.<game_id>.<player_id> so the player can observe it and
// never double-claim.
func (c *Cashier) publishDisputeResult(req *poker.DisputeRequest, result *poker.DisputeResult) error {
	height, err := c.chain.GetBlockCount()
	if err == nil {
		result.ResolvedBlock = height
	}

	resultKey, err := c.cmm.DataKeyID(vdxf.KeyCDisputeResult, req.GameID+"."+req.PlayerID)
	if err != nil {
		return err
	}
	if err := c.cmm.AppendJSON(c.cfg.Keys.CashiersID, resultKey, result); err != nil {
		return err
	}

	if err := c.db.SaveDispute(&storage.DisputeRecord{
		GameID:        req.GameID,
		PlayerID:      req.PlayerID,
		PayinTx:       req.PayinTx,
		Status:        result.Status,
		Reason:        result.Reason,
		PayoutTx:      result.PayoutTx,
		ResolvedBlock: result.ResolvedBlock,
	}); err != nil {
		c.log.Warnf("Recording dispute: %v", err)
	}

	c.log.Infof("Dispute resolved: %s / %s", result.Status, result.Reason)
	return nil
}
