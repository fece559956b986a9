package dealer

import (
	"errors"
	"fmt"

	"github.com/sg777/pangea/pkg/chain"
	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/vdxf"
)

// defaultCandidates is the fixed list of player identities the join poller
// scans; no candidate list is configurable.
var defaultCandidates = []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9"}

// pollJoins scans candidate player identities for join requests targeting
// this table, validates each against the cashier's incoming transactions,
// and seats valid joiners. Advances to PLAYERS_JOINED when the table fills.
func (d *Dealer) pollJoins() error {
	cashier, err := d.chain.GetIdentity(d.cmm.FQN(d.cfg.CashierID))
	if err != nil {
		return fmt.Errorf("dealer: cashier identity: %w", err)
	}
	cashierAddr := cashier.Identity.IdentityAddress
	if cashierAddr == "" {
		return fmt.Errorf("dealer: cashier %s has no identity address", d.cfg.CashierID)
	}

	start := d.table.StartBlock
	if start <= 0 {
		start = 1
	}
	txids, err := d.chain.GetAddressTxids(cashierAddr, start, 0)
	if err != nil {
		return err
	}
	if len(txids) == 0 {
		return nil
	}
	atCashier := make(map[string]bool, len(txids))
	for _, txid := range txids {
		atCashier[txid] = true
	}

	players, err := d.view.PlayerInfo()
	if err != nil {
		return err
	}

	joined := 0
	for _, candidate := range defaultCandidates {
		if players.NumPlayers >= d.table.MaxPlayers {
			break
		}
		ok, err := d.checkJoinRequest(candidate, players, atCashier)
		if err != nil {
			d.log.Warnf("Join request from %s: %v", candidate, err)
			continue
		}
		if ok {
			joined++
		}
	}

	if joined > 0 {
		players.NumPlayers = len(players.Players)
		if err := d.view.PutTable(vdxf.KeyTPlayerInfo, players); err != nil {
			return err
		}
		d.players = players
		d.log.Infof("Processed %d join request(s), %d/%d seated",
			joined, players.NumPlayers, d.table.MaxPlayers)
	}

	if players.NumPlayers >= d.table.MaxPlayers {
		return d.view.AppendState(poker.StatePlayersJoined, nil)
	}
	return nil
}

// checkJoinRequest validates one candidate's p_join_request: it must target
// this table and dealer, reference a payin that reached the cashier at or
// after start_block, and not duplicate an existing seat. The seat
// is added to the in-memory player info; the caller publishes it.
func (d *Dealer) checkJoinRequest(candidate string, players *poker.PlayerInfo,
	atCashier map[string]bool) (bool, error) {

	if !d.chain.IdentityExists(d.cmm.FQN(candidate)) {
		return false, nil
	}

	keyID, err := d.cmm.KeyID(vdxf.KeyPJoinRequest)
	if err != nil {
		return false, err
	}
	var req poker.JoinRequest
	err = d.cmm.GetLatestJSON(candidate, keyID, d.table.StartBlock, &req)
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}

	if req.DealerID != d.table.DealerID || req.TableID != d.table.TableID {
		return false, nil // not for our table
	}
	if req.PayinTx == "" || !atCashier[req.PayinTx] {
		return false, nil
	}

	tx, err := d.chain.GetRawTransaction(req.PayinTx)
	if err != nil {
		return false, err
	}
	if tx.Height > 0 && tx.Height < d.table.StartBlock {
		d.log.Debugf("Player %s payin %s is from an old hand (block %d < %d)",
			candidate, req.PayinTx, tx.Height, d.table.StartBlock)
		return false, nil
	}

	if _, seated := players.Find(candidate); seated {
		return false, nil // duplicate join request; seat exactly once
	}
	for _, s := range players.Players {
		if s.PayinTx == req.PayinTx {
			return false, nil // one seat per payin
		}
	}

	amount := payinAmount(tx.Vout, d.cashierAddress())
	if amount < d.table.MinStake {
		return false, fmt.Errorf("payin %.4f below min stake %.4f", amount, d.table.MinStake)
	}
	if amount > d.table.MaxStake {
		amount = d.table.MaxStake
	}

	if err := players.Add(poker.Seat{
		VerusPID:    candidate,
		PayinTx:     req.PayinTx,
		PayinAmount: amount,
	}); err != nil {
		return false, err
	}
	d.log.Infof("Player %s joined with payin %s (%.4f CHIPS)", candidate, req.PayinTx, amount)
	return true, nil
}

func (d *Dealer) cashierAddress() string {
	id, err := d.chain.GetIdentity(d.cmm.FQN(d.cfg.CashierID))
	if err != nil {
		return ""
	}
	return id.Identity.IdentityAddress
}

// payinAmount sums the transaction outputs paying the cashier address.
func payinAmount(vouts []chain.TxOutput, cashierAddr string) float64 {
	var total float64
	for _, out := range vouts {
		for _, addr := range out.ScriptPubKey.Addresses {
			if addr == cashierAddr {
				total = poker.AddChips(total, out.Value)
				break
			}
		}
	}
	return total
}
