package cashier

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/decred/slog"

	"github.com/sg777/pangea/pkg/cards"
	"github.com/sg777/pangea/pkg/chain"
	"github.com/sg777/pangea/pkg/config"
	"github.com/sg777/pangea/pkg/gui"
	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/statemachine"
	"github.com/sg777/pangea/pkg/storage"
	"github.com/sg777/pangea/pkg/vdxf"
)

// ErrNoTable means no hosted table references this cashier.
var ErrNoTable = errors.New("cashier: no table to service")

// Cashier custodies table funds, runs the blinding leg of the cascaded
// shuffle, reveals blinding values on card-draw requests, executes
// settlement payouts and resolves disputes. The game loop and the dispute
// loop poll disjoint CMM keys and run as separate tasks.
type Cashier struct {
	cfg   *config.Cashier
	chain *chain.Client
	cmm   *vdxf.Client
	db    *storage.DB
	gui   *gui.Server
	log   slog.Logger

	table *poker.Table
	view  *poker.View
	deck  *cards.BlinderDeck
	key   cards.Keypair

	lastLogged poker.GameState
	fatal      error
}

// New wires a cashier from its configuration.
func New(cfg *config.Cashier, c *chain.Client, cmmClient *vdxf.Client, db *storage.DB,
	guiSrv *gui.Server, log slog.Logger) *Cashier {
	return &Cashier{
		cfg:        cfg,
		chain:      c,
		cmm:        cmmClient,
		db:         db,
		gui:        guiSrv,
		log:        log,
		lastLogged: -1,
	}
}

// Run discovers the hosted table and drives the cashier's parallel state
// machine until settlement completes. The dispute poller runs alongside as
// a background task.
func (c *Cashier) Run() error {
	if err := c.setup(); err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)
	go c.disputeLoop(stop)

	sm := statemachine.NewStateMachine(c, cashierStep)
	for !sm.Done() {
		sm.Dispatch(nil)
		if c.fatal != nil {
			return c.fatal
		}
		time.Sleep(2 * time.Second)
	}
	c.log.Infof("Settlement complete, hand finished")
	return nil
}

func cashierStep(c *Cashier, _ func(string, statemachine.StateEvent)) statemachine.StateFn[Cashier] {
	state, err := c.view.State()
	if err != nil {
		c.log.Warnf("Reading table state: %v", err)
		return cashierStep
	}
	if state != c.lastLogged {
		c.log.Infof("%v", state)
		c.lastLogged = state
	}

	if err := c.handleState(state); err != nil {
		c.log.Warnf("Handling state %v: %v", state, err)
	}
	if state == poker.StateSettlementComplete {
		return nil
	}
	return cashierStep
}

func (c *Cashier) setup() error {
	ok, err := c.chain.CanSignFor(c.cmm.FQN(c.cfg.CashierID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cashier: cannot sign for identity %s", c.cfg.CashierID)
	}

	key, err := cards.GenKeypair()
	if err != nil {
		return err
	}
	c.key = key

	if err := c.registerSelf(); err != nil {
		c.log.Warnf("Registry update failed: %v", err)
	}

	if err := c.findTable(); err != nil {
		return err
	}
	if c.gui != nil {
		c.gui.Send(gui.BackendStatus(true))
		c.gui.Send(gui.TableInfo(c.table))
	}
	c.log.Infof("Servicing table %s (dealer %s)", c.table.TableID, c.table.DealerID)
	return nil
}

// registerSelf adds this node to the cashiers registry.
func (c *Cashier) registerSelf() error {
	keyID, err := c.cmm.KeyID(vdxf.KeyCashiers)
	if err != nil {
		return err
	}
	var reg poker.CashierRegistry
	err = c.cmm.GetLatestJSON(c.cfg.Keys.CashiersID, keyID, 0, &reg)
	if err != nil && !errors.Is(err, vdxf.ErrKeyNotFound) {
		return err
	}
	for _, peer := range c.cfg.Peers {
		found := false
		for _, ip := range reg.Cashiers {
			if ip == peer.IP {
				found = true
				break
			}
		}
		if !found {
			reg.Cashiers = append(reg.Cashiers, peer.IP)
		}
	}
	if len(reg.Cashiers) == 0 {
		return nil
	}
	return c.cmm.AppendJSON(c.cfg.Keys.CashiersID, keyID, &reg)
}

// findTable scans the dealers registry for a hosted table naming this
// cashier as custodian.
func (c *Cashier) findTable() error {
	dealersKey, err := c.cmm.KeyID(vdxf.KeyDealers)
	if err != nil {
		return err
	}
	var reg poker.DealerRegistry
	if err := c.cmm.GetLatestJSON(c.cfg.Keys.DealersID, dealersKey, 0, &reg); err != nil {
		return fmt.Errorf("cashier: dealers registry: %w", err)
	}

	tblKey, err := c.cmm.KeyID(vdxf.KeyTTableInfo)
	if err != nil {
		return err
	}
	for _, dealerID := range reg.Dealers {
		var t poker.Table
		if err := c.cmm.GetLatestJSON(dealerID, tblKey, 0, &t); err != nil {
			continue
		}
		if t.CashierID != c.cfg.CashierID || t.TableID == "" {
			continue
		}
		view := poker.NewView(c.cmm, t.TableID, 0)
		full, err := view.TableInfo()
		if err != nil {
			// The table identity may not be initialized yet; service it
			// once the dealer starts the hand.
			view.HeightStart = 0
			c.table = &t
			c.view = view
			return nil
		}
		view.HeightStart = full.StartBlock
		c.table = full
		c.view = view
		return nil
	}
	return ErrNoTable
}

func (c *Cashier) handleState(state poker.GameState) error {
	switch state {
	case poker.StateDeckShufflingD:
		return c.shuffleDeck()
	case poker.StateRevealCard:
		return c.handleRevealRequest()
	case poker.StateSettlementPending:
		return c.processSettlement()
	}
	return nil
}

// shuffleDeck performs Phase B: re-blind every seated player's
// dealer-blinded deck under a fresh permutation and per-card blinding
// scalars, attach the Shamir share commitments, and advance the table.
func (c *Cashier) shuffleDeck() error {
	players, err := c.view.PlayerInfo()
	if err != nil {
		return err
	}
	if players.NumPlayers == 0 {
		return errors.New("cashier: no players seated at shuffle time")
	}
	gid, err := c.view.GameID()
	if err != nil {
		return err
	}

	if c.deck == nil {
		if err := c.restoreDeck(gid, players.NumPlayers); err != nil {
			return err
		}
	}
	if c.deck == nil {
		c.deck = cards.GenBlinderDeck(players.NumPlayers, cards.NumCards)
		for slot := 0; slot < players.NumPlayers; slot++ {
			privs := make([]string, cards.NumCards)
			for i, b := range c.deck.Blindings[slot] {
				privs[i] = b.String()
			}
			if err := c.db.SaveCashierDeckInfo(&storage.CashierDeckInfo{
				GameID:          gid,
				PlayerID:        slot,
				Perm:            c.deck.Perm,
				CashierDeckPriv: privs,
			}); err != nil {
				return err
			}
		}
	}

	playerPubs, err := c.playerPubkeys(players)
	if err != nil {
		return err
	}

	for slot := range players.Players {
		var dealerDeck cards.BlindedDeck
		if err := c.view.GetTable(vdxf.DealerDeckKey(slot), &dealerDeck); err != nil {
			return fmt.Errorf("cashier: dealer deck for slot %d: %w", slot, err)
		}
		blinded, err := c.deck.Blind(slot, &dealerDeck)
		if err != nil {
			return err
		}

		// Shamir-commit every blinding scalar so M players can recover a
		// card if this node disappears mid-hand.
		blinded.Shares = make([][]cards.EncShare, cards.NumCards)
		for i := 0; i < cards.NumCards; i++ {
			shares, err := cards.SplitBlinding(c.deck.Blindings[slot][i], playerPubs, c.key.Priv)
			if err != nil {
				return err
			}
			blinded.Shares[i] = shares
		}

		if err := c.view.PutTable(vdxf.BlinderDeckKey(slot), blinded); err != nil {
			return err
		}
		c.log.Infof("Published cashier-blinded deck for slot %d", slot)
	}

	return c.view.AppendState(poker.StateDeckShufflingB, nil)
}

func (c *Cashier) restoreDeck(gid string, numPlayers int) error {
	first, err := c.db.LoadCashierDeckInfo(gid, 0)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	deck := &cards.BlinderDeck{Perm: first.Perm, Blindings: make([][]cards.Scalar, numPlayers)}
	for slot := 0; slot < numPlayers; slot++ {
		info := first
		if slot > 0 {
			info, err = c.db.LoadCashierDeckInfo(gid, slot)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil // partial save; regenerate from scratch
				}
				return err
			}
		}
		for _, hexPriv := range info.CashierDeckPriv {
			b, err := cards.ParseScalar(hexPriv)
			if err != nil {
				return fmt.Errorf("cashier: corrupt cached blindings: %w", err)
			}
			deck.Blindings[slot] = append(deck.Blindings[slot], b)
		}
	}
	c.deck = deck
	return nil
}

// playerPubkeys collects the seated players' deck public keys for share
// encryption.
func (c *Cashier) playerPubkeys(players *poker.PlayerInfo) ([]cards.Scalar, error) {
	pubs := make([]cards.Scalar, players.NumPlayers)
	for slot, seat := range players.Players {
		var record struct {
			Pubkey cards.Scalar `json:"pubkey"`
		}
		if err := c.view.Get(seat.VerusPID, vdxf.KeyPlayerDeck, &record); err != nil {
			return nil, fmt.Errorf("cashier: player %s deck: %w", seat.VerusPID, err)
		}
		pubs[slot] = record.Pubkey
	}
	return pubs, nil
}

// handleRevealRequest publishes the blinding value for the requested card:
// the single scalar for a hole card, the full per-seat vector for a
// community card (player_id == -1).
func (c *Cashier) handleRevealRequest() error {
	info, err := c.view.StateInfo()
	if err != nil || info == nil {
		return err
	}
	if c.deck == nil {
		players, err := c.view.PlayerInfo()
		if err != nil {
			return err
		}
		gid, err := c.view.GameID()
		if err != nil {
			return err
		}
		if err := c.restoreDeck(gid, players.NumPlayers); err != nil {
			return err
		}
		if c.deck == nil {
			return errors.New("cashier: reveal requested but no blinding deck")
		}
	}

	current, err := c.view.CardBV()
	if err != nil {
		return err
	}
	if current != nil && current.PlayerID == info.PlayerID && current.CardID == info.CardID {
		return nil // already revealed for this request
	}

	var bvs []string
	if info.PlayerID == -1 {
		for slot := range c.deck.Blindings {
			bvs = append(bvs, c.deck.BlindingValue(slot, info.CardID).String())
		}
	} else {
		if info.PlayerID < 0 || info.PlayerID >= len(c.deck.Blindings) {
			return fmt.Errorf("cashier: reveal for unknown seat %d", info.PlayerID)
		}
		bvs = []string{c.deck.BlindingValue(info.PlayerID, info.CardID).String()}
	}

	record := &poker.CardBV{PlayerID: info.PlayerID, CardID: info.CardID, BV: bvs}
	if err := c.view.PutTable(vdxf.KeyTCardBV, record); err != nil {
		return err
	}
	c.log.Infof("Revealed blinding value: player=%d card=%d", info.PlayerID, info.CardID)
	return nil
}

// processSettlement executes the pending settlement: one sendcurrency per
// positive amount, then rewrites the record completed with the payout txids
// and advances the table.
func (c *Cashier) processSettlement() error {
	settlement, err := c.view.Settlement()
	if err != nil {
		return err
	}
	if settlement == nil {
		return errors.New("cashier: settlement pending but no settlement info")
	}
	if settlement.Status != poker.SettlementPending {
		return nil
	}
	gid, err := c.view.GameID()
	if err != nil {
		return err
	}

	source := c.cmm.FQN(c.cfg.CashierID)
	payoutTxs := make([]string, len(settlement.SettleAmounts))
	for i, amount := range settlement.SettleAmounts {
		if i >= len(settlement.PlayerIDs) {
			break
		}
		if amount <= 0 {
			payoutTxs[i] = ""
			continue
		}
		dest := c.cmm.FQN(settlement.PlayerIDs[i])
		c.log.Infof("Settlement payout: %.4f CHIPS to %s", amount, dest)
		opid, err := c.chain.SendCurrency(source, dest, amount, map[string]interface{}{
			"type":        "game_settlement",
			"game_id":     gid,
			"table_id":    c.table.TableID,
			"player_slot": i,
		})
		if err != nil {
			c.log.Errorf("Payout to %s failed: %v", dest, err)
			payoutTxs[i] = "failed"
			continue
		}
		txid, err := c.chain.WaitForOperation(opid)
		if err != nil {
			c.log.Errorf("Payout operation for %s failed: %v", dest, err)
			payoutTxs[i] = "failed"
			continue
		}
		payoutTxs[i] = txid
	}

	completed := &poker.SettlementInfo{
		Status:        poker.SettlementCompleted,
		PlayerIDs:     settlement.PlayerIDs,
		SettleAmounts: settlement.SettleAmounts,
		PayoutTxs:     payoutTxs,
	}
	if err := c.view.PutTable(vdxf.KeyTSettlementInfo, completed); err != nil {
		return err
	}
	if err := c.view.AppendState(poker.StateSettlementComplete, nil); err != nil {
		return err
	}
	if c.gui != nil {
		c.gui.Send(gui.FinalInfo(completed))
	}
	c.log.Infof("Settlement completed for game %s", gid)
	return nil
}
