package player

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

// ReserveRate keeps a margin of wallet funds out of play for fees.
const ReserveRate = 1.025

var (
	// ErrPlayerNotAdded means the seat did not appear in t_player_info
	// within the join window; the payin is recoverable through a dispute.
	ErrPlayerNotAdded = errors.New("player: not added to table after payin")
	// ErrGameAlreadyStarted means the hand progressed past the shuffle and
	// no cached deck exists, so the game cannot be joined or resumed.
	ErrGameAlreadyStarted = errors.New("player: game already started, no saved deck")
	// ErrNoTable means no joinable table was found.
	ErrNoTable = errors.New("player: no acceptable table found")
	// ErrInsufficientFunds means the wallet cannot cover the stake.
	ErrInsufficientFunds = errors.New("player: insufficient wallet funds")
)

// Mode selects how betting decisions are made.
type Mode int

const (
	// ModeAuto auto-calls or checks; used headless and in tests.
	ModeAuto Mode = iota
	// ModeGUI defers decisions to the WebSocket front-end.
	ModeGUI
)

// Player runs the player role: join a table, generate and publish the deck,
// decode cards addressed to it, submit betting actions and raise disputes.
type Player struct {
	cfg   *config.Player
	chain *chain.Client
	cmm   *vdxf.Client
	db    *storage.DB
	gui   *gui.Server
	log   slog.Logger
	mode  Mode

	table *poker.Table
	view  *poker.View

	slot    int
	deck    *cards.PlayerDeck
	payinTx string

	// Local per-hand progress, mirrored to the cache for rejoin.
	decoded    []int
	lastCardID int
	lastRound  int

	fatal error
}

// New wires a player from its configuration.
func New(cfg *config.Player, c *chain.Client, cmmClient *vdxf.Client, db *storage.DB,
	guiSrv *gui.Server, log slog.Logger) *Player {
	p := &Player{
		cfg:        cfg,
		chain:      c,
		cmm:        cmmClient,
		db:         db,
		gui:        guiSrv,
		log:        log,
		slot:       -1,
		lastCardID: -1,
		lastRound:  -1,
		decoded:    make([]int, poker.HandSize),
	}
	for i := range p.decoded {
		p.decoded[i] = -1
	}
	return p
}

// SetMode selects the betting input mode.
func (p *Player) SetMode(m Mode) { p.mode = m }

// Run joins (or rejoins) a table and services the hand until settlement.
func (p *Player) Run() error {
	if err := p.setup(); err != nil {
		return err
	}

	sm := statemachine.NewStateMachine(p, playerStep)
	for !sm.Done() {
		sm.Dispatch(nil)
		if p.fatal != nil {
			return p.fatal
		}
		time.Sleep(2 * time.Second)
	}
	return nil
}

func playerStep(p *Player, _ func(string, statemachine.StateEvent)) statemachine.StateFn[Player] {
	state, err := p.view.State()
	if err != nil {
		p.log.Warnf("Reading table state: %v", err)
		return playerStep
	}

	if err := p.handleState(state); err != nil {
		if errors.Is(err, cards.ErrDecodeFailed) {
			// Fatal to the hand; recover the stake through a dispute.
			p.log.Errorf("Card decode failed, raising dispute")
			if gid, gerr := p.view.GameID(); gerr == nil {
				if derr := p.RaiseDispute(gid, "decode_failed"); derr != nil {
					p.log.Errorf("Dispute failed: %v", derr)
				}
			}
			p.fatal = err
			return nil
		}
		p.log.Warnf("Handling state %v: %v", state, err)
	}
	if state == poker.StateSettlementComplete {
		p.log.Infof("Settlement complete, hand finished")
		return nil
	}
	return playerStep
}

func (p *Player) setup() error {
	ok, err := p.chain.CanSignFor(p.cmm.FQN(p.cfg.VerusPID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("player: cannot sign for identity %s", p.cfg.VerusPID)
	}

	if err := p.findTable(); err != nil {
		return err
	}

	seated, err := p.existingSeat()
	if err != nil {
		return err
	}
	if seated {
		return p.rejoin()
	}

	if err := p.join(); err != nil {
		return err
	}
	return p.initDeck()
}

// findTable locates an acceptable table: the configured one when set,
// otherwise any registered table in TABLE_STARTED with a free seat and an
// affordable stake.
func (p *Player) findTable() error {
	balance, err := p.chain.Balance()
	if err != nil {
		return err
	}

	candidates := []string{}
	if p.cfg.TableID != "" {
		candidates = append(candidates, p.cfg.TableID)
	} else {
		tables, err := p.registeredTables()
		if err != nil {
			return err
		}
		candidates = append(candidates, tables...)
	}

	for _, tableID := range candidates {
		t, view, err := p.loadTable(tableID)
		if err != nil {
			p.log.Debugf("Table %s: %v", tableID, err)
			continue
		}
		if t.MinStake*ReserveRate > balance {
			p.log.Infof("Table %s stake %.4f exceeds balance %.4f", tableID, t.MinStake, balance)
			continue
		}
		state, err := view.State()
		if err != nil {
			continue
		}
		players, err := view.PlayerInfo()
		if err != nil {
			continue
		}
		_, alreadySeated := players.Find(p.cfg.VerusPID)
		if !alreadySeated && (state != poker.StateTableStarted || players.NumPlayers >= t.MaxPlayers) {
			continue
		}
		p.table = t
		p.view = view
		return nil
	}
	return ErrNoTable
}

// registeredTables lists tables hosted by registered dealers.
func (p *Player) registeredTables() ([]string, error) {
	keyID, err := p.cmm.KeyID(vdxf.KeyDealers)
	if err != nil {
		return nil, err
	}
	var reg poker.DealerRegistry
	if err := p.cmm.GetLatestJSON(p.cfg.Keys.DealersID, keyID, 0, &reg); err != nil {
		return nil, err
	}
	tblKey, err := p.cmm.KeyID(vdxf.KeyTTableInfo)
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, dealerID := range reg.Dealers {
		var t poker.Table
		if err := p.cmm.GetLatestJSON(dealerID, tblKey, 0, &t); err == nil && t.TableID != "" {
			tables = append(tables, t.TableID)
		}
	}
	return tables, nil
}

// loadTable reads the table record and builds the hand view anchored at its
// start_block.
func (p *Player) loadTable(tableID string) (*poker.Table, *poker.View, error) {
	height, err := p.chain.GetBlockCount()
	if err != nil {
		return nil, nil, err
	}
	bootstrap := height - 100
	if bootstrap < 0 {
		bootstrap = 0
	}
	view := poker.NewView(p.cmm, tableID, bootstrap)
	t, err := view.TableInfo()
	if err != nil {
		return nil, nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, nil, err
	}
	view.HeightStart = t.StartBlock
	return t, view, nil
}

// existingSeat reports whether this identity is already in t_player_info.
func (p *Player) existingSeat() (bool, error) {
	players, err := p.view.PlayerInfo()
	if err != nil {
		return false, err
	}
	seat, ok := players.Find(p.cfg.VerusPID)
	if ok {
		p.slot = seat.Slot
		p.payinTx = seat.PayinTx
	}
	return ok, nil
}

// join escrows the stake with the cashier, publishes the join request and
// waits for the dealer to seat us.
func (p *Player) join() error {
	amount := p.table.MinStake
	balance, err := p.chain.Balance()
	if err != nil {
		return err
	}
	if balance < amount*ReserveRate {
		return fmt.Errorf("%w: need %.4f, have %.4f", ErrInsufficientFunds, amount*ReserveRate, balance)
	}

	cashierFQN := p.cmm.FQN(p.table.CashierID)
	p.log.Infof("Sending payin of %.4f CHIPS to %s", amount, cashierFQN)
	opid, err := p.chain.SendCurrency(p.cmm.FQN(p.cfg.VerusPID), cashierFQN, amount, nil)
	if err != nil {
		return err
	}
	txid, err := p.chain.WaitForOperation(opid)
	if err != nil {
		return err
	}
	p.payinTx = txid
	p.log.Infof("Payin confirmed: %s", txid)

	joinKey, err := p.cmm.KeyID(vdxf.KeyPJoinRequest)
	if err != nil {
		return err
	}
	req := &poker.JoinRequest{
		DealerID:  p.table.DealerID,
		TableID:   p.table.TableID,
		CashierID: cashierFQN,
		PayinTx:   txid,
	}
	if err := p.cmm.AppendJSON(p.cfg.VerusPID, joinKey, req); err != nil {
		return err
	}

	if err := p.waitForSeat(); err != nil {
		return err
	}

	// Game history backs the dispute path if the hand stalls later.
	gid, err := p.view.GameID()
	if err != nil {
		return err
	}
	joinBlock, err := p.chain.GetBlockCount()
	if err != nil {
		return err
	}
	history := &poker.GameHistory{
		PayinTx:   txid,
		TableID:   p.table.TableID,
		GameID:    gid,
		Amount:    amount,
		JoinBlock: joinBlock,
		PlayerID:  p.slot,
	}
	if err := p.view.Put(p.cfg.VerusPID, vdxf.KeyPGameHistory, history); err != nil {
		return err
	}

	return p.db.SavePlayerLocalState(&storage.PlayerLocalState{
		GameID:       gid,
		TableID:      p.table.TableID,
		PayinTx:      txid,
		PlayerID:     p.slot,
		DecodedCards: p.decoded,
		LastCardID:   -1,
	})
}

// waitForSeat polls t_player_info for our seat, bounded by the join window.
func (p *Player) waitForSeat() error {
	start, err := p.chain.GetBlockCount()
	if err != nil {
		return err
	}
	for {
		seated, err := p.existingSeat()
		if err != nil {
			return err
		}
		if seated {
			p.log.Infof("Seated at slot %d", p.slot)
			return nil
		}
		height, err := p.chain.GetBlockCount()
		if err != nil {
			return err
		}
		if height-start >= poker.JoinWaitBlocks {
			return ErrPlayerNotAdded
		}
		time.Sleep(2 * time.Second)
	}
}

// initDeck runs Phase P: generate the keypair and per-card scalars, persist
// them for rejoin, publish the public deck and report DECK_SHUFFLING_P.
func (p *Player) initDeck() error {
	deck, err := cards.GenPlayerDeck(cards.NumCards)
	if err != nil {
		return err
	}
	p.deck = deck

	gid, err := p.view.GameID()
	if err != nil {
		return err
	}
	privs := make([]string, len(deck.Cards))
	for i, c := range deck.Cards {
		privs[i] = c.Priv.String()
	}
	if err := p.db.SavePlayerDeckInfo(&storage.PlayerDeckInfo{
		GameID:         gid,
		TableID:        p.table.TableID,
		PlayerID:       p.slot,
		PlayerPriv:     deck.Key.Priv.String(),
		PlayerDeckPriv: privs,
	}); err != nil {
		return err
	}

	gameIDKey, err := p.cmm.KeyID(vdxf.KeyTGameID)
	if err != nil {
		return err
	}
	if err := p.cmm.AppendString(p.cfg.VerusPID, gameIDKey, gid); err != nil {
		return err
	}

	record := map[string]interface{}{
		"id":       p.slot,
		"pubkey":   deck.Key.Pub,
		"cardinfo": deck.PublicPoints(),
	}
	if err := p.view.Put(p.cfg.VerusPID, vdxf.KeyPlayerDeck, record); err != nil {
		return err
	}
	p.log.Infof("Published player deck (%d cards)", len(deck.Cards))

	return p.view.AppendStateTo(p.cfg.VerusPID, poker.StateDeckShufflingP, nil)
}

// rejoin restores a hand in progress from the local cache. Without cached
// deck scalars the hand cannot be resumed once the shuffle has completed.
func (p *Player) rejoin() error {
	state, err := p.view.State()
	if err != nil {
		return err
	}
	gid, err := p.view.GameID()
	if err != nil {
		return err
	}

	saved, err := p.db.LoadPlayerDeckInfo(gid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if state > poker.StateDeckShufflingB {
				return ErrGameAlreadyStarted
			}
			// Shuffle not finished; publishing a fresh deck is still valid.
			return p.initDeck()
		}
		return err
	}

	// Rebuild the deck from the cached scalars. A fresh player_deck must
	// not be published over this hand's commitments.
	keyPriv, err := cards.ParseScalar(saved.PlayerPriv)
	if err != nil {
		return fmt.Errorf("player: corrupt cached key: %w", err)
	}
	pub, err := cards.ScalarMult(keyPriv, cards.Basepoint())
	if err != nil {
		return err
	}
	deck := &cards.PlayerDeck{Key: cards.Keypair{Priv: keyPriv, Pub: pub}}
	for _, hexPriv := range saved.PlayerDeckPriv {
		priv, err := cards.ParseScalar(hexPriv)
		if err != nil {
			return fmt.Errorf("player: corrupt cached deck: %w", err)
		}
		cardPub, err := cards.ScalarMult(priv, pub)
		if err != nil {
			return err
		}
		deck.Cards = append(deck.Cards, cards.CardKey{Priv: priv, Pub: cardPub})
	}
	p.deck = deck
	p.slot = saved.PlayerID

	if local, err := p.db.LoadPlayerLocalState(gid); err == nil {
		copy(p.decoded, local.DecodedCards)
		p.lastCardID = local.LastCardID
		p.payinTx = local.PayinTx
	}
	p.log.Infof("Rejoined hand %s at slot %d, %d cards restored", gid, p.slot, countDecoded(p.decoded))

	if p.gui != nil {
		p.gui.Send(gui.PlayerInitState(p.slot, p.decoded))
	}
	return nil
}

func countDecoded(cards []int) int {
	n := 0
	for _, c := range cards {
		if c >= 0 {
			n++
		}
	}
	return n
}

func (p *Player) handleState(state poker.GameState) error {
	switch state {
	case poker.StateRevealCard:
		return p.handleReveal()
	case poker.StateRoundBetting:
		return p.handleBetting()
	case poker.StateShowdown:
		return p.handleShowdown()
	case poker.StateSettlementPending:
		return nil
	}
	return nil
}

// saveLocalState mirrors the in-memory progress to the cache.
func (p *Player) saveLocalState() {
	gid, err := p.view.GameID()
	if err != nil {
		return
	}
	err = p.db.SavePlayerLocalState(&storage.PlayerLocalState{
		GameID:            gid,
		TableID:           p.table.TableID,
		PayinTx:           p.payinTx,
		PlayerID:          p.slot,
		DecodedCards:      p.decoded,
		CardsDecodedCount: countDecoded(p.decoded),
		LastCardID:        p.lastCardID,
		LastGameState:     p.lastRound,
	})
	if err != nil {
		p.log.Warnf("Saving local state: %v", err)
	}
}
