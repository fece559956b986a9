package dealer

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

// ReserveAmount is the minimum wallet balance needed to host a table.
const ReserveAmount = 0.1

var (
	// ErrUnregistered means the dealer identity is not in the dealers
	// registry.
	ErrUnregistered = errors.New("dealer: dealer is not registered")
	// ErrInsufficientFunds means the wallet cannot cover the hosting
	// reserve.
	ErrInsufficientFunds = errors.New("dealer: insufficient wallet funds")
	// ErrHandAborted means the hand cannot continue; players recover
	// stakes through the dispute path.
	ErrHandAborted = errors.New("dealer: hand aborted")
)

// Dealer orchestrates a hand end to end: table init, joins, the dealer leg
// of the cascaded shuffle, card reveals, betting, showdown and settlement
// publication. Its main loop is a synchronous poll-decide-publish cycle.
type Dealer struct {
	cfg   *config.Dealer
	chain *chain.Client
	cmm   *vdxf.Client
	db    *storage.DB
	gui   *gui.Server
	log   slog.Logger
	eval  poker.Evaluator

	table   poker.Table
	view    *poker.View
	deck    *cards.DealerDeck
	players *poker.PlayerInfo

	vars     *poker.Vars
	schedule *poker.Schedule

	// Pending reveal the table is waiting on, with its timeout anchors.
	pending      *poker.Deal
	revealStart  time.Time
	revealHeight int64

	fatal error
}

// New wires a dealer from its configuration.
func New(cfg *config.Dealer, c *chain.Client, cmmClient *vdxf.Client, db *storage.DB,
	guiSrv *gui.Server, log slog.Logger) *Dealer {
	return &Dealer{
		cfg:   cfg,
		chain: c,
		cmm:   cmmClient,
		db:    db,
		gui:   guiSrv,
		log:   log,
		eval:  poker.HandEvaluator{},
		table: poker.Table{
			MaxPlayers: cfg.MaxPlayers,
			BigBlind:   cfg.BigBlind,
			MinStake:   cfg.MinStake,
			MaxStake:   cfg.MaxStake,
			TableID:    cfg.TableID,
			DealerID:   cfg.DealerID,
			CashierID:  cfg.CashierID,
		},
	}
}

// SetEvaluator overrides the showdown hand evaluator.
func (d *Dealer) SetEvaluator(e poker.Evaluator) { d.eval = e }

// Run initializes the table and drives the hand until settlement completes
// or a fatal error aborts it.
func (d *Dealer) Run() error {
	if err := d.init(); err != nil {
		return err
	}

	sm := statemachine.NewStateMachine(d, dealerStep)
	for !sm.Done() {
		sm.Dispatch(nil)
		if d.fatal != nil {
			return d.fatal
		}
		time.Sleep(2 * time.Second)
	}
	d.log.Infof("Hand complete, settlement finished")
	return nil
}

// dealerStep advances the table state machine one poll iteration. It stays
// in this state until settlement completes; chain errors are transient and
// logged unless marked fatal.
func dealerStep(d *Dealer, _ func(string, statemachine.StateEvent)) statemachine.StateFn[Dealer] {
	state, err := d.view.State()
	if err != nil {
		d.log.Warnf("Reading table state: %v", err)
		return dealerStep
	}

	if err := d.handleState(state); err != nil {
		if errors.Is(err, ErrHandAborted) {
			d.fatal = err
			return nil
		}
		d.log.Warnf("Handling state %v: %v", state, err)
	}
	if state == poker.StateSettlementComplete {
		return nil
	}
	return dealerStep
}

func (d *Dealer) init() error {
	balance, err := d.chain.Balance()
	if err != nil {
		return err
	}
	if balance < ReserveAmount {
		return fmt.Errorf("%w: have %.4f, need %.4f", ErrInsufficientFunds, balance, ReserveAmount)
	}

	for _, id := range []string{d.cfg.DealerID, d.cfg.TableID} {
		ok, err := d.chain.CanSignFor(d.cmm.FQN(id))
		if err != nil {
			return fmt.Errorf("dealer: identity %s: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("dealer: cannot sign for identity %s", id)
		}
	}

	registered, err := d.isRegistered()
	if err != nil {
		return err
	}
	if !registered {
		return ErrUnregistered
	}

	if err := d.registerTable(); err != nil {
		return err
	}
	if err := d.tableInit(); err != nil {
		return err
	}

	if d.gui != nil {
		d.gui.Send(gui.BackendStatus(true))
		d.gui.Send(gui.TableInfo(&d.table))
	}
	d.log.Infof("Dealer ready. Table: %s, Dealer: %s, Cashier: %s",
		d.table.TableID, d.table.DealerID, d.table.CashierID)
	return nil
}

func (d *Dealer) isRegistered() (bool, error) {
	keyID, err := d.cmm.KeyID(vdxf.KeyDealers)
	if err != nil {
		return false, err
	}
	var reg poker.DealerRegistry
	err = d.cmm.GetLatestJSON(d.cfg.Keys.DealersID, keyID, 0, &reg)
	if err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, id := range reg.Dealers {
		if id == d.cfg.DealerID {
			return true, nil
		}
	}
	return false, nil
}

// registerTable publishes the hosted table on the dealer identity so players
// can discover it through the registry.
func (d *Dealer) registerTable() error {
	keyID, err := d.cmm.KeyID(vdxf.KeyTTableInfo)
	if err != nil {
		return err
	}
	var existing poker.Table
	err = d.cmm.GetLatestJSON(d.cfg.DealerID, keyID, 0, &existing)
	if err == nil && existing.TableID == d.table.TableID {
		d.log.Infof("Table %s already registered with dealer %s", d.table.TableID, d.cfg.DealerID)
		return nil
	}
	if err != nil && !errors.Is(err, vdxf.ErrKeyNotFound) {
		return err
	}
	// Only one hosted table per dealer; a new table replaces the old entry
	// for readers, which take the last one.
	return d.cmm.AppendJSON(d.cfg.DealerID, keyID, &d.table)
}

// tableInit drives the ZEROIZED → TABLE_ACTIVE → TABLE_STARTED transitions,
// resuming in place when the table is already mid-hand.
func (d *Dealer) tableInit() error {
	height, err := d.chain.GetBlockCount()
	if err != nil {
		return err
	}
	// Until t_table_info exists the start block is unknown; a recent window
	// keeps earlier hands' entries out of view.
	bootstrapHeight := height - 100
	if bootstrapHeight < 0 {
		bootstrapHeight = 0
	}
	d.view = poker.NewView(d.cmm, d.cfg.TableID, bootstrapHeight)

	state, err := d.view.State()
	if err != nil {
		return err
	}

	switch state {
	case poker.StateZeroized:
		gameID := cards.Rand256(false).String()
		d.log.Infof("Generated new game_id: %s", gameID)
		keyID, err := d.cmm.KeyID(vdxf.KeyTGameID)
		if err != nil {
			return err
		}
		if err := d.cmm.AppendString(d.cfg.TableID, keyID, gameID); err != nil {
			return err
		}
		if err := d.view.AppendState(poker.StateTableActive, nil); err != nil {
			return err
		}
		fallthrough
	case poker.StateTableActive:
		startBlock, err := d.chain.GetBlockCount()
		if err != nil {
			return err
		}
		d.table.StartBlock = startBlock
		d.log.Infof("Table start_block set to %d", startBlock)
		if err := d.view.PutTable(vdxf.KeyTTableInfo, &d.table); err != nil {
			return err
		}
		if err := d.view.AppendState(poker.StateTableStarted, nil); err != nil {
			return err
		}
		d.view.HeightStart = startBlock
	default:
		// Already started: reload the hand context from the chain.
		t, err := d.view.TableInfo()
		if err != nil {
			return fmt.Errorf("dealer: resume: %w", err)
		}
		d.table = *t
		d.view.HeightStart = t.StartBlock
		players, err := d.view.PlayerInfo()
		if err != nil {
			return fmt.Errorf("dealer: resume: %w", err)
		}
		d.players = players
		if err := d.restoreDeck(); err != nil {
			return err
		}
		d.log.Infof("Table resumed at state: %v", state)
	}
	return nil
}

// restoreDeck reloads the dealer's permutation and scalars from the cache
// when resuming past the shuffle.
func (d *Dealer) restoreDeck() error {
	gid, err := d.view.GameID()
	if err != nil {
		return nil
	}
	saved, err := d.db.LoadDealerDeckInfo(gid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	deck := &cards.DealerDeck{Perm: saved.Perm}
	for _, hexPriv := range saved.DealerDeckPriv {
		priv, err := cards.ParseScalar(hexPriv)
		if err != nil {
			return fmt.Errorf("dealer: corrupt cached deck: %w", err)
		}
		pub, err := cards.ScalarMult(priv, cards.Basepoint())
		if err != nil {
			return err
		}
		deck.Cards = append(deck.Cards, cards.CardKey{Priv: priv, Pub: pub})
	}
	d.deck = deck
	return nil
}

func (d *Dealer) handleState(state poker.GameState) error {
	switch state {
	case poker.StateTableStarted:
		return d.pollJoins()
	case poker.StatePlayersJoined:
		return d.checkPlayersShuffled()
	case poker.StateDeckShufflingP:
		return d.shuffleDeck()
	case poker.StateDeckShufflingB:
		return d.startGame()
	case poker.StateRevealCard:
		return d.handleReveal()
	case poker.StateRoundBetting:
		return d.handleRoundBetting()
	case poker.StateShowdown:
		return d.handleShowdown()
	}
	return nil
}

// checkPlayersShuffled advances to DECK_SHUFFLING_P once every seated player
// reports that state on its own identity.
func (d *Dealer) checkPlayersShuffled() error {
	players, err := d.view.PlayerInfo()
	if err != nil {
		return err
	}
	d.players = players
	if players.NumPlayers == 0 {
		return nil
	}
	for _, pid := range players.IDs() {
		state, err := d.view.StateOf(pid)
		if err != nil {
			return err
		}
		if state != poker.StateDeckShufflingP {
			return nil
		}
	}
	return d.view.AppendState(poker.StateDeckShufflingP, nil)
}

// shuffleDeck performs Phase D: the dealer's leg of the cascaded shuffle for
// every seated player, then publishes its public points.
func (d *Dealer) shuffleDeck() error {
	if d.players == nil || d.players.NumPlayers == 0 {
		players, err := d.view.PlayerInfo()
		if err != nil {
			return err
		}
		d.players = players
	}

	deck, err := cards.GenDealerDeck(cards.NumCards)
	if err != nil {
		return err
	}
	d.deck = deck

	gid, err := d.view.GameID()
	if err != nil {
		return err
	}
	privs := make([]string, len(deck.Cards))
	for i, c := range deck.Cards {
		privs[i] = c.Priv.String()
	}
	if err := d.db.SaveDealerDeckInfo(&storage.DealerDeckInfo{
		GameID:         gid,
		Perm:           deck.Perm,
		DealerDeckPriv: privs,
	}); err != nil {
		return err
	}

	for slot, pid := range d.players.IDs() {
		var pd playerDeckRecord
		if err := d.view.Get(pid, vdxf.KeyPlayerDeck, &pd); err != nil {
			return fmt.Errorf("dealer: player %s deck: %w", pid, err)
		}
		if len(pd.CardInfo) != cards.NumCards {
			return fmt.Errorf("dealer: player %s published %d card points, want %d",
				pid, len(pd.CardInfo), cards.NumCards)
		}
		blinded, err := deck.BlindForPlayer(pd.CardInfo)
		if err != nil {
			return err
		}
		if err := d.view.PutTable(vdxf.DealerDeckKey(slot), blinded); err != nil {
			return err
		}
		d.log.Infof("Published dealer-blinded deck for player %d (%s)", slot, pid)
	}

	if err := d.view.PutTable(vdxf.KeyTDDeck, deck.PublicPoints()); err != nil {
		return err
	}
	return d.view.AppendState(poker.StateDeckShufflingD, nil)
}

// playerDeckRecord is the player_deck entry a player publishes in Phase P.
type playerDeckRecord struct {
	ID       int            `json:"id"`
	Pubkey   cards.Scalar   `json:"pubkey"`
	CardInfo []cards.Scalar `json:"cardinfo"`
}

// ensureGame loads the seated players and initializes the betting vars and
// deal schedule from the recorded payin amounts.
func (d *Dealer) ensureGame() error {
	if d.players == nil || d.players.NumPlayers == 0 {
		players, err := d.view.PlayerInfo()
		if err != nil {
			return err
		}
		d.players = players
	}
	if d.vars == nil {
		d.vars = poker.NewVars(d.players.PayinAmounts, d.cfg.BigBlind/2, d.cfg.BigBlind)
		d.schedule = poker.NewSchedule(d.players.NumPlayers)
	}
	return nil
}

// startGame runs once the cashier finishes Phase B: load funds from payins,
// build the deal schedule and request the first card.
func (d *Dealer) startGame() error {
	if err := d.ensureGame(); err != nil {
		return err
	}
	return d.dealNextCard()
}

// dealNextCard publishes the next REVEAL_CARD request from the fixed deal
// schedule.
func (d *Dealer) dealNextCard() error {
	deal, ok := d.schedule.Next()
	if !ok {
		return d.view.AppendState(poker.StateShowdown, nil)
	}
	info := &poker.GameStateInfo{
		PlayerID: deal.Player,
		CardID:   deal.CardID,
		CardType: deal.CardType,
	}
	if err := d.view.AppendState(poker.StateRevealCard, info); err != nil {
		return err
	}
	d.pending = &deal
	d.revealStart = time.Now()
	height, err := d.chain.GetBlockCount()
	if err != nil {
		height = 0
	}
	d.revealHeight = height
	d.log.Infof("Requested reveal: player=%d card=%d type=%s", deal.Player, deal.CardID, deal.CardType)
	return nil
}
